// Package middleware provides the HTTP middleware chain of the converter:
// request IDs, W3C access logging, Prometheus request metrics and gzip
// compression of text responses. Binary downloads pass through untouched.
package middleware
