// Package batch converts several uploads one after another and packs the
// successful outputs into a single ZIP archive.
//
// Items are processed strictly in input order so at most one conversion per
// batch holds temporary disk and codec processes at a time. A failing item is
// logged and left out of the archive; it never fails the batch. Each item's
// workspace is released as soon as its output has been copied into the
// archive.
package batch
