// Package transcoder converts one uploaded GIF into an animated WebP or APNG
// by driving FFmpeg and img2webp as subprocesses.
//
// The APNG path is a single FFmpeg invocation. The WebP path extracts still
// frames with FFmpeg at a fixed reduced rate, then assembles them in filename
// order with img2webp. FFmpeg can also encode WebP in one pass when img2webp
// is not installed.
//
// Every path verifies that a non-empty output file exists after the encoders
// report success. Failures are returned as *ConversionError naming the target
// format; releasing the workspace is left to the caller.
package transcoder
