// Command gifconvert converts animated GIFs on the command line with the
// same pipeline the HTTP service uses.
//
// Usage:
//
//	gifconvert <command> [options]
//
// Commands:
//
//	convert  Convert one or more GIFs. Each input becomes NAME.webp or
//	         NAME.png in -out, or all of them go into one archive with -zip.
//	         Inputs that fail are reported and the rest still convert.
//
//	check    Report whether ffmpeg and img2webp resolve.
//
//	stats    Print the conversion history recorded by the server.
//
// Environment:
//
//	FFMPEG_PATH, IMG2WEBP_PATH - Codec binaries (default: looked up in PATH)
//	WEBP_ENCODER               - img2webp or ffmpeg (default: img2webp)
//	PROCESS_TIMEOUT            - Limit per codec invocation (default: 2m)
//	DATABASE_DIR               - History database directory for stats
//
// The exit status is 0 on success, 1 when any input failed and 2 for usage
// errors. When stdout is a terminal a progress line is shown.
package main
