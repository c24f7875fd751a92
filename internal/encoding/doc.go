// Package encoding resolves user-supplied conversion options into concrete
// encoder arguments.
//
// Resolution is a pure function of target format, quality and resize
// percentage. Quality selects a frame-rate bucket:
//
//	quality < 30  ->  4 fps
//	quality < 50  ->  6 fps
//	quality < 70  ->  8 fps
//	quality < 90  -> 10 fps
//	otherwise     -> 12 fps
//
// A resize other than 100 percent adds an ffmpeg scale filter that
// multiplies both axes by resize/100. Out-of-range inputs are clamped or
// defaulted, never rejected.
package encoding
