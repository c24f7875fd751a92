package encoding

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Format is an output animation container.
type Format string

const (
	// FormatWebP produces an animated WebP.
	FormatWebP Format = "webp"
	// FormatAPNG produces an animated PNG.
	FormatAPNG Format = "apng"
)

const (
	// DefaultQuality is used when no quality is supplied.
	DefaultQuality = 80
	// DefaultResize keeps the source dimensions.
	DefaultResize = 100

	// WebPCompressionLevel bounds encoder effort for ffmpeg's libwebp output.
	WebPCompressionLevel = 6
	// APNGCompressionLevel is the maximum zlib level.
	APNGCompressionLevel = 9
)

// ParseFormat maps a form value to a Format. Empty and "webp" map to WebP,
// any other value to APNG.
func ParseFormat(s string) Format {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(FormatWebP)) {
		return FormatWebP
	}
	return FormatAPNG
}

// Extension returns the file extension (with dot) for converted files.
func (f Format) Extension() string {
	if f == FormatAPNG {
		return ".png"
	}
	return ".webp"
}

// ContentType returns the MIME type of converted files.
func (f Format) ContentType() string {
	if f == FormatAPNG {
		return "image/png"
	}
	return "image/webp"
}

// Container is the image format name the encoded output decodes as.
func (f Format) Container() string {
	if f == FormatAPNG {
		return "png"
	}
	return "webp"
}

// Label is the upper-case name used in logs and error messages.
func (f Format) Label() string {
	return strings.ToUpper(string(f))
}

// OutputName derives the download name for a converted upload: the original
// base name with its extension replaced.
func OutputName(originalName string, f Format) string {
	base := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "converted"
	}
	return stem + f.Extension()
}

// Options are the user-facing conversion knobs.
type Options struct {
	Format        Format
	Quality       int
	ResizePercent int
}

// Normalize returns a copy with defaults applied and values clamped.
func (o Options) Normalize() Options {
	if o.Format != FormatAPNG {
		o.Format = FormatWebP
	}
	o.Quality = ClampQuality(o.Quality)
	if o.ResizePercent <= 0 {
		o.ResizePercent = DefaultResize
	}
	return o
}

// ClampQuality defaults a zero quality to DefaultQuality and clamps to [1,100].
func ClampQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}

// ParseInt parses a form integer, returning def when the value is missing or
// not a number.
func ParseInt(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v == 0 {
		return def
	}
	return v
}

// Plan is the resolved set of encoder arguments for one conversion.
type Plan struct {
	Format    Format
	Quality   int
	FrameRate int
	// Scale is nil when the source dimensions are preserved.
	Scale *float64
	// FormatArgs are the ffmpeg output options for single-pass encoding.
	FormatArgs []string
}

// FrameRate maps quality to its frame-rate bucket.
func FrameRate(quality int) int {
	switch {
	case quality < 30:
		return 4
	case quality < 50:
		return 6
	case quality < 70:
		return 8
	case quality < 90:
		return 10
	default:
		return 12
	}
}

// Resolve computes the encoding plan for the given options.
func Resolve(opts Options) Plan {
	opts = opts.Normalize()

	plan := Plan{
		Format:    opts.Format,
		Quality:   opts.Quality,
		FrameRate: FrameRate(opts.Quality),
	}

	if opts.ResizePercent != DefaultResize {
		factor := float64(opts.ResizePercent) / 100
		plan.Scale = &factor
	}

	switch opts.Format {
	case FormatAPNG:
		plan.FormatArgs = []string{
			"-f", "apng",
			"-plays", "0",
			"-compression_level", strconv.Itoa(APNGCompressionLevel),
			"-an",
		}
	default:
		plan.FormatArgs = []string{
			"-f", "webp",
			"-loop", "0",
			"-compression_level", strconv.Itoa(WebPCompressionLevel),
			"-quality", strconv.Itoa(opts.Quality),
			"-an",
		}
	}

	return plan
}

// ScaleFilter returns the ffmpeg scale filter, or "" when no scaling applies.
func (p Plan) ScaleFilter() string {
	if p.Scale == nil {
		return ""
	}
	f := strconv.FormatFloat(*p.Scale, 'f', -1, 64)
	return "scale=iw*" + f + ":ih*" + f
}

// Filters returns the video filter chain for the given frame rate.
func (p Plan) Filters(fps int) string {
	filters := []string{"fps=" + strconv.Itoa(fps)}
	if sf := p.ScaleFilter(); sf != "" {
		filters = append(filters, sf)
	}
	return strings.Join(filters, ",")
}
