package transcoder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gif-converter/internal/encoding"
	"gif-converter/internal/filesystem"
	"gif-converter/internal/logging"
	"gif-converter/internal/media"
	"gif-converter/internal/metrics"
	"gif-converter/internal/process"
	"gif-converter/internal/workspace"
)

var log = logging.Component("transcoder")

var (
	// ErrNoFramesExtracted means frame extraction produced no images.
	ErrNoFramesExtracted = errors.New("no frames extracted")
	// ErrOutputMissing means the encoder exited cleanly but left no usable output.
	ErrOutputMissing = errors.New("output file missing or empty")
	// ErrOutputInvalid means the output does not decode as the requested container.
	ErrOutputInvalid = media.ErrInvalidOutput
	// ErrTooManyFrames means extraction hit the frame cap.
	ErrTooManyFrames = errors.New("too many frames")
	// ErrInvalidSource means the upload is not a readable GIF.
	ErrInvalidSource = media.ErrInvalidSource
)

// WebP encoder backends.
const (
	EncoderImg2WebP = "img2webp"
	EncoderFFmpeg   = "ffmpeg"
)

const (
	framePrefix  = "frame_"
	frameSuffix  = ".png"
	framePattern = framePrefix + "%06d" + frameSuffix
)

// Config controls the external tools and the WebP assembly settings.
type Config struct {
	FFmpegPath   string
	Img2WebPPath string
	// WebPEncoder selects the two-stage img2webp path or single-pass ffmpeg.
	WebPEncoder string
	// Timeout applies to each subprocess invocation.
	Timeout time.Duration

	// ExtractFrameRate is the fixed rate frames are sampled at for img2webp.
	ExtractFrameRate int
	// FrameDelay is the per-frame display time in the assembled WebP.
	FrameDelay time.Duration
	// Method is the img2webp compression effort (0-6).
	Method int
	// MaxFrames caps how many frames extraction may write to disk.
	MaxFrames int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:       "ffmpeg",
		Img2WebPPath:     "img2webp",
		WebPEncoder:      EncoderImg2WebP,
		Timeout:          2 * time.Minute,
		ExtractFrameRate: 10,
		FrameDelay:       100 * time.Millisecond,
		Method:           4,
		MaxFrames:        3000,
	}
}

// Runner executes one external command.
type Runner interface {
	Run(ctx context.Context, name string, args []string, timeout time.Duration) (*process.Result, error)
}

// Transcoder runs conversions.
type Transcoder struct {
	config Config
	runner Runner
}

// New creates a Transcoder. Zero config fields take their defaults.
func New(config Config, runner Runner) *Transcoder {
	def := DefaultConfig()
	if config.FFmpegPath == "" {
		config.FFmpegPath = def.FFmpegPath
	}
	if config.Img2WebPPath == "" {
		config.Img2WebPPath = def.Img2WebPPath
	}
	if config.WebPEncoder != EncoderFFmpeg {
		config.WebPEncoder = EncoderImg2WebP
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.ExtractFrameRate <= 0 {
		config.ExtractFrameRate = def.ExtractFrameRate
	}
	if config.FrameDelay <= 0 {
		config.FrameDelay = def.FrameDelay
	}
	if config.Method < 0 || config.Method > 6 {
		config.Method = def.Method
	}
	if config.MaxFrames <= 0 {
		config.MaxFrames = def.MaxFrames
	}

	return &Transcoder{config: config, runner: runner}
}

// Config returns the effective configuration.
func (t *Transcoder) Config() Config {
	return t.config
}

// Request is one file to convert. It is not modified by Convert.
type Request struct {
	SourcePath   string
	OriginalName string
	Options      encoding.Options
}

// NewRequest builds a Request with normalized options.
func NewRequest(sourcePath, originalName string, opts encoding.Options) Request {
	return Request{
		SourcePath:   sourcePath,
		OriginalName: originalName,
		Options:      opts.Normalize(),
	}
}

// Result describes a successful conversion.
type Result struct {
	OutputPath string
	OutputName string
	Format     encoding.Format
	Size       int64
	SourceSize int64
	Frames     int
	Plan       encoding.Plan
	Duration   time.Duration
}

// ContentType returns the MIME type to serve the output with.
func (r *Result) ContentType() string {
	return r.Format.ContentType()
}

// ConversionError wraps a pipeline failure with the target format.
type ConversionError struct {
	Format encoding.Format
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s conversion failed: %v", e.Format.Label(), e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Convert runs the pipeline for req, writing all intermediate and final files
// into h. On error the caller must release h immediately.
func (t *Transcoder) Convert(ctx context.Context, req Request, h *workspace.Handle) (*Result, error) {
	start := time.Now()
	plan := encoding.Resolve(req.Options)

	metrics.ConversionsInProgress.Inc()
	defer metrics.ConversionsInProgress.Dec()

	fail := func(err error) (*Result, error) {
		metrics.ConversionsTotal.WithLabelValues(string(plan.Format), "error").Inc()
		metrics.ConversionDuration.WithLabelValues(string(plan.Format)).Observe(time.Since(start).Seconds())
		log.Warn("%s: %s conversion failed after %v: %v", req.OriginalName, plan.Format.Label(), time.Since(start), err)
		return nil, &ConversionError{Format: plan.Format, Err: err}
	}

	source, err := media.Inspect(req.SourcePath)
	if err != nil {
		return fail(err)
	}

	outputName := encoding.OutputName(req.OriginalName, plan.Format)
	outputPath := h.OutputPath(outputName)

	log.Info("converting %s to %s (quality %d, %d fps, scale %s, %d source frames)",
		req.OriginalName, plan.Format.Label(), plan.Quality, plan.FrameRate, scaleLabel(plan), source.Frames)
	if source.Frames > 0 && !source.Animated() {
		log.Debug("%s is a still image; output will have a single frame", req.OriginalName)
	}

	switch {
	case plan.Format == encoding.FormatAPNG, t.config.WebPEncoder == EncoderFFmpeg:
		err = t.convertSinglePass(ctx, req.SourcePath, outputPath, plan)
	default:
		err = t.convertWebP(ctx, req.SourcePath, outputPath, plan, h)
	}
	if err != nil {
		return fail(err)
	}

	size, dims, err := verifyOutput(outputPath, plan.Format)
	if err != nil {
		return fail(err)
	}

	duration := time.Since(start)
	metrics.ConversionsTotal.WithLabelValues(string(plan.Format), "success").Inc()
	metrics.ConversionDuration.WithLabelValues(string(plan.Format)).Observe(duration.Seconds())
	metrics.ConversionBytesTotal.WithLabelValues("in").Add(float64(source.Size))
	metrics.ConversionBytesTotal.WithLabelValues("out").Add(float64(size))

	log.Info("%s -> %s: %d bytes -> %d bytes (%s of original, %dx%d) in %v",
		req.OriginalName, outputName, source.Size, size, percentOf(size, source.Size),
		dims.Width, dims.Height, duration.Round(time.Millisecond))

	return &Result{
		OutputPath: outputPath,
		OutputName: outputName,
		Format:     plan.Format,
		Size:       size,
		SourceSize: source.Size,
		Frames:     source.Frames,
		Plan:       plan,
		Duration:   duration,
	}, nil
}

// convertSinglePass encodes directly with FFmpeg using the plan's muxer options.
func (t *Transcoder) convertSinglePass(ctx context.Context, input, output string, plan encoding.Plan) error {
	args := []string{"-y", "-i", input, "-vf", plan.Filters(plan.FrameRate)}
	args = append(args, plan.FormatArgs...)
	args = append(args, output)

	_, err := t.runner.Run(ctx, t.config.FFmpegPath, args, t.config.Timeout)
	return err
}

// convertWebP extracts frames with FFmpeg and assembles them with img2webp.
// Extraction must finish before assembly starts.
func (t *Transcoder) convertWebP(ctx context.Context, input, output string, plan encoding.Plan, h *workspace.Handle) error {
	frameDir, err := h.FrameDir()
	if err != nil {
		return err
	}

	// One frame past the cap is enough to tell an oversized animation apart.
	extractArgs := []string{
		"-y",
		"-i", input,
		"-vf", plan.Filters(t.config.ExtractFrameRate),
		"-frames:v", strconv.Itoa(t.config.MaxFrames + 1),
		filepath.Join(frameDir, framePattern),
	}
	if _, err := t.runner.Run(ctx, t.config.FFmpegPath, extractArgs, t.config.Timeout); err != nil {
		return fmt.Errorf("frame extraction: %w", err)
	}

	frames, err := listFrames(frameDir)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return ErrNoFramesExtracted
	}
	if len(frames) > t.config.MaxFrames {
		return fmt.Errorf("%w: more than %d at %d fps", ErrTooManyFrames, t.config.MaxFrames, t.config.ExtractFrameRate)
	}
	metrics.ExtractedFrames.Observe(float64(len(frames)))

	dims, err := media.VerifyFrame(frames[0])
	if err != nil {
		return err
	}
	log.Debug("extracted %d frames at %dx%d", len(frames), dims.Width, dims.Height)

	if _, err := t.runner.Run(ctx, t.config.Img2WebPPath, t.assembleArgs(plan, frames, output), t.config.Timeout); err != nil {
		return fmt.Errorf("frame assembly: %w", err)
	}
	return nil
}

// assembleArgs builds the img2webp command line. Options placed before the
// first frame apply to every frame.
func (t *Transcoder) assembleArgs(plan encoding.Plan, frames []string, output string) []string {
	args := []string{
		"-loop", "0",
		"-lossy",
		"-q", strconv.Itoa(plan.Quality),
		"-m", strconv.Itoa(t.config.Method),
		"-d", strconv.FormatInt(t.config.FrameDelay.Milliseconds(), 10),
	}
	args = append(args, frames...)
	return append(args, "-o", output)
}

// listFrames returns extracted frame paths in temporal order. Frames are
// ordered by sequence number, not name, so an overflowing pad width still
// sorts correctly.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	type frame struct {
		seq  int
		path string
	}
	var found []frame
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seq, ok := frameSequence(entry.Name())
		if !ok {
			continue
		}
		found = append(found, frame{seq: seq, path: filepath.Join(dir, entry.Name())})
	}
	slices.SortFunc(found, func(a, b frame) int {
		return cmp.Compare(a.seq, b.seq)
	})

	frames := make([]string, len(found))
	for i, f := range found {
		frames[i] = f.path
	}
	return frames, nil
}

// frameSequence parses the number out of a frame_<n>.png name.
func frameSequence(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, framePrefix)
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(digits, frameSuffix)
	if !ok || digits == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(digits)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// verifyOutput checks the encoder left a non-empty file that decodes as the
// format's container.
func verifyOutput(path string, format encoding.Format) (int64, *media.ImageDimensions, error) {
	size, err := filesystem.RequireNonEmpty(path, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, filesystem.ErrEmptyFile) {
			return 0, nil, ErrOutputMissing
		}
		return 0, nil, fmt.Errorf("%w: %w", ErrOutputMissing, err)
	}

	dims, err := media.VerifyOutput(path, format.Container())
	if err != nil {
		return 0, nil, err
	}
	return size, dims, nil
}

func scaleLabel(plan encoding.Plan) string {
	if plan.Scale == nil {
		return "none"
	}
	return strconv.FormatFloat(*plan.Scale, 'f', -1, 64) + "x"
}

func percentOf(part, whole int64) string {
	if whole <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(whole)*100)
}
