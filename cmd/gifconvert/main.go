package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gif-converter/internal/batch"
	"gif-converter/internal/database"
	"gif-converter/internal/encoding"
	"gif-converter/internal/filesystem"
	"gif-converter/internal/logging"
	"gif-converter/internal/media"
	"gif-converter/internal/process"
	"gif-converter/internal/transcoder"
	"gif-converter/internal/workspace"

	"golang.org/x/term"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second

	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
		cancel()
	}()

	if os.Getenv("LOG_LEVEL") == "" && os.Getenv("DEBUG") == "" {
		logging.SetLevel(logging.LevelWarn)
	}

	// Inspection uses libvips when it starts and the Go decoder otherwise.
	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable, GIF inspection will use the Go decoder: %v", err)
	}

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	media.ShutdownVips()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	env := loadEnv()

	switch args[0] {
	case "convert":
		return runConvert(ctx, args[1:], env, stdout, stderr)
	case "check":
		return runCheck(env, stdout)
	case "stats":
		return runStats(ctx, env, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", sanitizeCommand(args[0]))
		printUsage(stderr)
		return exitUsage
	}
}

// cliEnv is the subset of the server environment the CLI honors.
type cliEnv struct {
	FFmpegPath   string
	Img2WebPPath string
	WebPEncoder  string
	Timeout      time.Duration
	DatabaseDir  string
}

func loadEnv() cliEnv {
	env := cliEnv{
		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		Img2WebPPath: getEnv("IMG2WEBP_PATH", "img2webp"),
		WebPEncoder:  getEnv("WEBP_ENCODER", transcoder.EncoderImg2WebP),
		Timeout:      2 * time.Minute,
		DatabaseDir:  getEnv("DATABASE_DIR", filepath.Join(getEnv("WORK_DIR", filepath.Join(os.TempDir(), "gif-converter")), "db")),
	}
	if d, err := time.ParseDuration(os.Getenv("PROCESS_TIMEOUT")); err == nil && d > 0 {
		env.Timeout = d
	}
	return env
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// sanitizeCommand returns a safe representation of a command string for display.
// Any character that is not alphanumeric, a hyphen, or an underscore becomes '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "GIF Converter")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: gifconvert <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  convert [options] FILE.gif...  - Convert GIFs to animated WebP or APNG")
	fmt.Fprintln(w, "  check                          - Check that the codec tools are available")
	fmt.Fprintln(w, "  stats                          - Show the server's conversion history")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Convert options:")
	fmt.Fprintln(w, "  -format webp|apng  Output format (default: webp)")
	fmt.Fprintln(w, "  -quality N         Quality 1-100 (default: 80)")
	fmt.Fprintln(w, "  -resize N          Resize percentage (default: 100)")
	fmt.Fprintln(w, "  -out DIR           Output directory (default: .)")
	fmt.Fprintln(w, "  -zip NAME          Write all outputs into one ZIP archive")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  FFMPEG_PATH, IMG2WEBP_PATH, WEBP_ENCODER, PROCESS_TIMEOUT, DATABASE_DIR")
}

type convertFlags struct {
	format  string
	quality int
	resize  int
	outDir  string
	zipName string
	files   []string
}

func parseConvertFlags(args []string, stderr io.Writer) (*convertFlags, error) {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &convertFlags{}
	fs.StringVar(&f.format, "format", "webp", "output format (webp or apng)")
	fs.IntVar(&f.quality, "quality", encoding.DefaultQuality, "quality 1-100")
	fs.IntVar(&f.resize, "resize", encoding.DefaultResize, "resize percentage")
	fs.StringVar(&f.outDir, "out", ".", "output directory")
	fs.StringVar(&f.zipName, "zip", "", "write outputs into one ZIP archive with this name")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.files = fs.Args()
	if len(f.files) == 0 {
		return nil, errors.New("no input files")
	}
	if format := strings.ToLower(f.format); format != string(encoding.FormatWebP) && format != string(encoding.FormatAPNG) {
		return nil, fmt.Errorf("unsupported format %q", f.format)
	}
	if f.zipName != "" && filepath.Ext(f.zipName) == "" {
		f.zipName += ".zip"
	}
	return f, nil
}

func (f *convertFlags) options() encoding.Options {
	return encoding.Options{
		Format:        encoding.ParseFormat(f.format),
		Quality:       f.quality,
		ResizePercent: f.resize,
	}.Normalize()
}

func runConvert(ctx context.Context, args []string, env cliEnv, stdout, stderr io.Writer) int {
	flags, err := parseConvertFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitUsage
	}

	if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
		fmt.Fprintf(stderr, "Error: cannot create output directory: %v\n", err)
		return exitFailure
	}

	root, err := os.MkdirTemp("", "gifconvert-")
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot create work directory: %v\n", err)
		return exitFailure
	}
	defer os.RemoveAll(root)

	workspaces, err := workspace.New(root)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer func() {
		_ = workspaces.Shutdown(context.Background())
	}()

	runner := process.NewRunner()
	defer runner.Cleanup()

	trans := transcoder.New(transcoder.Config{
		FFmpegPath:   env.FFmpegPath,
		Img2WebPPath: env.Img2WebPPath,
		WebPEncoder:  env.WebPEncoder,
		Timeout:      env.Timeout,
	}, runner)

	p := newProgress(stdout, len(flags.files))
	if flags.zipName != "" {
		return convertToZip(ctx, flags, workspaces, trans, p, stderr)
	}
	return convertFiles(ctx, flags, workspaces, trans, p, stderr)
}

func convertFiles(ctx context.Context, flags *convertFlags, workspaces *workspace.Manager, trans *transcoder.Transcoder, p *progress, stderr io.Writer) int {
	opts := flags.options()
	failed := 0

	for i, path := range flags.files {
		if ctx.Err() != nil {
			return exitFailure
		}
		p.start(i, path)

		dest, result, err := convertOne(ctx, path, flags.outDir, opts, workspaces, trans)
		if err != nil {
			failed++
			p.clear()
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			continue
		}
		p.done(fmt.Sprintf("%s -> %s (%d -> %d bytes, %.1f%%)",
			path, dest, result.SourceSize, result.Size, ratio(result.Size, result.SourceSize)))
	}

	if failed > 0 {
		fmt.Fprintf(stderr, "%d of %d files failed\n", failed, len(flags.files))
		return exitFailure
	}
	return exitOK
}

func convertOne(ctx context.Context, path, outDir string, opts encoding.Options, workspaces *workspace.Manager, trans *transcoder.Transcoder) (string, *transcoder.Result, error) {
	h, _, err := ingestFile(workspaces, path)
	if err != nil {
		return "", nil, err
	}
	defer h.Release(workspace.Immediate)

	result, err := trans.Convert(ctx, transcoder.NewRequest(h.UploadPath(), filepath.Base(path), opts), h)
	if err != nil {
		return "", nil, err
	}

	dest := filepath.Join(outDir, result.OutputName)
	if err := copyFile(result.OutputPath, dest); err != nil {
		return "", nil, err
	}
	return dest, result, nil
}

func convertToZip(ctx context.Context, flags *convertFlags, workspaces *workspace.Manager, trans *transcoder.Transcoder, p *progress, stderr io.Writer) int {
	items := make([]batch.Item, 0, len(flags.files))
	for i, path := range flags.files {
		p.start(i, path)
		// Unreadable inputs keep a nil handle and come back in archive.Failed.
		item := batch.Item{Name: filepath.Base(path)}
		if h, _, err := ingestFile(workspaces, path); err == nil {
			item.Handle = h
		}
		items = append(items, item)
	}
	p.clear()

	orch := batch.New(workspaces, trans, batch.Config{DownloadName: flags.zipName, EmptyIsError: true})
	archive, err := orch.Run(ctx, items, flags.options())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer archive.Handle.Release(workspace.Immediate)

	for _, f := range archive.Failed {
		fmt.Fprintf(stderr, "%s: %v\n", f.Name, f.Err)
	}

	dest := filepath.Join(flags.outDir, archive.DownloadName)
	if err := copyFile(archive.Path, dest); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	p.done(fmt.Sprintf("%s: %d files, %d bytes", dest, len(archive.Entries), archive.Size))

	if len(archive.Failed) > 0 {
		return exitFailure
	}
	return exitOK
}

func ingestFile(workspaces *workspace.Manager, path string) (*workspace.Handle, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return workspaces.Ingest(workspace.KindConvert, f)
}

func copyFile(src, dest string) (err error) {
	in, err := filesystem.OpenWithRetry(src, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func ratio(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// progress prints a live status line on terminals and plain lines elsewhere.
type progress struct {
	w     io.Writer
	total int
	tty   bool
}

func newProgress(w io.Writer, total int) *progress {
	p := &progress{w: w, total: total}
	if f, ok := w.(*os.File); ok {
		p.tty = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *progress) start(i int, name string) {
	if p.tty {
		fmt.Fprintf(p.w, "\r\033[K[%d/%d] %s", i+1, p.total, name)
	}
}

func (p *progress) clear() {
	if p.tty {
		fmt.Fprint(p.w, "\r\033[K")
	}
}

func (p *progress) done(line string) {
	p.clear()
	fmt.Fprintln(p.w, line)
}

func runCheck(env cliEnv, stdout io.Writer) int {
	runner := process.NewRunner()

	tools := []struct {
		name     string
		path     string
		required bool
	}{
		{"ffmpeg", env.FFmpegPath, true},
		{"img2webp", env.Img2WebPPath, env.WebPEncoder != transcoder.EncoderFFmpeg},
	}

	code := exitOK
	for _, tool := range tools {
		path, err := runner.Check(tool.path)
		switch {
		case err == nil:
			fmt.Fprintf(stdout, "%-9s OK       %s\n", tool.name, path)
		case tool.required:
			fmt.Fprintf(stdout, "%-9s MISSING  %v\n", tool.name, err)
			code = exitFailure
		default:
			fmt.Fprintf(stdout, "%-9s MISSING  (not required for WEBP_ENCODER=%s)\n", tool.name, env.WebPEncoder)
		}
	}
	return code
}

func runStats(ctx context.Context, env cliEnv, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	dbPath := filepath.Join(env.DatabaseDir, "history.db")
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(stderr, "Error: no history database at %s\n", dbPath)
		fmt.Fprintln(stderr, "Make sure DATABASE_DIR is set correctly")
		return exitFailure
	}

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: Failed to open database: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	stats, err := db.GetStats(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	printStats(stdout, stats)
	return exitOK
}

func printStats(w io.Writer, stats *database.Stats) {
	fmt.Fprintf(w, "Conversions:  %d (%d succeeded, %d failed)\n", stats.Total, stats.Succeeded, stats.Failed)
	fmt.Fprintf(w, "Bytes in:     %d\n", stats.SourceBytes)
	fmt.Fprintf(w, "Bytes out:    %d\n", stats.OutputBytes)
	fmt.Fprintf(w, "Bytes saved:  %d\n", stats.BytesSaved)
	fmt.Fprintf(w, "Avg duration: %.0f ms\n", stats.AvgDurationMs)
	for _, format := range []string{string(encoding.FormatWebP), string(encoding.FormatAPNG)} {
		if fs, ok := stats.ByFormat[format]; ok {
			fmt.Fprintf(w, "  %-5s %d succeeded, %d failed\n", format, fs.Succeeded, fs.Failed)
		}
	}
	if stats.LastConversion != nil {
		fmt.Fprintf(w, "Last conversion: %s\n", stats.LastConversion.Format(time.RFC1123))
	}
	if stats.LastStartup != nil {
		fmt.Fprintf(w, "Server started:  %s\n", stats.LastStartup.Format(time.RFC1123))
	}
}
