package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gif-converter/internal/logging"
	"gif-converter/internal/workers"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Encoder names accepted by WEBP_ENCODER.
const (
	EncoderImg2WebP = "img2webp"
	EncoderFFmpeg   = "ffmpeg"
)

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool

	WorkDir     string
	DatabaseDir string
	StaticDir   string

	FFmpegPath   string
	Img2WebPPath string
	WebPEncoder  string

	ProcessTimeout    time.Duration
	MaxProcesses      int
	MaxFrames         int
	CleanupDelay      time.Duration
	SweepMaxAge       time.Duration
	HistoryRetention  time.Duration
	MaxUploadMB       int
	MaxBatchFiles     int
	BatchEmptyIsError bool
	HistoryEnabled    bool

	LogStaticFiles  bool
	LogHealthChecks bool

	// Derived paths
	WorkspaceDir string
	DatabasePath string
}

// MaxUploadBytes is the per-file upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	workDir := getEnv("WORK_DIR", filepath.Join(os.TempDir(), "gif-converter"))
	databaseDir := getEnv("DATABASE_DIR", filepath.Join(workDir, "db"))

	config := &Config{
		Port:              getEnv("PORT", "3000"),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		WorkDir:           workDir,
		DatabaseDir:       databaseDir,
		StaticDir:         getEnv("STATIC_DIR", "public"),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		Img2WebPPath:      getEnv("IMG2WEBP_PATH", "img2webp"),
		WebPEncoder:       getEnvEncoder("WEBP_ENCODER", EncoderImg2WebP),
		ProcessTimeout:    getEnvDuration("PROCESS_TIMEOUT", 2*time.Minute),
		MaxProcesses:      workers.ForCPU(0),
		MaxFrames:         getEnvInt("MAX_FRAMES", 3000),
		CleanupDelay:      getEnvDuration("CLEANUP_DELAY", 60*time.Second),
		SweepMaxAge:       getEnvDuration("SWEEP_MAX_AGE", time.Hour),
		HistoryRetention:  getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 50),
		MaxBatchFiles:     getEnvInt("MAX_BATCH_FILES", 10),
		BatchEmptyIsError: getEnvBool("BATCH_EMPTY_IS_ERROR", false),
		HistoryEnabled:    getEnvBool("HISTORY_ENABLED", true),
		LogStaticFiles:    getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", true),
	}

	logging.Info("  PORT:                 %s", config.Port)
	logging.Info("  METRICS_PORT:         %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:      %v", config.MetricsEnabled)
	logging.Info("  WORK_DIR:             %s", config.WorkDir)
	logging.Info("  DATABASE_DIR:         %s", config.DatabaseDir)
	logging.Info("  STATIC_DIR:           %s", config.StaticDir)
	logging.Info("  FFMPEG_PATH:          %s", config.FFmpegPath)
	logging.Info("  IMG2WEBP_PATH:        %s", config.Img2WebPPath)
	logging.Info("  WEBP_ENCODER:         %s", config.WebPEncoder)
	logging.Info("  PROCESS_TIMEOUT:      %v", config.ProcessTimeout)
	logging.Info("  MAX_PROCESSES:        %d", config.MaxProcesses)
	logging.Info("  MAX_FRAMES:           %d", config.MaxFrames)
	logging.Info("  CLEANUP_DELAY:        %v", config.CleanupDelay)
	logging.Info("  SWEEP_MAX_AGE:        %v", config.SweepMaxAge)
	logging.Info("  HISTORY_ENABLED:      %v", config.HistoryEnabled)
	logging.Info("  HISTORY_RETENTION:    %v", config.HistoryRetention)
	logging.Info("  MAX_UPLOAD_MB:        %d", config.MaxUploadMB)
	logging.Info("  MAX_BATCH_FILES:      %d", config.MaxBatchFiles)
	logging.Info("  BATCH_EMPTY_IS_ERROR: %v", config.BatchEmptyIsError)
	logging.Info("  LOG_STATIC_FILES:     %v", config.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:    %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := config.resolveDirectories(); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Conversion:  ENABLED (required)")
	logging.Info("    History:     %s", enabledString(config.HistoryEnabled))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func (c *Config) resolveDirectories() error {
	var err error

	c.WorkDir, err = filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to resolve work directory path: %w", err)
	}
	logging.Info("  Work directory (absolute): %s", c.WorkDir)

	c.DatabaseDir, err = filepath.Abs(c.DatabaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	c.WorkspaceDir = filepath.Join(c.WorkDir, "workspace")
	c.DatabasePath = filepath.Join(c.DatabaseDir, "history.db")

	// The work directory holds every upload and output, so it is required.
	if err := ensureDirectory(c.WorkspaceDir, "workspace"); err != nil {
		return fmt.Errorf("work directory error: %w", err)
	}
	logging.Debug("  Testing work directory write access...")
	if err := testWriteAccess(c.WorkspaceDir); err != nil {
		return fmt.Errorf("work directory is not writable (required for conversions): %w", err)
	}
	logging.Info("  [OK] Work directory is writable")

	if c.HistoryEnabled {
		c.HistoryEnabled = setupOptionalDir(c.DatabaseDir, "history")
	}

	return nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] History database initialized in %v", duration)
}

// LogDatabaseDisabled logs that conversion history will not be recorded.
func LogDatabaseDisabled(reason string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Warn("  History disabled: %s", reason)
}

// LogWorkspaceInit logs the workspace root and the startup sweep result.
func LogWorkspaceInit(root string, swept int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("WORKSPACE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Root: %s", root)
	if swept > 0 {
		logging.Info("  Removed %d orphaned directories", swept)
	}
	logging.Info("  [OK] Workspace ready")
}

// LogToolsInit checks the external codecs and logs their versions. It returns
// false when any tool the configured encoder needs is unavailable.
func LogToolsInit(config *Config) bool {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CODEC TOOLS")
	logging.Info("------------------------------------------------------------")
	logging.Info("  WebP encoder: %s", config.WebPEncoder)

	ok := true
	if err := checkTool("FFmpeg", config.FFmpegPath, "-version"); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Conversions will fail until ffmpeg is installed")
		ok = false
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}

	if err := checkTool("img2webp", config.Img2WebPPath, "-version"); err != nil {
		if config.WebPEncoder == EncoderImg2WebP {
			logging.Warn("  img2webp check failed: %v", err)
			logging.Warn("  WebP conversions will fail until img2webp is installed")
			ok = false
		} else {
			logging.Debug("  img2webp not available (not required): %v", err)
		}
	} else {
		logging.Info("  [OK] img2webp is available")
	}

	return ok
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			pathTemplate, err = route.GetPathRegexp()
			if err != nil {
				return nil
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    Application:   http://localhost:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
   ______________   ______                           __
  / ____/  _/ __/  / ____/___  ____ _   _____  _____/ /____  _____
 / / __ / // /_   / /   / __ \/ __ \ | / / _ \/ ___/ __/ _ \/ ___/
/ /_/ // // __/  / /___/ /_/ / / / / |/ /  __/ /  / /_/  __/ /
\____/___/_/     \____/\____/_/ /_/|___/\___/_/   \__/\___/_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func checkTool(label, name string, versionArgs ...string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", label, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, versionArgs...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", label, err)
	}

	if line := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0]); line != "" {
		logging.Debug("  %s version: %s", label, line)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid positive integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvEncoder(key, defaultValue string) string {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return defaultValue
	case EncoderImg2WebP, EncoderFFmpeg:
		return value
	}
	logging.Warn("Invalid encoder for %s: %q, using default: %s", key, value, defaultValue)
	return defaultValue
}
