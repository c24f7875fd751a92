package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gif-converter/internal/batch"
	"gif-converter/internal/database"
	"gif-converter/internal/filesystem"
	"gif-converter/internal/handlers"
	"gif-converter/internal/logging"
	"gif-converter/internal/media"
	"gif-converter/internal/memory"
	"gif-converter/internal/metrics"
	"gif-converter/internal/middleware"
	"gif-converter/internal/process"
	"gif-converter/internal/startup"
	"gif-converter/internal/transcoder"
	"gif-converter/internal/workers"
	"gif-converter/internal/workspace"

	"github.com/gorilla/mux"
)

const (
	shutdownTimeout       = 30 * time.Second
	workspaceFlushTimeout = 10 * time.Second
	collectorInterval     = time.Minute
	pruneInterval         = 6 * time.Hour
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	memory.ConfigureFromEnv()

	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	metrics.InitializeMetrics()

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"work":     config.WorkspaceDir,
		"database": config.DatabaseDir,
	}))

	// History is optional; conversions work without it.
	var db *database.Database
	if config.HistoryEnabled {
		dbStart := time.Now()
		db, err = database.New(context.Background(), config.DatabasePath)
		if err != nil {
			startup.LogDatabaseDisabled(err.Error())
		} else {
			startup.LogDatabaseInit(time.Since(dbStart))
			if err := db.MarkStartup(context.Background(), startTime); err != nil {
				logging.Warn("Failed to record startup time: %v", err)
			}
		}
	} else {
		startup.LogDatabaseDisabled("HISTORY_ENABLED=false")
	}

	workspaces, err := workspace.New(config.WorkspaceDir, workspace.WithObserver(metrics.NewWorkspaceObserver()))
	if err != nil {
		startup.LogFatal("Failed to initialize workspace: %v", err)
	}
	startup.LogWorkspaceInit(workspaces.Root(), workspaces.Sweep(config.SweepMaxAge))

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable, GIF inspection will use the Go decoder: %v", err)
	}

	startup.LogToolsInit(config)
	runner := process.NewRunner()
	runner.Slots = workers.NewLimiter(config.MaxProcesses)
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:   config.FFmpegPath,
		Img2WebPPath: config.Img2WebPPath,
		WebPEncoder:  config.WebPEncoder,
		Timeout:      config.ProcessTimeout,
		MaxFrames:    config.MaxFrames,
	}, runner)
	orch := batch.New(workspaces, trans, batch.Config{EmptyIsError: config.BatchEmptyIsError})

	var history handlers.History
	var historyMetrics metrics.HistoryProvider
	if db != nil {
		history = db
		historyMetrics = db
	}

	h := handlers.New(workspaces, trans, orch, history, runner, config)

	router := setupRouter(h, config.StaticDir)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.RequestID(
		middleware.Logger(loggingConfig)(
			middleware.Compression(middleware.DefaultCompressionConfig())(router),
		),
	)

	collector := metrics.NewCollector(workspaces, historyMetrics, collectorInterval)
	collector.Start()

	stopPrune := make(chan struct{})
	if db != nil {
		go pruneHistory(db, config.HistoryRetention, stopPrune)
	}

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads of MAX_UPLOAD_MB per file must fit in the read timeout.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort, h)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		handleShutdown(srv, metricsSrv, shutdownDeps{
			collector:  collector,
			stopPrune:  stopPrune,
			workspaces: workspaces,
			runner:     runner,
			db:         db,
		})
		close(done)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers, staticDir string) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Conversion
	r.HandleFunc("/convert", h.Convert).Methods("POST").Name("convert")
	r.HandleFunc("/convert-batch", h.ConvertBatch).Methods("POST").Name("convert-batch")

	// Health check and version routes
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.APIHealth).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/history", h.GetRecent).Methods("GET")

	// Landing page
	r.HandleFunc("/", serveStaticFile(filepath.Join(staticDir, "index.html"), "text/html; charset=utf-8")).Methods("GET")
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))

	return r
}

// serveStaticFile serves a single file with a fixed content type.
func serveStaticFile(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
	}
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

// pruneHistory deletes history rows older than retention until stop is closed.
func pruneHistory(db *database.Database, retention time.Duration, stop <-chan struct{}) {
	if retention <= 0 {
		return
	}

	prune := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := db.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			logging.Warn("Failed to prune conversion history: %v", err)
			return
		}
		if n > 0 {
			logging.Info("Pruned %d conversion history rows older than %v", n, retention)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			prune()
		case <-stop:
			return
		}
	}
}

type shutdownDeps struct {
	collector  *metrics.Collector
	stopPrune  chan struct{}
	workspaces *workspace.Manager
	runner     *process.Runner
	db         *database.Database
}

func handleShutdown(srv, metricsSrv *http.Server, deps shutdownDeps) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
		// Requests still running hold subprocesses; kill them so Shutdown can drain.
		deps.runner.Cleanup()
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping background workers")
	deps.collector.Stop()
	close(deps.stopPrune)
	startup.LogShutdownStepComplete("Background workers stopped")

	startup.LogShutdownStep("Killing remaining codec processes")
	deps.runner.Cleanup()
	startup.LogShutdownStepComplete("Codec processes stopped")

	// The server drain may have used up ctx; the flush gets its own budget.
	startup.LogShutdownStep("Flushing workspaces")
	flushCtx, flushCancel := context.WithTimeout(context.Background(), workspaceFlushTimeout)
	defer flushCancel()
	if err := deps.workspaces.Shutdown(flushCtx); err != nil {
		logging.Warn("Workspace shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Workspaces removed")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	media.ShutdownVips()

	if deps.db != nil {
		startup.LogShutdownStep("Closing database")
		if err := deps.db.Close(); err != nil {
			logging.Warn("Database close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Database closed")
		}
	}

	startup.LogShutdownComplete()
}
