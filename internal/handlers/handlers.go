package handlers

import (
	"context"
	"time"

	"gif-converter/internal/batch"
	"gif-converter/internal/database"
	"gif-converter/internal/encoding"
	"gif-converter/internal/middleware"
	"gif-converter/internal/startup"
	"gif-converter/internal/streaming"
	"gif-converter/internal/transcoder"
	"gif-converter/internal/workspace"
)

// Converter runs one conversion inside a workspace handle.
type Converter interface {
	Convert(ctx context.Context, req transcoder.Request, h *workspace.Handle) (*transcoder.Result, error)
}

// BatchRunner converts staged uploads into a single archive.
type BatchRunner interface {
	Run(ctx context.Context, items []batch.Item, opts encoding.Options) (*batch.Archive, error)
}

// History stores and summarizes finished conversions. It is optional.
type History interface {
	RecordConversion(ctx context.Context, rec *database.ConversionRecord) error
	GetStats(ctx context.Context) (*database.Stats, error)
	Recent(ctx context.Context, limit int) ([]database.ConversionRecord, error)
}

// Tools resolves the external codecs and reports running subprocesses.
type Tools interface {
	Check(name string) (string, error)
	Running() int
}

type Handlers struct {
	workspaces *workspace.Manager
	converter  Converter
	batches    BatchRunner
	history    History
	tools      Tools
	config     *startup.Config
	stream     streaming.Config
	startTime  time.Time
}

// New wires the handlers. history may be nil when the history database is
// disabled.
func New(workspaces *workspace.Manager, converter Converter, batches BatchRunner, history History, tools Tools, config *startup.Config) *Handlers {
	return &Handlers{
		workspaces: workspaces,
		converter:  converter,
		batches:    batches,
		history:    history,
		tools:      tools,
		config:     config,
		stream:     streaming.DefaultConfig(),
		startTime:  time.Now(),
	}
}

// record stores rec in the history ledger. Failures are logged and ignored.
func (h *Handlers) record(ctx context.Context, rec *database.ConversionRecord) {
	if h.history == nil {
		return
	}
	if rec.RequestID == "" {
		rec.RequestID = middleware.RequestIDFrom(ctx)
	}
	if err := h.history.RecordConversion(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("failed to record conversion history: %v", err)
	}
}
