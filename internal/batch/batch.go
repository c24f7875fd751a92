package batch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gif-converter/internal/encoding"
	"gif-converter/internal/filesystem"
	"gif-converter/internal/logging"
	"gif-converter/internal/metrics"
	"gif-converter/internal/transcoder"
	"gif-converter/internal/workspace"
)

var log = logging.Component("batch")

// ErrEmptyBatch is returned when no item converted and empty archives are
// configured as an error.
var ErrEmptyBatch = errors.New("no files converted successfully")

// DefaultDownloadName is the attachment name of the batch archive.
const DefaultDownloadName = "converted-files.zip"

// Converter runs the conversion pipeline for one item.
type Converter interface {
	Convert(ctx context.Context, req transcoder.Request, h *workspace.Handle) (*transcoder.Result, error)
}

// Item is one staged upload. The handle's upload path holds the source bytes.
type Item struct {
	Name   string
	Handle *workspace.Handle
}

// Failure records an item left out of the archive.
type Failure struct {
	Name string
	Err  error
}

// Archive is the finished ZIP. The caller streams Path and then releases
// Handle immediately.
type Archive struct {
	Path         string
	DownloadName string
	Handle       *workspace.Handle
	Entries      []string
	Failed       []Failure
	Size         int64
}

// Config controls batch policy.
type Config struct {
	// EmptyIsError fails the batch when every item failed instead of
	// returning an empty archive.
	EmptyIsError bool
	DownloadName string
}

// Orchestrator runs batches.
type Orchestrator struct {
	workspaces *workspace.Manager
	converter  Converter
	config     Config
}

// New creates an Orchestrator.
func New(workspaces *workspace.Manager, converter Converter, config Config) *Orchestrator {
	if config.DownloadName == "" {
		config.DownloadName = DefaultDownloadName
	}
	return &Orchestrator{
		workspaces: workspaces,
		converter:  converter,
		config:     config,
	}
}

// Run converts items in order with the same options and archives the
// successes. Item handles are always released before Run returns.
func (o *Orchestrator) Run(ctx context.Context, items []Item, opts encoding.Options) (*Archive, error) {
	defer func() {
		for _, item := range items {
			if item.Handle != nil {
				item.Handle.Release(workspace.Immediate)
			}
		}
	}()

	opts = opts.Normalize()
	start := time.Now()

	h, err := o.workspaces.Allocate(workspace.KindBatch)
	if err != nil {
		return nil, err
	}

	archive := &Archive{
		Path:         h.OutputPath(fmt.Sprintf("converted-%d.zip", time.Now().UnixMilli())),
		DownloadName: o.config.DownloadName,
		Handle:       h,
	}

	if err := o.build(ctx, archive, items, opts); err != nil {
		h.Release(workspace.Immediate)
		return nil, err
	}

	if len(archive.Entries) == 0 && o.config.EmptyIsError {
		h.Release(workspace.Immediate)
		log.Warn("batch of %d produced no output", len(items))
		return nil, ErrEmptyBatch
	}

	info, err := os.Stat(archive.Path)
	if err != nil {
		h.Release(workspace.Immediate)
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	archive.Size = info.Size()

	metrics.BatchArchiveEntries.Observe(float64(len(archive.Entries)))
	log.Info("batch complete: %d/%d converted, %d bytes archived in %v",
		len(archive.Entries), len(items), archive.Size, time.Since(start).Round(time.Millisecond))

	return archive, nil
}

func (o *Orchestrator) build(ctx context.Context, archive *Archive, items []Item, opts encoding.Options) (err error) {
	f, err := os.Create(archive.Path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close archive: %w", closeErr)
		}
	}()

	zw := zip.NewWriter(f)
	names := newNameSet()

	for i, item := range items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = zw.Close()
			return ctxErr
		}

		log.Debug("item %d/%d: %s", i+1, len(items), item.Name)

		if item.Handle == nil {
			o.recordFailure(archive, item.Name, errors.New("upload was not staged"))
			continue
		}

		req := transcoder.NewRequest(item.Handle.UploadPath(), item.Name, opts)
		res, convErr := o.converter.Convert(ctx, req, item.Handle)
		if convErr != nil {
			item.Handle.Release(workspace.Immediate)
			o.recordFailure(archive, item.Name, convErr)
			continue
		}

		entry := names.unique(res.OutputName)
		if entry != res.OutputName {
			log.Info("renamed duplicate entry %s to %s", res.OutputName, entry)
		}

		if err := addFile(zw, res.OutputPath, entry); err != nil {
			_ = zw.Close()
			return err
		}
		item.Handle.Release(workspace.Immediate)

		archive.Entries = append(archive.Entries, entry)
		metrics.BatchItemsTotal.WithLabelValues("success").Inc()
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func (o *Orchestrator) recordFailure(archive *Archive, name string, err error) {
	log.Warn("excluding %s from batch: %v", name, err)
	archive.Failed = append(archive.Failed, Failure{Name: name, Err: err})
	metrics.BatchItemsTotal.WithLabelValues("error").Inc()
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("failed to close %s: %v", path, err)
		}
	}()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}

// nameSet hands out archive entry names, suffixing repeats as
// name-1.ext, name-2.ext and so on.
type nameSet map[string]struct{}

func newNameSet() nameSet {
	return make(nameSet)
}

func (s nameSet) unique(name string) string {
	if _, taken := s[name]; !taken {
		s[name] = struct{}{}
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := stem + "-" + strconv.Itoa(n) + ext
		if _, taken := s[candidate]; !taken {
			s[candidate] = struct{}{}
			return candidate
		}
	}
}
