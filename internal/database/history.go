package database

import (
	"context"
	"database/sql"
	"time"

	"gif-converter/internal/metrics"

	"github.com/google/uuid"
)

// Conversion kinds.
const (
	KindSingle = "single"
	KindBatch  = "batch"
)

// Conversion statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ConversionRecord is one row of the history ledger.
type ConversionRecord struct {
	ID            string        `json:"id"`
	RequestID     string        `json:"requestId,omitempty"`
	Kind          string        `json:"kind"`
	Format        string        `json:"format"`
	Status        string        `json:"status"`
	OriginalName  string        `json:"originalName"`
	OutputName    string        `json:"outputName,omitempty"`
	SourceBytes   int64         `json:"sourceBytes"`
	OutputBytes   int64         `json:"outputBytes"`
	Quality       int           `json:"quality"`
	ResizePercent int           `json:"resizePercent"`
	Duration      time.Duration `json:"-"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// FormatStats aggregates conversions of one output format.
type FormatStats struct {
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	SourceBytes int64 `json:"sourceBytes"`
	OutputBytes int64 `json:"outputBytes"`
}

// Stats summarizes the ledger.
type Stats struct {
	Total          int64                  `json:"total"`
	Succeeded      int64                  `json:"succeeded"`
	Failed         int64                  `json:"failed"`
	SourceBytes    int64                  `json:"sourceBytes"`
	OutputBytes    int64                  `json:"outputBytes"`
	BytesSaved     int64                  `json:"bytesSaved"`
	AvgDurationMs  float64                `json:"avgDurationMs"`
	ByFormat       map[string]FormatStats `json:"byFormat"`
	LastConversion *time.Time             `json:"lastConversion,omitempty"`
	LastStartup    *time.Time             `json:"lastStartup,omitempty"`
}

// RecordConversion inserts rec. ID and CreatedAt are filled in when empty.
func (d *Database) RecordConversion(ctx context.Context, rec *ConversionRecord) (err error) {
	start := time.Now()
	defer func() { recordQuery("record_conversion", start, err) }()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO conversions (id, request_id, kind, format, status, original_name, output_name,
			source_bytes, output_bytes, quality, resize_percent, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, nullString(rec.RequestID), rec.Kind, rec.Format, rec.Status, rec.OriginalName, nullString(rec.OutputName),
		rec.SourceBytes, rec.OutputBytes, rec.Quality, rec.ResizePercent,
		rec.Duration.Milliseconds(), nullString(rec.Error), rec.CreatedAt.Unix(),
	)
	return err
}

// GetStats aggregates the whole ledger.
func (d *Database) GetStats(ctx context.Context) (stats *Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("get_stats", start, err) }()

	stats, err = d.aggregate(ctx)
	if err != nil {
		return nil, err
	}

	last, err := d.LastStartup(ctx)
	if err != nil {
		return nil, err
	}
	if !last.IsZero() {
		stats.LastStartup = &last
	}
	return stats, nil
}

// aggregate sums the conversions table per format and status.
func (d *Database) aggregate(ctx context.Context) (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT format, status, COUNT(*),
			COALESCE(SUM(source_bytes), 0), COALESCE(SUM(output_bytes), 0),
			COALESCE(SUM(duration_ms), 0), COALESCE(MAX(created_at), 0)
		FROM conversions
		GROUP BY format, status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &Stats{ByFormat: make(map[string]FormatStats)}
	var totalDurationMs, lastUnix int64

	for rows.Next() {
		var format, status string
		var count, srcBytes, outBytes, durationMs, maxCreated int64
		if err := rows.Scan(&format, &status, &count, &srcBytes, &outBytes, &durationMs, &maxCreated); err != nil {
			return nil, err
		}

		fs := stats.ByFormat[format]
		stats.Total += count
		if status == StatusSuccess {
			fs.Succeeded += count
			fs.SourceBytes += srcBytes
			fs.OutputBytes += outBytes
			stats.Succeeded += count
			stats.SourceBytes += srcBytes
			stats.OutputBytes += outBytes
			totalDurationMs += durationMs
		} else {
			fs.Failed += count
			stats.Failed += count
		}
		stats.ByFormat[format] = fs

		if maxCreated > lastUnix {
			lastUnix = maxCreated
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.BytesSaved = stats.SourceBytes - stats.OutputBytes
	if stats.Succeeded > 0 {
		stats.AvgDurationMs = float64(totalDurationMs) / float64(stats.Succeeded)
	}
	if lastUnix > 0 {
		last := time.Unix(lastUnix, 0).UTC()
		stats.LastConversion = &last
	}

	return stats, nil
}

// ConversionCounts returns counts per format and status.
func (d *Database) ConversionCounts(ctx context.Context) (metrics.HistoryStats, error) {
	stats, err := d.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(metrics.HistoryStats, len(stats.ByFormat))
	for format, fs := range stats.ByFormat {
		counts[format] = map[string]int64{
			StatusSuccess: fs.Succeeded,
			StatusError:   fs.Failed,
		}
	}
	return counts, nil
}

// Recent returns the newest records, newest first.
func (d *Database) Recent(ctx context.Context, limit int) ([]ConversionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, COALESCE(request_id, ''), kind, format, status, original_name, COALESCE(output_name, ''),
			source_bytes, output_bytes, quality, resize_percent, duration_ms,
			COALESCE(error, ''), created_at
		FROM conversions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ConversionRecord
	for rows.Next() {
		var rec ConversionRecord
		var durationMs, created int64
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Kind, &rec.Format, &rec.Status, &rec.OriginalName, &rec.OutputName,
			&rec.SourceBytes, &rec.OutputBytes, &rec.Quality, &rec.ResizePercent, &durationMs,
			&rec.Error, &created); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.CreatedAt = time.Unix(created, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records created before cutoff.
func (d *Database) Prune(ctx context.Context, cutoff time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("prune", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, "DELETE FROM conversions WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
