// Package archive periodically exports the durable event log to object
// storage as JSON Lines, giving the ledger an off-database audit trail.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/splitledger/splitledger/internal/domain"
)

// pageSize is how many events are fetched per store round-trip.
const pageSize = 500

// ObjectWriter uploads one export object. Satisfied by s3blob.Writer.
type ObjectWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Exporter snapshots newly appended events into timestamped JSONL objects.
// Each run exports events recorded since the previous successful run.
type Exporter struct {
	log    domain.EventLog
	writer ObjectWriter
	prefix string
	logger *slog.Logger

	// lastExport is the exclusive lower bound of the next run's window.
	lastExport time.Time
	now        func() time.Time
}

// NewExporter creates an Exporter writing under the given key prefix
// (e.g. "ledger/events"). The first run exports the full event log.
func NewExporter(log domain.EventLog, writer ObjectWriter, prefix string, logger *slog.Logger) *Exporter {
	return &Exporter{
		log:    log,
		writer: writer,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archive")),
		now:    time.Now,
	}
}

// Run executes a single export. It pages through events appended since the
// last successful run, encodes them as JSON Lines, and uploads one object.
// Runs with no new events upload nothing.
func (e *Exporter) Run(ctx context.Context) error {
	runAt := e.now().UTC()

	// The window bounds are inclusive, so start just past the previous run.
	var since *time.Time
	if !e.lastExport.IsZero() {
		t := e.lastExport.Add(time.Nanosecond)
		since = &t
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0

	for offset := 0; ; offset += pageSize {
		events, err := e.log.List(ctx, domain.ListOpts{
			Limit:  pageSize,
			Offset: offset,
			Since:  since,
			Until:  &runAt,
		})
		if err != nil {
			return fmt.Errorf("archive: list events: %w", err)
		}
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return fmt.Errorf("archive: encode event %s: %w", ev.ID, err)
			}
			count++
		}
		if len(events) < pageSize {
			break
		}
	}

	if count == 0 {
		e.logger.Debug("no new events to export")
		e.lastExport = runAt
		return nil
	}

	key := fmt.Sprintf("%s/%s/events-%s.jsonl",
		e.prefix,
		runAt.Format("2006/01/02"),
		runAt.Format("20060102T150405Z"),
	)
	if err := e.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}

	e.lastExport = runAt
	e.logger.Info("exported events",
		slog.String("key", key),
		slog.Int("count", count),
	)
	return nil
}

// RunPeriodic runs the exporter on a fixed interval until the context is
// cancelled. A failed run is logged and retried on the next tick.
func (e *Exporter) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("archive: interval must be positive, got %s", interval)
	}
	e.logger.Info("archive exporter started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("archive exporter stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := e.Run(ctx); err != nil {
				e.logger.Error("export run failed", slog.String("error", err.Error()))
			}
		}
	}
}
