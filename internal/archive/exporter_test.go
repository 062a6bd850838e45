package archive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/store/memory"
)

type capturedObject struct {
	key         string
	contentType string
	data        []byte
}

type fakeWriter struct {
	objects []capturedObject
}

func (w *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects = append(w.objects, capturedObject{key: path, contentType: contentType, data: b})
	return nil
}

func appendEvent(t *testing.T, log *memory.EventLog, id string, at time.Time) {
	t.Helper()
	if err := log.Append(context.Background(), domain.Event{
		ID:   id,
		Name: domain.EventGroupCreated,
		At:   at,
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}
}

func TestExporterRun(t *testing.T) {
	log := memory.NewEventLog()
	writer := &fakeWriter{}
	exp := NewExporter(log, writer, "ledger/events", slog.New(slog.DiscardHandler))

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	exp.now = func() time.Time { return base.Add(time.Hour) }

	appendEvent(t, log, "ev-1", base)
	appendEvent(t, log, "ev-2", base.Add(time.Minute))

	if err := exp.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(writer.objects) != 1 {
		t.Fatalf("got %d objects, want 1", len(writer.objects))
	}
	obj := writer.objects[0]
	if !strings.HasPrefix(obj.key, "ledger/events/2026/08/01/events-") {
		t.Errorf("key = %q, want ledger/events/2026/08/01/ prefix", obj.key)
	}
	if obj.contentType != "application/x-ndjson" {
		t.Errorf("content type = %q", obj.contentType)
	}
	lines := bytes.Count(obj.data, []byte("\n"))
	if lines != 2 {
		t.Errorf("got %d lines, want 2", lines)
	}
}

func TestExporterIncremental(t *testing.T) {
	log := memory.NewEventLog()
	writer := &fakeWriter{}
	exp := NewExporter(log, writer, "ledger/events", slog.New(slog.DiscardHandler))

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	exp.now = func() time.Time { return clock }

	appendEvent(t, log, "ev-1", base.Add(-time.Minute))
	if err := exp.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run with no new events uploads nothing.
	clock = base.Add(time.Hour)
	if err := exp.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(writer.objects) != 1 {
		t.Fatalf("got %d objects after empty run, want 1", len(writer.objects))
	}

	// A later event is picked up exactly once.
	appendEvent(t, log, "ev-2", base.Add(90*time.Minute))
	clock = base.Add(2 * time.Hour)
	if err := exp.Run(context.Background()); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if len(writer.objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(writer.objects))
	}
	if got := bytes.Count(writer.objects[1].data, []byte("\n")); got != 1 {
		t.Errorf("third run exported %d events, want 1", got)
	}
	if !bytes.Contains(writer.objects[1].data, []byte("ev-2")) {
		t.Errorf("third run object missing ev-2: %s", writer.objects[1].data)
	}
}

func TestExporterPagination(t *testing.T) {
	log := memory.NewEventLog()
	writer := &fakeWriter{}
	exp := NewExporter(log, writer, "ledger/events", slog.New(slog.DiscardHandler))

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	exp.now = func() time.Time { return base.Add(24 * time.Hour) }

	for i := 0; i < pageSize+25; i++ {
		appendEvent(t, log, "ev", base.Add(time.Duration(i)*time.Second))
	}

	if err := exp.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(writer.objects) != 1 {
		t.Fatalf("got %d objects, want 1", len(writer.objects))
	}
	if got := bytes.Count(writer.objects[0].data, []byte("\n")); got != pageSize+25 {
		t.Errorf("exported %d events, want %d", got, pageSize+25)
	}
}
