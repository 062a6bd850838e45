package memory

import (
	"context"
	"sync"

	"github.com/splitledger/splitledger/internal/domain"
)

// EventLog is an in-process append-only event record.
type EventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Append(ctx context.Context, ev domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

// List returns events oldest first, honoring the time window, offset, and
// limit in opts.
func (l *EventLog) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Event
	for _, ev := range l.events {
		if opts.Since != nil && ev.At.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && ev.At.After(*opts.Until) {
			continue
		}
		out = append(out, ev)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
