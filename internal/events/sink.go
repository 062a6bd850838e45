// Package events wires the ledger's event side-channel: committed events are
// appended to the durable log and broadcast to live subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/metrics"
)

// Publisher broadcasts encoded events to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Sink implements domain.EventSink by fanning each event out to the durable
// log and the publisher. Either target may be nil; failures of one target do
// not stop the other.
type Sink struct {
	log       domain.EventLog
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewSink(log domain.EventLog, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		log:       log,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With(slog.String("component", "events")),
	}
}

// Emit records the event and broadcasts it. The returned error joins the
// per-target failures; the caller logs it and moves on.
func (s *Sink) Emit(ctx context.Context, ev domain.Event) error {
	var errs []error

	if s.log != nil {
		if err := s.log.Append(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("append: %w", err))
		}
	}

	if s.publisher != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal: %w", err))
		} else if err := s.publisher.Publish(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("publish: %w", err))
		}
	}

	if s.metrics != nil {
		s.metrics.EventPublished()
	}
	return errors.Join(errs...)
}

var _ domain.EventSink = (*Sink)(nil)
