// Package eventservice implements the persist-then-publish event pipeline
// (spec.md §4.3): every event is committed to the store before it is handed
// to the bus, and a background re-publisher retries bus delivery for events
// that were durably written but failed to publish.
package eventservice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/bus"
	"github.com/benchhub/hub/internal/metrics"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// Filter selects events for Query.
type Filter struct {
	SubjectPattern string
	CorrelationID  string
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}

// Service is the Event Service façade used by every other component that
// needs to publish or replay events.
type Service interface {
	// Publish commits the event to the store, then publishes it on the bus.
	// Returns the generated event id regardless of whether the bus publish
	// succeeded — store durability is the operation's success criterion.
	Publish(ctx context.Context, subject string, payload []byte, origin, correlationID string) (uuid.UUID, error)

	// Query returns events matching filter ordered by timestamp ascending.
	Query(ctx context.Context, filter Filter) ([]store.Event, error)

	// Run starts the background re-publisher. Blocks until ctx is
	// cancelled.
	Run(ctx context.Context)
}

type service struct {
	events repositories.EventRepository
	bus    *bus.Bus
	logger *zap.Logger

	pending chan store.Event
}

// New builds the Event Service. Up to 256 failed-to-publish events can be
// queued in-memory for the re-publisher; an event that does not fit stays
// in the store but is not re-published on the bus.
func New(events repositories.EventRepository, b *bus.Bus, logger *zap.Logger) Service {
	return &service{
		events:  events,
		bus:     b,
		logger:  logger.Named("eventservice"),
		pending: make(chan store.Event, 256),
	}
}

func (s *service) Publish(ctx context.Context, subject string, payload []byte, origin, correlationID string) (uuid.UUID, error) {
	event := &store.Event{
		Subject:       subject,
		Origin:        origin,
		CorrelationID: correlationID,
		Payload:       string(payload),
		Timestamp:     time.Now().UTC(),
	}

	if err := s.events.Create(ctx, event); err != nil {
		return uuid.Nil, fmt.Errorf("eventservice: publish: store commit failed: %w", err)
	}

	if err := s.bus.Publish(subject, payload); err != nil {
		s.logger.Warn("bus publish failed after store commit, queued for retry",
			zap.String("subject", subject),
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
		metrics.RecordEventPublished("queued")
		select {
		case s.pending <- *event:
		default:
			s.logger.Error("re-publish queue full, event is stored but will not be re-published",
				zap.String("event_id", event.ID.String()))
		}
	} else {
		metrics.RecordEventPublished("ok")
	}

	return event.ID, nil
}

func (s *service) Query(ctx context.Context, filter Filter) ([]store.Event, error) {
	events, err := s.events.Query(ctx, filter.SubjectPattern, filter.Since, repositories.ListOptions{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("eventservice: query: %w", err)
	}

	if !filter.Until.IsZero() || filter.CorrelationID != "" {
		filtered := events[:0]
		for _, e := range events {
			if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
				continue
			}
			if filter.CorrelationID != "" && e.CorrelationID != filter.CorrelationID {
				continue
			}
			filtered = append(filtered, e)
		}
		events = filtered
	}

	return events, nil
}

// Run drains the in-memory retry queue with exponential backoff per event.
// Events that keep failing stay durable in the store and will still be
// visible to Query — only live delivery is delayed.
func (s *service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.pending:
			s.retryPublish(ctx, event)
		}
	}
}

func (s *service) retryPublish(ctx context.Context, event store.Event) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	const maxAttempts = 8

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.bus.Publish(event.Subject, []byte(event.Payload)); err == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	s.logger.Error("event exhausted re-publish attempts, remains durable but undelivered live",
		zap.String("event_id", event.ID.String()),
		zap.String("subject", event.Subject),
	)
}
