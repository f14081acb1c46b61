package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one committed hub broadcast mirrored to the event bus.
type Event struct {
	ID        string          `json:"eventId"`
	Type      string          `json:"eventType"`
	RaceID    string          `json:"raceId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEvent wraps a broadcast payload for publishing
func NewEvent(eventType, raceID string, payload []byte, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RaceID:    raceID,
		Timestamp: at.UTC(),
		Payload:   json.RawMessage(payload),
	}
}

// Publisher mirrors hub events to an external bus. Publish must not block
// on the network: the hub calls it from its processing loop.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher discards events. Used when no bus is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	Events []Event
}

func (p *RecordingPublisher) Publish(_ context.Context, event Event) error {
	p.Events = append(p.Events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

func subjectFor(prefix, eventType string) string {
	if eventType == "" {
		eventType = "unknown"
	}
	return fmt.Sprintf("%s.%s", prefix, eventType)
}

func logPublishFailure(err error, event Event) {
	log.Warn().
		Err(err).
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Msg("failed to publish event")
}
