package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2025, 3, 14, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	e := NewEvent("raceUpdate", "r1", []byte(`{"id":"r1"}`), at)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, time.UTC, e.Timestamp.Location())

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"eventId": "`+e.ID+`",
		"eventType": "raceUpdate",
		"raceId": "r1",
		"timestamp": "2025-03-14T09:00:00Z",
		"payload": {"id": "r1"}
	}`, string(raw))
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "ergsync.events.raceUpdate", subjectFor("ergsync.events", "raceUpdate"))
	assert.Equal(t, "ergsync.events.unknown", subjectFor("ergsync.events", ""))
}

func TestPublishers(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NoopPublisher{}.Publish(ctx, Event{}))
	assert.NoError(t, NoopPublisher{}.Close())

	rec := &RecordingPublisher{}
	require.NoError(t, rec.Publish(ctx, Event{Type: "a"}))
	require.NoError(t, rec.Publish(ctx, Event{Type: "b"}))
	assert.Len(t, rec.Events, 2)
}

func TestStreamConfig(t *testing.T) {
	p := &JetStreamPublisher{config: DefaultJetStreamConfig()}
	sc := p.streamConfig()
	assert.Equal(t, []string{"ergsync.events.>"}, sc.Subjects)
	assert.True(t, isStreamConfigEqual(sc, p.streamConfig()))

	other := sc
	other.MaxAge = time.Hour
	assert.False(t, isStreamConfigEqual(sc, other))
}
