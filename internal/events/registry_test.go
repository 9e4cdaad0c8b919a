package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	raw := RawEvent{
		EventType: EventItemQueued,
		Payload:   `{"type":"item.queued","entity_type":"item","entity_id":"abc","occurred_at":"2024-01-01T00:00:00Z","ref":"album:42","name":"Blue Train","quality":"HI_RES_LOSSLESS"}`,
	}

	event, err := Decode(raw)
	require.NoError(t, err)

	queued, ok := event.(*ItemQueued)
	require.True(t, ok)
	assert.Equal(t, "album:42", queued.Ref)
	assert.Equal(t, "Blue Train", queued.Name)
	assert.Equal(t, "abc", queued.EntityID())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(RawEvent{EventType: "unknown.event", Payload: `{}`})
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Decode(RawEvent{EventType: EventItemFailed, Payload: `{invalid json`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal item.failed payload")
}

func TestDecode_AllItemTypes(t *testing.T) {
	for _, eventType := range []string{
		EventItemQueued,
		EventItemDownloading,
		EventItemProgressed,
		EventItemFinished,
		EventItemFailed,
		EventItemSkipped,
		EventItemRemoved,
	} {
		t.Run(eventType, func(t *testing.T) {
			raw := RawEvent{
				EventType: eventType,
				Payload:   `{"type":"` + eventType + `","entity_type":"item","entity_id":"1","occurred_at":"2024-01-01T00:00:00Z"}`,
			}
			event, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, eventType, event.EventType())
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{&ItemQueued{Ref: "track:1", Quality: "LOSSLESS"}, "track:1 at LOSSLESS"},
		{&ItemQueued{Ref: "track:1"}, "track:1"},
		{&ItemProgressed{Ref: "track:1", Percent: 42.4}, "track:1 42%"},
		{&ItemFinished{Ref: "album:9", Path: "/m/Album", Count: 3}, "album:9 -> /m/Album (3 files)"},
		{&ItemFinished{Ref: "track:1", Path: "/m/a.flac", Count: 1}, "track:1 -> /m/a.flac"},
		{&ItemFailed{Ref: "video:2", Reason: "not available"}, "video:2: not available"},
		{&ItemSkipped{Ref: "track:3", Reason: "duplicate"}, "track:3 (duplicate)"},
		{&ItemRemoved{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.event))
		})
	}
}

func TestDecode_RoundTripThroughLog(t *testing.T) {
	log := NewEventLog(setupTestDB(t))
	bus := NewBus(log, nil)
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), &ItemSkipped{
		BaseEvent: NewBaseEvent(EventItemSkipped, EntityItem, "q1"),
		Ref:       "track:7",
		Reason:    "exists",
		Path:      "/music/A/B/07 - C.flac",
	}))

	raws, err := log.Since(time.Time{})
	require.NoError(t, err)
	require.Len(t, raws, 1)

	event, err := Decode(raws[0])
	require.NoError(t, err)
	skipped, ok := event.(*ItemSkipped)
	require.True(t, ok)
	assert.Equal(t, "exists", skipped.Reason)
	assert.Equal(t, "/music/A/B/07 - C.flac", skipped.Path)
	assert.Equal(t, "q1", skipped.EntityID())
}
