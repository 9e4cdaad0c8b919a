package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventType is returned by Decode for unregistered types.
var ErrUnknownEventType = errors.New("unknown event type")

var itemEvents = map[string]func() Event{
	EventItemQueued:      func() Event { return &ItemQueued{} },
	EventItemDownloading: func() Event { return &ItemDownloading{} },
	EventItemProgressed:  func() Event { return &ItemProgressed{} },
	EventItemFinished:    func() Event { return &ItemFinished{} },
	EventItemFailed:      func() Event { return &ItemFailed{} },
	EventItemSkipped:     func() Event { return &ItemSkipped{} },
	EventItemRemoved:     func() Event { return &ItemRemoved{} },
}

// Decode turns a stored event back into its concrete item event.
func Decode(raw RawEvent) (Event, error) {
	factory, ok := itemEvents[raw.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, raw.EventType)
	}
	e := factory()
	if err := json.Unmarshal([]byte(raw.Payload), e); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", raw.EventType, err)
	}
	return e, nil
}

// Describe is a one-line summary of an item event for listings.
func Describe(e Event) string {
	switch ev := e.(type) {
	case *ItemQueued:
		if ev.Quality != "" {
			return fmt.Sprintf("%s at %s", ev.Ref, ev.Quality)
		}
		return ev.Ref
	case *ItemDownloading:
		return ev.Ref
	case *ItemProgressed:
		return fmt.Sprintf("%s %.0f%%", ev.Ref, ev.Percent)
	case *ItemFinished:
		if ev.Count > 1 {
			return fmt.Sprintf("%s -> %s (%d files)", ev.Ref, ev.Path, ev.Count)
		}
		return fmt.Sprintf("%s -> %s", ev.Ref, ev.Path)
	case *ItemFailed:
		return fmt.Sprintf("%s: %s", ev.Ref, ev.Reason)
	case *ItemSkipped:
		return fmt.Sprintf("%s (%s)", ev.Ref, ev.Reason)
	}
	return ""
}
