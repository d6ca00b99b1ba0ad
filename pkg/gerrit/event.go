package gerrit

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedEventType is returned by ParseEvent for event types it has no DTO for.
var ErrUnsupportedEventType = errors.New("unsupported event type")

// Event is a decoded Gerrit event.
type Event interface {
	Type() string
}

// EventType returns the "type" field of an event payload, or "" when absent.
func EventType(obj StringGetter) string {
	if obj == nil {
		return ""
	}
	value, _ := obj.GetString(KeyType)
	return value
}

// RefUpdated is sent when a ref is updated outside of a change submit,
// typically a direct push.
type RefUpdated struct {
	Submitter      *Account
	RefUpdate      *RefUpdate
	EventCreatedOn *time.Time
}

func (e *RefUpdated) Type() string {
	return EventTypeRefUpdated
}

// FromJSON populates the event from obj. Nested objects that are missing
// leave the matching field nil.
func (e *RefUpdated) FromJSON(obj Object) {
	e.Submitter = nil
	e.RefUpdate = nil
	e.EventCreatedOn = nil
	if nested, ok := obj.GetObject(KeySubmitter); ok {
		e.Submitter = AccountFromJSON(nested)
	}
	if nested, ok := obj.GetObject(KeyRefUpdate); ok {
		e.RefUpdate = RefUpdateFromJSON(nested)
	}
	if seconds, ok := obj.GetInt64(KeyEventCreatedOn); ok {
		createdOn := time.Unix(seconds, 0).UTC()
		e.EventCreatedOn = &createdOn
	}
}

func (e *RefUpdated) String() string {
	if e == nil {
		return nullText
	}
	return e.RefUpdate.String()
}

// ParseEvent decodes a single event payload.
func ParseEvent(data []byte) (Event, error) {
	obj, err := ParseObject(data)
	if err != nil {
		return nil, err
	}
	return EventFromObject(obj)
}

// EventFromObject decodes an already parsed event payload.
func EventFromObject(obj Object) (Event, error) {
	switch eventType := EventType(obj); eventType {
	case EventTypeRefUpdated:
		evt := &RefUpdated{}
		evt.FromJSON(obj)
		return evt, nil
	case "":
		return nil, fmt.Errorf("%w: missing %s", ErrUnsupportedEventType, KeyType)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventType, eventType)
	}
}
