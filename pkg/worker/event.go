package worker

import (
	"encoding/json"

	"gerritevents/pkg/gerrit"
)

// Event represents a message received by the worker.
type Event struct {
	// Provider is the name of the event source, "gerrit" for webhook events.
	Provider string `json:"provider"`
	// Type is the Gerrit event type (e.g., "ref-updated").
	Type string `json:"type"`
	// Topic is the name of the topic the message was received on.
	Topic string `json:"topic"`
	// Metadata contains message-broker-specific metadata.
	Metadata map[string]string `json:"metadata"`
	// Payload is the raw JSON payload of the message.
	Payload json.RawMessage `json:"payload"`
	// Normalized is the decoded JSON payload of the event.
	Normalized map[string]interface{} `json:"normalized"`
	// RefUpdate is set for ref-updated events that carry a refUpdate object.
	RefUpdate *gerrit.RefUpdate `json:"refUpdate,omitempty"`
	// Submitter is set for ref-updated events that carry a submitter.
	Submitter *gerrit.Account `json:"-"`
}

// Ref returns the fully qualified ref of the event's RefUpdate.
func (e *Event) Ref() (string, bool) {
	if e == nil {
		return "", false
	}
	return e.RefUpdate.Ref()
}
