package worker

import (
	"encoding/json"

	"gerritevents/pkg/gerrit"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Codec is an interface for decoding messages from a message broker into an Event.
type Codec interface {
	// Decode transforms a Watermill message into an Event.
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec is the default implementation of the Codec interface.
// It accepts both the raw Gerrit payload published by the server and the
// {provider, name, data} envelope.
type DefaultCodec struct{}

// envelope is used to unmarshal the basic event properties.
type envelope struct {
	Provider string                 `json:"provider"`
	Name     string                 `json:"name"`
	Data     map[string]interface{} `json:"data"`
}

// Decode unmarshals a Watermill message into an Event.
func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}

	normalized := env.Data
	if normalized == nil {
		var raw interface{}
		if err := json.Unmarshal(msg.Payload, &raw); err == nil {
			if object, ok := raw.(map[string]interface{}); ok {
				normalized = object
			}
		}
	}

	provider := env.Provider
	if provider == "" {
		provider = msg.Metadata.Get("provider")
	}
	eventName := env.Name
	if eventName == "" {
		eventName = msg.Metadata.Get("event")
	}
	if eventName == "" && normalized != nil {
		eventName = gerrit.EventType(gerrit.MapObject(normalized))
	}

	evt := &Event{
		Provider:   provider,
		Type:       eventName,
		Topic:      topic,
		Metadata:   metadata,
		Payload:    json.RawMessage(msg.Payload),
		Normalized: normalized,
	}
	if eventName == gerrit.EventTypeRefUpdated && normalized != nil {
		var refUpdated gerrit.RefUpdated
		refUpdated.FromJSON(gerrit.MapObject(normalized))
		evt.RefUpdate = refUpdated.RefUpdate
		evt.Submitter = refUpdated.Submitter
	}
	return evt, nil
}
