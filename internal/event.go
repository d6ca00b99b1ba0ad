package internal

// Event is a received Gerrit event on its way to the publishers.
type Event struct {
	Provider  string                 `json:"provider"`
	Name      string                 `json:"name"`
	RequestID string                 `json:"request_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
	// RawPayload is the request body as received. When set it is published
	// verbatim instead of the JSON encoding of the Event.
	RawPayload []byte `json:"-"`
	// RawObject is RawPayload decoded with encoding/json, used by JSONPath rules.
	RawObject interface{} `json:"-"`
}
