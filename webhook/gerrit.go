package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"gerritevents/internal"
	"gerritevents/pkg/gerrit"
	"gerritevents/pkg/storage"

	"github.com/ThreeDotsLabs/watermill"
)

const providerGerrit = "gerrit"

// GerritHandler receives events posted by the Gerrit webhooks plugin.
type GerritHandler struct {
	rules        *internal.RuleEngine
	publisher    internal.Publisher
	logger       *log.Logger
	maxBodyBytes int64
	store        storage.RefUpdateStore
}

func NewGerritHandler(rules *internal.RuleEngine, publisher internal.Publisher, logger *log.Logger, maxBodyBytes int64) (*GerritHandler, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GerritHandler{rules: rules, publisher: publisher, logger: logger, maxBodyBytes: maxBodyBytes}, nil
}

// UseRefUpdateStore records every ref-updated event with a project in store.
func (h *GerritHandler) UseRefUpdateStore(store storage.RefUpdateStore) {
	h.store = store
}

func (h *GerritHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	rawBody, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	obj, err := gerrit.ParseObject(rawBody)
	if err != nil {
		internal.IncParseError(providerGerrit)
		h.logger.Printf("gerrit parse failed: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	eventType := gerrit.EventType(obj)
	if eventType == "" {
		internal.IncParseError(providerGerrit)
		h.logger.Printf("gerrit event without type")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = watermill.NewUUID()
	}

	rawObject, data := rawObjectAndFlatten(rawBody)
	if eventType == gerrit.EventTypeRefUpdated {
		h.enrichRefUpdated(r.Context(), obj, data, requestID)
	}

	internal.IncRequest(eventType)
	h.emit(r, internal.Event{
		Provider:   providerGerrit,
		Name:       eventType,
		RequestID:  requestID,
		Data:       data,
		RawPayload: rawBody,
		RawObject:  rawObject,
	})

	w.Header().Set("X-Request-Id", requestID)
	w.WriteHeader(http.StatusOK)
}

// enrichRefUpdated adds the fully qualified ref so rules can match on it.
func (h *GerritHandler) enrichRefUpdated(ctx context.Context, obj gerrit.Object, data map[string]interface{}, requestID string) {
	evt, err := gerrit.EventFromObject(obj)
	if err != nil {
		h.logger.Printf("decode ref-updated failed: %v", err)
		return
	}
	refUpdated, ok := evt.(*gerrit.RefUpdated)
	if !ok || refUpdated.RefUpdate == nil {
		return
	}
	if ref, ok := refUpdated.RefUpdate.Ref(); ok {
		data["refUpdate.ref"] = ref
	}
	internal.IncRefUpdate(refUpdated.RefUpdate.GetProject())
	h.logger.Printf("%s", refUpdated.RefUpdate)

	if h.store == nil || refUpdated.RefUpdate.GetProject() == "" {
		return
	}
	record := storage.RecordFromRefUpdate(refUpdated.RefUpdate, refUpdated.Submitter)
	record.RequestID = requestID
	record.EventCreatedOn = refUpdated.EventCreatedOn
	if err := h.store.SaveRefUpdate(ctx, record); err != nil {
		h.logger.Printf("store ref update failed: %v", err)
	}
}

func (h *GerritHandler) emit(r *http.Request, event internal.Event) {
	topics := h.rules.Evaluate(event)
	h.logger.Printf("event provider=%s name=%s request_id=%s topics=%v", event.Provider, event.Name, event.RequestID, topics)
	for _, match := range topics {
		if err := h.publisher.PublishForDrivers(r.Context(), match.Topic, event, match.Drivers); err != nil {
			h.logger.Printf("publish %s failed: %v", match.Topic, err)
		}
	}
}

func rawObjectAndFlatten(raw []byte) (interface{}, map[string]interface{}) {
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, map[string]interface{}{}
	}
	objectMap, ok := out.(map[string]interface{})
	if !ok {
		return out, map[string]interface{}{}
	}
	return out, internal.Flatten(objectMap)
}
