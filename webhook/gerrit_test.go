package webhook

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gerritevents/internal"
	"gerritevents/pkg/storage"
)

type published struct {
	topic   string
	event   internal.Event
	drivers []string
}

type recordingPublisher struct {
	calls []published
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event internal.Event) error {
	return p.PublishForDrivers(ctx, topic, event, nil)
}

func (p *recordingPublisher) PublishForDrivers(ctx context.Context, topic string, event internal.Event, drivers []string) error {
	p.calls = append(p.calls, published{topic: topic, event: event, drivers: drivers})
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

const refUpdatedBody = `{"type":"ref-updated","submitter":{"name":"Jane"},"refUpdate":{"project":"demo","refName":"master","oldRev":"aaa","newRev":"bbb"}}`

func newTestHandler(t *testing.T, rules []internal.Rule, maxBody int64) (*GerritHandler, *recordingPublisher) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	engine, err := internal.NewRuleEngine(internal.RulesConfig{Rules: rules, Logger: logger})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	pub := &recordingPublisher{}
	handler, err := NewGerritHandler(engine, pub, logger, maxBody)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, pub
}

func TestGerritHandlerPublishesRefUpdated(t *testing.T) {
	handler, pub := newTestHandler(t, []internal.Rule{
		{When: `[refUpdate.ref] == "refs/heads/master"`, Emit: internal.EmitList{"demo.master"}, Drivers: []string{"gochannel"}},
		{When: `type == "patchset-created"`, Emit: internal.EmitList{"never"}},
	}, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gerrit", strings.NewReader(refUpdatedBody))
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("expected request id to be echoed")
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	call := pub.calls[0]
	if call.topic != "demo.master" {
		t.Fatalf("expected topic demo.master, got %q", call.topic)
	}
	if call.event.Provider != "gerrit" || call.event.Name != "ref-updated" || call.event.RequestID != "req-1" {
		t.Fatalf("unexpected event header: %+v", call.event)
	}
	if string(call.event.RawPayload) != refUpdatedBody {
		t.Fatalf("expected raw payload to be kept")
	}
	if call.event.Data["refUpdate.project"] != "demo" {
		t.Fatalf("expected flattened project, got %v", call.event.Data["refUpdate.project"])
	}
	if len(call.drivers) != 1 || call.drivers[0] != "gochannel" {
		t.Fatalf("expected rule drivers to be passed, got %v", call.drivers)
	}
}

func TestGerritHandlerRefUpdatedWithoutRefName(t *testing.T) {
	handler, pub := newTestHandler(t, []internal.Rule{
		{When: `type == "ref-updated"`, Emit: internal.EmitList{"ref.updated"}},
	}, 0)

	body := `{"type":"ref-updated","refUpdate":{"project":"demo"}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/gerrit", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	if _, ok := pub.calls[0].event.Data["refUpdate.ref"]; ok {
		t.Fatalf("expected no ref without a ref name")
	}
	if pub.calls[0].event.RequestID == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestGerritHandlerRejects(t *testing.T) {
	handler, pub := newTestHandler(t, nil, 64)

	cases := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{name: "method", method: http.MethodGet, body: "", code: http.StatusMethodNotAllowed},
		{name: "invalid json", method: http.MethodPost, body: `{"type":`, code: http.StatusBadRequest},
		{name: "array", method: http.MethodPost, body: `[]`, code: http.StatusBadRequest},
		{name: "missing type", method: http.MethodPost, body: `{"refUpdate":{}}`, code: http.StatusBadRequest},
		{name: "too large", method: http.MethodPost, body: `{"type":"ref-updated","padding":"` + strings.Repeat("x", 128) + `"}`, code: http.StatusRequestEntityTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tc.method, "/webhooks/gerrit", strings.NewReader(tc.body)))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected nothing to be published, got %d", len(pub.calls))
	}
}

type memoryStore struct {
	records []storage.RefUpdateRecord
}

func (s *memoryStore) SaveRefUpdate(ctx context.Context, record storage.RefUpdateRecord) error {
	s.records = append(s.records, record)
	return nil
}

func (s *memoryStore) LatestRefUpdate(ctx context.Context, project, refName string) (*storage.RefUpdateRecord, error) {
	return nil, nil
}

func (s *memoryStore) ListRefUpdates(ctx context.Context, filter storage.RefUpdateFilter) ([]storage.RefUpdateRecord, error) {
	return s.records, nil
}

func (s *memoryStore) Close() error {
	return nil
}

func TestGerritHandlerStoresRefUpdates(t *testing.T) {
	handler, _ := newTestHandler(t, nil, 0)
	store := &memoryStore{}
	handler.UseRefUpdateStore(store)

	body := `{"type":"ref-updated","eventCreatedOn":1700000000,"submitter":{"username":"jane"},"refUpdate":{"project":"demo","refName":"master","oldRev":"aaa","newRev":"bbb"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gerrit", strings.NewReader(body))
	req.Header.Set("X-Request-Id", "req-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	noProject := `{"type":"ref-updated","refUpdate":{"refName":"master"}}`
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/gerrit", strings.NewReader(noProject)))

	if len(store.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(store.records))
	}
	record := store.records[0]
	if record.Ref != "refs/heads/master" || record.Submitter != "jane" || record.RequestID != "req-7" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.EventCreatedOn == nil || record.EventCreatedOn.Unix() != 1700000000 {
		t.Fatalf("expected event timestamp, got %v", record.EventCreatedOn)
	}
}
