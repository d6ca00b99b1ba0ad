package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher sends events to one or more brokers.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	// PublishForDrivers publishes to the named drivers only. An empty list
	// means every configured driver.
	PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error
	Close() error
}

// PublisherFactory builds a watermill publisher for one driver. The returned
// close function, when non-nil, runs after the publisher is closed.
type PublisherFactory func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

var errUnsupportedDriver = errors.New("unsupported watermill driver")

// RegisterPublisherDriver makes a custom driver available to NewPublisher.
// Names are case-insensitive.
func RegisterPublisherDriver(name string, factory PublisherFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || factory == nil {
		return
	}
	publisherFactories[name] = factory
}

// NewPublisher connects every configured driver. Drivers that fail to connect
// are logged and skipped; it is an error only when none is left.
func NewPublisher(cfg WatermillConfig) (Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}

	mux := &publisherMux{
		publishers: make(map[string]Publisher, len(drivers)),
		retry:      cfg.PublishRetry,
		logger:     logger,
	}
	var errs error
	for _, driver := range drivers {
		key := strings.ToLower(strings.TrimSpace(driver))
		if _, ok := mux.publishers[key]; ok || key == "" {
			continue
		}
		pub, err := connectPublisher(cfg, logger, key)
		if err != nil {
			logger.Error("publisher init failed, skipping driver", err, watermill.LogFields{"driver": key})
			errs = errors.Join(errs, err)
			continue
		}
		mux.publishers[key] = pub
		mux.defaultDrivers = append(mux.defaultDrivers, key)
	}
	if len(mux.publishers) == 0 {
		return nil, fmt.Errorf("no publishers available: %w", errs)
	}
	return mux, nil
}

// connectPublisher builds one driver, retrying while the broker is
// unreachable. Unknown drivers fail right away.
func connectPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter, driver string) (Publisher, error) {
	attempts := cfg.ConnectRetry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(cfg.ConnectRetry.DelayMS) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pub, err := buildPublisher(cfg, logger, driver)
		if err == nil {
			return pub, nil
		}
		if errors.Is(err, errUnsupportedDriver) {
			return nil, err
		}
		lastErr = err
		if attempt < attempts {
			logger.Info("publisher connect failed, retrying", watermill.LogFields{
				"driver":  driver,
				"attempt": attempt,
				"error":   err.Error(),
			})
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("%s publisher: %w", driver, lastErr)
}

func buildPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter, driver string) (Publisher, error) {
	if driver == "riverqueue" {
		pub, err := newRiverQueuePublisher(cfg.RiverQueue)
		if err != nil {
			return nil, err
		}
		return pub, nil
	}
	factory, ok := publisherFactories[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupportedDriver, driver)
	}
	pub, closeFn, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &watermillPublisher{publisher: pub, closeFn: closeFn}, nil
}

type watermillPublisher struct {
	publisher message.Publisher
	closeFn   func() error
}

// Publish sends the raw Gerrit payload when the event carries one, and the
// JSON encoded Event otherwise. Routing fields go into message metadata.
func (w *watermillPublisher) Publish(ctx context.Context, topic string, event Event) error {
	payload := event.RawPayload
	if len(payload) == 0 {
		encoded, err := json.Marshal(event)
		if err != nil {
			return err
		}
		payload = encoded
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	for key, value := range eventMetadata(event) {
		msg.Metadata.Set(key, value)
	}
	return w.publisher.Publish(topic, msg)
}

func (w *watermillPublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return w.Publish(ctx, topic, event)
}

func (w *watermillPublisher) Close() error {
	if w.publisher == nil {
		return nil
	}
	err := w.publisher.Close()
	if w.closeFn != nil {
		err = errors.Join(err, w.closeFn())
	}
	return err
}

// eventMetadata returns the message metadata for event. Ref updates also
// carry their project and full ref.
func eventMetadata(event Event) map[string]string {
	metadata := map[string]string{
		"provider": event.Provider,
		"event":    event.Name,
	}
	if event.RequestID != "" {
		metadata["request_id"] = event.RequestID
	}
	for key, field := range map[string]string{"project": "refUpdate.project", "ref": "refUpdate.ref"} {
		if value, ok := event.Data[field].(string); ok && value != "" {
			metadata[key] = value
		}
	}
	return metadata
}

type publisherMux struct {
	publishers     map[string]Publisher
	defaultDrivers []string
	retry          PublishRetryConfig
	logger         watermill.LoggerAdapter
}

func (m *publisherMux) Publish(ctx context.Context, topic string, event Event) error {
	return m.PublishForDrivers(ctx, topic, event, nil)
}

func (m *publisherMux) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	targets := drivers
	if len(targets) == 0 {
		targets = m.defaultDrivers
	}

	var err error
	for _, driver := range targets {
		key := strings.ToLower(driver)
		pub, ok := m.publishers[key]
		if !ok {
			err = errors.Join(err, fmt.Errorf("unknown driver %s", driver))
			continue
		}
		if publishErr := m.publishWithRetry(ctx, pub, key, topic, event); publishErr != nil {
			IncPublishError(key)
			err = errors.Join(err, fmt.Errorf("driver %s: %w", key, publishErr))
		}
	}
	return err
}

func (m *publisherMux) publishWithRetry(ctx context.Context, pub Publisher, driver, topic string, event Event) error {
	attempts := m.retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(m.retry.DelayMS) * time.Millisecond

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = pub.Publish(ctx, topic, event); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		m.logger.Info("publish failed, retrying", watermill.LogFields{
			"driver":  driver,
			"topic":   topic,
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}

func (m *publisherMux) Close() error {
	var err error
	for _, pub := range m.publishers {
		err = errors.Join(err, pub.Close())
	}
	return err
}
