package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

func registerSubscriber(t *testing.T, name string, factory SubscriberFactory) {
	t.Helper()
	orig, had := subscriberFactories[name]
	t.Cleanup(func() {
		if had {
			subscriberFactories[name] = orig
		} else {
			delete(subscriberFactories, name)
		}
	})
	RegisterSubscriberDriver(name, factory)
}

func TestBuildSubscriberUnsupportedDriver(t *testing.T) {
	_, err := BuildSubscriber(SubscriberConfig{Driver: "carrier-pigeon", ConnectRetry: ConnectRetryConfig{Attempts: 5, DelayMS: 1000}})
	if !errors.Is(err, errUnsupportedSubscriber) {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestBuildSubscriberRetriesConnect(t *testing.T) {
	calls := 0
	registerSubscriber(t, "flaky", func(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("broker unavailable")
		}
		return gochannel.NewGoChannel(gochannel.Config{}, logger), nil
	})

	sub, err := BuildSubscriber(SubscriberConfig{Driver: "FLAKY", ConnectRetry: ConnectRetryConfig{Attempts: 3, DelayMS: 1}})
	if err != nil {
		t.Fatalf("build subscriber: %v", err)
	}
	defer sub.Close()
	if calls != 3 {
		t.Fatalf("expected 3 connect attempts, got %d", calls)
	}

	calls = -10
	if _, err := BuildSubscriber(SubscriberConfig{Driver: "flaky", ConnectRetry: ConnectRetryConfig{Attempts: 2, DelayMS: 1}}); err == nil {
		t.Fatalf("expected error once attempts are exhausted")
	}
}

func TestMultiSubscriberTagsDriver(t *testing.T) {
	a := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	b := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	registerSubscriber(t, "multi-a", func(SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) { return a, nil })
	registerSubscriber(t, "multi-b", func(SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) { return b, nil })

	sub, err := BuildSubscriber(SubscriberConfig{Drivers: []string{"multi-a", "multi-b", "unknown"}})
	if err != nil {
		t.Fatalf("build subscriber: %v", err)
	}
	defer sub.Close()

	if err := a.Publish("ref.updated", message.NewMessage("1", []byte(`{}`))); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if err := b.Publish("ref.updated", message.NewMessage("2", []byte(`{}`))); err != nil {
		t.Fatalf("publish b: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := sub.Subscribe(ctx, "ref.updated")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	drivers := map[string]string{}
	for len(drivers) < 2 {
		select {
		case msg := <-msgs:
			drivers[msg.UUID] = msg.Metadata.Get("driver")
			msg.Ack()
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", drivers)
		}
	}
	if drivers["1"] != "multi-a" || drivers["2"] != "multi-b" {
		t.Fatalf("unexpected driver tags %v", drivers)
	}
}

func TestUniqueStrings(t *testing.T) {
	got := uniqueStrings([]string{" Kafka ", "kafka", "", "sql"})
	if len(got) != 2 || got[0] != "kafka" || got[1] != "sql" {
		t.Fatalf("unexpected values %v", got)
	}
}
