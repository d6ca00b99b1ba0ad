package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"
)

// Worker consumes Gerrit events published by the server. It subscribes to
// topics, decodes each message with its Codec and dispatches it to the
// handler registered for the topic, or else for the event type.
type Worker struct {
	subscriber  message.Subscriber
	codec       Codec
	retry       RetryPolicy
	logger      Logger
	concurrency int
	topics      []string

	topicHandlers map[string]Handler
	typeHandlers  map[string]Handler
	middleware    []Middleware
	listeners     listeners
	allowedTopics map[string]struct{}
}

// New creates a new Worker with the given options.
func New(opts ...Option) *Worker {
	w := &Worker{
		codec:         DefaultCodec{},
		retry:         NoRetry{},
		logger:        stdLogger{},
		concurrency:   1,
		topicHandlers: make(map[string]Handler),
		typeHandlers:  make(map[string]Handler),
		allowedTopics: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTopic registers h for every message received on topic. When topics
// were fixed with WithTopics, handlers for other topics are ignored.
func (w *Worker) HandleTopic(topic string, h Handler) {
	if h == nil || topic == "" {
		return
	}
	if len(w.allowedTopics) > 0 {
		if _, ok := w.allowedTopics[topic]; !ok {
			w.logger.Printf("handler topic not subscribed: %s", topic)
			return
		}
	}
	w.topicHandlers[topic] = h
	w.topics = append(w.topics, topic)
}

// HandleType registers h for a Gerrit event type such as "ref-updated".
// Topic handlers take precedence.
func (w *Worker) HandleType(eventType string, h Handler) {
	if h == nil || eventType == "" {
		return
	}
	w.typeHandlers[eventType] = h
}

// Run subscribes to every topic and processes messages until ctx is
// canceled. In-flight handlers are waited for before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	if w.subscriber == nil {
		return errors.New("subscriber is required")
	}
	topics := unique(w.topics)
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}

	w.listeners.start(ctx)
	defer w.listeners.exit(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streams := make(map[string]<-chan *message.Message, len(topics))
	for _, topic := range topics {
		msgs, err := w.subscriber.Subscribe(ctx, topic)
		if err != nil {
			w.listeners.error(ctx, nil, err)
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		streams[topic] = msgs
	}

	var handlers errgroup.Group
	handlers.SetLimit(w.concurrency)

	var consumers errgroup.Group
	for topic, msgs := range streams {
		consumers.Go(func() error {
			w.consume(ctx, topic, msgs, &handlers)
			return nil
		})
	}

	<-ctx.Done()
	_ = consumers.Wait()
	_ = handlers.Wait()
	return nil
}

// Close gracefully shuts down the worker and its subscriber.
func (w *Worker) Close() error {
	if w.subscriber == nil {
		return nil
	}
	return w.subscriber.Close()
}

// consume hands messages of one topic to the handler pool. handlers.Go
// blocks while the pool is full.
func (w *Worker) consume(ctx context.Context, topic string, msgs <-chan *message.Message, handlers *errgroup.Group) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handlers.Go(func() error {
				w.handleMessage(ctx, topic, msg)
				return nil
			})
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, topic string, msg *message.Message) {
	evt, err := w.codec.Decode(topic, msg)
	if err != nil {
		w.logger.Printf("decode failed topic=%s: %v", topic, err)
		w.listeners.error(ctx, nil, err)
		w.settle(ctx, msg, nil, err)
		return
	}

	if reqID := evt.Metadata["request_id"]; reqID != "" {
		w.logger.Printf("request_id=%s topic=%s provider=%s type=%s", reqID, evt.Topic, evt.Provider, evt.Type)
	}
	if evt.RefUpdate != nil {
		w.logger.Printf("topic=%s %s", evt.Topic, evt.RefUpdate)
	}

	w.listeners.messageStart(ctx, evt)

	handler := w.handlerFor(topic, evt.Type)
	if handler == nil {
		w.logger.Printf("no handler for topic=%s type=%s", topic, evt.Type)
		w.listeners.messageFinish(ctx, evt, nil)
		msg.Ack()
		return
	}

	err = w.wrap(handler)(ctx, evt)
	w.listeners.messageFinish(ctx, evt, err)
	if err != nil {
		w.listeners.error(ctx, evt, err)
	}
	w.settle(ctx, msg, evt, err)
}

func (w *Worker) handlerFor(topic, eventType string) Handler {
	if handler := w.topicHandlers[topic]; handler != nil {
		return handler
	}
	return w.typeHandlers[eventType]
}

// settle acks a processed message. Failed messages are nacked for
// redelivery unless the retry policy drops them.
func (w *Worker) settle(ctx context.Context, msg *message.Message, evt *Event, err error) {
	if err == nil {
		msg.Ack()
		return
	}
	decision := w.retry.OnError(ctx, evt, err)
	if decision.Retry || decision.Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (w *Worker) wrap(h Handler) Handler {
	wrapped := h
	for i := len(w.middleware) - 1; i >= 0; i-- {
		wrapped = w.middleware[i](wrapped)
	}
	return wrapped
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
