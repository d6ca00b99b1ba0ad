package worker

import "github.com/ThreeDotsLabs/watermill/message"

// Option configures a Worker in New.
type Option func(*Worker)

// WithSubscriber sets the message source. See BuildSubscriber.
func WithSubscriber(sub message.Subscriber) Option {
	return func(w *Worker) { w.subscriber = sub }
}

// WithTopics fixes the topics to consume. Once set, HandleTopic only
// accepts these topics. Empty names are ignored.
func WithTopics(topics ...string) Option {
	return func(w *Worker) {
		for _, topic := range topics {
			if topic != "" {
				w.topics = append(w.topics, topic)
				w.allowedTopics[topic] = struct{}{}
			}
		}
	}
}

// WithConcurrency bounds how many messages are handled at once. Values
// below one keep the default of one.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithCodec(c Codec) Option {
	return func(w *Worker) {
		if c != nil {
			w.codec = c
		}
	}
}

// WithMiddleware appends mw to the handler chain. The first middleware is
// the outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(w *Worker) { w.middleware = append(w.middleware, mw...) }
}

// WithRetry decides what happens to messages whose handler failed. The
// default is NoRetry.
func WithRetry(policy RetryPolicy) Option {
	return func(w *Worker) {
		if policy != nil {
			w.retry = policy
		}
	}
}

func WithLogger(l Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithListener observes the worker lifecycle and every handled message.
func WithListener(listener Listener) Option {
	return func(w *Worker) { w.listeners = append(w.listeners, listener) }
}

// WithRefUpdateHandler is HandleRefUpdated as an option.
func WithRefUpdateHandler(h RefUpdateHandler) Option {
	return func(w *Worker) { w.HandleRefUpdated(h) }
}
