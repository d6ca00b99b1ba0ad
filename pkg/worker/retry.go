package worker

import "context"

// RetryDecision tells the worker how to settle a failed message. Either
// field set nacks the message so the broker redelivers it; neither acks it.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy decides what happens to a message whose decode or handler
// failed. evt is nil for decode failures.
type RetryPolicy interface {
	OnError(ctx context.Context, evt *Event, err error) RetryDecision
}

// RetryFunc adapts a function to RetryPolicy.
type RetryFunc func(ctx context.Context, evt *Event, err error) RetryDecision

func (f RetryFunc) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return f(ctx, evt, err)
}

// NoRetry nacks every failed message and leaves redelivery to the broker.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{Nack: true}
}

// DropUndecodable acks messages that cannot be decoded, since redelivery
// cannot fix them, and nacks handler failures.
type DropUndecodable struct{}

func (DropUndecodable) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	if evt == nil {
		return RetryDecision{}
	}
	return RetryDecision{Nack: true}
}
