package worker

import "context"

// Listener hooks into the worker lifecycle. Any field may be nil.
type Listener struct {
	OnStart         func(ctx context.Context)
	OnExit          func(ctx context.Context)
	OnMessageStart  func(ctx context.Context, evt *Event)
	OnMessageFinish func(ctx context.Context, evt *Event, err error)
	// OnError receives decode failures with a nil evt.
	OnError func(ctx context.Context, evt *Event, err error)
}

type listeners []Listener

func (ls listeners) start(ctx context.Context) {
	for _, l := range ls {
		if l.OnStart != nil {
			l.OnStart(ctx)
		}
	}
}

func (ls listeners) exit(ctx context.Context) {
	for _, l := range ls {
		if l.OnExit != nil {
			l.OnExit(ctx)
		}
	}
}

func (ls listeners) messageStart(ctx context.Context, evt *Event) {
	for _, l := range ls {
		if l.OnMessageStart != nil {
			l.OnMessageStart(ctx, evt)
		}
	}
}

func (ls listeners) messageFinish(ctx context.Context, evt *Event, err error) {
	for _, l := range ls {
		if l.OnMessageFinish != nil {
			l.OnMessageFinish(ctx, evt, err)
		}
	}
}

func (ls listeners) error(ctx context.Context, evt *Event, err error) {
	for _, l := range ls {
		if l.OnError != nil {
			l.OnError(ctx, evt, err)
		}
	}
}
