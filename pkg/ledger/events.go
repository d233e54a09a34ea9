package ledger

import (
	"context"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// OnJobCreated registers a callback for when a job is recorded.
func (l *Ledger) OnJobCreated(fn func(context.Context, *core.Job)) {
	l.mu.Lock()
	l.onCreated = append(l.onCreated, fn)
	l.mu.Unlock()
}

// OnJobFulfilled registers a callback for when a job is fulfilled.
func (l *Ledger) OnJobFulfilled(fn func(context.Context, *core.Job)) {
	l.mu.Lock()
	l.onFulfilled = append(l.onFulfilled, fn)
	l.mu.Unlock()
}

// OnJobFailed registers a callback for when a job fails. The callback
// receives the failure reason.
func (l *Ledger) OnJobFailed(fn func(context.Context, *core.Job, string)) {
	l.mu.Lock()
	l.onFailed = append(l.onFailed, fn)
	l.mu.Unlock()
}

// OnTransferSettled registers a callback for when escrow leaves the system.
func (l *Ledger) OnTransferSettled(fn func(context.Context, *core.TransferSettled)) {
	l.mu.Lock()
	l.onSettled = append(l.onSettled, fn)
	l.mu.Unlock()
}

// Events returns a channel for receiving live notifications.
// The caller must call Unsubscribe when done to prevent resource leaks.
// Slow subscribers miss events; the outbox keeps the durable record.
func (l *Ledger) Events() <-chan core.Event {
	ch := make(chan core.Event, l.config.EventBuffer)
	l.mu.Lock()
	l.eventSubs = append(l.eventSubs, ch)
	l.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (l *Ledger) Unsubscribe(ch <-chan core.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sub := range l.eventSubs {
		if sub == ch {
			l.eventSubs = append(l.eventSubs[:i], l.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers without blocking.
func (l *Ledger) Emit(e core.Event) {
	l.mu.RLock()
	subs := make([]chan core.Event, len(l.eventSubs))
	copy(subs, l.eventSubs)
	l.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// CallCreatedHooks calls all registered creation hooks.
func (l *Ledger) CallCreatedHooks(ctx context.Context, job *core.Job) {
	l.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(l.onCreated))
	copy(hooks, l.onCreated)
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallFulfilledHooks calls all registered fulfillment hooks.
func (l *Ledger) CallFulfilledHooks(ctx context.Context, job *core.Job) {
	l.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(l.onFulfilled))
	copy(hooks, l.onFulfilled)
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallFailedHooks calls all registered failure hooks.
func (l *Ledger) CallFailedHooks(ctx context.Context, job *core.Job, reason string) {
	l.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, string), len(l.onFailed))
	copy(hooks, l.onFailed)
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, reason)
	}
}

// CallSettledHooks calls all registered settlement hooks.
func (l *Ledger) CallSettledHooks(ctx context.Context, ev *core.TransferSettled) {
	l.mu.RLock()
	hooks := make([]func(context.Context, *core.TransferSettled), len(l.onSettled))
	copy(hooks, l.onSettled)
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, ev)
	}
}
