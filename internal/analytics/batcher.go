// Package analytics batches interaction events and ships them to the
// analytics endpoint. Bursts are coalesced into one request, but no burst
// holds events back for longer than the batching window.
package analytics

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultWindow is the batching window.
const DefaultWindow = 2000 * time.Millisecond

// InteractionEvent is one user interaction.
type InteractionEvent struct {
	EventType            string         `json:"eventType" mapstructure:"eventType" validate:"required"`
	Screen               string         `json:"screen" mapstructure:"screen"`
	Target               string         `json:"target" mapstructure:"target"`
	Action               string         `json:"action" mapstructure:"action"`
	AdditionalProperties map[string]any `json:"additionalProperties,omitempty" mapstructure:"additionalProperties"`
}

// Sender delivers a batch.
type Sender interface {
	Send(ctx context.Context, batch []InteractionEvent) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, batch []InteractionEvent) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, batch []InteractionEvent) error {
	return f(ctx, batch)
}

// Batcher queues events and flushes them in batches. It is safe for
// concurrent use.
type Batcher struct {
	sender Sender
	clock  Clock
	window time.Duration

	mu        sync.Mutex
	queue     []InteractionEvent
	lastFlush time.Time
	timer     Timer
	gen       uint64
	closed    bool

	inflight sync.WaitGroup
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithClock sets the clock. Tests use a ManualClock.
func WithClock(c Clock) Option {
	return func(b *Batcher) { b.clock = c }
}

// WithWindow sets the batching window.
func WithWindow(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.window = d
		}
	}
}

// NewBatcher creates a batcher delivering through sender. The window starts
// at construction, so events recorded right after start are batched too.
func NewBatcher(sender Sender, opts ...Option) *Batcher {
	b := &Batcher{
		sender: sender,
		clock:  RealClock(),
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastFlush = b.clock.Now()
	return b
}

// Record queues ev. If the last flush is older than the window the queue is
// flushed right away; otherwise a flush is (re)scheduled for the end of the
// window.
func (b *Batcher) Record(ev InteractionEvent) {
	ev.AdditionalProperties = maps.Clone(ev.AdditionalProperties)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		log.Debug().Str("event_type", ev.EventType).Msg("analytics batcher closed, dropping event")
		return
	}
	b.queue = append(b.queue, ev)
	b.stopTimerLocked()

	elapsed := b.clock.Now().Sub(b.lastFlush)
	if elapsed > b.window {
		b.dispatchLocked(b.drainLocked())
		b.mu.Unlock()
		return
	}

	b.gen++
	gen := b.gen
	b.timer = b.clock.AfterFunc(b.window-elapsed, func() { b.onTimer(gen) })
	b.mu.Unlock()
}

func (b *Batcher) onTimer(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.timer == nil {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.dispatchLocked(b.drainLocked())
	b.mu.Unlock()
}

// Flush sends everything queued and waits for that send. Events recorded
// meanwhile start a new batch.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	b.stopTimerLocked()
	batch := b.drainLocked()
	b.mu.Unlock()
	return b.send(ctx, batch)
}

// OnVisibilityChange flushes in the background when the host is hidden.
func (b *Batcher) OnVisibilityChange(hidden bool) {
	if !hidden {
		return
	}
	b.mu.Lock()
	b.stopTimerLocked()
	b.dispatchLocked(b.drainLocked())
	b.mu.Unlock()
}

// Pending returns the number of queued events.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Wait blocks until every background send has finished.
func (b *Batcher) Wait() {
	b.inflight.Wait()
}

// Close flushes the queue, waits for background sends, and drops events
// recorded afterwards.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	err := b.Flush(ctx)

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// drainLocked takes the queue and marks the flush time.
func (b *Batcher) drainLocked() []InteractionEvent {
	b.lastFlush = b.clock.Now()
	batch := b.queue
	b.queue = nil
	return batch
}

// dispatchLocked sends batch in the background. The send is registered
// while the lock is held so Wait and Close cannot miss it.
func (b *Batcher) dispatchLocked(batch []InteractionEvent) {
	if len(batch) == 0 {
		return
	}
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.send(context.Background(), batch)
	}()
}

// send delivers batch once. A failed batch is logged and dropped; retrying
// could deliver it twice.
func (b *Batcher) send(ctx context.Context, batch []InteractionEvent) error {
	if len(batch) == 0 {
		return nil
	}
	if err := b.sender.Send(ctx, batch); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int("batch_size", len(batch)).Msg("analytics flush failed")
		return err
	}
	log.Ctx(ctx).Debug().Int("batch_size", len(batch)).Msg("analytics flushed")
	return nil
}
