// Package broker implements in-process pub/sub fan-out. Channels are
// created lazily, keep a bounded buffer of recent envelopes for late
// joiners, and deliver each publish to every current subscriber in
// subscription order.
package broker

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/devastator99/socratic-gateway/pkg/types"
)

// DefaultRecentCapacity bounds the per-channel backfill buffer.
const DefaultRecentCapacity = 100

// SubscriberFunc receives every envelope published to a subscribed
// channel. It runs on the publisher's goroutine and should only hand the
// envelope off (e.g. enqueue it on a connection's outbound queue).
type SubscriberFunc func(env types.Envelope)

// Subscription identifies one registered callback for later removal.
type Subscription struct {
	channel string
	id      uint64
}

// Channel returns the channel this subscription is attached to.
func (s *Subscription) Channel() string {
	return s.channel
}

type subscriber struct {
	id uint64
	fn SubscriberFunc
}

// channelState serializes publishes per channel: the ring buffer and the
// subscriber list are only touched under the channel's own lock.
type channelState struct {
	mu     sync.Mutex
	subs   []subscriber
	recent *ring[types.Envelope]
}

// Broker maintains channel subscriptions and recent-message buffers.
// Channels are retained for the process lifetime once created; the memory
// cost is one bounded ring per channel.
type Broker struct {
	mu       sync.RWMutex
	channels map[string]*channelState
	nextID   atomic.Uint64
	capacity int
	logger   *slog.Logger
}

// New creates a broker whose channels retain capacity recent envelopes.
func New(capacity int, logger *slog.Logger) *Broker {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		channels: make(map[string]*channelState),
		capacity: capacity,
		logger:   logger,
	}
}

// Publish appends the envelope to the channel's recent buffer, then
// invokes every current subscriber in subscription order. A panicking
// subscriber is logged and skipped; it neither stops delivery to the rest
// nor removes the subscription.
func (b *Broker) Publish(channel string, env types.Envelope) {
	ch := b.channelFor(channel)

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.recent.push(env)
	for _, sub := range ch.subs {
		b.deliver(channel, sub, env)
	}
}

func (b *Broker) deliver(channel string, sub subscriber, env types.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber callback panicked",
				"channel", channel, "subscription", sub.id, "panic", r)
		}
	}()
	sub.fn(env)
}

// Subscribe registers a callback and returns its handle. Events published
// before the call are not replayed; callers needing backfill should read
// Recent first and tolerate the small gap between the two calls.
func (b *Broker) Subscribe(channel string, fn SubscriberFunc) *Subscription {
	ch := b.channelFor(channel)
	id := b.nextID.Add(1)

	ch.mu.Lock()
	ch.subs = append(ch.subs, subscriber{id: id, fn: fn})
	ch.mu.Unlock()

	return &Subscription{channel: channel, id: id}
}

// Unsubscribe removes the callback. Idempotent; after it returns the
// callback is never invoked again, though an in-flight delivery already
// dispatched may still complete.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.RLock()
	ch, ok := b.channels[sub.channel]
	b.mu.RUnlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i, s := range ch.subs {
		if s.id == sub.id {
			ch.subs = append(ch.subs[:i], ch.subs[i+1:]...)
			return
		}
	}
}

// Recent returns up to limit retained envelopes, oldest first.
func (b *Broker) Recent(channel string, limit int) []types.Envelope {
	b.mu.RLock()
	ch, ok := b.channels[channel]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.recent.snapshot(limit)
}

// SubscriberCount reports the number of live subscriptions on a channel.
func (b *Broker) SubscriberCount(channel string) int {
	b.mu.RLock()
	ch, ok := b.channels[channel]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Seed preloads a channel's recent buffer, oldest first. Used to warm
// backfill from the durable store on cold start.
func (b *Broker) Seed(channel string, envs []types.Envelope) {
	ch := b.channelFor(channel)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.recent.len() > 0 {
		return // live traffic already arrived, don't reorder it
	}
	for _, env := range envs {
		ch.recent.push(env)
	}
}

func (b *Broker) channelFor(name string) *channelState {
	b.mu.RLock()
	ch, ok := b.channels[name]
	b.mu.RUnlock()
	if ok {
		return ch
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok = b.channels[name]; ok {
		return ch
	}
	ch = &channelState{recent: newRing[types.Envelope](b.capacity)}
	b.channels[name] = ch
	return ch
}
