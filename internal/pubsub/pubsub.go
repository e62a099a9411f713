package pubsub

import (
	"sync"

	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// Event types
const (
	EventResultsRecorded    = "results:recorded"
	EventResultsCleared     = "results:cleared"
	EventScoresRecalculated = "scores:recalculated"
)

// Event represents a pubsub event. An empty PoolID means the event
// concerns every pool, as game results do.
type Event struct {
	Type    string                 `json:"type"`
	PoolID  string                 `json:"poolId,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Matches reports whether a subscriber filtered on poolID should see the event
func (e Event) Matches(poolID string) bool {
	return poolID == "" || e.PoolID == "" || e.PoolID == poolID
}

// Publisher is anything events can be sent to
type Publisher interface {
	Publish(Event)
}

// Upstream is an interface for upstream publishers (e.g., NATS)
type Upstream interface {
	Publisher
	Subscribe() chan Event
	Unsubscribe(chan Event)
}

type subscriber struct {
	ch     chan Event
	poolID string
	types  map[string]bool
}

// wants reports whether the subscriber listens for events of type t.
// A subscriber with no type filter hears everything.
func (s subscriber) wants(t string) bool {
	return len(s.types) == 0 || s.types[t]
}

// fanout delivers events to buffered subscriber channels without blocking
type fanout struct {
	mu          sync.RWMutex
	subscribers []subscriber
	buffer      int
	name        string
}

func (f *fanout) add(poolID string, types ...string) chan Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := subscriber{ch: make(chan Event, f.buffer), poolID: poolID}
	if len(types) > 0 {
		sub.types = make(map[string]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	ch := sub.ch
	f.subscribers = append(f.subscribers, sub)
	logger.Debug(f.name+": New subscriber added", "totalSubscribers", len(f.subscribers), "poolId", poolID)
	return ch
}

// remove closes ch if it belongs to this fanout
func (f *fanout) remove(ch chan Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, sub := range f.subscribers {
		if sub.ch == ch {
			close(ch)
			f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
			logger.Debug(f.name+": Subscriber removed", "remainingSubscribers", len(f.subscribers))
			return true
		}
	}
	return false
}

// deliver holds the read lock while sending so a concurrent remove cannot
// close a channel mid-send. Sends never block.
func (f *fanout) deliver(event Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers {
		if !event.Matches(sub.poolID) || !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logger.Warn(f.name+": Skipping slow subscriber", "type", event.Type)
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subscribers {
		close(sub.ch)
	}
	f.subscribers = nil
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// PubSub implements a simple publish-subscribe system
type PubSub struct {
	fanout
	upstream Upstream // Optional upstream publisher (e.g., NATS)
}

// New creates a new PubSub instance
func New() *PubSub {
	return &PubSub{fanout: fanout{buffer: 10, name: "PubSub"}}
}

// NewWithUpstream creates a PubSub that bridges to an upstream publisher (e.g., NATS)
// When Publish is called, events are sent to the upstream, which broadcasts to all instances.
// Events from the upstream are forwarded to local subscribers.
func NewWithUpstream(upstream Upstream) *PubSub {
	ps := New()
	ps.upstream = upstream

	ch := upstream.Subscribe()
	go func() {
		for event := range ch {
			logger.Debug("PubSub: Received event from upstream, forwarding to local", "type", event.Type)
			ps.deliver(event)
		}
		logger.Debug("PubSub: Upstream channel closed")
	}()

	return ps
}

// Subscribe returns a channel receiving every event
func (ps *PubSub) Subscribe() chan Event {
	return ps.add("")
}

// SubscribePool returns a channel receiving events for poolID plus
// events that are not tied to any pool
func (ps *PubSub) SubscribePool(poolID string) chan Event {
	return ps.add(poolID)
}

// SubscribeTypes returns a channel receiving only events of the given types
func (ps *PubSub) SubscribeTypes(types ...string) chan Event {
	return ps.add("", types...)
}

// Unsubscribe removes a subscriber
func (ps *PubSub) Unsubscribe(ch chan Event) {
	ps.remove(ch)
}

// SubscriberCount returns the number of active local subscribers
func (ps *PubSub) SubscriberCount() int {
	return ps.count()
}

// Publish sends an event to all subscribers
// If an upstream is configured, the event is published to the upstream,
// which will broadcast it back to all instances (including this one)
func (ps *PubSub) Publish(event Event) {
	if ps.upstream != nil {
		logger.Debug("PubSub: Forwarding to upstream", "type", event.Type, "poolId", event.PoolID)
		ps.upstream.Publish(event)
		return
	}
	logger.Debug("PubSub: Publishing locally", "type", event.Type, "poolId", event.PoolID)
	ps.deliver(event)
}
