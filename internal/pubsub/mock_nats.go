package pubsub

import (
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// MockNATSPubSub stands in for NATS in local development
type MockNATSPubSub struct {
	fanout
	subject string
}

// NewMockNATSPubSub creates a new mock NATS JetStream pub/sub for local development
func NewMockNATSPubSub(subject string) *MockNATSPubSub {
	logger.Info("Using mock NATS pub/sub for local development", "subject", subject)

	return &MockNATSPubSub{
		fanout:  fanout{buffer: 100, name: "Mock NATS"},
		subject: subject,
	}
}

// Publish delivers the event to subscribers
func (p *MockNATSPubSub) Publish(event Event) {
	p.deliver(event)
	logger.Debug("Mock NATS: Published event", "type", event.Type, "poolId", event.PoolID)
}

// Subscribe creates a subscription channel for events
func (p *MockNATSPubSub) Subscribe() chan Event {
	return p.add("")
}

// Unsubscribe removes a subscription channel
func (p *MockNATSPubSub) Unsubscribe(ch chan Event) {
	p.remove(ch)
}

// SubscriberCount returns the number of active subscribers
func (p *MockNATSPubSub) SubscriberCount() int {
	return p.count()
}

// Close closes all subscriptions
func (p *MockNATSPubSub) Close() {
	logger.Info("Mock NATS: Closing all subscriptions", "active", p.count())
	p.closeAll()
}
