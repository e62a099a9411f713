package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// DefaultStreamName is the JetStream stream holding bracket events
const DefaultStreamName = "BRACKET_EVENTS"

// NATSPubSub implements pub/sub using NATS JetStream
type NATSPubSub struct {
	fanout
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
}

// NewNATSPubSub creates a new NATS JetStream pub/sub
func NewNATSPubSub(natsURL, subject string) (*NATSPubSub, error) {
	nc, err := nats.Connect(natsURL, nats.Name("picknroll"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(DefaultStreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     DefaultStreamName,
			Subjects: []string{subject},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	p := &NATSPubSub{
		fanout:  fanout{buffer: 100, name: "NATS"},
		nc:      nc,
		js:      js,
		subject: subject,
	}

	if p.sub, err = consume(js, subject, &p.fanout); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("Connected to NATS JetStream", "url", natsURL, "subject", subject)
	return p, nil
}

// consume forwards new messages on subject to the fanout's subscribers
func consume(js nats.JetStreamContext, subject string, f *fanout) (*nats.Subscription, error) {
	sub, err := js.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Error("Failed to unmarshal event from JetStream", "error", err)
			msg.Nak()
			return
		}
		f.deliver(event)
		msg.Ack()
	}, nats.ManualAck(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

func publish(js nats.JetStreamContext, subject string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Publish publishes an event to NATS JetStream. Local subscribers receive
// it back through the JetStream subscription.
func (p *NATSPubSub) Publish(event Event) {
	if err := publish(p.js, p.subject, event); err != nil {
		logger.Error("Failed to publish to NATS", "error", err, "type", event.Type)
	}
}

// Subscribe creates a subscription channel for events
func (p *NATSPubSub) Subscribe() chan Event {
	return p.add("")
}

// Unsubscribe removes a subscription channel
func (p *NATSPubSub) Unsubscribe(ch chan Event) {
	p.remove(ch)
}

// SubscribeJetStream joins the durable queue consumer named consumerName.
// Every instance using the same name shares one consumer, so each event
// reaches exactly one handler across the deployment.
func (p *NATSPubSub) SubscribeJetStream(consumerName string, handler func(Event)) error {
	_, err := p.js.QueueSubscribe(p.subject, consumerName, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Error("Failed to unmarshal event", "error", err, "consumer", consumerName)
			msg.Term()
			return
		}

		handler(event)
		msg.Ack()
	}, nats.Durable(consumerName), nats.DeliverNew(), nats.ManualAck())

	if err == nil {
		logger.Info("NATS: Joined durable consumer", "consumer", consumerName, "subject", p.subject)
	}
	return err
}

// Close closes the NATS connection
func (p *NATSPubSub) Close() {
	if p.sub != nil {
		p.sub.Unsubscribe()
	}
	p.closeAll()
	if p.nc != nil {
		p.nc.Close()
	}
}
