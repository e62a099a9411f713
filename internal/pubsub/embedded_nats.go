package pubsub

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// EmbeddedNATSPubSub runs a NATS server with JetStream in-process for
// development and tests
type EmbeddedNATSPubSub struct {
	fanout
	server  *server.Server
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
}

// EmbeddedNATSOptions configures the embedded NATS server
type EmbeddedNATSOptions struct {
	Port       int // 0 or -1 picks a random free port
	Subject    string
	StreamName string
	StoreDir   string // empty keeps JetStream in memory
	MaxAge     time.Duration
}

// DefaultEmbeddedNATSOptions returns sensible defaults for development
func DefaultEmbeddedNATSOptions() EmbeddedNATSOptions {
	return EmbeddedNATSOptions{
		Port:       -1,
		Subject:    "picknroll.events",
		StreamName: DefaultStreamName,
		MaxAge:     time.Hour,
	}
}

// NewEmbeddedNATSPubSub creates a new embedded NATS server and pub/sub
func NewEmbeddedNATSPubSub(opts EmbeddedNATSOptions) (*EmbeddedNATSPubSub, error) {
	port := opts.Port
	if port == 0 {
		port = -1 // 0 would mean 4222
	}

	serverOpts := &server.Options{
		Port:      port,
		JetStream: true,
		NoSigs:    true,
		StoreDir:  opts.StoreDir,
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	ns.SetLogger(&natsLogger{}, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
	}

	clientURL := ns.ClientURL()
	logger.Info("Embedded NATS server started", "url", clientURL)

	nc, err := nats.Connect(clientURL)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamName := opts.StreamName
	if streamName == "" {
		streamName = DefaultStreamName
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{opts.Subject},
		Storage:  nats.MemoryStorage,
		MaxAge:   opts.MaxAge,
	})
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("failed to create JetStream stream: %w", err)
	}

	logger.Info("JetStream stream created", "stream", streamName, "subject", opts.Subject)

	p := &EmbeddedNATSPubSub{
		fanout:  fanout{buffer: 100, name: "Embedded NATS"},
		server:  ns,
		nc:      nc,
		js:      js,
		subject: opts.Subject,
	}

	if p.sub, err = consume(js, opts.Subject, &p.fanout); err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, err
	}

	return p, nil
}

// Publish publishes an event to the embedded NATS JetStream
func (p *EmbeddedNATSPubSub) Publish(event Event) {
	if err := publish(p.js, p.subject, event); err != nil {
		logger.Error("Failed to publish to embedded NATS", "error", err, "type", event.Type)
		return
	}
	logger.Debug("Published event to embedded NATS", "type", event.Type, "subject", p.subject)
}

// Subscribe creates a subscription channel for events
func (p *EmbeddedNATSPubSub) Subscribe() chan Event {
	return p.add("")
}

// Unsubscribe removes a subscription channel
func (p *EmbeddedNATSPubSub) Unsubscribe(ch chan Event) {
	p.remove(ch)
}

// Close shuts down the embedded NATS server
func (p *EmbeddedNATSPubSub) Close() {
	logger.Info("Shutting down embedded NATS server")

	if p.sub != nil {
		p.sub.Unsubscribe()
	}
	p.closeAll()

	if p.nc != nil {
		p.nc.Close()
	}
	if p.server != nil {
		p.server.Shutdown()
		p.server.WaitForShutdown()
	}
}

// ServerURL returns the client URL of the embedded server
func (p *EmbeddedNATSPubSub) ServerURL() string {
	return p.server.ClientURL()
}

// SubscriberCount returns the number of active local subscribers
func (p *EmbeddedNATSPubSub) SubscriberCount() int {
	return p.count()
}

// natsLogger adapts our logger to the NATS server logger interface
type natsLogger struct{}

func (l *natsLogger) Noticef(format string, v ...interface{}) {
	logger.Info(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Warnf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Fatalf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Errorf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Debugf(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Tracef(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS TRACE] "+format, v...))
}
