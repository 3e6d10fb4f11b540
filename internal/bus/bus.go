// Package bus wraps a NATS connection as the Hub's subject-addressed
// message fabric (spec.md §2's "Message Bus"). It is grounded on the raw
// nats-io/nats.go dependency the retrieval pack's C360Studio-semspec repo
// pulls in for its own JetStream-backed processors — this package talks to
// NATS directly rather than through semspec's internal framework, since that
// framework is proprietary to semspec and not part of the reusable stack.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Message is a single delivered bus message. Subject is the concrete
// subject the message was published on (not the subscription pattern).
type Message struct {
	Subject string
	Data    []byte
}

// Bus is a thin, reconnecting wrapper around a *nats.Conn. All publish and
// subscribe calls are safe for concurrent use, inherited directly from the
// underlying NATS client.
type Bus struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials the NATS server at url. Reconnection is handled
// transparently by the client with an unbounded retry count, matching
// NATS's recommended long-running-service configuration.
func Connect(url string, logger *zap.Logger) (*Bus, error) {
	log := logger.Named("bus")

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from message bus", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("reconnected to message bus")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}

	return &Bus{conn: conn, logger: log}, nil
}

// Publish sends payload on subject. Subjects follow NATS dotted-token
// addressing; publishing never blocks on a subscriber being present.
func (b *Bus) Publish(subject string, payload []byte) error {
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a core NATS subscription (not durable: messages
// published while it is not registered are not replayed) on pattern (which
// may use NATS's "*" single-token and ">" tail wildcards) and delivers
// messages to ch until ctx is cancelled or Unsubscribe is called on the
// returned handle.
func (b *Bus) Subscribe(ctx context.Context, pattern string, ch chan<- Message) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(pattern, func(msg *nats.Msg) {
		select {
		case ch <- Message{Subject: msg.Subject, Data: msg.Data}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", pattern, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return sub, nil
}

// Ping verifies the connection is up. Nothing in the Hub calls it; there is
// no health endpoint.
func (b *Bus) Ping() error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("bus: not connected, status=%s", b.conn.Status())
	}
	return nil
}

// Close drains and closes the underlying NATS connection.
func (b *Bus) Close() {
	_ = b.conn.Drain()
}
