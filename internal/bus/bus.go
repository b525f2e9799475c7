// Package bus adapts NATS core pub/sub for the file pipeline. Publishing is
// send-and-forget (no broker-side ack); subscriptions yield one message per
// Next call and support NATS wildcards (`*` for a single segment, `>` for
// all trailing segments). Payload encoding is the caller's concern; this
// package only moves envelopes as opaque bytes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Connect opens a named NATS connection. The name shows up in server
// monitoring and makes it obvious which service owns the connection.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	return nc, nil
}

// Message is a single delivery from a subscription.
type Message struct {
	Subject string
	Data    []byte
}

// Publisher publishes enveloped events on behalf of one service.
type Publisher struct {
	nc     *nats.Conn
	source string
	logger *zap.Logger
}

// NewPublisher returns a publisher whose envelopes carry the given source.
func NewPublisher(nc *nats.Conn, source string, logger *zap.Logger) *Publisher {
	return &Publisher{nc: nc, source: source, logger: logger}
}

// Publish wraps payload in an envelope (event_type = subject) and publishes
// it. The send is fire-and-forget: an error means the client could not hand
// the message to the transport, not that no consumer saw it.
func (p *Publisher) Publish(subject string, payload any) error {
	env, err := NewEnvelope(subject, p.source, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	p.logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("event_id", env.EventID),
	)
	return nil
}

// Subscriber creates subscriptions on a shared connection.
type Subscriber struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewSubscriber returns a subscriber over nc.
func NewSubscriber(nc *nats.Conn, logger *zap.Logger) *Subscriber {
	return &Subscriber{nc: nc, logger: logger}
}

// Subscribe opens a synchronous subscription on subject. The caller drains
// it with Next; backpressure is bounded by the client's pending limits.
func (s *Subscriber) Subscribe(subject string) (*Subscription, error) {
	sub, err := s.nc.SubscribeSync(subject)
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}
	s.logger.Info("subscribed", zap.String("subject", subject))
	return &Subscription{sub: sub}, nil
}

// Subscription is a stream of messages for one subject filter.
type Subscription struct {
	sub *nats.Subscription
}

// Next blocks until a message arrives, the context is canceled, or the
// subscription becomes invalid.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("bus: next message: %w", err)
	}
	return Message{Subject: msg.Subject, Data: msg.Data}, nil
}

// Unsubscribe removes interest in the subject.
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("bus: unsubscribe: %w", err)
	}
	return nil
}
