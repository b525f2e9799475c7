// Package worker runs the event-driven side of a service: one goroutine per
// subscription draining messages, decoding the envelope, and spawning a
// detached goroutine per message so the subscribe loop never blocks on
// downstream work. Handlers carry no concurrency cap; overload mitigation
// is downstream (remote service limits) per the pipeline's design.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/bus"
	"github.com/t-saturn/certificados-gra/internal/metrics"
)

// Handler processes one decoded envelope. It runs on its own goroutine; a
// slow handler delays nothing but itself.
type Handler func(ctx context.Context, subject string, env bus.Envelope)

// Stream yields one message per Next call. Satisfied by *bus.Subscription.
type Stream interface {
	Next(ctx context.Context) (bus.Message, error)
}

// SubscribeFunc opens a stream for a subject filter.
type SubscribeFunc func(subject string) (Stream, error)

type binding struct {
	subject string
	handler Handler
}

// Runtime owns a set of subject→handler bindings and drives them until the
// context is canceled.
type Runtime struct {
	subscribe SubscribeFunc
	logger    *zap.Logger
	bindings  []binding
}

// New returns an empty runtime using subscribe to open streams.
func New(subscribe SubscribeFunc, logger *zap.Logger) *Runtime {
	return &Runtime{subscribe: subscribe, logger: logger}
}

// Handle registers handler for subject (wildcards allowed). Must be called
// before Run.
func (r *Runtime) Handle(subject string, handler Handler) {
	r.bindings = append(r.bindings, binding{subject: subject, handler: handler})
}

// Run subscribes every binding and blocks until ctx is canceled or every
// stream has ended. In-flight handlers are not awaited: process teardown
// bounds them, matching the pipeline's at-least-once delivery contract.
func (r *Runtime) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, b := range r.bindings {
		stream, err := r.subscribe(b.subject)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(b binding, stream Stream) {
			defer wg.Done()
			r.consume(ctx, b, stream)
		}(b, stream)
	}
	wg.Wait()
	return ctx.Err()
}

// consume is the per-subscription loop: next, decode, spawn.
func (r *Runtime) consume(ctx context.Context, b binding, stream Stream) {
	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			r.logger.Error("subscription ended",
				zap.String("subject", b.subject), zap.Error(err))
			return
		}

		var env bus.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			metrics.BusEvents.WithLabelValues(msg.Subject, "dropped").Inc()
			r.logger.Warn("invalid event payload, dropping",
				zap.String("subject", msg.Subject), zap.Error(err))
			continue
		}

		metrics.BusEvents.WithLabelValues(msg.Subject, "handled").Inc()
		r.logger.Debug("event received",
			zap.String("subject", msg.Subject),
			zap.String("event_id", env.EventID),
		)

		go b.handler(ctx, msg.Subject, env)
	}
}
