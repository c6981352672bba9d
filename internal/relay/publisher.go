// Package relay publishes classified train events to their broker topics.
//
// Publishing is a single attempt: a failure is returned to the caller, which
// decides what happens to the originating feed message.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/railflow/internal/events"
	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	idspkg "github.com/drblury/railflow/internal/runtime/ids"
	"github.com/drblury/railflow/internal/runtime/jsoncodec"
	"github.com/drblury/railflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/railflow/internal/runtime/metadata"
	"github.com/drblury/railflow/internal/runtime/metrics"
)

const tracerName = "railflow-relay"

// Result is the outcome of one publish attempt.
type Result struct {
	Topic string
	Event events.Event
	// Err is a *errors.PublishError when the broker rejected the send.
	Err error
}

// OK reports whether the event reached the broker.
func (r Result) OK() bool { return r.Err == nil }

// Option configures a Publisher.
type Option func(*Publisher)

// WithMetrics records publish counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithTracer overrides the tracer, mainly for tests.
func WithTracer(t trace.Tracer) Option {
	return func(p *Publisher) {
		if t != nil {
			p.tracer = t
		}
	}
}

// Publisher owns the broker publisher for the lifetime of the relay. The
// underlying publisher must be safe for concurrent use.
type Publisher struct {
	pub     message.Publisher
	logger  logging.ServiceLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewPublisher(pub message.Publisher, logger logging.ServiceLogger, opts ...Option) (*Publisher, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	p := &Publisher{
		pub:    pub,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewMessage serializes ev into a broker message with a ULID id and the
// provided metadata plus the event kind header. No partition key is set.
func NewMessage(ev events.Event, md metadatapkg.Metadata) (*message.Message, error) {
	if ev == nil {
		return nil, errspkg.ErrEventRequired
	}

	payload, err := jsoncodec.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	msg.Metadata.Set(metadatapkg.KeyEventKind, string(ev.Kind()))
	return msg, nil
}

// Relay publishes ev to the topic bound to its kind.
func (p *Publisher) Relay(ctx context.Context, ev events.Event, md metadatapkg.Metadata) Result {
	if ev == nil {
		return Result{Err: errspkg.ErrEventRequired}
	}
	topic, err := ev.Kind().Topic()
	if err != nil {
		return Result{Event: ev, Err: err}
	}
	return p.Publish(ctx, topic, ev, md)
}

// Publish sends ev to topic once and waits for the broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, topic string, ev events.Event, md metadatapkg.Metadata) Result {
	result := Result{Topic: topic, Event: ev}
	if topic == "" {
		result.Err = errspkg.ErrTopicRequired
		return result
	}

	msg, err := NewMessage(ev, md)
	if err != nil {
		result.Err = err
		return result
	}

	ctx, span := p.tracer.Start(ctx, "relay.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination", topic),
		attribute.String("railflow.train_id", ev.Train()),
		attribute.String("railflow.message_uuid", msg.UUID),
	)
	msg.SetContext(ctx)

	start := time.Now()
	err = p.pub.Publish(topic, msg)
	p.metrics.RecordPublish(topic, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		result.Err = &errspkg.PublishError{Topic: topic, TrainID: ev.Train(), Err: err}
		return result
	}

	p.logger.Debug("Event published", logging.LogFields{
		"topic":        topic,
		"train_id":     ev.Train(),
		"message_uuid": msg.UUID,
	})
	return result
}

// Close releases the broker publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
