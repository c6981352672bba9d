// Package pipeline drains feed messages: classify, relay every derived event,
// then acknowledge the feed message exactly once.
//
// Nothing a single message contains can stall the stream. Unreadable and
// malformed payloads are logged and acknowledged, and failed publishes are
// logged without blocking their siblings or the acknowledgement.
package pipeline

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/railflow/internal/classifier"
	"github.com/drblury/railflow/internal/events"
	"github.com/drblury/railflow/internal/feed"
	"github.com/drblury/railflow/internal/relay"
	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	idspkg "github.com/drblury/railflow/internal/runtime/ids"
	"github.com/drblury/railflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/railflow/internal/runtime/metadata"
	"github.com/drblury/railflow/internal/runtime/metrics"
)

// DefaultConcurrency bounds in-flight publishes for one feed message.
const DefaultConcurrency = 8

// Classifier turns a payload into a batch of events.
type Classifier interface {
	Classify(payload []byte) (classifier.Batch, error)
}

// Relayer publishes one event to its topic.
type Relayer interface {
	Relay(ctx context.Context, ev events.Event, md metadatapkg.Metadata) relay.Result
}

// Outcome summarizes how one feed message was handled.
type Outcome struct {
	Published   int
	Failed      int
	Ignored     int
	ParseErrors int
	// Acked is false only when the message was abandoned because of
	// shutdown, or when the acknowledgement itself failed.
	Acked bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency bounds the number of concurrent publishes per message.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline handles feed messages one at a time.
type Pipeline struct {
	classifier  Classifier
	relay       Relayer
	logger      logging.ServiceLogger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	concurrency int
}

func New(c Classifier, r Relayer, logger logging.ServiceLogger, opts ...Option) (*Pipeline, error) {
	if c == nil {
		return nil, errspkg.ErrClassifierRequired
	}
	if r == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	p := &Pipeline{
		classifier:  c,
		relay:       r,
		logger:      logger,
		tracer:      otel.Tracer("railflow-pipeline"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Handle satisfies feed.Handler.
func (p *Pipeline) Handle(ctx context.Context, msg *feed.Message) {
	p.Process(ctx, msg)
}

// Process runs one message through the pipeline and reports what happened.
func (p *Pipeline) Process(ctx context.Context, msg *feed.Message) Outcome {
	var outcome Outcome
	if msg == nil {
		return outcome
	}

	correlationID := idspkg.CreateULID()
	log := p.logger.With(logging.LogFields{
		"feed_message_id": msg.ID,
		"correlation_id":  correlationID,
	})

	if ctx.Err() != nil {
		p.abandon(log, "Shutdown in progress, leaving feed message for redelivery")
		return outcome
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("railflow.feed_message_id", msg.ID))

	switch {
	case len(msg.Body) == 0:
		log.Debug("Empty feed message dropped", nil)
		outcome.Acked = p.ack(log, msg)
		return outcome
	case !utf8.Valid(msg.Body):
		log.Error("Feed message dropped", errspkg.ErrInvalidPayload, logging.LogFields{"bytes": len(msg.Body)})
		outcome.Acked = p.ack(log, msg)
		return outcome
	}

	batch, err := p.classifier.Classify(msg.Body)
	if err != nil {
		p.metrics.RecordClassification(0, 0, 0, 1)
		log.Error("Feed message dropped", err, logging.LogFields{"bytes": len(msg.Body)})
		outcome.ParseErrors = 1
		outcome.Acked = p.ack(log, msg)
		return outcome
	}

	activations, cancellations := batch.Counts()
	p.metrics.RecordClassification(activations, cancellations, batch.Ignored, len(batch.Errors))
	for _, envErr := range batch.Errors {
		log.Error("Feed envelope dropped", envErr, nil)
	}
	outcome.Ignored = batch.Ignored
	outcome.ParseErrors = len(batch.Errors)
	span.SetAttributes(
		attribute.Int("railflow.events", len(batch.Events)),
		attribute.Int("railflow.ignored", batch.Ignored),
	)

	md := metadatapkg.New(
		metadatapkg.KeyFeedMessageID, msg.ID,
		metadatapkg.KeyCorrelationID, correlationID,
	)
	results := p.publishAll(ctx, batch.Events, md)
	for _, r := range results {
		if r.OK() {
			outcome.Published++
			continue
		}
		outcome.Failed++
		fields := logging.LogFields{"topic": r.Topic}
		if r.Event != nil {
			fields["train_id"] = r.Event.Train()
		}
		log.Error("Event publish failed", r.Err, fields)
	}

	if outcome.Failed > 0 && ctx.Err() != nil {
		p.abandon(log, "Shutdown interrupted publishing, leaving feed message for redelivery")
		return outcome
	}

	outcome.Acked = p.ack(log, msg)
	if len(batch.Events) > 0 {
		log.Debug("Feed message relayed", logging.LogFields{
			"published": outcome.Published,
			"failed":    outcome.Failed,
			"ignored":   outcome.Ignored,
		})
	}
	return outcome
}

// publishAll attempts every event, at most p.concurrency at a time, and
// returns once all attempts have finished. Result order matches evs.
func (p *Pipeline) publishAll(ctx context.Context, evs []events.Event, md metadatapkg.Metadata) []relay.Result {
	results := make([]relay.Result, len(evs))
	if len(evs) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, ev := range evs {
		g.Go(func() error {
			results[i] = p.relay.Relay(ctx, ev, md)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) ack(log logging.ServiceLogger, msg *feed.Message) bool {
	if err := msg.Ack(); err != nil {
		log.Error("Feed acknowledgement failed", err, nil)
		return false
	}
	return true
}

func (p *Pipeline) abandon(log logging.ServiceLogger, reason string) {
	p.metrics.IncAbandoned()
	log.Info(reason, nil)
}
