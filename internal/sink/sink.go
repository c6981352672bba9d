// Package sink consumes relayed events and writes them to the relational
// store. Delivery is at least once: every message is committed after one
// persistence attempt, whether or not the row was written.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/railflow/internal/events"
	"github.com/drblury/railflow/internal/runtime"
	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/internal/runtime/jsoncodec"
	"github.com/drblury/railflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/railflow/internal/runtime/metadata"
	"github.com/drblury/railflow/internal/runtime/metrics"
	"github.com/drblury/railflow/internal/store"
)

// Store is the write side of the relational store.
type Store interface {
	InsertActiveTrain(ctx context.Context, trainID, stanox string, ts time.Time) error
	InsertCancelledTrain(ctx context.Context, trainID, stanox, reasonCode string, ts time.Time) error
}

type Option func(*Sink)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// Sink maps each topic to its table.
type Sink struct {
	store   Store
	logger  logging.ServiceLogger
	metrics *metrics.Metrics
}

func New(st Store, logger logging.ServiceLogger, opts ...Option) (*Sink, error) {
	if st == nil {
		return nil, errspkg.ErrStoreRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	s := &Sink{store: st, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register adds one handler per event topic to svc.
func (s *Sink) Register(svc *runtime.Service) error {
	for _, topic := range []string{events.TopicActivation, events.TopicCancellation} {
		handler, err := s.Handler(topic)
		if err != nil {
			return err
		}
		err = runtime.RegisterMessageHandler(svc, runtime.MessageHandlerRegistration{
			Name:         topic + "-sink",
			ConsumeQueue: topic,
			Handler:      handler,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the handler for one topic. It never returns an error, so
// the broker commits every message.
func (s *Sink) Handler(topic string) (message.NoPublishHandlerFunc, error) {
	kind, err := events.KindForTopic(topic)
	if err != nil {
		return nil, err
	}
	return func(msg *message.Message) error {
		log := s.logger.With(logging.LogFields{
			"topic":          topic,
			"message_uuid":   msg.UUID,
			"correlation_id": msg.Metadata.Get(metadatapkg.KeyCorrelationID),
		})
		table, fields, err := s.persist(msg.Context(), kind, msg.Payload)
		if table != "" {
			s.metrics.RecordSinkWrite(table, err)
		}
		if err != nil {
			log.Error("Event not persisted", err, fields)
			return nil
		}
		log.Debug("Event persisted", fields)
		return nil
	}, nil
}

func (s *Sink) persist(ctx context.Context, kind events.Kind, payload []byte) (string, logging.LogFields, error) {
	if len(payload) == 0 {
		return "", nil, errspkg.ErrEmptyPayload
	}

	switch kind {
	case events.KindActivation:
		var ev events.Activation
		if err := jsoncodec.Unmarshal(payload, &ev); err != nil {
			return "", nil, fmt.Errorf("decode activation: %w", err)
		}
		fields := logging.LogFields{"train_id": ev.TrainID}
		ts, err := parseTimestamp(ev.Timestamp)
		if err != nil {
			return "", fields, err
		}
		return store.TableActiveTrains, fields, s.store.InsertActiveTrain(ctx, ev.TrainID, ev.Stanox, ts)
	case events.KindCancellation:
		var ev events.Cancellation
		if err := jsoncodec.Unmarshal(payload, &ev); err != nil {
			return "", nil, fmt.Errorf("decode cancellation: %w", err)
		}
		fields := logging.LogFields{"train_id": ev.TrainID}
		ts, err := parseTimestamp(ev.Timestamp)
		if err != nil {
			return "", fields, err
		}
		return store.TableCancelledTrains, fields, s.store.InsertCancelledTrain(ctx, ev.TrainID, ev.Stanox, ev.ReasonCode, ts)
	default:
		return "", nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownEventKind, string(kind))
	}
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
	}
	return ts, nil
}
