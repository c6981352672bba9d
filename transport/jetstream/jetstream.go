// Package jetstream provides a NATS JetStream transport. Unlike NATS Core it
// keeps events in a stream, so a sink that was down catches up on restart.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	DefaultStreamName = "RAILFLOW"
	DefaultMaxDeliver = 5
	DefaultAckWait    = 30 * time.Second
	DefaultMaxAge     = 7 * 24 * time.Hour

	// HeaderUUID carries the watermill message UUID across the broker.
	HeaderUUID = "railflow_uuid"

	fetchBatch = 10
	fetchWait  = time.Second
)

func init() {
	Register()
}

// Register registers the JetStream transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.JetStreamCapabilities)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.JetStreamCapabilities
}

// Build connects to NATS and makes sure the stream exists. One connection
// serves both halves.
func Build(ctx context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{
		URL:           cfg.GetNATSURL(),
		ConsumerGroup: cfg.GetKafkaConsumerGroup(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	var out transport.Transport
	if role.Publishes() {
		out.Publisher = t
	}
	if role.Subscribes() {
		out.Subscriber = t
	}
	return out, nil
}

// Config holds JetStream-specific settings.
type Config struct {
	URL string

	// StreamName defaults to DefaultStreamName. Every topic maps to the
	// subject "<StreamName>.<topic>".
	StreamName string

	// ConsumerGroup prefixes the durable consumer names, so sink instances
	// in the same group share a consumer per topic.
	ConsumerGroup string

	MaxDeliver int
	AckWait    time.Duration
	MaxAge     time.Duration
	Replicas   int
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "railflow"
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

func (c Config) subject(topic string) string {
	return c.StreamName + "." + topic
}

func (c Config) durable(topic string) string {
	return c.ConsumerGroup + "_" + topic
}

// Transport implements message.Publisher and message.Subscriber.
type Transport struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	subMu         sync.Mutex
	subscriptions []*nats.Subscription

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// New connects to cfg.URL. A failed connection is reported as a
// ConnectionError.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("railflow"))
	if err != nil {
		return nil, &errspkg.ConnectionError{Endpoint: cfg.URL, Err: err}
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	t := &Transport{
		nc:      nc,
		js:      js,
		config:  cfg,
		logger:  logger,
		closing: make(chan struct{}),
	}
	if err := t.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transport) ensureStream() error {
	streamCfg := &nats.StreamConfig{
		Name:      t.config.StreamName,
		Subjects:  []string{t.config.StreamName + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    t.config.MaxAge,
		Replicas:  t.config.Replicas,
	}

	_, err := t.js.AddStream(streamCfg)
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		_, err = t.js.UpdateStream(streamCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", t.config.StreamName, err)
	}
	return nil
}

// Publish stores messages in the stream and waits for the server ack.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return errors.New("jetstream: transport is closed")
	}

	subject := t.config.subject(topic)
	for _, msg := range messages {
		if _, err := t.js.PublishMsg(toNATS(subject, msg)); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
	}
	return nil
}

// Subscribe pulls from the durable consumer of topic until ctx is done or the
// transport is closed. Messages left unacked are redelivered after AckWait.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, errors.New("jetstream: transport is closed")
	}

	durable := t.config.durable(topic)
	consumerCfg := &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: t.config.subject(topic),
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		MaxDeliver:    t.config.MaxDeliver,
		AckWait:       t.config.AckWait,
	}
	_, err := t.js.AddConsumer(t.config.StreamName, consumerCfg)
	if errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		_, err = t.js.UpdateConsumer(t.config.StreamName, consumerCfg)
	}
	if err != nil {
		return nil, &errspkg.SubscriptionError{Destination: topic, Err: err}
	}

	// Binding to a consumer we created keeps Unsubscribe from deleting it.
	sub, err := t.js.PullSubscribe(consumerCfg.FilterSubject, durable, nats.Bind(t.config.StreamName, durable), nats.ManualAck())
	if err != nil {
		return nil, &errspkg.SubscriptionError{Destination: topic, Err: err}
	}

	t.subMu.Lock()
	t.subscriptions = append(t.subscriptions, sub)
	t.subMu.Unlock()

	output := make(chan *message.Message)
	t.wg.Add(1)
	go t.fetch(ctx, sub, output, topic)
	return output, nil
}

func (t *Transport) fetch(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer t.wg.Done()
	defer close(output)

	logFields := watermill.LogFields{"topic": topic}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closing:
			return
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		switch {
		case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			continue
		case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
			return
		case err != nil:
			t.logger.Error("Failed to fetch messages", err, logFields)
			continue
		}

		for _, natsMsg := range msgs {
			if !t.deliver(ctx, natsMsg, output) {
				return
			}
		}
	}
}

// deliver hands one message to the router and settles it on the broker. It
// returns false when the subscription is shutting down.
func (t *Transport) deliver(ctx context.Context, natsMsg *nats.Msg, output chan<- *message.Message) bool {
	msg := fromNATS(natsMsg)
	msg.SetContext(ctx)

	select {
	case output <- msg:
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}

	select {
	case <-msg.Acked():
		if err := natsMsg.Ack(); err != nil {
			t.logger.Error("Failed to ack", err, watermill.LogFields{"uuid": msg.UUID})
		}
	case <-msg.Nacked():
		if err := natsMsg.Nak(); err != nil {
			t.logger.Error("Failed to nak", err, watermill.LogFields{"uuid": msg.UUID})
		}
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}
	return true
}

func toNATS(subject string, msg *message.Message) *nats.Msg {
	header := nats.Header{}
	for k, v := range msg.Metadata {
		header.Set(k, v)
	}
	header.Set(HeaderUUID, msg.UUID)
	return &nats.Msg{Subject: subject, Data: msg.Payload, Header: header}
}

func fromNATS(natsMsg *nats.Msg) *message.Message {
	uuid := natsMsg.Header.Get(HeaderUUID)
	if uuid == "" {
		uuid = watermill.NewUUID()
	}

	msg := message.NewMessage(uuid, natsMsg.Data)
	for k, v := range natsMsg.Header {
		if k == HeaderUUID || len(v) == 0 {
			continue
		}
		msg.Metadata.Set(k, v[0])
	}
	return msg
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// Close stops every subscription and closes the connection. Safe to call more
// than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)

		t.subMu.Lock()
		for _, sub := range t.subscriptions {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				t.logger.Error("Failed to unsubscribe", err, watermill.LogFields{"subject": sub.Subject})
			}
		}
		t.subscriptions = nil
		t.subMu.Unlock()

		t.wg.Wait()
		t.nc.Close()
	})
	return nil
}
