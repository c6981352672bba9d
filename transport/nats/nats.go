// Package nats provides a NATS Core transport. It suits local setups; events
// published while no sink is subscribed are lost.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport. Sink instances sharing a consumer group
// name share one queue group.
func Build(ctx context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}

	var tr transport.Transport
	if role.Publishes() {
		publisher, err := PublisherFactory(
			nats.PublisherConfig{
				URL:       url,
				Marshaler: marshaler,
			},
			logger,
		)
		if err != nil {
			return transport.Transport{}, &errspkg.ConnectionError{Endpoint: url, Err: err}
		}
		tr.Publisher = publisher
	}

	if role.Subscribes() {
		subscriber, err := SubscriberFactory(
			nats.SubscriberConfig{
				URL:              url,
				QueueGroupPrefix: cfg.GetKafkaConsumerGroup(),
				Unmarshaler:      marshaler,
			},
			logger,
		)
		if err != nil {
			_ = tr.Close()
			return transport.Transport{}, &errspkg.ConnectionError{Endpoint: url, Err: err}
		}
		tr.Subscriber = subscriber
	}

	return tr, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
