// Package kafka provides the Kafka transport, the production broker for
// railflow events.
package kafka

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// PublisherSaramaConfig returns the synchronous producer settings used for
// event publishing. Every send waits for the full ISR.
func PublisherSaramaConfig(clientID string) *sarama.Config {
	cfg := kafka.DefaultSaramaSyncPublisherConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	return cfg
}

// SubscriberSaramaConfig returns the consumer group settings used by the sink.
// A new group starts from the oldest retained offset.
func SubscriberSaramaConfig(clientID string) *sarama.Config {
	cfg := kafka.DefaultSaramaSubscriberConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	return cfg
}

// Build creates a Kafka transport. Broker connectivity is checked while the
// publisher or subscriber is created, so an unreachable cluster fails here
// with a ConnectionError.
func Build(ctx context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	endpoint := strings.Join(brokers, ",")

	var tr transport.Transport
	if role.Publishes() {
		publisher, err := PublisherFactory(
			kafka.PublisherConfig{
				Brokers:               brokers,
				Marshaler:             kafka.DefaultMarshaler{},
				OverwriteSaramaConfig: PublisherSaramaConfig(cfg.GetKafkaClientID()),
			},
			logger,
		)
		if err != nil {
			return transport.Transport{}, &errspkg.ConnectionError{Endpoint: endpoint, Err: err}
		}
		tr.Publisher = publisher
	}

	if role.Subscribes() {
		subscriber, err := SubscriberFactory(
			kafka.SubscriberConfig{
				Brokers:               brokers,
				Unmarshaler:           kafka.DefaultMarshaler{},
				ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
				OverwriteSaramaConfig: SubscriberSaramaConfig(cfg.GetKafkaClientID()),
			},
			logger,
		)
		if err != nil {
			_ = tr.Close()
			return transport.Transport{}, &errspkg.ConnectionError{Endpoint: endpoint, Err: err}
		}
		tr.Subscriber = subscriber
	}

	return tr, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
