// Package rabbitmq provides a RabbitMQ/AMQP transport.
package rabbitmq

import (
	"context"
	"net/url"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

var closeConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

func init() {
	Register()
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// QueueName derives the durable queue for a topic. Sinks sharing a consumer
// group consume from one queue per topic.
func QueueName(group string) amqp.QueueNameGenerator {
	if group == "" {
		return amqp.GenerateQueueNameTopicName
	}
	return amqp.GenerateQueueNameTopicNameWithSuffix(group)
}

// Build creates a new RabbitMQ transport over one shared connection.
func Build(ctx context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	uri := cfg.GetRabbitMQURL()

	amqpConfig := amqp.NewDurablePubSubConfig(uri, QueueName(cfg.GetKafkaConsumerGroup()))

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   uri,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, &errspkg.ConnectionError{Endpoint: redact(uri), Err: err}
	}

	var tr transport.Transport
	if role.Publishes() {
		publisher, err := PublisherFactory(amqpConfig, logger, conn)
		if err != nil {
			_ = closeConnection(conn)
			return transport.Transport{}, err
		}
		tr.Publisher = publisher
	}

	if role.Subscribes() {
		subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
		if err != nil {
			_ = tr.Close()
			_ = closeConnection(conn)
			return transport.Transport{}, err
		}
		tr.Subscriber = subscriber
	}

	return tr, nil
}

func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "rabbitmq"
	}
	return u.Redacted()
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
