// Package transport connects railflow to its downstream broker. Each broker
// (kafka, nats, rabbitmq, channel) lives in its own sub-package and registers
// a Builder under the PUBSUB_SYSTEM name it answers to.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Role selects which halves of a transport a process needs. The relay only
// publishes and the sink only consumes, so neither opens connections it never
// uses.
type Role int

const (
	RolePublisher Role = 1 << iota
	RoleSubscriber

	RoleBoth = RolePublisher | RoleSubscriber
)

// Publishes reports whether r includes the publisher half.
func (r Role) Publishes() bool { return r&RolePublisher != 0 }

// Subscribes reports whether r includes the subscriber half.
func (r Role) Subscribes() bool { return r&RoleSubscriber != 0 }

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	case RoleBoth:
		return "publisher+subscriber"
	default:
		return "none"
	}
}

// Transport combines the publisher and subscriber produced by a builder.
// Either may be nil when the role did not ask for it.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes whichever halves are present. When both share one
// implementation it is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil && !sameInstance(t.Publisher, t.Subscriber) {
		errs = append(errs, t.Subscriber.Close())
	}
	return errors.Join(errs...)
}

func sameInstance(pub message.Publisher, sub message.Subscriber) bool {
	if pub == nil {
		return false
	}
	asSub, ok := pub.(message.Subscriber)
	return ok && asSub == sub
}

// Builder creates a transport for the given role.
type Builder func(ctx context.Context, cfg Config, role Role, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports without
// depending on the full config package.
type Config interface {
	// GetPubSubSystem returns the transport name.
	GetPubSubSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	// NATS
	GetNATSURL() string

	// RabbitMQ
	GetRabbitMQURL() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
