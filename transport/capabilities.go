package transport

// Capabilities describes the delivery features of a broker backend.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// SupportsOrdering indicates messages within a partition/stream are
	// delivered in publish order.
	SupportsOrdering bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// SupportsPartitioning indicates a topic can be spread over partitions
	// that are load-balanced across consumers.
	SupportsPartitioning bool

	// SupportsConsumerGroups indicates several sink instances can share a
	// topic, each message going to one of them.
	SupportsConsumerGroups bool

	// SupportsHeaders indicates message metadata survives the broker.
	SupportsHeaders bool

	// SupportsDurability indicates messages survive a broker restart.
	SupportsDurability bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsHeaders:  true,
	}

	// KafkaCapabilities for Apache Kafka.
	KafkaCapabilities = Capabilities{
		Name:                   "kafka",
		SupportsOrdering:       true,
		SupportsAck:            true,
		SupportsNack:           true,
		SupportsPartitioning:   true,
		SupportsConsumerGroups: true,
		SupportsHeaders:        true,
		SupportsDurability:     true,
		MaxMessageSize:         1048576, // broker default message.max.bytes
	}

	// NATSCapabilities for NATS Core.
	NATSCapabilities = Capabilities{
		Name:                   "nats",
		SupportsConsumerGroups: true, // queue groups
		SupportsHeaders:        true,
		MaxMessageSize:         1048576, // Default 1MB
	}

	// JetStreamCapabilities for NATS JetStream with durable pull consumers.
	JetStreamCapabilities = Capabilities{
		Name:                   "nats-jetstream",
		SupportsOrdering:       true,
		SupportsAck:            true,
		SupportsNack:           true,
		SupportsConsumerGroups: true,
		SupportsHeaders:        true,
		SupportsDurability:     true,
		MaxMessageSize:         1048576,
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP.
	RabbitMQCapabilities = Capabilities{
		Name:                   "rabbitmq",
		SupportsOrdering:       true,
		SupportsAck:            true,
		SupportsNack:           true,
		SupportsConsumerGroups: true,
		SupportsHeaders:        true,
		SupportsDurability:     true,
	}
)

// GetCapabilities returns the capabilities for a transport by name from the
// default registry. Unknown transports report a zero Capabilities with the
// name filled in.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
