// Package railflow relays train movement events from the UK rail open-data
// feed to a message broker and persists them for querying.
//
// The relay subscribes to the STOMP feed, classifies each envelope as an
// activation (msg_type 0001) or a cancellation (msg_type 0002), and publishes
// the resulting events as JSON to the train_activation and train_cancellation
// topics. A feed message is acknowledged once every event derived from it has
// been attempted, so one bad envelope or one failed publish never stalls the
// stream.
//
// The sink consumes both topics through a Watermill router and writes one row
// per event to PostgreSQL. The read API serves the stored rows with limit and
// offset paging.
//
// # Transports
//
// The broker is chosen by PUBSUB_SYSTEM:
//   - kafka: the production broker, partitioned topics and consumer groups
//   - nats: NATS Core, queue groups without persistence
//   - nats-jetstream: NATS with durable pull consumers
//   - rabbitmq: durable AMQP queues
//   - channel: in-memory Go channels for tests and local runs
//
// Transports register themselves on import; the transport/transports package
// pulls them all in.
//
// This package re-exports the pieces an embedding program needs. The
// railflow command in cmd/railflow wires them into the relay, sink, serve and
// provision subcommands.
package railflow
