// Package transports registers every built-in broker transport with the
// default registry. The railflow command imports it for its side effects.
package transports

import (
	_ "github.com/drblury/railflow/transport/channel"
	_ "github.com/drblury/railflow/transport/jetstream"
	_ "github.com/drblury/railflow/transport/kafka"
	_ "github.com/drblury/railflow/transport/nats"
	_ "github.com/drblury/railflow/transport/rabbitmq"
)
