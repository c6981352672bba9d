/*
Package runtime hosts railflow's broker consumers and HTTP endpoints.

A Service builds the transport selected by PUBSUB_SYSTEM, puts a Watermill
router on top of it and runs both until its context is cancelled. The sink
registers one handler per topic; the relay and the read API only use
ServeHTTP.

# Middleware

DefaultMiddlewares installs, in order:
  - CorrelationID: stamps correlation_id on messages that lack one
  - LogMessages: debug logging of payload and metadata
  - Tracer: an OpenTelemetry consumer span per message
  - Metrics: Watermill's Prometheus router metrics, plus /metrics
  - Recoverer: turns handler panics into errors

# Sub-packages

  - config/: environment configuration with per-command validation
  - errors/: sentinel errors and the typed error taxonomy
  - ids/: ULID generation for message IDs
  - jsoncodec/: JSON marshaling
  - logging/: ServiceLogger and its slog and Watermill adapters
  - metadata/: broker message headers
  - metrics/: Prometheus collectors for feed, classifier, relay and sink

# Usage Example

	svc, err := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}

	err = runtime.RegisterMessageHandler(svc, runtime.MessageHandlerRegistration{
		Name:         "train_activation-sink",
		ConsumeQueue: "train_activation",
		Handler:      handle,
	})

	return svc.Start(ctx)
*/
package runtime
