package runtime

import (
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
)

// MessageHandlerRegistration wires a consuming handler that publishes nothing.
type MessageHandlerRegistration struct {
	Name         string
	ConsumeQueue string
	Handler      message.NoPublishHandlerFunc
	Subscriber   message.Subscriber
}

// RegisterMessageHandler attaches the provided handler to the service router.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerHandler(cfg)
}

func (s *Service) registerHandler(cfg MessageHandlerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.transport.Subscriber
	}
	if cfg.Subscriber == nil {
		return errspkg.ErrSubscriberRequired
	}

	s.handlersMu.Lock()
	s.handlers = append(s.handlers, &HandlerInfo{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
	})
	s.handlersMu.Unlock()

	s.router.AddNoPublisherHandler(
		cfg.Name,
		cfg.ConsumeQueue,
		cfg.Subscriber,
		cfg.Handler,
	)

	return nil
}
