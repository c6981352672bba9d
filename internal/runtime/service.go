package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/railflow/internal/runtime/config"
	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/railflow/internal/runtime/logging"
	"github.com/drblury/railflow/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.

	// Transports resolves PUBSUB_SYSTEM. Defaults to transport.DefaultRegistry.
	Transports *transport.Registry
	// Role defaults to transport.RoleSubscriber.
	Role transport.Role

	// Registerer and Gatherer back the router metrics and the /metrics
	// endpoint. They default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// HandlerInfo describes a handler registered on the Service.
type HandlerInfo struct {
	Name         string
	ConsumeQueue string
}

// Service wires a Watermill router, the broker transport, and the middleware
// chain. The sink runs inside one; the relay only borrows its HTTP helpers.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport transport.Transport
	router    *message.Router

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewService builds the transport for conf.PubSubSystem and a router on top of
// it. Register handlers on the returned Service before calling Start. A
// transport that cannot connect is returned as an error; callers treat it as
// fatal.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service",
		loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"config":        conf,
		})

	s := &Service{
		Conf:       conf,
		Logger:     log,
		registerer: deps.Registerer,
		gatherer:   deps.Gatherer,
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	registry := deps.Transports
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	role := deps.Role
	if role == 0 {
		role = transport.RoleSubscriber
	}
	tr, err := registry.Build(ctx, conf, role, wmLogger)
	if err != nil {
		return nil, err
	}
	s.transport = tr

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("create router: %w", err)
	}
	s.router = router

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Publisher returns the transport publisher, nil when the role excluded it.
func (s *Service) Publisher() message.Publisher { return s.transport.Publisher }

// Subscriber returns the transport subscriber, nil when the role excluded it.
func (s *Service) Subscriber() message.Subscriber { return s.transport.Subscriber }

// Handlers returns a snapshot of the registered handlers.
func (s *Service) Handlers() []HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	out := make([]HandlerInfo, 0, len(s.handlers))
	for _, h := range s.handlers {
		out = append(out, *h)
	}
	return out
}

// Running is closed once the router has started every handler.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Start runs the HTTP servers and the router until ctx is cancelled, then
// closes the router and the transport.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpDone := s.startHTTPServers(ctx)
	runErr := routerRun(s.router, ctx)
	cancel()
	httpErr := <-httpDone

	return errors.Join(runErr, httpErr, s.Close())
}

// Close stops the router and releases the broker connections. Safe to call
// more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.router != nil {
			errs = append(errs, s.router.Close())
		}
		errs = append(errs, s.transport.Close())
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the server listening on port. Servers
// start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context) <-chan error {
	s.httpServersMu.Lock()
	servers := make(map[int]http.Handler, len(s.httpServers))
	for port, mux := range s.httpServers {
		servers[port] = mux
	}
	s.httpServersMu.Unlock()

	done := make(chan error, 1)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for port, handler := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ServeHTTP(ctx, fmt.Sprintf(":%d", port), handler, s.Logger); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	go func() {
		wg.Wait()
		done <- errors.Join(errs...)
	}()
	return done
}
