// Package feed keeps a durable subscription to the upstream open-data feed and
// hands every delivery to a handler, one at a time.
//
// The session is resilient: when it is lost the client reconnects with a
// deterministic exponential backoff and gives up with a ConnectionError once
// the attempt budget is spent. A rejected subscription is terminal.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/internal/runtime/logging"
	"github.com/drblury/railflow/internal/runtime/metrics"
)

var errSessionClosed = errors.New("feed session closed")

// minLiveWindow is the shortest time a session without messages must stay up
// before the reconnect budget is restored.
const minLiveWindow = 10 * time.Second

// Config describes the upstream endpoint and the subscription.
type Config struct {
	// Endpoint is host:port of the STOMP broker.
	Endpoint string
	Login    string
	Passcode string
	// ClientID is sent as the client-id connect header when set.
	ClientID string

	Destination      string
	SubscriptionName string

	// Heartbeat is used for both directions. Zero disables heartbeats.
	Heartbeat time.Duration

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	// MaxReconnects is the number of reconnect attempts made after a failed
	// connect or a lost session before the client gives up.
	MaxReconnects int
}

func (c Config) validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("feed: endpoint is required"))
	}
	if c.Destination == "" {
		errs = append(errs, errors.New("feed: destination is required"))
	}
	if c.SubscriptionName == "" {
		errs = append(errs, errors.New("feed: subscription name is required"))
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		errs = append(errs, fmt.Errorf("feed: invalid reconnect interval %s..%s", c.ReconnectInitial, c.ReconnectMax))
	}
	if c.MaxReconnects < 0 {
		errs = append(errs, errors.New("feed: max reconnects cannot be negative"))
	}
	return errspkg.NewConfigValidationError(errors.Join(errs...))
}

// Session is one connected upstream session.
type Session interface {
	// Subscribe starts a client-individual subscription. The returned channel
	// is closed, or yields a Delivery with Err set, when the session is lost.
	Subscribe(destination, subscriptionName string) (<-chan Delivery, error)
	// Disconnect closes the session without unsubscribing.
	Disconnect() error
}

// Dialer opens a new Session.
type Dialer func(ctx context.Context, cfg Config) (Session, error)

// Handler processes one message. It is responsible for acknowledging it.
type Handler func(ctx context.Context, msg *Message)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the STOMP dialer.
func WithDialer(dial Dialer) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// WithMetrics records status transitions and reconnects.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSleep replaces the context aware sleep between reconnect attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Client supervises the upstream session.
type Client struct {
	cfg     Config
	dial    Dialer
	sleep   func(ctx context.Context, d time.Duration) error
	logger  logging.ServiceLogger
	metrics *metrics.Metrics

	status  atomic.Int32
	running atomic.Bool
}

// NewClient validates cfg and returns a Client using the STOMP dialer unless
// overridden.
func NewClient(cfg Config, logger logging.ServiceLogger, opts ...Option) (*Client, error) {
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		dial:   DialSTOMP,
		sleep:  sleepContext,
		logger: logger.With(logging.LogFields{"endpoint": cfg.Endpoint, "destination": cfg.Destination}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Client) setStatus(status ConnectionStatus, fields logging.LogFields) {
	previous := ConnectionStatus(c.status.Swap(int32(status)))
	c.metrics.SetFeedStatus(status.String(), allStatuses)
	if previous == status && status != StatusReconnecting {
		return
	}

	logFields := logging.LogFields{"status": status.String()}
	for k, v := range fields {
		logFields[k] = v
	}
	c.logger.Info("Feed connection "+status.String(), logFields)
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitial
	bo.MaxInterval = c.cfg.ReconnectMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}

// Run connects, subscribes and delivers messages to handle until ctx is
// cancelled (returns nil) or the session cannot be recovered. Terminal
// failures are a *errors.ConnectionError once the reconnect budget is spent,
// or a *errors.SubscriptionError when the upstream rejects the subscription.
// handle is never called concurrently.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	if handle == nil {
		return errspkg.ErrHandlerRequired
	}
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("feed: client is already running")
	}
	defer c.running.Store(false)

	bo := c.newBackOff()
	reconnects := 0
	dials := 0
	var lastErr error

	for {
		if ctx.Err() != nil {
			c.setStatus(StatusDisconnected, nil)
			return nil
		}

		if lastErr != nil {
			if reconnects >= c.cfg.MaxReconnects {
				c.setStatus(StatusGaveUp, logging.LogFields{"attempts": dials})
				c.logger.Error("Giving up on feed connection", lastErr, logging.LogFields{"attempts": dials})
				return &errspkg.ConnectionError{Endpoint: c.cfg.Endpoint, Attempts: dials, Err: lastErr}
			}
			reconnects++
			delay := bo.NextBackOff()
			c.metrics.IncReconnectAttempt()
			c.setStatus(StatusReconnecting, logging.LogFields{"attempt": reconnects, "delay": delay.String()})
			if err := c.sleep(ctx, delay); err != nil {
				c.setStatus(StatusDisconnected, nil)
				return nil
			}
		}

		c.setStatus(StatusConnecting, nil)
		dials++
		session, err := c.dial(ctx, c.cfg)
		if err != nil {
			if ctx.Err() != nil {
				c.setStatus(StatusDisconnected, nil)
				return nil
			}
			c.logger.Error("Feed connect failed", err, logging.LogFields{"attempt": dials})
			lastErr = err
			continue
		}

		deliveries, err := session.Subscribe(c.cfg.Destination, c.cfg.SubscriptionName)
		if err != nil {
			c.disconnect(session)
			c.setStatus(StatusDisconnected, nil)
			return &errspkg.SubscriptionError{Destination: c.cfg.Destination, Err: err}
		}

		c.setStatus(StatusConnected, logging.LogFields{"subscription": c.cfg.SubscriptionName})

		end := c.consume(ctx, deliveries, handle)
		c.disconnect(session)
		if ctx.Err() != nil {
			c.setStatus(StatusDisconnected, nil)
			return nil
		}

		if end.rejected {
			c.setStatus(StatusDisconnected, nil)
			c.logger.Error("Feed subscription rejected", end.err, logging.LogFields{"subscription": c.cfg.SubscriptionName})
			return &errspkg.SubscriptionError{Destination: c.cfg.Destination, Err: end.err}
		}

		// The budget starts over only for a session that proved live.
		if end.live {
			bo.Reset()
			reconnects = 0
			dials = 0
		}

		c.setStatus(StatusLost, logging.LogFields{"live": end.live})
		c.logger.Error("Feed connection lost", end.err, nil)
		lastErr = end.err
	}
}

// sessionEnd describes how a subscribed session finished.
type sessionEnd struct {
	err error
	// live is set once the session delivered a message or stayed up for the
	// liveness window.
	live     bool
	rejected bool
}

// liveWindow is how long a silent session must survive to count as live.
func (c *Client) liveWindow() time.Duration {
	return max(minLiveWindow, 2*c.cfg.Heartbeat)
}

// consume delivers messages until the session ends or ctx is cancelled.
func (c *Client) consume(ctx context.Context, deliveries <-chan Delivery, handle Handler) sessionEnd {
	var end sessionEnd
	timer := time.NewTimer(c.liveWindow())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return end
		case <-timer.C:
			end.live = true
		case d, ok := <-deliveries:
			if !ok {
				end.err = errSessionClosed
				return end
			}
			if d.Err != nil {
				end.err = d.Err
				end.rejected = d.Rejected && !end.live
				return end
			}
			if d.Message == nil {
				continue
			}
			end.live = true
			c.metrics.IncFeedMessage()
			handle(ctx, d.Message)
		}
	}
}

func (c *Client) disconnect(session Session) {
	if err := session.Disconnect(); err != nil {
		c.logger.Debug("Feed disconnect failed", logging.LogFields{"error": err.Error()})
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
