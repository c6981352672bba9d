package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/internal/runtime/logging"
	"github.com/drblury/railflow/internal/runtime/metrics"
)

func testConfig() Config {
	return Config{
		Endpoint:         "feed.example:61618",
		Login:            "user",
		Passcode:         "secret",
		Destination:      "/topic/TRAIN_MVT_ALL_TOC",
		SubscriptionName: "railflow-train_mvt",
		Heartbeat:        15 * time.Second,
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		MaxReconnects:    30,
	}
}

type fakeSession struct {
	deliveries   chan Delivery
	subscribeErr error

	mu           sync.Mutex
	subscribed   []string
	disconnected int
}

func newFakeSession() *fakeSession {
	return &fakeSession{deliveries: make(chan Delivery, 16)}
}

func (s *fakeSession) Subscribe(destination, name string) (<-chan Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, destination+"|"+name)
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	return s.deliveries, nil
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected++
	return nil
}

// scriptedDialer returns results in order and fails with errRefused once the
// script is exhausted.
type scriptedDialer struct {
	mu      sync.Mutex
	results []any
	calls   int
}

var errRefused = errors.New("connection refused")

func (d *scriptedDialer) dial(ctx context.Context, cfg Config) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.results) == 0 {
		return nil, errRefused
	}
	next := d.results[0]
	d.results = d.results[1:]
	switch v := next.(type) {
	case *fakeSession:
		return v, nil
	case error:
		return nil, v
	}
	return nil, errRefused
}

func (d *scriptedDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedSleeps) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newTestClient(t *testing.T, cfg Config, dialer *scriptedDialer, sleeps *recordedSleeps) *Client {
	t.Helper()
	client, err := NewClient(cfg, logging.NewNopLogger(),
		WithDialer(dialer.dial),
		WithSleep(sleeps.sleep),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{}, logging.NewNopLogger())
	require.Error(t, err)
	var cfgErr errspkg.ConfigValidationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewClient(testConfig(), nil)
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestRunDeliversMessagesSequentially(t *testing.T) {
	session := newFakeSession()
	dialer := &scriptedDialer{results: []any{session}}
	client := newTestClient(t, testConfig(), dialer, &recordedSleeps{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session.deliveries <- Delivery{Message: NewMessage("1", "d", []byte(`[]`), nil)}
	session.deliveries <- Delivery{Message: NewMessage("2", "d", []byte(`[]`), nil)}

	var (
		mu  sync.Mutex
		ids []string
	)
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, func(_ context.Context, msg *Message) {
			mu.Lock()
			ids = append(ids, msg.ID)
			n := len(ids)
			mu.Unlock()
			if n == 2 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, []string{"/topic/TRAIN_MVT_ALL_TOC|railflow-train_mvt"}, session.subscribed)
	assert.Equal(t, 1, session.disconnected)
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestRunReconnectsWithExponentialBackoff(t *testing.T) {
	first := newFakeSession()
	second := newFakeSession()
	dialer := &scriptedDialer{results: []any{first, errRefused, errRefused, second}}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, testConfig(), dialer, sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first.deliveries <- Delivery{Message: NewMessage("1", "d", nil, nil)}
	first.deliveries <- Delivery{Err: errors.New("heartbeat timeout")}
	second.deliveries <- Delivery{Message: NewMessage("2", "d", nil, nil)}

	var got []string
	err := client.Run(ctx, func(_ context.Context, msg *Message) {
		got = append(got, msg.ID)
		if msg.ID == "2" {
			cancel()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, got)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, sleeps.Delays())
	assert.Equal(t, 4, dialer.Calls())
	assert.Equal(t, 1, first.disconnected)
}

func TestRunBackoffIsCappedAndResetsAfterLiveSession(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectInitial = 10 * time.Millisecond
	cfg.ReconnectMax = 50 * time.Millisecond
	cfg.MaxReconnects = 6

	session := newFakeSession()
	session.deliveries <- Delivery{Message: NewMessage("1", "d", nil, nil)}
	close(session.deliveries)
	dialer := &scriptedDialer{results: []any{errRefused, errRefused, errRefused, errRefused, session}}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, cfg, dialer, sleeps)

	err := client.Run(context.Background(), func(context.Context, *Message) {})

	var connErr *errspkg.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "feed.example:61618", connErr.Endpoint)
	assert.Equal(t, 6, connErr.Attempts)
	assert.ErrorIs(t, err, errRefused)

	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond,
		// session lost, budget and delay start over
		10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond,
	}, sleeps.Delays())
	assert.Equal(t, StatusGaveUp, client.Status())
}

func TestRunGivesUpWhenInitialConnectNeverSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnects = 3
	dialer := &scriptedDialer{}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, cfg, dialer, sleeps)

	err := client.Run(context.Background(), func(context.Context, *Message) {})

	var connErr *errspkg.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 4, connErr.Attempts)
	assert.Equal(t, 4, dialer.Calls())
	assert.Len(t, sleeps.Delays(), 3)
}

func TestRunGivesUpWhenSessionsEndBeforeDelivering(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnects = 2

	var results []any
	for range 5 {
		session := newFakeSession()
		close(session.deliveries)
		results = append(results, session)
	}
	dialer := &scriptedDialer{results: results}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, cfg, dialer, sleeps)

	err := client.Run(context.Background(), func(context.Context, *Message) {})

	var connErr *errspkg.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 3, connErr.Attempts)
	assert.ErrorIs(t, err, errSessionClosed)
	assert.Equal(t, 3, dialer.Calls())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeps.Delays())
	assert.Equal(t, StatusGaveUp, client.Status())
}

func TestRunBrokerRejectionBeforeFirstMessageIsFatal(t *testing.T) {
	session := newFakeSession()
	session.deliveries <- Delivery{Err: errors.New("User name [user] is not authorized to read from: /topic/TRAIN_MVT_ALL_TOC"), Rejected: true}
	dialer := &scriptedDialer{results: []any{session}}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, testConfig(), dialer, sleeps)

	err := client.Run(context.Background(), func(context.Context, *Message) {})

	var subErr *errspkg.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "/topic/TRAIN_MVT_ALL_TOC", subErr.Destination)
	assert.Contains(t, err.Error(), "not authorized")
	assert.Equal(t, 1, dialer.Calls())
	assert.Empty(t, sleeps.Delays())
	assert.Equal(t, 1, session.disconnected)
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestRunBrokerErrorAfterMessagesReconnects(t *testing.T) {
	first := newFakeSession()
	first.deliveries <- Delivery{Message: NewMessage("1", "d", nil, nil)}
	first.deliveries <- Delivery{Err: errors.New("broker shutting down"), Rejected: true}
	second := newFakeSession()
	second.deliveries <- Delivery{Message: NewMessage("2", "d", nil, nil)}
	dialer := &scriptedDialer{results: []any{first, second}}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, testConfig(), dialer, sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	err := client.Run(ctx, func(_ context.Context, msg *Message) {
		got = append(got, msg.ID)
		if msg.ID == "2" {
			cancel()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, got)
	assert.Equal(t, 2, dialer.Calls())
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, sleeps.Delays())
}

func TestRunSubscriptionRejectedIsFatal(t *testing.T) {
	session := newFakeSession()
	session.subscribeErr = errors.New("not authorized")
	dialer := &scriptedDialer{results: []any{session}}
	client := newTestClient(t, testConfig(), dialer, &recordedSleeps{})

	err := client.Run(context.Background(), func(context.Context, *Message) {})

	var subErr *errspkg.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "/topic/TRAIN_MVT_ALL_TOC", subErr.Destination)
	assert.Equal(t, 1, dialer.Calls(), "no retry on subscription rejection")
	assert.Equal(t, 1, session.disconnected)
}

func TestRunStopsWhileWaitingToReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dialer := &scriptedDialer{}
	client, err := NewClient(testConfig(), logging.NewNopLogger(),
		WithDialer(dialer.dial),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)
	require.NoError(t, err)

	assert.NoError(t, client.Run(ctx, func(context.Context, *Message) {}))
	assert.Equal(t, 1, dialer.Calls())
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	session := newFakeSession()
	dialer := &scriptedDialer{results: []any{session}}
	client := newTestClient(t, testConfig(), dialer, &recordedSleeps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, func(context.Context, *Message) {}) }()

	require.Eventually(t, func() bool { return client.Status() == StatusConnected }, 5*time.Second, 5*time.Millisecond)
	assert.Error(t, client.Run(ctx, func(context.Context, *Message) {}))

	cancel()
	require.NoError(t, <-done)
}

func TestRunRequiresHandler(t *testing.T) {
	client := newTestClient(t, testConfig(), &scriptedDialer{}, &recordedSleeps{})
	assert.ErrorIs(t, client.Run(context.Background(), nil), errspkg.ErrHandlerRequired)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "gave_up", StatusGaveUp.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}
