package feed

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
)

const (
	// dialTimeout bounds both the TCP dial and the STOMP handshake.
	dialTimeout = 30 * time.Second

	headerSubscriptionName = "activemq.subscriptionName"
	headerClientID         = "client-id"
)

// heartBeatError is the tolerance added to the negotiated read heartbeat.
var heartBeatError = stomp.DefaultHeartBeatError

// DialSTOMP opens a TCP connection to cfg.Endpoint and performs the STOMP
// handshake with login, passcode, virtual host "/" and symmetric heartbeats.
// The handshake is abandoned when ctx is cancelled or dialTimeout elapses.
func DialSTOMP(ctx context.Context, cfg Config) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Login(cfg.Login, cfg.Passcode),
		stomp.ConnOpt.Host("/"),
		stomp.ConnOpt.HeartBeat(cfg.Heartbeat, cfg.Heartbeat),
		stomp.ConnOpt.HeartBeatError(heartBeatError),
	}
	if cfg.ClientID != "" {
		opts = append(opts, stomp.ConnOpt.Header(headerClientID, cfg.ClientID))
	}

	// go-stomp only honours the deadline of ctx, so cancellation closes the
	// socket to unblock the pending read.
	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	conn, err := stomp.ConnectWithContext(ctx, netConn, opts...)
	if !stop() {
		if err == nil {
			_ = conn.MustDisconnect()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, net.ErrClosed
	}
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}
	return &stompSession{conn: conn, done: make(chan struct{})}, nil
}

type stompSession struct {
	conn *stomp.Conn
	done chan struct{}
	once sync.Once
}

func (s *stompSession) Subscribe(destination, subscriptionName string) (<-chan Delivery, error) {
	sub, err := s.conn.Subscribe(destination, stomp.AckClientIndividual,
		stomp.SubscribeOpt.Id(subscriptionName),
		stomp.SubscribeOpt.Header(headerSubscriptionName, subscriptionName),
	)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go s.forward(sub, out)
	return out, nil
}

// forward converts stomp messages into deliveries until the subscription ends
// or the session is disconnected. An ERROR frame sent by the broker before the
// first MESSAGE is reported as a rejection of the subscription.
func (s *stompSession) forward(sub *stomp.Subscription, out chan<- Delivery) {
	defer close(out)
	received := false
	for msg := range sub.C {
		d := Delivery{Err: msg.Err}
		if msg.Err == nil {
			received = true
			d.Message = s.toMessage(msg)
		} else {
			d.Rejected = !received && fromBroker(msg.Err)
		}
		select {
		case out <- d:
		case <-s.done:
			return
		}
		if msg.Err != nil {
			return
		}
	}
}

// fromBroker reports whether err carries an ERROR frame read from the wire.
// Failures detected locally by go-stomp (read timeout, closed connection,
// write errors) are synthesised as a bare frame holding only the message
// header.
func fromBroker(err error) bool {
	var f *frame.Frame
	var ptr *stomp.Error
	var val stomp.Error
	switch {
	case errors.As(err, &ptr):
		f = ptr.Frame
	case errors.As(err, &val):
		f = val.Frame
	}
	if f == nil || f.Command != frame.ERROR {
		return false
	}
	return f.Header.Len() > 1 || len(f.Body) > 0
}

func (s *stompSession) toMessage(msg *stomp.Message) *Message {
	id := ""
	if msg.Header != nil {
		id = msg.Header.Get(frame.MessageId)
	}
	return NewMessage(id, msg.Destination, msg.Body, func() error {
		return s.conn.Ack(msg)
	})
}

// Disconnect sends DISCONNECT without an UNSUBSCRIBE so the durable
// subscription is kept by the broker. A dead connection is closed forcibly.
func (s *stompSession) Disconnect() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if err = s.conn.Disconnect(); err != nil {
			_ = s.conn.MustDisconnect()
		}
	})
	return err
}
