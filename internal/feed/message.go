package feed

import (
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
)

// Message is one delivery from the upstream subscription. It must be
// acknowledged exactly once; unacknowledged messages are redelivered by the
// upstream broker after a reconnect.
type Message struct {
	ID          string
	Destination string
	Body        []byte

	ack   func() error
	once  sync.Once
	acked atomic.Bool
}

// NewMessage builds a Message whose Ack calls ack. A nil ack is a no-op.
func NewMessage(id, destination string, body []byte, ack func() error) *Message {
	return &Message{ID: id, Destination: destination, Body: body, ack: ack}
}

// Ack acknowledges the message upstream. Only the first call reaches the
// session; later calls return errors.ErrAlreadyAcknowledged.
func (m *Message) Ack() error {
	var (
		first bool
		err   error
	)
	m.once.Do(func() {
		first = true
		m.acked.Store(true)
		if m.ack != nil {
			err = m.ack()
		}
	})
	if !first {
		return errspkg.ErrAlreadyAcknowledged
	}
	return err
}

// Acked reports whether Ack has been called.
func (m *Message) Acked() bool {
	return m.acked.Load()
}

// Delivery is an element of a subscription stream: either a message or the
// error that ended the session.
type Delivery struct {
	Message *Message
	Err     error
	// Rejected marks an Err sent by the upstream for a subscription that has
	// not delivered anything yet.
	Rejected bool
}
