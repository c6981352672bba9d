// Package classifier turns raw open-data feed payloads into train events.
//
// A payload is a JSON array of envelopes. Each envelope carries a header with
// a message type code and a type specific body:
//
//	[{"header":{"msg_type":"0001"},"body":{"train_id":"T123","tp_origin_stanox":"8201"}}]
//
// Type 0001 yields an activation, type 0002 a cancellation, anything else is
// ignored. Envelopes are classified independently: a broken envelope is
// reported without affecting its siblings, while a payload that is not a JSON
// array fails as a whole.
package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drblury/railflow/internal/events"
	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/internal/runtime/jsoncodec"
)

// Feed message type codes.
const (
	MsgTypeActivation   = "0001"
	MsgTypeCancellation = "0002"
)

// Body fields read from the feed. Activation stanox candidates are tried in
// order and the first non-empty one wins.
var activationStanoxFields = []string{"tp_origin_stanox", "sched_origin_stanox"}

const (
	fieldTrainID          = "train_id"
	fieldLocationStanox   = "loc_stanox"
	fieldCancelReasonCode = "canx_reason_code"
)

var (
	errNotArray    = errors.New("payload is not a JSON array")
	errMissingBody = errors.New("envelope has no body")
)

// Batch is the outcome of classifying one payload.
type Batch struct {
	Events []events.Event
	// Ignored counts envelopes without a header or with an unrelayed type.
	Ignored int
	// Errors holds one *errors.ParseError per envelope that could not be
	// decoded.
	Errors []error
}

// Envelopes is the number of envelopes the payload contained.
func (b Batch) Envelopes() int {
	return len(b.Events) + b.Ignored + len(b.Errors)
}

// Counts splits the classified events by kind.
func (b Batch) Counts() (activations, cancellations int) {
	for _, ev := range b.Events {
		switch ev.Kind() {
		case events.KindActivation:
			activations++
		case events.KindCancellation:
			cancellations++
		}
	}
	return activations, cancellations
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock overrides the wall clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// Classifier is stateless apart from its clock and safe for concurrent use.
type Classifier struct {
	now func() time.Time
}

func New(opts ...Option) *Classifier {
	c := &Classifier{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify decodes payload and classifies every envelope in it. The returned
// error is a *errors.ParseError with index errors.WholePayload when the
// payload is not a JSON array; in that case the Batch is empty.
func (c *Classifier) Classify(payload []byte) (Batch, error) {
	var raw []json.RawMessage
	if err := jsoncodec.Unmarshal(payload, &raw); err != nil {
		if !jsoncodec.Valid(payload) {
			return Batch{}, &errspkg.ParseError{Index: errspkg.WholePayload, Err: err}
		}
		return Batch{}, &errspkg.ParseError{Index: errspkg.WholePayload, Err: errNotArray}
	}
	if raw == nil {
		// null decodes into a nil slice
		return Batch{}, &errspkg.ParseError{Index: errspkg.WholePayload, Err: errNotArray}
	}

	batch := Batch{}
	for i, item := range raw {
		ev, err := c.ClassifyEnvelope(item)
		switch {
		case err != nil:
			batch.Errors = append(batch.Errors, &errspkg.ParseError{Index: i, Err: err})
		case ev == nil:
			batch.Ignored++
		default:
			batch.Events = append(batch.Events, ev)
		}
	}
	return batch, nil
}

type envelope struct {
	Header json.RawMessage `json:"header"`
	Body   json.RawMessage `json:"body"`
}

type header struct {
	MsgType flexString `json:"msg_type"`
}

// ClassifyEnvelope classifies a single envelope. It returns a nil event and a
// nil error for envelopes that are deliberately ignored.
func (c *Classifier) ClassifyEnvelope(raw []byte) (events.Event, error) {
	var env envelope
	if err := jsoncodec.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	msgType, ok := messageType(env.Header)
	if !ok {
		return nil, nil
	}

	switch msgType {
	case MsgTypeActivation:
		fields, err := decodeBody(env.Body)
		if err != nil {
			return nil, err
		}
		return events.Activation{
			TrainID:   fields.get(fieldTrainID),
			Stanox:    events.OrNotAvailable(fields.first(activationStanoxFields...)),
			Timestamp: events.FormatTimestamp(c.now()),
		}, nil
	case MsgTypeCancellation:
		fields, err := decodeBody(env.Body)
		if err != nil {
			return nil, err
		}
		return events.Cancellation{
			TrainID:    fields.get(fieldTrainID),
			Stanox:     events.OrNotAvailable(fields.get(fieldLocationStanox)),
			ReasonCode: events.OrNotAvailable(fields.get(fieldCancelReasonCode)),
			Timestamp:  events.FormatTimestamp(c.now()),
		}, nil
	default:
		return nil, nil
	}
}

// messageType reports false for a missing, null or unreadable header.
func messageType(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", false
	}
	var h header
	if err := jsoncodec.Unmarshal(raw, &h); err != nil {
		return "", false
	}
	return string(h.MsgType), h.MsgType != ""
}

func decodeBody(raw json.RawMessage) (body, error) {
	if isAbsent(raw) {
		return nil, errMissingBody
	}
	var b body
	if err := jsoncodec.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return b, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
