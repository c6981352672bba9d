// Package events defines the train movement events relayed from the open-data
// feed to the broker and persisted by the sink.
package events

import (
	"fmt"
	"time"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
)

// Broker topics. The mapping from kind to topic is fixed.
const (
	TopicActivation   = "train_activation"
	TopicCancellation = "train_cancellation"
)

// NotAvailable replaces location and reason fields that the feed omitted.
const NotAvailable = "N/A"

// TimestampLayout is millisecond precision ISO-8601 in UTC with a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Kind identifies the semantic type of an event.
type Kind string

const (
	KindActivation   Kind = "activation"
	KindCancellation Kind = "cancellation"
)

// Topic returns the broker topic events of this kind are published to.
func (k Kind) Topic() (string, error) {
	switch k {
	case KindActivation:
		return TopicActivation, nil
	case KindCancellation:
		return TopicCancellation, nil
	default:
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownEventKind, string(k))
	}
}

// KindForTopic is the inverse of Kind.Topic.
func KindForTopic(topic string) (Kind, error) {
	switch topic {
	case TopicActivation:
		return KindActivation, nil
	case TopicCancellation:
		return KindCancellation, nil
	default:
		return "", fmt.Errorf("%w: topic %q", errspkg.ErrUnknownEventKind, topic)
	}
}

// Event is implemented by Activation and Cancellation.
type Event interface {
	Kind() Kind
	Train() string
}

// Activation is produced for feed messages of type 0001.
type Activation struct {
	TrainID   string `json:"trainId"`
	Stanox    string `json:"stanox"`
	Timestamp string `json:"timestamp"`
}

func (Activation) Kind() Kind      { return KindActivation }
func (a Activation) Train() string { return a.TrainID }

// Cancellation is produced for feed messages of type 0002.
type Cancellation struct {
	TrainID    string `json:"trainId"`
	Stanox     string `json:"stanox"`
	ReasonCode string `json:"reasonCode"`
	Timestamp  string `json:"timestamp"`
}

func (Cancellation) Kind() Kind      { return KindCancellation }
func (c Cancellation) Train() string { return c.TrainID }

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// OrNotAvailable returns v, or NotAvailable when v is empty.
func OrNotAvailable(v string) string {
	if v == "" {
		return NotAvailable
	}
	return v
}
