package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("railflow: service is required")
	ErrHandlerRequired      = sterrors.New("railflow: handler function is required")
	ErrConsumeQueueRequired = sterrors.New("railflow: consume queue is required")
	ErrHandlerNameRequired  = sterrors.New("railflow: handler name is required")
	ErrPublisherRequired    = sterrors.New("railflow: publisher is required")
	ErrSubscriberRequired   = sterrors.New("railflow: subscriber is required")
	ErrTopicRequired        = sterrors.New("railflow: topic is required")
	ErrConfigRequired       = sterrors.New("railflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("railflow: logger is required")
	ErrEventRequired        = sterrors.New("railflow: event is required")
	ErrClassifierRequired   = sterrors.New("railflow: classifier is required")
	ErrStoreRequired        = sterrors.New("railflow: store is required")
	ErrUnknownEventKind     = sterrors.New("railflow: unknown event kind")
	ErrEmptyPayload         = sterrors.New("railflow: empty payload")
	ErrInvalidPayload       = sterrors.New("railflow: payload is not valid UTF-8")
	ErrAlreadyAcknowledged  = sterrors.New("railflow: message already acknowledged")
)

// ConfigValidationError wraps the aggregated configuration problems reported
// at startup.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("railflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ConnectionError reports an endpoint that could not be reached, or that
// rejected the session, after the retry budget was spent. Attempts is zero for
// fail-fast connections that are never retried.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("railflow: connection to %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
	}
	return fmt.Sprintf("railflow: connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SubscriptionError reports a subscribe call rejected by the upstream broker.
type SubscriptionError struct {
	Destination string
	Err         error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("railflow: subscription to %s rejected: %v", e.Destination, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// WholePayload is the ParseError index used when the payload itself could not
// be decoded.
const WholePayload = -1

// ParseError reports a payload, or a single envelope inside a batch, that could
// not be decoded into the expected structure.
type ParseError struct {
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index == WholePayload {
		return fmt.Sprintf("railflow: malformed payload: %v", e.Err)
	}
	return fmt.Sprintf("railflow: malformed envelope %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PublishError reports a send the broker rejected or timed out.
type PublishError struct {
	Topic   string
	TrainID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("railflow: publish to %s failed (train %q): %v", e.Topic, e.TrainID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
