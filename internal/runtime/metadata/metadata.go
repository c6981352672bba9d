// Package metadata holds the headers attached to relayed broker messages. On
// Kafka they travel as record headers next to the JSON value, so consumers
// that only read the value never see them.
package metadata

// Header keys stamped by the relay.
const (
	KeyEventKind     = "event_kind"
	KeyFeedMessageID = "feed_message_id"
	KeyCorrelationID = "correlation_id"
)

// Metadata represents the headers carried alongside an event.
type Metadata map[string]string

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is dropped, as are pairs with an empty value.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// Clone returns a shallow copy of the metadata map. The result is never nil.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// Get returns the value for key, or "" when absent.
func (m Metadata) Get(key string) string {
	return m[key]
}
