// Package ids issues the identifiers stamped on relayed broker messages.
package ids

import (
	"github.com/oklog/ulid/v2"
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// ulid.Make draws from a process-wide monotonic entropy source, so ids created
// within the same millisecond still sort in creation order.
func CreateULID() string {
	return ulid.Make().String()
}
