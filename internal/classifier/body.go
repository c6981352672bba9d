package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/drblury/railflow/internal/runtime/jsoncodec"
)

// body keeps the raw field values of an envelope body. Fields are only
// interpreted when read, so unrelated fields of any shape never fail decoding.
type body map[string]json.RawMessage

// get returns the field as text. Strings are returned as-is, numbers in their
// literal form; null, booleans, objects and arrays count as absent.
func (b body) get(field string) string {
	raw, ok := b[field]
	if !ok {
		return ""
	}
	v, _ := scalarText(raw)
	return v
}

// first returns the first non-empty field out of candidates.
func (b body) first(candidates ...string) string {
	for _, field := range candidates {
		if v := b.get(field); v != "" {
			return v
		}
	}
	return ""
}

func scalarText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	switch c := trimmed[0]; {
	case c == '"':
		var s string
		if err := jsoncodec.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return s, true
	case c == '-' || (c >= '0' && c <= '9'):
		if _, err := strconv.ParseFloat(string(trimmed), 64); err != nil {
			return "", false
		}
		return string(trimmed), true
	default:
		return "", false
	}
}

// flexString decodes a JSON string or number into its textual form. null
// decodes to the empty string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = ""
		return nil
	}
	v, ok := scalarText(data)
	if !ok {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(v)
	return nil
}
