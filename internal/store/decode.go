package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeBool interprets a JSON scalar as a boolean command.
// Accepted: true/false, the numbers 0 and 1, and the strings "0", "1", "true", "false"
// in any case. null yields ErrNoValue; anything else ErrMalformed.
func DecodeBool(raw []byte) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, ErrNoValue
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		switch x {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		return parseBoolString(x)
	}
	return false, fmt.Errorf("%w: %s", ErrMalformed, truncate(raw, 64))
}

// parseBoolString handles the textual forms a dashboard may write.
func parseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrMalformed, s)
}

// EncodeBool returns the JSON body for v.
func EncodeBool(v bool) []byte {
	if v {
		return []byte("true")
	}
	return []byte("false")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
