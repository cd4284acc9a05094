// Package envelope implements the broker's wire format: small JSON objects
// carrying a tag field that selects handling further up the stack.
package envelope

import (
	"encoding/json"
	"fmt"
)

// MaxFrameBytes is the hard transport-level cap on an inbound frame. The
// websocket layer enforces this via SetReadLimit; it is duplicated here so
// callers that build frames outside that path (tests, future transports)
// can apply the same bound.
const MaxFrameBytes = 64 * 1024

// Envelope is the broker's generic wire object: a required "type" tag plus
// an open bag of tag-specific fields. Using map[string]any instead of a
// fixed struct lets the router add/forward fields (from, target, reason)
// without a distinct type per tag, matching the reference behavior that
// every tag is "the same shape, different fields."
type Envelope map[string]any

// Type returns the envelope's "type" field, or "" if missing or not a
// string.
func (e Envelope) Type() string {
	v, ok := e["type"]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// String returns e[key] as a string, or "" if absent or not a string.
func (e Envelope) String(key string) string {
	v, ok := e[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Object returns e[key] as a nested object, or nil if absent or not an
// object.
func (e Envelope) Object(key string) (map[string]any, bool) {
	v, ok := e[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Decode parses a single inbound frame. It returns an error when the frame
// is not a JSON object or is missing a non-empty string "type" field;
// callers are expected to log a warning and silently discard the frame
// rather than treat this as connection-fatal.
func Decode(data []byte) (Envelope, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	e := Envelope(raw)
	if e.Type() == "" {
		return nil, fmt.Errorf("envelope: missing or invalid type field")
	}
	return e, nil
}

// Encode serializes an envelope for writing to a peer's channel.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(map[string]any(e))
}

// New builds an envelope of the given type with the supplied fields
// merged in. Helper for constructing outbound replies without repeating
// map literal boilerplate at every call site.
func New(typ string, fields map[string]any) Envelope {
	e := make(Envelope, len(fields)+1)
	for k, v := range fields {
		e[k] = v
	}
	e["type"] = typ
	return e
}

// Error builds the broker's standard {type:"error", error:<code>} reply,
// optionally merging extra fields (e.g. "target").
func Error(code string, extra map[string]any) Envelope {
	e := New("error", extra)
	e["error"] = code
	return e
}
