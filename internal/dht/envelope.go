// Package dht defines the get/put contract the marketplace consumes from the
// distributed hash table, the JSON envelopes it speaks, and the adapters that
// implement it on top of kad-dht or an in-memory map.
package dht

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Envelope is the JSON reply of a DHT get or put.
//
// A successful get looks like {"response":{"value":"<json string>"}}. A
// failed operation carries a top-level "error" member instead.
type Envelope struct {
	raw []byte
}

// ParseEnvelope wraps a raw reply. ok is false if raw is not valid JSON.
func ParseEnvelope(raw []byte) (env *Envelope, ok bool) {
	if !gjson.ValidBytes(raw) {
		return &Envelope{raw: raw}, false
	}
	return &Envelope{raw: raw}, true
}

// ValueEnvelope builds a successful get reply holding value.
func ValueEnvelope(value []byte) *Envelope {
	raw, err := sjson.SetBytes([]byte(`{}`), "response.value", string(value))
	if err != nil {
		// sjson only fails on malformed paths.
		panic(err)
	}
	return &Envelope{raw: raw}
}

// PutEnvelope builds a successful put reply for key.
func PutEnvelope(key string) *Envelope {
	raw, _ := sjson.SetBytes([]byte(`{}`), "response.key", key)
	raw, _ = sjson.SetBytes(raw, "response.stored", true)
	return &Envelope{raw: raw}
}

// ErrorEnvelope builds a failed reply carrying message.
func ErrorEnvelope(code int, message string) *Envelope {
	raw, _ := sjson.SetBytes([]byte(`{}`), "error.code", code)
	raw, _ = sjson.SetBytes(raw, "error.message", message)
	return &Envelope{raw: raw}
}

// HasError reports whether the envelope carries an error marker.
func (e *Envelope) HasError() bool {
	if e == nil {
		return true
	}
	return gjson.GetBytes(e.raw, "error").Exists()
}

// Err returns the error marker as a Go error, nil if there is none.
func (e *Envelope) Err() error {
	if !e.HasError() {
		return nil
	}
	if e == nil {
		return fmt.Errorf("dht: empty envelope")
	}
	msg := gjson.GetBytes(e.raw, "error.message")
	if msg.Exists() {
		return fmt.Errorf("dht: %s", msg.String())
	}
	return fmt.Errorf("dht: %s", gjson.GetBytes(e.raw, "error").Raw)
}

// Value returns response.value. ok is false when the member is missing or
// is not a string.
func (e *Envelope) Value() (value string, ok bool) {
	if e == nil {
		return "", false
	}
	v := gjson.GetBytes(e.raw, "response.value")
	if v.Type != gjson.String {
		return "", false
	}
	return v.String(), true
}

// Bytes returns the raw JSON of the envelope.
func (e *Envelope) Bytes() []byte {
	if e == nil {
		return nil
	}
	return e.raw
}

func (e *Envelope) String() string {
	return string(e.Bytes())
}
