package dht

import (
	"fmt"
	"strings"
	"time"

	record "github.com/libp2p/go-libp2p-record"
	"github.com/tidwall/gjson"
)

// InvalidRecordError is returned by Validator for values that may not be
// stored under the marketplace namespace.
type InvalidRecordError struct {
	Key    string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record %s: %s", e.Key, e.Reason)
}

// Validator is the kad-dht record validator for the marketplace namespace.
// It accepts JSON objects whose metadata is one of the allowed discriminators.
type Validator struct {
	allowed map[string]struct{}
}

var _ record.Validator = (*Validator)(nil)

// NewValidator accepts records tagged with any of metadata.
func NewValidator(metadata ...string) *Validator {
	allowed := make(map[string]struct{}, len(metadata))
	for _, m := range metadata {
		allowed[m] = struct{}{}
	}
	return &Validator{allowed: allowed}
}

// Validate implements record.Validator.
func (v *Validator) Validate(key string, value []byte) error {
	if stripNamespace(key) == "" {
		return &InvalidRecordError{Key: key, Reason: "empty key"}
	}
	if !gjson.ValidBytes(value) {
		return &InvalidRecordError{Key: key, Reason: "value is not JSON"}
	}
	parsed := gjson.ParseBytes(value)
	if !parsed.IsObject() {
		return &InvalidRecordError{Key: key, Reason: "value is not a JSON object"}
	}
	meta := parsed.Get("metadata")
	if meta.Type != gjson.String {
		return &InvalidRecordError{Key: key, Reason: "missing metadata"}
	}
	if _, ok := v.allowed[meta.String()]; !ok {
		return &InvalidRecordError{Key: key, Reason: "unknown metadata " + meta.String()}
	}
	return nil
}

// Select implements record.Validator. The record with the latest updated_at
// (or created_at/date when absent) wins; ties keep the earliest candidate.
func (v *Validator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("no values to select for %s", key)
	}
	best := -1
	var bestTime time.Time
	for i, value := range values {
		if v.Validate(key, value) != nil {
			continue
		}
		t := recordTime(value)
		if best < 0 || t.After(bestTime) {
			best, bestTime = i, t
		}
	}
	if best < 0 {
		return 0, &InvalidRecordError{Key: key, Reason: "no valid candidates"}
	}
	return best, nil
}

func recordTime(value []byte) time.Time {
	for _, field := range []string{"updated_at", "created_at", "date"} {
		r := gjson.GetBytes(value, field)
		if r.Type != gjson.String {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, r.String()); err == nil {
			return t
		}
	}
	return time.Time{}
}

// stripNamespace turns "/neroshop/abc" into "abc" and leaves bare keys alone.
func stripNamespace(key string) string {
	if !strings.HasPrefix(key, "/") {
		return key
	}
	parts := strings.SplitN(strings.TrimPrefix(key, "/"), "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
