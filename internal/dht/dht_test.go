package dht

import (
	"context"
	"errors"
	"testing"

	"github.com/libp2p/go-libp2p/core/routing"
)

// --- envelopes ---

func TestValueEnvelope(t *testing.T) {
	env := ValueEnvelope([]byte(`{"metadata":"listing","id":"1"}`))
	if env.HasError() {
		t.Fatal("value envelope should not carry an error")
	}
	v, ok := env.Value()
	if !ok {
		t.Fatalf("Value missing in %s", env)
	}
	if v != `{"metadata":"listing","id":"1"}` {
		t.Errorf("Value = %s", v)
	}
}

func TestErrorEnvelope(t *testing.T) {
	env := ErrorEnvelope(404, "value not found")
	if !env.HasError() {
		t.Fatal("error envelope should report an error")
	}
	if _, ok := env.Value(); ok {
		t.Error("error envelope should not carry a value")
	}
	if env.Err() == nil || env.Err().Error() != "dht: value not found" {
		t.Errorf("Err = %v", env.Err())
	}
}

func TestParseEnvelope(t *testing.T) {
	if _, ok := ParseEnvelope([]byte(`{"response":`)); ok {
		t.Error("truncated JSON should not parse")
	}
	env, ok := ParseEnvelope([]byte(`{"error":"boom"}`))
	if !ok || !env.HasError() {
		t.Fatal("string error should be detected")
	}
	if env.Err().Error() != `dht: "boom"` {
		t.Errorf("Err = %v", env.Err())
	}
	env, _ = ParseEnvelope([]byte(`{"response":{"value":42}}`))
	if _, ok := env.Value(); ok {
		t.Error("non-string value should not be returned")
	}
}

func TestNilEnvelope(t *testing.T) {
	var env *Envelope
	if !env.HasError() {
		t.Error("nil envelope should count as an error")
	}
	if env.Bytes() != nil {
		t.Error("nil envelope should have no bytes")
	}
}

// --- memory client ---

func TestMemoryClientGetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()

	env, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !env.HasError() {
		t.Error("missing key should produce an error envelope")
	}

	if _, err := m.Put(ctx, "k", []byte(`{"metadata":"user"}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	env, err = m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v, _ := env.Value(); v != `{"metadata":"user"}` {
		t.Errorf("Value = %s", v)
	}
	if m.PutCount() != 1 || m.GetCount() != 2 {
		t.Errorf("counts = %d puts, %d gets", m.PutCount(), m.GetCount())
	}
}

func TestMemoryClientFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()
	m.FailGets(errors.New("offline"))
	_, err := m.Get(ctx, "k")
	if !IsTransport(err) {
		t.Errorf("Get err = %v, want transport error", err)
	}
	m.FailGets(nil)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Errorf("Get after recovery failed: %v", err)
	}

	m.FailPuts(errors.New("offline"))
	if _, err := m.Put(ctx, "k", []byte(`{}`)); !IsTransport(err) {
		t.Errorf("Put err = %v, want transport error", err)
	}
}

func TestMemoryClientValidator(t *testing.T) {
	m := NewMemoryClient().WithValidator(NewValidator("listing"))
	env, err := m.Put(context.Background(), "k", []byte(`{"metadata":"spam"}`))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !env.HasError() {
		t.Error("rejected record should produce an error envelope")
	}
	if m.Len() != 0 {
		t.Error("rejected record should not be stored")
	}
}

func TestMemoryClientCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryClient().Get(ctx, "k"); !IsTransport(err) {
		t.Errorf("err = %v, want transport error", err)
	}
}

// --- routing adapter ---

type fakeValueStore struct {
	values map[string][]byte
	getErr error
	putErr error
}

func (f *fakeValueStore) PutValue(_ context.Context, key string, value []byte, _ ...routing.Option) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.values[key] = value
	return nil
}

func (f *fakeValueStore) GetValue(_ context.Context, key string, _ ...routing.Option) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return nil, routing.ErrNotFound
	}
	return v, nil
}

func (f *fakeValueStore) SearchValue(ctx context.Context, key string, opts ...routing.Option) (<-chan []byte, error) {
	ch := make(chan []byte, 1)
	if v, err := f.GetValue(ctx, key, opts...); err == nil {
		ch <- v
	}
	close(ch)
	return ch, nil
}

func TestRoutingClientNamespacesKeys(t *testing.T) {
	store := &fakeValueStore{values: map[string][]byte{}}
	c := NewRoutingClient(store, "/neroshop/")
	if _, err := c.Put(context.Background(), "abc", []byte(`{"metadata":"order"}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := store.values["/neroshop/abc"]; !ok {
		t.Errorf("stored keys = %v, want /neroshop/abc", store.values)
	}
	env, err := c.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v, _ := env.Value(); v != `{"metadata":"order"}` {
		t.Errorf("Value = %s", v)
	}
}

func TestRoutingClientNotFoundIsEnvelope(t *testing.T) {
	c := NewRoutingClient(&fakeValueStore{values: map[string][]byte{}}, "neroshop")
	env, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !env.HasError() {
		t.Error("not found should be an error envelope")
	}
}

func TestRoutingClientTransportErrors(t *testing.T) {
	store := &fakeValueStore{values: map[string][]byte{}, getErr: errors.New("no peers"), putErr: errors.New("no peers")}
	c := NewRoutingClient(store, "neroshop")

	_, err := c.Get(context.Background(), "k")
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "get" {
		t.Errorf("Get err = %v, want get TransportError", err)
	}
	if _, err := c.Put(context.Background(), "k", []byte(`{}`)); !IsTransport(err) {
		t.Errorf("Put err = %v, want transport error", err)
	}

	store.putErr = &InvalidRecordError{Key: "k", Reason: "missing metadata"}
	env, err := c.Put(context.Background(), "k", []byte(`{}`))
	if err != nil {
		t.Fatalf("validation failure should not be a transport error: %v", err)
	}
	if !env.HasError() {
		t.Error("validation failure should be an error envelope")
	}
}

// --- validator ---

func TestValidator(t *testing.T) {
	v := NewValidator("listing", "order")
	tests := []struct {
		name  string
		key   string
		value string
		ok    bool
	}{
		{"listing", "/neroshop/abc", `{"metadata":"listing"}`, true},
		{"bare key", "abc", `{"metadata":"order"}`, true},
		{"unknown metadata", "/neroshop/abc", `{"metadata":"spam"}`, false},
		{"missing metadata", "/neroshop/abc", `{"id":"1"}`, false},
		{"array", "/neroshop/abc", `["listing"]`, false},
		{"garbage", "/neroshop/abc", `{{`, false},
		{"empty key", "/neroshop", `{"metadata":"listing"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.key, []byte(tt.value))
			if (err == nil) != tt.ok {
				t.Errorf("Validate = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestValidatorSelectPrefersNewest(t *testing.T) {
	v := NewValidator("order")
	values := [][]byte{
		[]byte(`{"metadata":"order","created_at":"2024-01-01T00:00:00Z"}`),
		[]byte(`{"metadata":"order","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-02T00:00:00Z"}`),
		[]byte(`{"metadata":"spam","updated_at":"2030-01-01T00:00:00Z"}`),
	}
	i, err := v.Select("/neroshop/o", values)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if i != 1 {
		t.Errorf("Select = %d, want 1", i)
	}

	if _, err := v.Select("/neroshop/o", nil); err == nil {
		t.Error("Select with no values should fail")
	}
}
