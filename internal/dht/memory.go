package dht

import (
	"context"
	"sync"
)

// MemoryClient is an in-process Client backed by a map. It is used when the
// daemon runs offline and by tests, which can also make it fail on demand.
type MemoryClient struct {
	mu        sync.RWMutex
	data      map[string][]byte
	validator *Validator

	getErr error
	putErr error
	puts   int
	gets   int
}

// NewMemoryClient creates an empty in-memory DHT.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{data: make(map[string][]byte)}
}

// WithValidator makes Put reject values the record validator refuses, the
// way a kad-dht node would.
func (m *MemoryClient) WithValidator(v *Validator) *MemoryClient {
	m.validator = v
	return m
}

// Get implements Client.
func (m *MemoryClient) Get(ctx context.Context, key string) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "get", Key: key, Err: err}
	}
	m.mu.Lock()
	m.gets++
	failure := m.getErr
	value, ok := m.data[key]
	m.mu.Unlock()

	if failure != nil {
		return nil, &TransportError{Op: "get", Key: key, Err: failure}
	}
	if !ok {
		return ErrorEnvelope(404, "value not found"), nil
	}
	return ValueEnvelope(value), nil
}

// Put implements Client.
func (m *MemoryClient) Put(ctx context.Context, key string, value []byte) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "put", Key: key, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return nil, &TransportError{Op: "put", Key: key, Err: m.putErr}
	}
	if m.validator != nil {
		if err := m.validator.Validate(key, value); err != nil {
			return ErrorEnvelope(400, err.Error()), nil
		}
	}
	m.data[key] = append([]byte(nil), value...)
	return PutEnvelope(key), nil
}

// Set stores a raw value without validation.
func (m *MemoryClient) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

// Delete drops key so later gets miss.
func (m *MemoryClient) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Raw returns the stored value for key.
func (m *MemoryClient) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Len returns the number of stored values.
func (m *MemoryClient) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// FailGets makes every Get return a transport error wrapping err until
// called again with nil.
func (m *MemoryClient) FailGets(err error) {
	m.mu.Lock()
	m.getErr = err
	m.mu.Unlock()
}

// FailPuts does the same for Put.
func (m *MemoryClient) FailPuts(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

// PutCount returns how many puts were attempted.
func (m *MemoryClient) PutCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// GetCount returns how many gets were attempted.
func (m *MemoryClient) GetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets
}
