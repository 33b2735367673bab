package dht

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport is matched by every failure to reach the DHT at all, as
// opposed to the DHT answering that a key is missing.
var ErrTransport = errors.New("dht transport failure")

// Client is the get/put surface of the DHT.
//
// Get returns an error envelope (and a nil error) when the DHT answered that
// the value is missing or unreadable. A non-nil error always means the DHT
// could not be reached and the caller may retry.
type Client interface {
	Get(ctx context.Context, key string) (*Envelope, error)
	Put(ctx context.Context, key string, value []byte) (*Envelope, error)
}

// TransportError describes a get or put that never produced a reply.
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dht %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsTransport reports whether err is a retryable transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
