package dht

import (
	"context"
	"errors"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/routing"
)

var log = logging.Logger("dht")

// RoutingClient adapts a libp2p value store (normally *dht.IpfsDHT) to the
// Client contract. Keys are stored under /<namespace>/<key>.
type RoutingClient struct {
	store     routing.ValueStore
	namespace string
}

// NewRoutingClient creates a client that prefixes every key with namespace.
func NewRoutingClient(store routing.ValueStore, namespace string) *RoutingClient {
	return &RoutingClient{
		store:     store,
		namespace: strings.Trim(namespace, "/"),
	}
}

// RecordKey returns the routing key used for a marketplace key.
func (c *RoutingClient) RecordKey(key string) string {
	return "/" + c.namespace + "/" + key
}

// Get fetches key. A value the network does not hold is reported as an
// error envelope; anything else that stops the lookup is a TransportError.
func (c *RoutingClient) Get(ctx context.Context, key string) (*Envelope, error) {
	value, err := c.store.GetValue(ctx, c.RecordKey(key))
	if err != nil {
		if errors.Is(err, routing.ErrNotFound) {
			log.Debugf("DHT miss for %s", key)
			return ErrorEnvelope(404, "value not found"), nil
		}
		if ctx.Err() != nil {
			return nil, &TransportError{Op: "get", Key: key, Err: ctx.Err()}
		}
		return nil, &TransportError{Op: "get", Key: key, Err: err}
	}
	return ValueEnvelope(value), nil
}

// Put stores value under key.
func (c *RoutingClient) Put(ctx context.Context, key string, value []byte) (*Envelope, error) {
	if err := c.store.PutValue(ctx, c.RecordKey(key), value); err != nil {
		// kad-dht rejects records failing the namespace validator locally.
		if isValidationError(err) {
			return ErrorEnvelope(400, err.Error()), nil
		}
		return nil, &TransportError{Op: "put", Key: key, Err: err}
	}
	return PutEnvelope(key), nil
}

func isValidationError(err error) bool {
	var invalid *InvalidRecordError
	return errors.As(err, &invalid)
}
