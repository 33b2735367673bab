package market

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/tidwall/gjson"

	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/dht"
	"github.com/neroshop/neroshop-server/internal/metrics"
	"github.com/neroshop/neroshop-server/internal/storage"
)

var log = logging.Logger("market")

// Resolver turns DHT keys into metadata-checked values and drops index rows
// for keys the DHT no longer holds.
type Resolver struct {
	client  dht.Client
	index   *storage.Index
	metrics *metrics.Metrics
}

// NewResolver creates a resolver. m may be nil.
func NewResolver(client dht.Client, index *storage.Index, m *metrics.Metrics) (*Resolver, error) {
	if client == nil {
		return nil, fmt.Errorf("dht client is required")
	}
	if index == nil {
		return nil, storage.ErrUnavailable
	}
	return &Resolver{client: client, index: index, metrics: m}, nil
}

// Index returns the local index the resolver maintains.
func (r *Resolver) Index() *storage.Index {
	return r.index
}

// Resolve fetches key and returns its value if it is a JSON object tagged
// with the metadata of expected.
//
// A nil value with a nil error means the entity is absent: the DHT reported
// an error for key (its index rows are then deleted), the value is not an
// object, or it carries other metadata (rows are kept). Transport failures
// and an unusable index are returned as errors, as is a value that is not
// JSON at all (*codec.ParseError).
func (r *Resolver) Resolve(ctx context.Context, key string, expected codec.ContentType) ([]byte, error) {
	content := string(expected)

	env, err := r.client.Get(ctx, key)
	if err != nil {
		r.metrics.Resolved(content, metrics.ResultError)
		return nil, err
	}

	if env.HasError() {
		n, err := r.index.DeleteByKey(ctx, key)
		if err != nil {
			r.metrics.Resolved(content, metrics.ResultError)
			return nil, fmt.Errorf("failed to evict stale key %s: %w", key, err)
		}
		if n > 0 {
			log.Infof("Evicted stale %s key %s (%d rows): %v", expected, key, n, env.Err())
			r.metrics.Evicted()
		}
		r.metrics.Resolved(content, metrics.ResultMissing)
		return nil, nil
	}

	value, ok := env.Value()
	if !ok {
		r.metrics.Resolved(content, metrics.ResultMalformed)
		return nil, &codec.ParseError{Key: key, Reason: "envelope has no response value"}
	}
	if !gjson.Valid(value) {
		r.metrics.Resolved(content, metrics.ResultMalformed)
		return nil, &codec.ParseError{Key: key, Reason: "value is not JSON"}
	}
	if !gjson.Parse(value).IsObject() {
		log.Debugf("Value of %s is not an object", key)
		r.metrics.Resolved(content, metrics.ResultMissing)
		return nil, nil
	}

	meta, _ := codec.Metadata([]byte(value))
	if meta != expected.Metadata() {
		log.Warnf("Type mismatch for %s: expected %s, got %q", key, expected.Metadata(), meta)
		r.metrics.Resolved(content, metrics.ResultMismatch)
		return nil, nil
	}

	r.metrics.Resolved(content, metrics.ResultFound)
	return []byte(value), nil
}

// resolveAs resolves key and decodes it into a new T.
func resolveAs[T any](ctx context.Context, r *Resolver, key string, expected codec.ContentType) (*T, error) {
	value, err := r.Resolve(ctx, key, expected)
	if err != nil || value == nil {
		return nil, err
	}
	out := new(T)
	if err := codec.Decode(key, value, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Listing resolves a listing. It returns nil, nil when absent.
func (r *Resolver) Listing(ctx context.Context, key string) (*Listing, error) {
	return resolveAs[Listing](ctx, r, key, codec.Listing)
}

// User resolves a user account.
func (r *Resolver) User(ctx context.Context, key string) (*User, error) {
	return resolveAs[User](ctx, r, key, codec.Account)
}

// ProductRating resolves a product rating.
func (r *Resolver) ProductRating(ctx context.Context, key string) (*ProductRating, error) {
	return resolveAs[ProductRating](ctx, r, key, codec.ProductRating)
}

// SellerRating resolves a seller rating.
func (r *Resolver) SellerRating(ctx context.Context, key string) (*SellerRating, error) {
	return resolveAs[SellerRating](ctx, r, key, codec.SellerRating)
}

// Decode resolves key as expected and decodes it into dst. found is false
// when the entity is absent.
func (r *Resolver) Decode(ctx context.Context, key string, expected codec.ContentType, dst any) (found bool, err error) {
	value, err := r.Resolve(ctx, key, expected)
	if err != nil || value == nil {
		return false, err
	}
	if err := codec.Decode(key, value, dst); err != nil {
		return false, err
	}
	return true, nil
}

// IsParseError reports whether err only spoils one resolution.
func IsParseError(err error) bool {
	var pe *codec.ParseError
	return errors.As(err, &pe)
}
