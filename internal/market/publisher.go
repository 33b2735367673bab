package market

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/dht"
	"github.com/neroshop/neroshop-server/internal/metrics"
	"github.com/neroshop/neroshop-server/internal/storage"
)

// RetryPolicy bounds publish retries on transport failures.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy returns the stock policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: 500 * time.Millisecond, MaxElapsed: 15 * time.Second}
}

// PublishError reports a value that could not be stored.
type PublishError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish %s after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher stores entities in the DHT and indexes them locally.
type Publisher struct {
	client  dht.Client
	index   *storage.Index
	policy  RetryPolicy
	metrics *metrics.Metrics
}

// NewPublisher creates a publisher. m may be nil.
func NewPublisher(client dht.Client, index *storage.Index, policy RetryPolicy, m *metrics.Metrics) *Publisher {
	return &Publisher{client: client, index: index, policy: policy, metrics: m}
}

// Publish encodes e, puts it and records its search terms. Transport
// failures are retried with exponential backoff; a put the DHT refuses is
// not. Index failures after a successful put are logged only.
func (p *Publisher) Publish(ctx context.Context, e Indexed) (string, error) {
	key, value, err := codec.Encode(e)
	if err != nil {
		return "", err
	}
	if err := p.Put(ctx, key, value); err != nil {
		return key, err
	}

	rows := make([]storage.Row, 0, len(e.SearchTerms()))
	for _, term := range e.SearchTerms() {
		rows = append(rows, storage.Row{SearchTerm: term, Key: key, Content: string(e.IndexContent())})
	}
	if err := p.index.InsertRows(ctx, rows); err != nil {
		log.Warnf("Published %s but failed to index it: %v", key, err)
	}
	return key, nil
}

// Put stores an already encoded value under key.
func (p *Publisher) Put(ctx context.Context, key string, value []byte) error {
	b := backoff.NewExponentialBackOff()
	if p.policy.InitialInterval > 0 {
		b.InitialInterval = p.policy.InitialInterval
	}
	if p.policy.MaxElapsed > 0 {
		b.MaxElapsedTime = p.policy.MaxElapsed
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.policy.MaxRetries), ctx)

	attempts := 0
	op := func() error {
		attempts++
		p.metrics.PutAttempted()
		env, err := p.client.Put(ctx, key, value)
		if err != nil {
			if dht.IsTransport(err) && ctx.Err() == nil {
				log.Debugf("Put %s attempt %d failed: %v", key, attempts, err)
				return err
			}
			return backoff.Permanent(err)
		}
		if env.HasError() {
			return backoff.Permanent(env.Err())
		}
		log.Debugf("Put %s: %s", key, env)
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return &PublishError{Key: key, Attempts: attempts, Err: err}
	}
	return nil
}
