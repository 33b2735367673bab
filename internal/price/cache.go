package price

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
)

const snapshotKey = "snapshot"

// Cached keeps the last snapshot of an oracle for ttl. Oracles that cannot
// snapshot are cached per currency pair.
type Cached struct {
	inner     Oracle
	snapshots *expirable.LRU[string, *RateTable]
	pairs     *expirable.LRU[string, decimal.Decimal]
}

// NewCached wraps inner.
func NewCached(inner Oracle, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{
		inner:     inner,
		snapshots: expirable.NewLRU[string, *RateTable](1, nil, ttl),
		pairs:     expirable.NewLRU[string, decimal.Decimal](256, nil, ttl),
	}
}

// Snapshot returns the cached table, refreshing it when expired. It returns
// ErrNoSnapshot if the wrapped oracle cannot snapshot.
func (c *Cached) Snapshot(ctx context.Context) (*RateTable, error) {
	if t, ok := c.snapshots.Get(snapshotKey); ok {
		return t, nil
	}
	s, ok := c.inner.(Snapshotter)
	if !ok {
		return nil, ErrNoSnapshot
	}
	t, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	c.snapshots.Add(snapshotKey, t)
	log.Debugf("Refreshed rate snapshot with %d quotes", t.Len())
	return t, nil
}

// Price implements Oracle.
func (c *Cached) Price(ctx context.Context, from, to Currency) (decimal.Decimal, error) {
	if _, ok := c.inner.(Snapshotter); ok {
		t, err := c.Snapshot(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return t.Price(ctx, from, to)
	}

	pair := string(from) + "/" + string(to)
	if v, ok := c.pairs.Get(pair); ok {
		return v, nil
	}
	v, err := c.inner.Price(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	c.pairs.Add(pair, v)
	return v, nil
}

// Purge drops every cached rate.
func (c *Cached) Purge() {
	c.snapshots.Purge()
	c.pairs.Purge()
}
