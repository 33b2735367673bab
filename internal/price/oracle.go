package price

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
)

var log = logging.Logger("price")

var (
	// ErrNoRate means no conversion exists between two currencies.
	ErrNoRate = errors.New("no exchange rate")
	// ErrNoSnapshot is returned by wrappers whose oracle cannot snapshot.
	ErrNoSnapshot = errors.New("oracle cannot snapshot")
)

// Oracle answers how many units of to one unit of from is worth.
type Oracle interface {
	Price(ctx context.Context, from, to Currency) (decimal.Decimal, error)
}

// Snapshotter is implemented by oracles that can freeze their current rates,
// so a caller pricing several amounts gets consistent answers.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*RateTable, error)
}

// RateTable holds quotes of cryptocurrencies in fiat currencies.
type RateTable struct {
	mu     sync.RWMutex
	quotes map[Currency]map[Currency]decimal.Decimal
}

// NewRateTable creates an empty table.
func NewRateTable() *RateTable {
	return &RateTable{quotes: make(map[Currency]map[Currency]decimal.Decimal)}
}

// Set records that one unit of crypto costs price units of fiat.
func (t *RateTable) Set(crypto, fiat Currency, price decimal.Decimal) error {
	if !crypto.IsCrypto() || !fiat.IsFiat() {
		return fmt.Errorf("quote %s/%s must be crypto/fiat", crypto, fiat)
	}
	if !price.IsPositive() {
		return fmt.Errorf("quote %s/%s must be positive", crypto, fiat)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quotes[crypto] == nil {
		t.quotes[crypto] = make(map[Currency]decimal.Decimal)
	}
	t.quotes[crypto][fiat] = price
	return nil
}

// Len returns the number of quotes.
func (t *RateTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, q := range t.quotes {
		n += len(q)
	}
	return n
}

func (t *RateTable) quote(crypto, fiat Currency) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.quotes[crypto][fiat]
	return q, ok
}

// Price implements Oracle.
//
// Fiat to fiat has no rate. Crypto to crypto goes through USD.
func (t *RateTable) Price(_ context.Context, from, to Currency) (decimal.Decimal, error) {
	if !from.Supported() || !to.Supported() {
		return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrNoRate, from, to)
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	switch {
	case from.IsFiat() && to.IsFiat():
		return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrNoRate, from, to)

	case from.IsCrypto() && to.IsFiat():
		if q, ok := t.quote(from, to); ok {
			return q, nil
		}

	case from.IsCrypto() && to.IsCrypto():
		a, okA := t.quote(from, USD)
		b, okB := t.quote(to, USD)
		if okA && okB {
			return a.DivRound(b, 18), nil
		}

	case from.IsFiat() && to.IsCrypto():
		if q, ok := t.quote(to, from); ok {
			return decimal.NewFromInt(1).DivRound(q, 18), nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrNoRate, from, to)
}

// Snapshot implements Snapshotter by copying the table.
func (t *RateTable) Snapshot(context.Context) (*RateTable, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := NewRateTable()
	for c, q := range t.quotes {
		out.quotes[c] = make(map[Currency]decimal.Decimal, len(q))
		for f, v := range q {
			out.quotes[c][f] = v
		}
	}
	return out, nil
}

// NewStaticOracle builds a table from "CRYPTO/FIAT" keyed quotes, for example
// {"XMR/USD": 160.5}.
func NewStaticOracle(rates map[string]float64) (*RateTable, error) {
	t := NewRateTable()
	for pair, v := range rates {
		parts := strings.SplitN(pair, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid rate pair %q", pair)
		}
		crypto, err := ParseCurrency(parts[0])
		if err != nil {
			return nil, err
		}
		fiat, err := ParseCurrency(parts[1])
		if err != nil {
			return nil, err
		}
		if err := t.Set(crypto, fiat, decimal.NewFromFloat(v)); err != nil {
			return nil, err
		}
	}
	return t, nil
}
