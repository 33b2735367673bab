package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTable(t *testing.T) *RateTable {
	t.Helper()
	table, err := NewStaticOracle(map[string]float64{
		"XMR/USD": 160,
		"XMR/EUR": 150,
		"BTC/USD": 64000,
	})
	if err != nil {
		t.Fatalf("NewStaticOracle failed: %v", err)
	}
	return table
}

// --- currencies ---

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" xmr ")
	if err != nil || c != XMR {
		t.Errorf("ParseCurrency = %s, %v", c, err)
	}
	if _, err := ParseCurrency("DOGE"); err == nil {
		t.Error("DOGE should be unsupported")
	}
	if !XAU.IsFiat() || XAU.IsCrypto() {
		t.Error("XAU should be treated as fiat")
	}
	if XMR.Sign() != "ɱ" {
		t.Errorf("XMR sign = %s", XMR.Sign())
	}
}

// --- rate table ---

func TestRateTablePrice(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)

	tests := []struct {
		name     string
		from, to Currency
		want     string
	}{
		{"same", USD, USD, "1"},
		{"crypto to fiat", XMR, USD, "160"},
		{"fiat to crypto", USD, XMR, "0.00625"},
		{"crypto to crypto", BTC, XMR, "400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Price(ctx, tt.from, tt.to)
			if err != nil {
				t.Fatalf("Price failed: %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("Price(%s, %s) = %s, want %s", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRateTableNoRate(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)

	for _, pair := range [][2]Currency{
		{USD, EUR},    // fiat to fiat
		{XMR, JPY},    // missing quote
		{ETH, XMR},    // missing cross rate
		{"DOGE", XMR}, // unsupported
		{GBP, BTC},    // missing inverse quote
	} {
		if _, err := table.Price(ctx, pair[0], pair[1]); !errors.Is(err, ErrNoRate) {
			t.Errorf("Price(%s, %s) err = %v, want ErrNoRate", pair[0], pair[1], err)
		}
	}
}

func TestRateTableSetRejectsBadQuotes(t *testing.T) {
	table := NewRateTable()
	if err := table.Set(USD, XMR, d("1")); err == nil {
		t.Error("fiat/crypto quote should be rejected")
	}
	if err := table.Set(XMR, USD, d("0")); err == nil {
		t.Error("zero quote should be rejected")
	}
	if _, err := NewStaticOracle(map[string]float64{"XMRUSD": 1}); err == nil {
		t.Error("pair without slash should be rejected")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	snap, _ := table.Snapshot(ctx)
	table.Set(XMR, USD, d("1"))

	got, _ := snap.Price(ctx, XMR, USD)
	if !got.Equal(d("160")) {
		t.Errorf("snapshot changed to %s", got)
	}
}

// --- cointelegraph ---

const tickerBody = `{"data":{
	"XMR":{"USD":{"price":160.5},"EUR":{"price":"148.25"}},
	"BTC":{"USD":{"price":64000}},
	"ETH":{"USD":{"price":"n/a"}}
}}`

func TestCoinTelegraphSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tickerBody))
	}))
	defer srv.Close()

	ct := NewCoinTelegraph(srv.URL, time.Second)
	table, err := ct.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("Len = %d, want 3", table.Len())
	}
	got, err := ct.Price(context.Background(), XMR, EUR)
	if err != nil || !got.Equal(d("148.25")) {
		t.Errorf("Price = %s, %v", got, err)
	}
	if _, err := ct.Price(context.Background(), USD, EUR); !errors.Is(err, ErrNoRate) {
		t.Errorf("fiat to fiat err = %v, want ErrNoRate", err)
	}
}

func TestCoinTelegraphErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			http.Error(w, "down", http.StatusBadGateway)
		case "/garbage":
			w.Write([]byte("<html>"))
		default:
			w.Write([]byte(`{"data":{}}`))
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/down", "/garbage", "/empty"} {
		if _, err := NewCoinTelegraph(srv.URL+path, time.Second).Snapshot(context.Background()); err == nil {
			t.Errorf("Snapshot(%s) should fail", path)
		}
	}
}

// --- cache ---

type countingOracle struct {
	calls atomic.Int32
}

func (o *countingOracle) Price(context.Context, Currency, Currency) (decimal.Decimal, error) {
	o.calls.Add(1)
	return d("2"), nil
}

func TestCachedSnapshotsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(tickerBody))
	}))
	defer srv.Close()

	c := NewCached(NewCoinTelegraph(srv.URL, time.Second), time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := c.Price(context.Background(), XMR, USD); err != nil {
			t.Fatalf("Price failed: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("ticker hit %d times, want 1", hits.Load())
	}
	c.Purge()
	c.Price(context.Background(), XMR, USD)
	if hits.Load() != 2 {
		t.Errorf("ticker hit %d times after purge, want 2", hits.Load())
	}
}

func TestCachedPairs(t *testing.T) {
	inner := &countingOracle{}
	c := NewCached(inner, time.Minute)
	c.Price(context.Background(), XMR, USD)
	c.Price(context.Background(), XMR, USD)
	c.Price(context.Background(), XMR, EUR)
	if inner.calls.Load() != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls.Load())
	}
	if _, err := c.Snapshot(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Snapshot err = %v, want ErrNoSnapshot", err)
	}
}

// --- atomic units ---

func TestToAtomic(t *testing.T) {
	units, err := ToAtomic(d("1.5"))
	if err != nil || units != 1_500_000_000_000 {
		t.Errorf("ToAtomic(1.5) = %d, %v", units, err)
	}
	units, _ = ToAtomic(d("0.0000000000005"))
	if units != 1 {
		t.Errorf("ToAtomic rounds half up, got %d", units)
	}
	if _, err := ToAtomic(d("-1")); err == nil {
		t.Error("negative amount should fail")
	}
	if _, err := ToAtomic(d("100000000")); err == nil {
		t.Error("overflowing amount should fail")
	}
	if !FromAtomic(1_500_000_000_000).Equal(d("1.5")) {
		t.Errorf("FromAtomic = %s", FromAtomic(1_500_000_000_000))
	}
}
