package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/config"
	"github.com/neroshop/neroshop-server/internal/market"
	"github.com/neroshop/neroshop-server/internal/price"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = t.TempDir()
	cfg.Network.Offline = true
	cfg.API.Enabled = false
	cfg.Market.PriceSource = "static"
	cfg.Market.StaticRates = map[string]float64{"XMR/USD": 200}
	return cfg
}

func TestOfflineAppPlacesOrders(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, offlineConfig(t))
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()
	if err := a.start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	key, err := a.publisher.Publish(ctx, &market.Listing{
		ID:       "l1",
		SellerID: "seller",
		Price:    decimal.NewFromInt(50),
		Currency: "USD",
		Quantity: 4,
		Product:  market.Product{ID: "p1", Name: "Hoodie"},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := a.carts.WithCart(ctx, "buyer", func(c *cart.Cart) error {
		return c.Add(cart.Item{ListingKey: key, Quantity: 2, SellerID: "seller"})
	}); err != nil {
		t.Fatalf("WithCart failed: %v", err)
	}

	res, err := a.orders.PlaceOrder(ctx, "buyer", "addr")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if got := res.Orders[0].Order.Total; !got.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("total = %s, want 0.5", got)
	}

	reports, err := a.reindex(ctx)
	if err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	if r := reports[codec.Listing]; r.Checked != 1 || r.Present != 1 {
		t.Errorf("listing sweep = %+v", r)
	}
	if r := reports[codec.Order]; r.Present != 1 {
		t.Errorf("order sweep = %+v", r)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Market.PriceSource = "carrier-pigeon"
	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown price source")
	}

	cfg = offlineConfig(t)
	cfg.Market.CanonicalCoin = "DOGE"
	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported canonical coin")
	}
}

func TestNewOracle(t *testing.T) {
	o, err := newOracle(config.MarketConfig{PriceSource: "static", StaticRates: map[string]float64{"XMR/EUR": 100}})
	if err != nil {
		t.Fatalf("newOracle failed: %v", err)
	}
	rate, err := o.Price(context.Background(), price.EUR, price.XMR)
	if err != nil || !rate.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("rate = %s, %v", rate, err)
	}

	if _, err := newOracle(config.MarketConfig{PriceSource: "static", StaticRates: map[string]float64{"bogus": 1}}); err == nil {
		t.Error("expected error for invalid pair")
	}
	o, err = newOracle(config.Default().Market)
	if err != nil {
		t.Fatalf("newOracle failed: %v", err)
	}
	if _, ok := o.(*price.Cached); !ok {
		t.Errorf("default oracle = %T, want *price.Cached", o)
	}
}
