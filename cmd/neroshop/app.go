package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/neroshop/neroshop-server/internal/api"
	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/config"
	"github.com/neroshop/neroshop-server/internal/dht"
	"github.com/neroshop/neroshop-server/internal/market"
	"github.com/neroshop/neroshop-server/internal/metrics"
	"github.com/neroshop/neroshop-server/internal/node"
	"github.com/neroshop/neroshop-server/internal/order"
	"github.com/neroshop/neroshop-server/internal/price"
	"github.com/neroshop/neroshop-server/internal/storage"
)

// app holds every long-lived component of the daemon.
type app struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	node      *node.Node // nil when offline
	db        *storage.DB
	resolver  *market.Resolver
	publisher *market.Publisher
	catalog   *market.Catalog
	carts     *cart.Store
	orders    *order.Service
	announcer *order.PubSubAnnouncer
	api       *api.Server
}

// newApp wires the components described by cfg. The network is not started.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	var client dht.Client
	if cfg.Network.Offline {
		log.Warn("Running offline: DHT values live in memory only")
		client = dht.NewMemoryClient().WithValidator(dht.NewValidator(codec.MetadataStrings()...))
	} else {
		n, err := node.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create node: %w", err)
		}
		a.node = n
		client = n.DHTClient()
	}

	var err error
	a.db, err = storage.Open(cfg.DatabasePath())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.resolver, err = market.NewResolver(client, a.db.Index(), m)
	if err != nil {
		a.close()
		return nil, err
	}
	a.publisher = market.NewPublisher(client, a.db.Index(), market.RetryPolicy{
		MaxRetries:      cfg.Orders.PublishMaxRetries,
		InitialInterval: cfg.Orders.PublishInitialInterval,
		MaxElapsed:      cfg.Orders.PublishMaxElapsed,
	}, m)
	a.catalog = market.NewCatalog(a.resolver)

	a.carts, err = cart.NewStore(a.db.SQL(), cart.Limits{
		MaxItems:    cfg.Orders.CartMaxItems,
		MaxQuantity: cfg.Orders.CartMaxQuantity,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	oracle, err := newOracle(cfg.Market)
	if err != nil {
		a.close()
		return nil, err
	}
	coin, err := price.ParseCurrency(cfg.Market.CanonicalCoin)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("invalid market.canonical_coin: %w", err)
	}

	opts := order.Options{Coin: coin, Metrics: m}
	if a.node != nil {
		a.announcer, err = order.NewPubSubAnnouncer(a.node.PubSub(), cfg.Orders.AnnounceTopic)
		if err != nil {
			log.Warnf("Order announcements disabled: %v", err)
		} else {
			opts.Announcer = a.announcer
		}
	}
	builder := order.NewBuilder(a.resolver, a.publisher, oracle, opts)
	a.orders = order.NewService(a.carts, builder, a.resolver, a.publisher, cfg.Orders.CancelWindow)

	if cfg.API.Enabled {
		apiOpts := api.Options{RatePerSecond: cfg.API.RatePerSecond, Burst: cfg.API.Burst}
		if cfg.API.EnableMetrics {
			apiOpts.Gatherer = a.registry
		}
		a.api = api.New(a.catalog, a.carts, a.orders, apiOpts)
	}
	return a, nil
}

// newOracle builds the exchange-rate source named by cfg.
func newOracle(cfg config.MarketConfig) (price.Oracle, error) {
	switch strings.ToLower(cfg.PriceSource) {
	case "static":
		table, err := price.NewStaticOracle(cfg.StaticRates)
		if err != nil {
			return nil, fmt.Errorf("invalid market.static_rates: %w", err)
		}
		return table, nil
	case "", "cointelegraph":
		return price.NewCached(price.NewCoinTelegraph(cfg.TickerURL, cfg.RequestTimeout), cfg.RateCacheTTL), nil
	default:
		return nil, fmt.Errorf("unknown market.price_source %q", cfg.PriceSource)
	}
}

// start brings up the network and the API.
func (a *app) start(ctx context.Context) error {
	if a.node != nil {
		if err := a.node.Start(ctx); err != nil {
			return fmt.Errorf("failed to start node: %w", err)
		}
		log.Infof("Peer ID: %s", a.node.PeerID())
		for _, addr := range a.node.ListenAddrs() {
			log.Infof("Listening on: %s", addr)
		}
	}
	if a.api != nil {
		if err := a.api.Start(a.cfg.API.ListenAddr); err != nil {
			return fmt.Errorf("failed to start API: %w", err)
		}
		log.Infof("Marketplace API available at http://%s/api/listings", a.cfg.API.ListenAddr)
	}
	return nil
}

// reindex sweeps every content type out of the local index.
func (a *app) reindex(ctx context.Context) (map[codec.ContentType]market.SweepReport, error) {
	reports := make(map[codec.ContentType]market.SweepReport, len(codec.ContentTypes))
	for _, content := range codec.ContentTypes {
		report, err := a.resolver.Sweep(ctx, content)
		reports[content] = report
		if err != nil {
			return reports, fmt.Errorf("sweep of %s failed: %w", content, err)
		}
	}
	return reports, nil
}

func (a *app) close() {
	if a.api != nil {
		if err := a.api.Stop(context.Background()); err != nil {
			log.Warnf("API shutdown error: %v", err)
		}
	}
	if a.announcer != nil {
		if err := a.announcer.Close(); err != nil {
			log.Warnf("Announcer close error: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warnf("Storage close error: %v", err)
		}
	}
	if a.node != nil {
		if err := a.node.Stop(); err != nil {
			log.Warnf("Node shutdown error: %v", err)
		}
	}
}
