package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"

	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/market"
	"github.com/neroshop/neroshop-server/internal/metrics"
	"github.com/neroshop/neroshop-server/internal/price"
)

var log = logging.Logger("order")

// Build modes.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// Announcer is told about every order that reached the DHT.
type Announcer interface {
	Announce(ctx context.Context, key string, o *Order) error
}

// Options configures a Builder. Zero values select the defaults.
type Options struct {
	Coin      price.Currency
	Announcer Announcer
	Metrics   *metrics.Metrics
	Now       func() time.Time
	NewID     func() string
}

// Builder turns carts into published orders, one per seller.
type Builder struct {
	resolver  *market.Resolver
	publisher *market.Publisher
	oracle    price.Oracle
	coin      price.Currency
	announcer Announcer
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
}

// NewBuilder creates a builder.
func NewBuilder(r *market.Resolver, p *market.Publisher, oracle price.Oracle, opts Options) *Builder {
	b := &Builder{
		resolver:  r,
		publisher: p,
		oracle:    oracle,
		coin:      opts.Coin,
		announcer: opts.Announcer,
		metrics:   opts.Metrics,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if b.coin == "" {
		b.coin = price.XMR
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newID == nil {
		b.newID = func() string { return uuid.New().String() }
	}
	return b
}

// Placed is one order produced by a build.
type Placed struct {
	Key   string `json:"key"`
	Order *Order `json:"order"`
	// Err is set when the order could not be published.
	Err error `json:"-"`
}

// Result is the outcome of a completed build.
type Result struct {
	Mode   string    `json:"mode"`
	Orders []*Placed `json:"orders"`
}

// Failed returns the orders that could not be published.
func (r *Result) Failed() []*Placed {
	var out []*Placed
	for _, p := range r.Orders {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// sellerGroup is the validated, priced part of a cart belonging to one seller.
type sellerGroup struct {
	sellerID string
	items    []cart.Item
	currency price.Currency
	amounts  Amounts // in currency
	rate     decimal.Decimal
	coin     Amounts // in the canonical coin
	atomic   AtomicAmounts
}

// Build validates every item of c, prices each seller's items in the
// canonical coin and publishes one order per seller.
//
// Validation and pricing failures, transport failures while resolving and
// context cancellation abort the build before anything is published and
// leave c untouched. Once publication starts the build always completes: a
// put that fails after retries is reported on its Placed entry, and c is
// emptied.
func (b *Builder) Build(ctx context.Context, c *cart.Cart, shippingAddress string) (*Result, error) {
	if c == nil || c.IsEmpty() {
		return nil, reject(ReasonEmptyCart, "", "nothing to order")
	}

	groups, err := b.validate(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := b.priceGroups(ctx, groups); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	orders := make([]*Order, len(groups))
	for i, g := range groups {
		o := b.construct(g, c.OwnerID, shippingAddress, now)
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("constructed invalid order: %w", err)
		}
		orders[i] = o
	}

	mode := ModeSingle
	if len(groups) > 1 {
		mode = ModeBatch
	}
	result := &Result{Mode: mode, Orders: make([]*Placed, 0, len(orders))}
	for _, o := range orders {
		result.Orders = append(result.Orders, b.publish(ctx, o))
	}

	c.Empty()
	b.metrics.Built(mode, len(orders))
	log.Infof("Built %d %s order(s) for %s, %d unpublished", len(orders), mode, c.OwnerID, len(result.Failed()))
	return result, nil
}

// Outcome is delivered by BuildAsync.
type Outcome struct {
	Result *Result
	Err    error
}

// BuildAsync runs Build in a goroutine. The channel receives exactly one
// Outcome and is then closed. The caller must not touch c until then.
func (b *Builder) BuildAsync(ctx context.Context, c *cart.Cart, shippingAddress string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := b.Build(ctx, c, shippingAddress)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}

// validate resolves every item and groups them by seller in first-seen order.
func (b *Builder) validate(ctx context.Context, c *cart.Cart) ([]*sellerGroup, error) {
	var groups []*sellerGroup
	bySeller := make(map[string]*sellerGroup)

	for _, item := range c.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item.Quantity <= 0 {
			return nil, reject(ReasonInvalidQuantity, item.ListingKey, "quantity %d", item.Quantity)
		}

		listing, err := b.resolver.Listing(ctx, item.ListingKey)
		if err != nil {
			if market.IsParseError(err) {
				return nil, &ValidationError{Reason: ReasonListingUnavailable, ListingKey: item.ListingKey, Err: err}
			}
			return nil, fmt.Errorf("failed to resolve listing %s: %w", item.ListingKey, err)
		}
		if listing == nil {
			return nil, reject(ReasonListingUnavailable, item.ListingKey, "listing not found")
		}

		if item.SellerID == "" || listing.SellerID == "" {
			return nil, reject(ReasonMissingSeller, item.ListingKey, "no seller id")
		}
		if item.SellerID != listing.SellerID {
			return nil, reject(ReasonSellerMismatch, item.ListingKey, "cart says %s, listing says %s", item.SellerID, listing.SellerID)
		}
		if item.SellerID == c.OwnerID {
			return nil, reject(ReasonSelfPurchase, item.ListingKey, "buyer is the seller")
		}
		if listing.Quantity <= 0 {
			return nil, reject(ReasonOutOfStock, item.ListingKey, "%s is out of stock", listing.Product.Name)
		}
		if listing.Quantity < item.Quantity {
			return nil, reject(ReasonInsufficientStock, item.ListingKey, "%d requested, %d available", item.Quantity, listing.Quantity)
		}
		if listing.Price.IsNegative() {
			return nil, reject(ReasonInvalidPrice, item.ListingKey, "price %s", listing.Price)
		}
		currency, err := price.ParseCurrency(listing.Currency)
		if err != nil {
			return nil, &ValidationError{Reason: ReasonUnsupportedCurrency, ListingKey: item.ListingKey, Err: err}
		}

		g, ok := bySeller[item.SellerID]
		if !ok {
			g = &sellerGroup{sellerID: item.SellerID, currency: currency}
			bySeller[item.SellerID] = g
			groups = append(groups, g)
		}
		if g.currency != currency {
			return nil, reject(ReasonMixedCurrency, item.ListingKey, "seller %s prices in %s and %s", g.sellerID, g.currency, currency)
		}
		g.items = append(g.items, item)
		g.amounts.Subtotal = g.amounts.Subtotal.Add(listing.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return groups, nil
}

// priceGroups converts every group with a single rate snapshot.
func (b *Builder) priceGroups(ctx context.Context, groups []*sellerGroup) error {
	oracle := b.oracle
	if s, ok := oracle.(price.Snapshotter); ok {
		table, err := s.Snapshot(ctx)
		switch {
		case err == nil:
			oracle = table
		case errors.Is(err, price.ErrNoSnapshot):
			// Rates are still memoized per currency below.
		default:
			return fmt.Errorf("failed to fetch exchange rates: %w", err)
		}
	}

	rates := make(map[price.Currency]decimal.Decimal)
	for _, g := range groups {
		rate, ok := rates[g.currency]
		if !ok {
			var err error
			rate, err = oracle.Price(ctx, g.currency, b.coin)
			if err != nil {
				if errors.Is(err, price.ErrNoRate) {
					return &ValidationError{Reason: ReasonNoRate, Detail: fmt.Sprintf("%s to %s", g.currency, b.coin), Err: err}
				}
				return fmt.Errorf("failed to price %s in %s: %w", g.currency, b.coin, err)
			}
			if !rate.IsPositive() {
				return &ValidationError{Reason: ReasonNoRate, Detail: fmt.Sprintf("rate %s for %s", rate, g.currency)}
			}
			rates[g.currency] = rate
		}
		g.rate = rate

		a := &g.amounts
		a.Total = a.Subtotal.Sub(a.Discount).Add(a.ShippingCost)
		if !a.Balanced() {
			return fmt.Errorf("unbalanced %s amounts for seller %s", g.currency, g.sellerID)
		}

		g.coin = convert(*a, rate)
		if !g.coin.Balanced() {
			return fmt.Errorf("unbalanced %s amounts for seller %s", b.coin, g.sellerID)
		}

		atomic, err := toAtomic(g.coin)
		if err != nil {
			return &ValidationError{Reason: ReasonInvalidPrice, Detail: fmt.Sprintf("seller %s", g.sellerID), Err: err}
		}
		g.atomic = atomic
	}
	return nil
}

// convert scales each component by rate and rounds it to whole piconero,
// then derives the total from the rounded parts so it stays balanced.
func convert(a Amounts, rate decimal.Decimal) Amounts {
	out := Amounts{
		Subtotal:     price.RoundXMR(a.Subtotal.Mul(rate)),
		Discount:     price.RoundXMR(a.Discount.Mul(rate)),
		ShippingCost: price.RoundXMR(a.ShippingCost.Mul(rate)),
	}
	out.Total = out.Subtotal.Sub(out.Discount).Add(out.ShippingCost)
	return out
}

func toAtomic(a Amounts) (AtomicAmounts, error) {
	var out AtomicAmounts
	var err error
	if out.Subtotal, err = price.ToAtomic(a.Subtotal); err != nil {
		return out, err
	}
	if out.Discount, err = price.ToAtomic(a.Discount); err != nil {
		return out, err
	}
	if out.ShippingCost, err = price.ToAtomic(a.ShippingCost); err != nil {
		return out, err
	}
	if out.Total, err = price.ToAtomic(a.Total); err != nil {
		return out, err
	}
	if !out.Balanced() {
		return out, fmt.Errorf("atomic amounts do not balance")
	}
	return out, nil
}

func (b *Builder) construct(g *sellerGroup, customerID, shippingAddress string, now time.Time) *Order {
	items := make([]cart.Item, len(g.items))
	copy(items, g.items)
	return &Order{
		ID:             b.newID(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Status:         StatusNew,
		CustomerID:     customerID,
		Subtotal:       g.coin.Subtotal,
		Discount:       g.coin.Discount,
		ShippingCost:   g.coin.ShippingCost,
		Total:          g.coin.Total,
		Atomic:         g.atomic,
		PricedIn:       string(g.currency),
		ExchangeRate:   g.rate,
		PaymentOption:  PaymentEscrow,
		PaymentCoin:    paymentCoinFor(b.coin),
		DeliveryOption: DeliveryShip,
		Notes:          shippingAddress,
		Items:          items,
	}
}

func paymentCoinFor(c price.Currency) PaymentCoin {
	if c == price.XMR {
		return CoinMonero
	}
	return CoinNone
}

func (b *Builder) publish(ctx context.Context, o *Order) *Placed {
	key, err := b.publisher.Publish(ctx, o)
	placed := &Placed{Key: key, Order: o, Err: err}
	if err != nil {
		log.Errorf("Failed to publish order %s: %v", o.ID, err)
		b.metrics.Published("failed")
		return placed
	}
	b.metrics.Published("ok")

	if b.announcer != nil {
		if err := b.announcer.Announce(ctx, key, o); err != nil {
			log.Warnf("Failed to announce order %s: %v", o.ID, err)
		}
	}
	return placed
}
