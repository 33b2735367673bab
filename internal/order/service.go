package order

import (
	"context"
	"fmt"
	"time"

	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/market"
)

// DefaultCancelWindow is how long after placing an order the buyer may cancel.
const DefaultCancelWindow = 12 * time.Hour

// Service places orders from stored carts and manages published orders.
type Service struct {
	carts        *cart.Store
	builder      *Builder
	resolver     *market.Resolver
	publisher    *market.Publisher
	cancelWindow time.Duration
	now          func() time.Time
}

// NewService creates an order service.
func NewService(carts *cart.Store, builder *Builder, resolver *market.Resolver, publisher *market.Publisher, cancelWindow time.Duration) *Service {
	if cancelWindow <= 0 {
		cancelWindow = DefaultCancelWindow
	}
	return &Service{
		carts:        carts,
		builder:      builder,
		resolver:     resolver,
		publisher:    publisher,
		cancelWindow: cancelWindow,
		now:          builder.now,
	}
}

// PlaceOrder builds orders from the owner's cart. The stored cart is only
// emptied when the build completes.
func (s *Service) PlaceOrder(ctx context.Context, ownerID, shippingAddress string) (*Result, error) {
	var result *Result
	err := s.carts.WithCart(ctx, ownerID, func(c *cart.Cart) error {
		res, err := s.builder.Build(ctx, c, shippingAddress)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get resolves a published order.
func (s *Service) Get(ctx context.Context, key string) (*Order, error) {
	var o Order
	found, err := s.resolver.Decode(ctx, key, codec.Order, &o)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &o, nil
}

// OrdersByCustomer returns the orders placed by customerID.
func (s *Service) OrdersByCustomer(ctx context.Context, customerID string) ([]*Order, error) {
	return s.ordersByTerm(ctx, customerID, func(o *Order) bool { return o.CustomerID == customerID })
}

// OrdersBySeller returns the orders containing items of sellerID.
func (s *Service) OrdersBySeller(ctx context.Context, sellerID string) ([]*Order, error) {
	return s.ordersByTerm(ctx, sellerID, func(o *Order) bool {
		for _, id := range o.Sellers() {
			if id == sellerID {
				return true
			}
		}
		return false
	})
}

func (s *Service) ordersByTerm(ctx context.Context, term string, keep func(*Order) bool) ([]*Order, error) {
	keys, err := s.resolver.Index().KeysByTerm(ctx, term, string(codec.Order))
	if err != nil {
		return nil, err
	}
	var out []*Order
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, err := s.Get(ctx, key)
		if err != nil {
			if market.IsParseError(err) || isNotFound(err) {
				continue
			}
			return nil, err
		}
		if keep(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Cancel cancels an order on behalf of actor and republishes it.
func (s *Service) Cancel(ctx context.Context, key, actor string) (*Order, error) {
	o, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := o.Cancel(actor, s.now(), s.cancelWindow); err != nil {
		return nil, err
	}
	if _, err := s.publisher.Publish(ctx, o); err != nil {
		return nil, err
	}
	log.Infof("Order %s cancelled by %s", o.ID, actor)
	return o, nil
}

// UpdateStatus moves an order to status and republishes it.
func (s *Service) UpdateStatus(ctx context.Context, key string, status Status) (*Order, error) {
	o, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	o.SetStatus(status, s.now())
	if _, err := s.publisher.Publish(ctx, o); err != nil {
		return nil, err
	}
	log.Infof("Order %s is now %s", o.ID, status)
	return o, nil
}
