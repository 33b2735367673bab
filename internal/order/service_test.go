package order

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	ps "github.com/libp2p/go-libp2p-pubsub"

	"github.com/neroshop/neroshop-server/internal/cart"
)

func newTestService(t *testing.T, env *testEnv) (*Service, *cart.Store) {
	t.Helper()
	store, err := cart.NewStore(env.db.SQL(), cart.DefaultLimits())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewService(store, env.builder, env.resolver, env.publisher, DefaultCancelWindow), store
}

func TestServicePlaceOrder(t *testing.T) {
	env := newTestEnv(t)
	svc, store := newTestService(t, env)
	ctx := context.Background()

	a := env.addListing(t, "a", "sellerX", "16", "USD", 5)
	err := store.WithCart(ctx, "buyer", func(c *cart.Cart) error {
		return c.Add(cart.Item{ListingKey: a, Quantity: 2, SellerID: "sellerX"})
	})
	if err != nil {
		t.Fatalf("WithCart failed: %v", err)
	}

	res, err := svc.PlaceOrder(ctx, "buyer", "addr")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if len(res.Orders) != 1 || res.Orders[0].Err != nil {
		t.Fatalf("result = %+v", res)
	}

	c, err := store.Load(ctx, "buyer")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.IsEmpty() {
		t.Errorf("stored cart = %+v, want empty", c.Items)
	}

	orders, err := svc.OrdersByCustomer(ctx, "buyer")
	if err != nil {
		t.Fatalf("OrdersByCustomer failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != res.Orders[0].Order.ID {
		t.Errorf("OrdersByCustomer = %+v", orders)
	}
	bySeller, err := svc.OrdersBySeller(ctx, "sellerX")
	if err != nil || len(bySeller) != 1 {
		t.Errorf("OrdersBySeller = %+v, %v", bySeller, err)
	}
	none, err := svc.OrdersBySeller(ctx, "buyer")
	if err != nil || len(none) != 0 {
		t.Errorf("OrdersBySeller(buyer) = %+v, %v", none, err)
	}
}

func TestServicePlaceOrderRejectedKeepsCart(t *testing.T) {
	env := newTestEnv(t)
	svc, store := newTestService(t, env)
	ctx := context.Background()

	a := env.addListing(t, "a", "buyer", "16", "USD", 5)
	if err := store.WithCart(ctx, "buyer", func(c *cart.Cart) error {
		return c.Add(cart.Item{ListingKey: a, Quantity: 1, SellerID: "buyer"})
	}); err != nil {
		t.Fatalf("WithCart failed: %v", err)
	}

	_, err := svc.PlaceOrder(ctx, "buyer", "")
	requireReason(t, err, ReasonSelfPurchase)

	c, err := store.Load(ctx, "buyer")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(c.Items) != 1 {
		t.Errorf("stored cart = %+v, want unchanged", c.Items)
	}
}

func TestServiceGetMissing(t *testing.T) {
	env := newTestEnv(t)
	svc, _ := newTestService(t, env)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func placeOne(t *testing.T, env *testEnv) string {
	t.Helper()
	a := env.addListing(t, "a", "sellerX", "16", "USD", 5)
	res, err := env.builder.Build(context.Background(), newCart("buyer", cart.Item{ListingKey: a, Quantity: 1, SellerID: "sellerX"}), "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return res.Orders[0].Key
}

func TestServiceCancel(t *testing.T) {
	env := newTestEnv(t)
	svc, _ := newTestService(t, env)
	ctx := context.Background()
	key := placeOne(t, env)

	if _, err := svc.Cancel(ctx, key, "sellerX"); !errors.Is(err, ErrCancelNotAllowed) {
		t.Errorf("seller cancel err = %v", err)
	}

	o, err := svc.Cancel(ctx, key, "buyer")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if o.Status != StatusCancelled {
		t.Errorf("status = %s", o.Status)
	}
	stored, err := svc.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != StatusCancelled {
		t.Errorf("stored status = %s, want Cancelled", stored.Status)
	}

	if _, err := svc.Cancel(ctx, key, "buyer"); !errors.Is(err, ErrCancelNotAllowed) {
		t.Errorf("second cancel err = %v", err)
	}
}

func TestServiceCancelWindow(t *testing.T) {
	env := newTestEnv(t)
	svc, _ := newTestService(t, env)
	key := placeOne(t, env)

	svc.now = func() time.Time { return fixedNow.Add(DefaultCancelWindow + time.Minute) }
	if _, err := svc.Cancel(context.Background(), key, "buyer"); !errors.Is(err, ErrCancelNotAllowed) {
		t.Errorf("late cancel err = %v", err)
	}
}

func TestServiceUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	svc, _ := newTestService(t, env)
	ctx := context.Background()
	key := placeOne(t, env)

	for _, s := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		o, err := svc.UpdateStatus(ctx, key, s)
		if err != nil {
			t.Fatalf("UpdateStatus(%s) failed: %v", s, err)
		}
		if o.Status != s {
			t.Errorf("status = %s, want %s", o.Status, s)
		}
	}
	stored, err := svc.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != StatusDelivered {
		t.Errorf("stored status = %s", stored.Status)
	}
	if _, err := svc.UpdateStatus(ctx, "missing", StatusShipped); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPubSubAnnouncer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := libp2p.New(libp2p.NoListenAddrs)
	if err != nil {
		t.Fatalf("failed to create host: %v", err)
	}
	defer h.Close()
	pubsub, err := ps.NewGossipSub(ctx, h)
	if err != nil {
		t.Fatalf("failed to create pubsub: %v", err)
	}

	ann, err := NewPubSubAnnouncer(pubsub, "")
	if err != nil {
		t.Fatalf("NewPubSubAnnouncer failed: %v", err)
	}
	sub, err := ann.topic.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	o := testOrder()
	if err := ann.Announce(ctx, "key1", o); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	msg, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("no announcement received: %v", err)
	}
	var n Notice
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		t.Fatalf("bad notice: %v", err)
	}
	if n.OrderKey != "key1" || n.OrderID != "o1" || n.Status != StatusNew || len(n.SellerIDs) != 2 {
		t.Errorf("notice = %+v", n)
	}

	if _, err := NewPubSubAnnouncer(nil, ""); err == nil {
		t.Error("expected error without pubsub")
	}
}
