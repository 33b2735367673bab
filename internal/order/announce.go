package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ps "github.com/libp2p/go-libp2p-pubsub"
)

// OrdersTopic is the PubSub topic for order announcements.
const OrdersTopic = "/neroshop/orders"

// Notice is the announcement published for a new order.
type Notice struct {
	OrderKey  string   `json:"order_key"`
	OrderID   string   `json:"order_id"`
	Status    Status   `json:"status"`
	SellerIDs []string `json:"seller_ids"`
}

// PubSubAnnouncer publishes order notices on a GossipSub topic so sellers
// learn about new orders without polling.
type PubSubAnnouncer struct {
	topic *ps.Topic
}

// NewPubSubAnnouncer joins topic on pubsub.
func NewPubSubAnnouncer(pubsub *ps.PubSub, topic string) (*PubSubAnnouncer, error) {
	if pubsub == nil {
		return nil, errors.New("pubsub not available")
	}
	if topic == "" {
		topic = OrdersTopic
	}
	t, err := pubsub.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("failed to join %s: %w", topic, err)
	}
	return &PubSubAnnouncer{topic: t}, nil
}

// Announce implements Announcer.
func (a *PubSubAnnouncer) Announce(ctx context.Context, key string, o *Order) error {
	data, err := json.Marshal(NewNotice(key, o))
	if err != nil {
		return err
	}
	return a.topic.Publish(ctx, data)
}

// Close leaves the topic.
func (a *PubSubAnnouncer) Close() error {
	return a.topic.Close()
}

// NewNotice builds the announcement of o.
func NewNotice(key string, o *Order) Notice {
	return Notice{OrderKey: key, OrderID: o.ID, Status: o.Status, SellerIDs: o.Sellers()}
}
