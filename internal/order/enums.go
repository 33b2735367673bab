package order

import "fmt"

// enumTable maps enum values to their wire strings and back.
type enumTable[T comparable] struct {
	name       string
	toString   map[T]string
	fromString map[string]T
}

func newEnumTable[T comparable](name string, values map[T]string) enumTable[T] {
	t := enumTable[T]{
		name:       name,
		toString:   values,
		fromString: make(map[string]T, len(values)),
	}
	for v, s := range values {
		t.fromString[s] = v
	}
	return t
}

func (t enumTable[T]) format(v T) string {
	if s, ok := t.toString[v]; ok {
		return s
	}
	// %#v prints the integer without calling String.
	return fmt.Sprintf("%s(%#v)", t.name, v)
}

func (t enumTable[T]) parse(s string) (T, error) {
	v, ok := t.fromString[s]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s %q", t.name, s)
	}
	return v, nil
}

func (t enumTable[T]) marshal(v T) ([]byte, error) {
	s, ok := t.toString[v]
	if !ok {
		return nil, fmt.Errorf("invalid %s %#v", t.name, v)
	}
	return []byte(s), nil
}

// Status is the lifecycle state of an order.
type Status int

const (
	StatusNew Status = iota
	StatusPending
	StatusProcessing
	StatusShipped
	StatusReadyForPickup
	StatusDelivered
	StatusCancelled
	StatusFailed
	StatusReturned
	StatusDisputed
	StatusDeclined
)

var statusTable = newEnumTable("status", map[Status]string{
	StatusNew:            "New",
	StatusPending:        "Pending",
	StatusProcessing:     "Processing",
	StatusShipped:        "Shipped",
	StatusReadyForPickup: "Ready For Pickup",
	StatusDelivered:      "Delivered",
	StatusCancelled:      "Cancelled",
	StatusFailed:         "Failed",
	StatusReturned:       "Returned",
	StatusDisputed:       "Disputed",
	StatusDeclined:       "Declined",
})

// ParseStatus parses the wire form of a status.
func ParseStatus(s string) (Status, error) { return statusTable.parse(s) }

func (s Status) String() string                { return statusTable.format(s) }
func (s Status) MarshalText() ([]byte, error)  { return statusTable.marshal(s) }
func (s *Status) UnmarshalText(b []byte) error { return unmarshalInto(statusTable, s, b) }

// PaymentOption is how the buyer pays.
type PaymentOption int

const (
	PaymentEscrow PaymentOption = iota
	PaymentMultisig
	PaymentFinalize
)

var paymentOptionTable = newEnumTable("payment option", map[PaymentOption]string{
	PaymentEscrow:   "Escrow",
	PaymentMultisig: "Multisig",
	PaymentFinalize: "Finalize",
})

// ParsePaymentOption parses the wire form of a payment option.
func ParsePaymentOption(s string) (PaymentOption, error) { return paymentOptionTable.parse(s) }

func (p PaymentOption) String() string                { return paymentOptionTable.format(p) }
func (p PaymentOption) MarshalText() ([]byte, error)  { return paymentOptionTable.marshal(p) }
func (p *PaymentOption) UnmarshalText(b []byte) error { return unmarshalInto(paymentOptionTable, p, b) }

// PaymentCoin is the coin an order is paid in.
type PaymentCoin int

const (
	CoinNone PaymentCoin = iota
	CoinMonero
)

var paymentCoinTable = newEnumTable("payment coin", map[PaymentCoin]string{
	CoinNone:   "None",
	CoinMonero: "Monero",
})

// ParsePaymentCoin parses the wire form of a payment coin.
func ParsePaymentCoin(s string) (PaymentCoin, error) { return paymentCoinTable.parse(s) }

func (c PaymentCoin) String() string                { return paymentCoinTable.format(c) }
func (c PaymentCoin) MarshalText() ([]byte, error)  { return paymentCoinTable.marshal(c) }
func (c *PaymentCoin) UnmarshalText(b []byte) error { return unmarshalInto(paymentCoinTable, c, b) }

// DeliveryOption is how goods reach the buyer.
type DeliveryOption int

const (
	DeliveryShip DeliveryOption = iota
	DeliveryPickup
)

var deliveryOptionTable = newEnumTable("delivery option", map[DeliveryOption]string{
	DeliveryShip:   "Delivery",
	DeliveryPickup: "Pickup",
})

// ParseDeliveryOption parses the wire form of a delivery option.
func ParseDeliveryOption(s string) (DeliveryOption, error) { return deliveryOptionTable.parse(s) }

func (d DeliveryOption) String() string                { return deliveryOptionTable.format(d) }
func (d DeliveryOption) MarshalText() ([]byte, error)  { return deliveryOptionTable.marshal(d) }
func (d *DeliveryOption) UnmarshalText(b []byte) error { return unmarshalInto(deliveryOptionTable, d, b) }

func unmarshalInto[T comparable](t enumTable[T], dst *T, b []byte) error {
	v, err := t.parse(string(b))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
