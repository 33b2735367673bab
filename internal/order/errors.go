package order

import (
	"errors"
	"fmt"
)

// Reason classifies a rejected build.
type Reason string

const (
	ReasonEmptyCart           Reason = "empty cart"
	ReasonInvalidQuantity     Reason = "invalid quantity"
	ReasonListingUnavailable  Reason = "listing unavailable"
	ReasonMissingSeller       Reason = "missing seller"
	ReasonSellerMismatch      Reason = "seller mismatch"
	ReasonSelfPurchase        Reason = "self purchase"
	ReasonOutOfStock          Reason = "out of stock"
	ReasonInsufficientStock   Reason = "insufficient stock"
	ReasonInvalidPrice        Reason = "invalid price"
	ReasonUnsupportedCurrency Reason = "unsupported currency"
	ReasonMixedCurrency       Reason = "mixed currency"
	ReasonNoRate              Reason = "no exchange rate"
)

// ErrCancelNotAllowed is returned when an order may not be cancelled.
var ErrCancelNotAllowed = errors.New("order cannot be cancelled")

// ErrNotFound is returned for orders the DHT does not hold.
var ErrNotFound = errors.New("order not found")

// ValidationError rejects a build before anything is published.
type ValidationError struct {
	Reason     Reason
	ListingKey string
	Detail     string
	Err        error
}

func (e *ValidationError) Error() string {
	msg := "order rejected: " + string(e.Reason)
	if e.ListingKey != "" {
		msg += fmt.Sprintf(" (listing %s)", e.ListingKey)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a *ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func reject(reason Reason, listingKey, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, ListingKey: listingKey, Detail: fmt.Sprintf(format, args...)}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
