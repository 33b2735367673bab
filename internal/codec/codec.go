// Package codec converts marketplace entities to and from the (key, value)
// pairs stored in the DHT.
package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/crypto/sha3"
)

// ContentType is the metadata discriminator carried by every DHT value.
type ContentType string

const (
	Listing       ContentType = "listing"
	User          ContentType = "user"
	Account       ContentType = "account"
	ProductRating ContentType = "product_rating"
	SellerRating  ContentType = "seller_rating"
	Order         ContentType = "order"
)

// ContentTypes lists every discriminator a value may carry.
var ContentTypes = []ContentType{Listing, User, Account, ProductRating, SellerRating, Order}

// Metadata returns the discriminator stored in the DHT value for content
// indexed under c. User accounts are indexed as "account" but stored as "user".
func (c ContentType) Metadata() ContentType {
	if c == Account {
		return User
	}
	return c
}

// MetadataStrings returns ContentTypes as strings for the record validator.
func MetadataStrings() []string {
	out := make([]string, len(ContentTypes))
	for i, c := range ContentTypes {
		out[i] = string(c)
	}
	return out
}

// Entity is anything that can be stored in the DHT.
type Entity interface {
	ContentType() ContentType
	EntityID() string
}

// ParseError describes a DHT value that could not be decoded.
type ParseError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed value %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed value %s: %s", e.Key, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Key derives the DHT key for an entity id: the hex SHA3-256 of the id.
func Key(id string) string {
	sum := sha3.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// KeyOf derives the DHT key of e.
func KeyOf(e Entity) string {
	return Key(string(e.ContentType().Metadata()) + ":" + e.EntityID())
}

// Encode validates e and returns its key and JSON value with metadata set.
func Encode(e Entity) (key string, value []byte, err error) {
	if err := validatorInstance().Struct(e); err != nil {
		return "", nil, fmt.Errorf("invalid %s: %w", e.ContentType(), err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s: %w", e.ContentType(), err)
	}
	raw, err = sjson.SetBytes(raw, "metadata", string(e.ContentType().Metadata()))
	if err != nil {
		return "", nil, fmt.Errorf("failed to tag %s: %w", e.ContentType(), err)
	}
	return KeyOf(e), raw, nil
}

// Metadata returns the discriminator of a raw value. ok is false when value
// is not a JSON object or has no string metadata member.
func Metadata(value []byte) (ContentType, bool) {
	if !gjson.ValidBytes(value) {
		return "", false
	}
	parsed := gjson.ParseBytes(value)
	if !parsed.IsObject() {
		return "", false
	}
	m := parsed.Get("metadata")
	if m.Type != gjson.String {
		return "", false
	}
	return ContentType(m.String()), true
}

// Decode unmarshals value into dst and validates it. value must already
// carry the expected metadata.
func Decode(key string, value []byte, dst any) error {
	if err := json.Unmarshal(value, dst); err != nil {
		return &ParseError{Key: key, Reason: "invalid JSON", Err: err}
	}
	if err := validatorInstance().Struct(dst); err != nil {
		return &ParseError{Key: key, Reason: "schema validation failed", Err: err}
	}
	return nil
}
