// Package market resolves marketplace entities from the DHT, keeps the local
// index in step with it and publishes new entities.
package market

import (
	"github.com/shopspring/decimal"

	"github.com/neroshop/neroshop-server/internal/codec"
)

// IllicitCategory is hidden from catalogs on request.
const IllicitCategory = "Illicit Goods & Services"

// Indexed is an entity that also has local index rows.
type Indexed interface {
	codec.Entity
	// SearchTerms returns the terms the entity is found under.
	SearchTerms() []string
	// IndexContent returns the content tag of its index rows.
	IndexContent() codec.ContentType
}

// Image is a product picture.
type Image struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	ID     int    `json:"id"`
}

// Attribute describes one product variant.
type Attribute struct {
	Color           string  `json:"color,omitempty"`
	Size            string  `json:"size,omitempty"`
	Weight          float64 `json:"weight,omitempty"`
	Material        string  `json:"material,omitempty"`
	Dimensions      string  `json:"dimensions,omitempty"`
	Brand           string  `json:"brand,omitempty"`
	Model           string  `json:"model,omitempty"`
	Manufacturer    string  `json:"manufacturer,omitempty"`
	CountryOfOrigin string  `json:"country_of_origin,omitempty"`
	Warranty        string  `json:"warranty_information,omitempty"`
}

// Product is the item a listing sells.
type Product struct {
	ID            string      `json:"id" validate:"required"`
	Name          string      `json:"name" validate:"required"`
	Description   string      `json:"description,omitempty"`
	Code          string      `json:"code,omitempty"`
	Category      string      `json:"category,omitempty"`
	Subcategories []string    `json:"subcategories,omitempty"`
	Images        []Image     `json:"images,omitempty"`
	Attributes    []Attribute `json:"attributes,omitempty"`
	Thumbnail     string      `json:"thumbnail,omitempty"`
}

// Listing is a seller's offer of a product.
type Listing struct {
	ID        string          `json:"id" validate:"required"`
	SellerID  string          `json:"seller_id"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	Condition string          `json:"condition,omitempty"`
	Location  string          `json:"location,omitempty"`
	Date      string          `json:"date,omitempty"`
	Product   Product         `json:"product"`
	Signature string          `json:"signature,omitempty"`
}

func (l *Listing) ContentType() codec.ContentType  { return codec.Listing }
func (l *Listing) IndexContent() codec.ContentType { return codec.Listing }
func (l *Listing) EntityID() string                { return l.ID }

// SearchTerms indexes a listing by product name, ids, category and seller.
func (l *Listing) SearchTerms() []string {
	terms := []string{l.Product.Name, l.ID, l.Product.ID, l.Product.Code, l.Product.Category, l.SellerID}
	return append(terms, l.Product.Subcategories...)
}

// Illicit reports whether the listing belongs to IllicitCategory.
func (l *Listing) Illicit() bool {
	if l.Product.Category == IllicitCategory {
		return true
	}
	for _, c := range l.Product.Subcategories {
		if c == IllicitCategory {
			return true
		}
	}
	return false
}

// InCategory reports whether the product is filed under name.
func (l *Listing) InCategory(name string) bool {
	if l.Product.Category == name {
		return true
	}
	for _, c := range l.Product.Subcategories {
		if c == name {
			return true
		}
	}
	return false
}

// Avatar is a user's profile picture.
type Avatar struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
}

// User is a marketplace account. Its id is the Monero primary address.
type User struct {
	MoneroAddress string  `json:"monero_address" validate:"required"`
	DisplayName   string  `json:"display_name,omitempty" validate:"max=30"`
	PublicKey     string  `json:"public_key,omitempty"`
	Avatar        *Avatar `json:"avatar,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	Signature     string  `json:"signature,omitempty"`
}

func (u *User) ContentType() codec.ContentType  { return codec.User }
func (u *User) IndexContent() codec.ContentType { return codec.Account }
func (u *User) EntityID() string                { return u.MoneroAddress }

// SearchTerms indexes a user by id and display name.
func (u *User) SearchTerms() []string {
	return []string{u.MoneroAddress, u.DisplayName}
}

// ProductRating is a buyer's star rating of a product.
type ProductRating struct {
	ProductID string `json:"product_id" validate:"required"`
	RaterID   string `json:"rater_id" validate:"required"`
	Stars     int    `json:"stars" validate:"min=1,max=5"`
	Comments  string `json:"comments,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func (r *ProductRating) ContentType() codec.ContentType  { return codec.ProductRating }
func (r *ProductRating) IndexContent() codec.ContentType { return codec.ProductRating }
func (r *ProductRating) EntityID() string                { return r.ProductID + ":" + r.RaterID }
func (r *ProductRating) SearchTerms() []string           { return []string{r.ProductID} }

// SellerRating is a buyer's good (1) or bad (0) rating of a seller.
type SellerRating struct {
	SellerID  string `json:"seller_id" validate:"required"`
	RaterID   string `json:"rater_id" validate:"required"`
	Score     int    `json:"score" validate:"oneof=0 1"`
	Comments  string `json:"comments,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func (r *SellerRating) ContentType() codec.ContentType  { return codec.SellerRating }
func (r *SellerRating) IndexContent() codec.ContentType { return codec.SellerRating }
func (r *SellerRating) EntityID() string                { return r.SellerID + ":" + r.RaterID }
func (r *SellerRating) SearchTerms() []string           { return []string{r.SellerID} }
