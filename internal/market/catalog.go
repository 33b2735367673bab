package market

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/storage"
)

// Sort orders a listing catalog.
type Sort int

const (
	SortNone Sort = iota
	SortMostRecent
	SortOldest
	SortAlphabetical
	SortPriceLowest
	SortPriceHighest
)

var sortNames = map[string]Sort{
	"":        SortNone,
	"none":    SortNone,
	"recent":  SortMostRecent,
	"oldest":  SortOldest,
	"alpha":   SortAlphabetical,
	"lowest":  SortPriceLowest,
	"highest": SortPriceHighest,
}

// ParseSort maps a query parameter to a Sort.
func ParseSort(s string) (Sort, error) {
	v, ok := sortNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return SortNone, fmt.Errorf("unknown sort %q", s)
	}
	return v, nil
}

// Catalog answers the lookup paths of the marketplace from the local index,
// resolving every hit through the DHT.
type Catalog struct {
	resolver *Resolver
	index    *storage.Index
}

// NewCatalog creates a catalog over r.
func NewCatalog(r *Resolver) *Catalog {
	return &Catalog{resolver: r, index: r.Index()}
}

// Resolver returns the resolver behind the catalog.
func (c *Catalog) Resolver() *Resolver {
	return c.resolver
}

// Listings returns every indexed listing still present in the DHT.
func (c *Catalog) Listings(ctx context.Context, order Sort, hideIllicit bool) ([]*Listing, error) {
	keys, err := c.index.KeysByContent(ctx, string(codec.Listing))
	if err != nil {
		return nil, err
	}
	listings, err := c.listings(ctx, keys)
	if err != nil {
		return nil, err
	}
	if hideIllicit {
		listings = withoutIllicit(listings)
	}
	sortListings(listings, order)
	return listings, nil
}

// RecentListings returns up to limit listings, newest first.
func (c *Catalog) RecentListings(ctx context.Context, limit int, hideIllicit bool) ([]*Listing, error) {
	listings, err := c.Listings(ctx, SortMostRecent, hideIllicit)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

// SearchListings returns listings whose index terms match term.
func (c *Catalog) SearchListings(ctx context.Context, term string, limit int, hideIllicit bool) ([]*Listing, error) {
	keys, err := c.index.Search(ctx, term, string(codec.Listing), limit)
	if err != nil {
		return nil, err
	}
	listings, err := c.listings(ctx, keys)
	if err != nil {
		return nil, err
	}
	if hideIllicit {
		listings = withoutIllicit(listings)
	}
	return listings, nil
}

// ListingsByCategory returns listings filed under a category or subcategory.
func (c *Catalog) ListingsByCategory(ctx context.Context, category string, hideIllicit bool) ([]*Listing, error) {
	keys, err := c.index.KeysByTerm(ctx, category, string(codec.Listing))
	if err != nil {
		return nil, err
	}
	listings, err := c.listings(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := listings[:0]
	for _, l := range listings {
		if !l.InCategory(category) {
			continue
		}
		if hideIllicit && l.Illicit() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// CategoryProductCount returns how many listings are indexed under category.
// The count comes from the index alone and may include stale rows.
func (c *Catalog) CategoryProductCount(ctx context.Context, category string) (int, error) {
	return c.index.CountByTerm(ctx, category, string(codec.Listing))
}

// Inventory returns the listings of a seller.
func (c *Catalog) Inventory(ctx context.Context, sellerID string) ([]*Listing, error) {
	keys, err := c.index.KeysByTerm(ctx, sellerID, string(codec.Listing))
	if err != nil {
		return nil, err
	}
	listings, err := c.listings(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := listings[:0]
	for _, l := range listings {
		if l.SellerID == sellerID {
			out = append(out, l)
		}
	}
	return out, nil
}

// StockAvailable returns the quantity offered across the listings of a
// product. An unknown product has no stock.
func (c *Catalog) StockAvailable(ctx context.Context, productID string) (int, error) {
	keys, err := c.index.KeysByTerm(ctx, productID, string(codec.Listing))
	if err != nil {
		return 0, err
	}
	listings, err := c.listings(ctx, keys)
	if err != nil {
		return 0, err
	}
	stock := 0
	for _, l := range listings {
		if l.Product.ID == productID {
			stock += l.Quantity
		}
	}
	return stock, nil
}

// listings resolves keys in order, skipping absent and malformed values.
func (c *Catalog) listings(ctx context.Context, keys []string) ([]*Listing, error) {
	out := make([]*Listing, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := c.resolver.Listing(ctx, key)
		if err != nil {
			if IsParseError(err) {
				log.Warnf("Skipping listing %s: %v", key, err)
				continue
			}
			return nil, err
		}
		if l != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func withoutIllicit(listings []*Listing) []*Listing {
	out := listings[:0]
	for _, l := range listings {
		if !l.Illicit() {
			out = append(out, l)
		}
	}
	return out
}

func sortListings(listings []*Listing, order Sort) {
	var less func(a, b *Listing) bool
	switch order {
	case SortMostRecent:
		less = func(a, b *Listing) bool { return a.Date > b.Date }
	case SortOldest:
		less = func(a, b *Listing) bool { return a.Date < b.Date }
	case SortAlphabetical:
		less = func(a, b *Listing) bool {
			return strings.ToLower(a.Product.Name) < strings.ToLower(b.Product.Name)
		}
	case SortPriceLowest:
		less = func(a, b *Listing) bool { return a.Price.LessThan(b.Price) }
	case SortPriceHighest:
		less = func(a, b *Listing) bool { return a.Price.GreaterThan(b.Price) }
	default:
		return
	}
	sort.SliceStable(listings, func(i, j int) bool { return less(listings[i], listings[j]) })
}
