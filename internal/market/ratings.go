package market

import (
	"context"

	"github.com/neroshop/neroshop-server/internal/codec"
)

// ProductRatingSummary aggregates the star ratings of a product.
type ProductRatingSummary struct {
	Count int `json:"count"`
	// Stars[i] counts ratings of i+1 stars.
	Stars   [5]int  `json:"stars"`
	Average float64 `json:"average"`
}

// SellerRatingSummary aggregates the ratings of a seller.
type SellerRatingSummary struct {
	Count      int `json:"count"`
	Good       int `json:"good"`
	Bad        int `json:"bad"`
	Reputation int `json:"reputation"` // percent of good ratings
}

// ProductRatings returns the ratings of a product.
func (c *Catalog) ProductRatings(ctx context.Context, productID string) ([]*ProductRating, error) {
	keys, err := c.index.KeysByTerm(ctx, productID, string(codec.ProductRating))
	if err != nil {
		return nil, err
	}
	out := make([]*ProductRating, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := c.resolver.ProductRating(ctx, key)
		if err != nil {
			if IsParseError(err) {
				log.Warnf("Skipping product rating %s: %v", key, err)
				continue
			}
			return nil, err
		}
		if r != nil && r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

// SellerRatings returns the ratings of a seller.
func (c *Catalog) SellerRatings(ctx context.Context, sellerID string) ([]*SellerRating, error) {
	keys, err := c.index.KeysByTerm(ctx, sellerID, string(codec.SellerRating))
	if err != nil {
		return nil, err
	}
	out := make([]*SellerRating, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := c.resolver.SellerRating(ctx, key)
		if err != nil {
			if IsParseError(err) {
				log.Warnf("Skipping seller rating %s: %v", key, err)
				continue
			}
			return nil, err
		}
		if r != nil && r.SellerID == sellerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// SummarizeProductRatings counts stars and averages them.
func SummarizeProductRatings(ratings []*ProductRating) ProductRatingSummary {
	var s ProductRatingSummary
	total := 0
	for _, r := range ratings {
		if r.Stars < 1 || r.Stars > 5 {
			continue
		}
		s.Count++
		s.Stars[r.Stars-1]++
		total += r.Stars
	}
	if s.Count > 0 {
		s.Average = float64(total) / float64(s.Count)
	}
	return s
}

// SummarizeSellerRatings counts good and bad ratings.
func SummarizeSellerRatings(ratings []*SellerRating) SellerRatingSummary {
	var s SellerRatingSummary
	for _, r := range ratings {
		switch r.Score {
		case 1:
			s.Good++
		case 0:
			s.Bad++
		default:
			continue
		}
		s.Count++
	}
	if s.Count > 0 {
		s.Reputation = s.Good * 100 / s.Count
	}
	return s
}
