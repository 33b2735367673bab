package market

import (
	"context"

	"github.com/neroshop/neroshop-server/internal/codec"
)

const maxDisplayNameLength = 30

// KeyByUserID returns the DHT key of a user account.
func (c *Catalog) KeyByUserID(ctx context.Context, userID string) (string, bool, error) {
	return c.index.FirstKeyByTerm(ctx, userID, string(codec.Account))
}

// User returns the account of userID, nil if unknown or gone.
func (c *Catalog) User(ctx context.Context, userID string) (*User, error) {
	key, ok, err := c.KeyByUserID(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}
	return c.resolver.User(ctx, key)
}

// DisplayName returns the display name indexed for userID, or userID itself
// when the account has none. It only reads the local index.
func (c *Catalog) DisplayName(ctx context.Context, userID string) (string, error) {
	key, ok, err := c.KeyByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return userID, nil
	}
	terms, err := c.index.TermsForKey(ctx, key, string(codec.Account))
	if err != nil {
		return "", err
	}
	for _, t := range terms {
		if t != userID && len(t) <= maxDisplayNameLength {
			return t, nil
		}
	}
	return userID, nil
}
