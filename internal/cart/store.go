package cart

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("cart")

// Store persists carts in the cart and cart_item tables.
type Store struct {
	db     *sql.DB
	limits Limits

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the cart tables on db if needed.
func NewStore(db *sql.DB, limits Limits) (*Store, error) {
	s := &Store{db: db, limits: limits, locks: make(map[string]*sync.Mutex)}
	if err := s.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize cart tables: %w", err)
	}
	return s, nil
}

func (s *Store) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cart (
			uuid TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS cart_item (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cart_id TEXT NOT NULL REFERENCES cart(uuid),
			listing_key TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			seller_id TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			UNIQUE(cart_id, listing_key)
		);
		CREATE INDEX IF NOT EXISTS idx_cart_item_cart ON cart_item(cart_id);
	`)
	return err
}

// Limits returns the limits applied to loaded carts.
func (s *Store) Limits() Limits {
	return s.limits
}

// Load returns the owner's cart, creating an empty one on first use.
func (s *Store) Load(ctx context.Context, ownerID string) (*Cart, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("cart owner is required")
	}

	var id string
	err := s.db.QueryRowContext(ctx, `SELECT uuid FROM cart WHERE user_id = ?`, ownerID).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.New().String()
		if _, err := s.db.ExecContext(ctx, `INSERT INTO cart (uuid, user_id) VALUES (?, ?)`, id, ownerID); err != nil {
			return nil, fmt.Errorf("failed to create cart: %w", err)
		}
		log.Debugf("Created cart %s for %s", id, ownerID)
		return New(id, ownerID, s.limits), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT listing_key, quantity, COALESCE(seller_id, '')
		FROM cart_item WHERE cart_id = ? ORDER BY position, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	c := New(id, ownerID, s.limits)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ListingKey, &it.Quantity, &it.SellerID); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// Save replaces the stored items of c.
func (s *Store) Save(ctx context.Context, c *Cart) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cart transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_item WHERE cart_id = ?`, c.ID); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	for i, it := range c.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_item (cart_id, listing_key, quantity, seller_id, position)
			VALUES (?, ?, ?, ?, ?)
		`, c.ID, it.ListingKey, it.Quantity, it.SellerID, i)
		if err != nil {
			return fmt.Errorf("failed to save cart item: %w", err)
		}
	}
	return tx.Commit()
}

// WithCart loads the owner's cart, runs fn and saves the cart if fn returns
// nil. Calls for the same owner are serialized.
func (s *Store) WithCart(ctx context.Context, ownerID string, fn func(*Cart) error) error {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.Load(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return s.Save(ctx, c)
}

func (s *Store) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ownerID] = l
	}
	return l
}
