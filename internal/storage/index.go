package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// Row is one index entry: a search term pointing at a DHT key of a content type.
type Row struct {
	SearchTerm string
	Key        string
	Content    string
}

// Index is the local search index. Rows are pointers into the DHT and may be
// stale; the DHT stays authoritative.
//
// Every method accepts an empty content argument to mean "any content type".
type Index struct {
	db     *sql.DB
	fts    bool
	mu     sync.RWMutex
	closed bool
}

// FTS reports whether full-text search is backed by FTS5.
func (ix *Index) FTS() bool {
	if ix == nil {
		return false
	}
	return ix.fts
}

func (ix *Index) markClosed() {
	ix.mu.Lock()
	ix.closed = true
	ix.mu.Unlock()
}

func (ix *Index) check() error {
	if ix == nil || ix.db == nil {
		return ErrUnavailable
	}
	if ix.closed {
		return ErrUnavailable
	}
	return nil
}

// Insert adds a row unless an identical row exists.
func (ix *Index) Insert(ctx context.Context, term, key, content string) error {
	return ix.InsertRows(ctx, []Row{{SearchTerm: term, Key: key, Content: content}})
}

// InsertRows adds rows in one transaction, skipping duplicates and rows with
// an empty term or key.
func (ix *Index) InsertRows(ctx context.Context, rows []Row) error {
	if ix == nil {
		return ErrUnavailable
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.check(); err != nil {
		return err
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		term := strings.TrimSpace(r.SearchTerm)
		if term == "" || r.Key == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mappings (search_term, key, content)
			SELECT ?, ?, ?
			WHERE NOT EXISTS (
				SELECT 1 FROM mappings WHERE search_term = ? AND key = ? AND content = ?
			)
		`, term, r.Key, r.Content, term, r.Key, r.Content)
		if err != nil {
			return fmt.Errorf("failed to insert index row: %w", err)
		}
	}
	return tx.Commit()
}

// KeysByTerm returns the distinct keys indexed under exactly term.
func (ix *Index) KeysByTerm(ctx context.Context, term, content string) ([]string, error) {
	return ix.queryKeys(ctx, `
		SELECT key FROM mappings
		WHERE search_term = ? AND (? = '' OR content = ?)
		GROUP BY key ORDER BY MIN(rowid)
	`, term, content, content)
}

// FirstKeyByTerm returns the first key indexed under term.
func (ix *Index) FirstKeyByTerm(ctx context.Context, term, content string) (string, bool, error) {
	keys, err := ix.KeysByTerm(ctx, term, content)
	if err != nil {
		return "", false, err
	}
	if len(keys) == 0 {
		return "", false, nil
	}
	return keys[0], true, nil
}

// KeysByContent returns every distinct key of a content type, oldest first.
func (ix *Index) KeysByContent(ctx context.Context, content string) ([]string, error) {
	return ix.queryKeys(ctx, `
		SELECT key FROM mappings
		WHERE (? = '' OR content = ?)
		GROUP BY key ORDER BY MIN(rowid)
	`, content, content)
}

// Search returns keys whose search term matches every word of phrase as a
// prefix (FTS5) or substring (plain table). A limit of zero means no limit.
func (ix *Index) Search(ctx context.Context, phrase, content string, limit int) ([]string, error) {
	words := tokenize(phrase)
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	if ix.FTS() {
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = `"` + w + `"*`
		}
		return ix.queryKeys(ctx, `
			SELECT key FROM mappings
			WHERE mappings MATCH ? AND (? = '' OR content = ?)
			GROUP BY key ORDER BY MIN(rowid) LIMIT ?
		`, strings.Join(quoted, " "), content, content, limit)
	}

	// Plain table: every word must appear in the term, case-insensitively.
	var clauses []string
	var args []any
	for _, w := range words {
		clauses = append(clauses, `lower(search_term) LIKE ?`)
		args = append(args, "%"+w+"%")
	}
	args = append(args, content, content, limit)
	query := `
		SELECT key FROM mappings
		WHERE ` + strings.Join(clauses, " AND ") + ` AND (? = '' OR content = ?)
		GROUP BY key ORDER BY MIN(rowid) LIMIT ?`
	return ix.queryKeys(ctx, query, args...)
}

// TermsForKey returns the search terms recorded for key.
func (ix *Index) TermsForKey(ctx context.Context, key, content string) ([]string, error) {
	if ix == nil {
		return nil, ErrUnavailable
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := ix.check(); err != nil {
		return nil, err
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT search_term FROM mappings
		WHERE key = ? AND (? = '' OR content = ?)
		ORDER BY rowid
	`, key, content, content)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	return scanStrings(rows)
}

// CountByTerm returns how many distinct keys are indexed under term.
func (ix *Index) CountByTerm(ctx context.Context, term, content string) (int, error) {
	if ix == nil {
		return 0, ErrUnavailable
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := ix.check(); err != nil {
		return 0, err
	}

	var n int
	err := ix.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT key) FROM mappings
		WHERE search_term = ? AND (? = '' OR content = ?)
	`, term, content, content).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count index rows: %w", err)
	}
	return n, nil
}

// DeleteByKey removes every row pointing at key. Deleting a key that has no
// rows is not an error.
func (ix *Index) DeleteByKey(ctx context.Context, key string) (int64, error) {
	if ix == nil {
		return 0, ErrUnavailable
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.check(); err != nil {
		return 0, err
	}

	res, err := ix.db.ExecContext(ctx, `DELETE FROM mappings WHERE key = ?`, key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete index rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (ix *Index) queryKeys(ctx context.Context, query string, args ...any) ([]string, error) {
	if ix == nil {
		return nil, ErrUnavailable
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := ix.check(); err != nil {
		return nil, err
	}

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// tokenize lowercases phrase and splits it into letter/digit runs, which also
// strips every character FTS5 treats as query syntax.
func tokenize(phrase string) []string {
	return strings.FieldsFunc(strings.ToLower(phrase), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
