package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kilupskalvis/avc/internal/models"
)

// UpsertItem returns the item for url, creating it with slug if it does not
// exist. created reports whether this call inserted the row.
func (s *Store) UpsertItem(ctx context.Context, url, slug string) (item *models.Item, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO items (url, slug, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, url, slug, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	created = n == 1

	if !created {
		if _, err := tx.ExecContext(ctx, `UPDATE items SET updated_at = ? WHERE url = ?`, now, url); err != nil {
			return nil, false, fmt.Errorf("touch item: %w", err)
		}
	}

	item, err = scanItem(tx.QueryRowContext(ctx, `
		SELECT id, url, slug, created_at, updated_at FROM items WHERE url = ?
	`, url))
	if err != nil {
		return nil, false, err
	}
	if item == nil {
		// the insert was ignored because the slug belongs to another url
		return nil, false, fmt.Errorf("%s: %w", slug, ErrSlugTaken)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return item, created, nil
}

// GetItemBySlug retrieves an item by slug. Returns (nil, nil) if not found.
func (s *Store) GetItemBySlug(ctx context.Context, slug string) (*models.Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, `
		SELECT id, url, slug, created_at, updated_at FROM items WHERE slug = ?
	`, slug))
}

// GetItemByURL retrieves an item by its cleaned URL. Returns (nil, nil) if
// not found.
func (s *Store) GetItemByURL(ctx context.Context, url string) (*models.Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, `
		SELECT id, url, slug, created_at, updated_at FROM items WHERE url = ?
	`, url))
}

func scanItem(row *sql.Row) (*models.Item, error) {
	var item models.Item
	var createdAt, updatedAt string
	err := row.Scan(&item.ID, &item.URL, &item.Slug, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	item.CreatedAt = parseTimestamp(createdAt)
	item.UpdatedAt = parseTimestamp(updatedAt)
	return &item, nil
}
