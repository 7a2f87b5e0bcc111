package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kilupskalvis/avc/internal/models"
)

const profileItemColumns = `profile_id, item_id, version_name, title, description, author,
	thumbnail, favicon, published_at, text_language, text_direction, saved_at, updated_at`

// GetProfileItem retrieves a profile's pointer to an item. Returns (nil, nil)
// if the profile has not saved the item.
func (s *Store) GetProfileItem(ctx context.Context, profileID string, itemID int64) (*models.ProfileItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+profileItemColumns+`
		FROM profile_items WHERE profile_id = ? AND item_id = ?
	`, profileID, itemID)

	var (
		pi                  models.ProfileItem
		versionName         sql.NullString
		title, description  sql.NullString
		author, thumbnail   sql.NullString
		favicon, published  sql.NullString
		language, direction sql.NullString
		savedAt, updatedAt  string
	)
	err := row.Scan(&pi.ProfileID, &pi.ItemID, &versionName, &title, &description, &author,
		&thumbnail, &favicon, &published, &language, &direction, &savedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile item: %w", err)
	}

	pi.VersionName = versionName.String
	pi.Metadata = models.ExtractedMetadata{
		Title:         title.String,
		Description:   description.String,
		Author:        author.String,
		Thumbnail:     thumbnail.String,
		Favicon:       favicon.String,
		PublishedAt:   published.String,
		TextLanguage:  language.String,
		TextDirection: models.TextDirection(direction.String),
	}
	if pi.Metadata.TextDirection == "" {
		pi.Metadata.TextDirection = models.TextDirectionLTR
	}
	pi.SavedAt = parseTimestamp(savedAt)
	pi.UpdatedAt = parseTimestamp(updatedAt)
	return &pi, nil
}

// UpsertProfileItem saves the profile's metadata for an item. An empty
// VersionName leaves the stored pointer unchanged, so only a promotion or a
// backfill moves it.
func (s *Store) UpsertProfileItem(ctx context.Context, pi *models.ProfileItem) error {
	now := s.timestamp()
	m := pi.Metadata
	direction := m.TextDirection
	if direction == "" {
		direction = models.TextDirectionLTR
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_items (`+profileItemColumns+`)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, item_id) DO UPDATE SET
			version_name = COALESCE(excluded.version_name, profile_items.version_name),
			title = excluded.title,
			description = excluded.description,
			author = excluded.author,
			thumbnail = excluded.thumbnail,
			favicon = excluded.favicon,
			published_at = excluded.published_at,
			text_language = excluded.text_language,
			text_direction = excluded.text_direction,
			updated_at = excluded.updated_at
	`, pi.ProfileID, pi.ItemID, pi.VersionName,
		nullable(m.Title), nullable(m.Description), nullable(m.Author),
		nullable(m.Thumbnail), nullable(m.Favicon), nullable(m.PublishedAt),
		nullable(m.TextLanguage), string(direction), now, now)
	if err != nil {
		return fmt.Errorf("upsert profile item: %w", err)
	}
	return nil
}

// SetVersionName points a profile item at a content version.
func (s *Store) SetVersionName(ctx context.Context, profileID string, itemID int64, versionName string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profile_items SET version_name = ?, updated_at = ?
		WHERE profile_id = ? AND item_id = ?
	`, versionName, s.timestamp(), profileID, itemID)
	if err != nil {
		return fmt.Errorf("set version name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("profile item %s/%d not found", profileID, itemID)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
