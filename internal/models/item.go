package models

import "time"

// Item is the identity record for one cleaned URL
type Item struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileItem is a user's pointer to an item and the version they are reading.
// VersionName is empty until the first promotion or lazy backfill.
type ProfileItem struct {
	ProfileID   string            `json:"profile_id"`
	ItemID      int64             `json:"item_id"`
	VersionName string            `json:"version_name,omitempty"`
	Metadata    ExtractedMetadata `json:"metadata"`
	SavedAt     time.Time         `json:"saved_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
