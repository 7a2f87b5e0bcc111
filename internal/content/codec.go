package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kilupskalvis/avc/internal/models"
)

// EncodeMetadata serializes version metadata into the blob metadata string.
func EncodeMetadata(m *models.VersionMetadata) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal version metadata: %w", err)
	}
	return string(data), nil
}

// DecodeMetadata parses a blob metadata string. Malformed input returns
// ErrCorruptMetadata; it never panics.
func DecodeMetadata(s string) (*models.VersionMetadata, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty: %w", ErrCorruptMetadata)
	}

	var m models.VersionMetadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCorruptMetadata)
	}
	if m.Timestamp == "" {
		return nil, fmt.Errorf("missing timestamp: %w", ErrCorruptMetadata)
	}
	if m.Hash == "" {
		return nil, fmt.Errorf("missing hash: %w", ErrCorruptMetadata)
	}
	if m.Length < 0 {
		return nil, fmt.Errorf("negative length: %w", ErrCorruptMetadata)
	}
	return &m, nil
}
