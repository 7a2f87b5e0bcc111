// Package extract turns saved HTML into readable content and metadata.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/avc/internal/models"
)

// Sentinel errors wrapped by *Error.
var (
	ErrInvalidHTML = errors.New("invalid HTML content")
	ErrNoContent   = errors.New("no readable content")
)

// Result is the output of one extraction.
type Result struct {
	// Content is the article body rendered as Markdown.
	Content  string
	Metadata models.ExtractedMetadata
}

// Extractor extracts content and metadata from the HTML of a page.
type Extractor interface {
	// Extract parses html fetched from pageURL.
	Extract(ctx context.Context, pageURL, html string) (*Result, error)
	// ExtractMetadata returns only the page metadata.
	ExtractMetadata(ctx context.Context, pageURL, html string) (models.ExtractedMetadata, error)
}

// Error reports a failed extraction. It is an expected failure: the caller
// stores nothing and reports an error for the save.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsExtractError reports whether err is or wraps an *Error.
func IsExtractError(err error) bool {
	var ee *Error
	return errors.As(err, &ee)
}
