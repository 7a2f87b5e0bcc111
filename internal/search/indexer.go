// Package search pushes saved item content to a full-text search backend.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Document is the searchable form of one item.
type Document struct {
	Slug               string `json:"slug"`
	URL                string `json:"url"`
	Title              string `json:"title,omitempty"`
	Description        string `json:"description,omitempty"`
	Author             string `json:"author,omitempty"`
	Content            string `json:"content"`
	ContentVersionName string `json:"contentVersionName,omitempty"`
}

// Indexer writes documents to a search backend. Indexing the same slug again
// replaces the earlier document.
type Indexer interface {
	Index(ctx context.Context, docs []Document) error
}

// NopIndexer discards documents.
type NopIndexer struct{}

// Index does nothing.
func (NopIndexer) Index(context.Context, []Document) error { return nil }

// IndexError reports the documents a backend rejected.
type IndexError struct {
	Backend string
	Failed  map[string]string // slug -> reason
}

func (e *IndexError) Error() string {
	reasons := make([]string, 0, len(e.Failed))
	for slug, reason := range e.Failed {
		reasons = append(reasons, slug+": "+reason)
	}
	return fmt.Sprintf("%s: %d document(s) not indexed: %s", e.Backend, len(e.Failed), strings.Join(reasons, "; "))
}
