// Package blobstore provides path-addressed blob storage with an opaque
// metadata string attached to every object.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrAlreadyExists is returned by a non-upsert upload to an existing path.
var ErrAlreadyExists = errors.New("object already exists")

// Object describes a stored blob. Name is relative to the listed directory.
type Object struct {
	Name     string
	Metadata string
	Size     int64
}

// UploadOptions controls a single upload.
type UploadOptions struct {
	Metadata    string
	ContentType string
	// Upsert allows overwriting an existing object. When false, an existing
	// object makes the upload fail with ErrAlreadyExists.
	Upsert bool
}

// Store defines the contract for object storage used by the content engine.
type Store interface {
	// Upload writes content and metadata at path.
	Upload(ctx context.Context, path string, content []byte, opts UploadOptions) error

	// Download returns the content at path.
	// Returns ErrNotFound if the object does not exist.
	Download(ctx context.Context, path string) ([]byte, error)

	// List returns the objects stored directly under dir, sorted by name.
	// A missing directory yields an empty list.
	List(ctx context.Context, dir string) ([]Object, error)

	// Stat returns the object at path without its content.
	// Returns ErrNotFound if the object does not exist.
	Stat(ctx context.Context, path string) (*Object, error)
}

// cleanPath normalizes an object path and rejects absolute or escaping paths.
func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("invalid object path: %q", p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("invalid object path: %q", p)
	}
	return c, nil
}
