package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketContent  = []byte("content")
	bucketMetadata = []byte("metadata")
)

// BboltStore implements Store in a single bbolt database file.
// Content and metadata of one object are written in the same transaction.
type BboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens or creates a bbolt database at the given path.
func NewBboltStore(dbPath string) (*BboltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create blob directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketContent, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BboltStore{db: db}, nil
}

// Close releases the bbolt database.
func (s *BboltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upload stores content and metadata atomically.
func (s *BboltStore) Upload(_ context.Context, p string, content []byte, opts UploadOptions) error {
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	key := []byte(clean)

	return s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketContent)
		if !opts.Upsert && hasKey(cb, key) {
			return fmt.Errorf("%s: %w", clean, ErrAlreadyExists)
		}
		if err := cb.Put(key, content); err != nil {
			return fmt.Errorf("store content: %w", err)
		}
		if err := tx.Bucket(bucketMetadata).Put(key, []byte(opts.Metadata)); err != nil {
			return fmt.Errorf("store metadata: %w", err)
		}
		return nil
	})
}

// Download returns the content at p. Returns ErrNotFound if missing.
func (s *BboltStore) Download(_ context.Context, p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContent)
		if !hasKey(b, []byte(clean)) {
			return fmt.Errorf("%s: %w", clean, ErrNotFound)
		}
		// bbolt values are only valid inside the transaction
		data = append([]byte{}, b.Get([]byte(clean))...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List returns objects directly under dir by prefix scan.
func (s *BboltStore) List(_ context.Context, dir string) ([]Object, error) {
	clean, err := cleanPath(dir)
	if err != nil {
		return nil, err
	}
	prefix := []byte(clean + "/")

	objects := []Object{}
	err = s.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMetadata)
		c := tx.Bucket(bucketContent).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			name := string(k[len(prefix):])
			if strings.Contains(name, "/") {
				continue
			}
			objects = append(objects, Object{
				Name:     name,
				Metadata: string(mb.Get(k)),
				Size:     int64(len(v)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// Stat returns the object at p without content. Returns ErrNotFound if missing.
func (s *BboltStore) Stat(_ context.Context, p string) (*Object, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	var obj *Object
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContent)
		if !hasKey(b, []byte(clean)) {
			return fmt.Errorf("%s: %w", clean, ErrNotFound)
		}
		v := b.Get([]byte(clean))
		obj = &Object{
			Name:     clean[strings.LastIndex(clean, "/")+1:],
			Metadata: string(tx.Bucket(bucketMetadata).Get([]byte(clean))),
			Size:     int64(len(v)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// hasKey reports whether key exists. Get alone cannot tell a missing key from
// an empty value.
func hasKey(b *bolt.Bucket, key []byte) bool {
	k, _ := b.Cursor().Seek(key)
	return k != nil && bytes.Equal(k, key)
}
