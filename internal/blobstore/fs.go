package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const metaSuffix = ".meta"

// FSStore implements Store using the local filesystem.
// Each object is a plain file with its metadata in a ".meta" sidecar file.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed store rooted at the given directory.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Upload writes the object through temp files. Non-upsert uploads claim the
// path with a hard link, which fails if the object already exists.
func (s *FSStore) Upload(_ context.Context, p string, content []byte, opts UploadOptions) error {
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	if strings.HasSuffix(clean, metaSuffix) {
		return fmt.Errorf("invalid object path: %q", p)
	}
	objPath := s.objectPath(clean)

	dir := filepath.Dir(objPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmpContent, err := writeTemp(dir, content)
	if err != nil {
		return fmt.Errorf("write object data: %w", err)
	}
	defer os.Remove(tmpContent)

	tmpMeta, err := writeTemp(dir, []byte(opts.Metadata))
	if err != nil {
		return fmt.Errorf("write object meta: %w", err)
	}
	defer os.Remove(tmpMeta)

	if opts.Upsert {
		if err := os.Rename(tmpMeta, objPath+metaSuffix); err != nil {
			return fmt.Errorf("rename object meta: %w", err)
		}
		if err := os.Rename(tmpContent, objPath); err != nil {
			return fmt.Errorf("rename object: %w", err)
		}
		return nil
	}

	if err := os.Link(tmpContent, objPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", clean, ErrAlreadyExists)
		}
		return fmt.Errorf("link object: %w", err)
	}
	if err := os.Rename(tmpMeta, objPath+metaSuffix); err != nil {
		return fmt.Errorf("rename object meta: %w", err)
	}
	return nil
}

// Download reads the object at p.
// Returns ErrNotFound if the object does not exist.
func (s *FSStore) Download(_ context.Context, p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.objectPath(clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", clean, err)
	}
	return data, nil
}

// List returns the objects directly under dir, skipping sidecars and temp files.
func (s *FSStore) List(_ context.Context, dir string) ([]Object, error) {
	clean, err := cleanPath(dir)
	if err != nil {
		return nil, err
	}
	dirPath := s.objectPath(clean)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Object{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", clean, err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		meta, err := s.readMeta(filepath.Join(dirPath, name))
		if err != nil {
			return nil, err
		}
		objects = append(objects, Object{Name: name, Metadata: meta, Size: info.Size()})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Name < objects[j].Name
	})
	return objects, nil
}

// Stat returns the object's metadata and size.
// Returns ErrNotFound if the object does not exist.
func (s *FSStore) Stat(_ context.Context, p string) (*Object, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	objPath := s.objectPath(clean)

	info, err := os.Stat(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
		}
		return nil, fmt.Errorf("stat object %s: %w", clean, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	}

	meta, err := s.readMeta(objPath)
	if err != nil {
		return nil, err
	}
	return &Object{Name: filepath.Base(objPath), Metadata: meta, Size: info.Size()}, nil
}

// objectPath returns the filesystem path for an object.
func (s *FSStore) objectPath(clean string) string {
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

// readMeta reads the sidecar of an object. A missing sidecar is empty metadata.
func (s *FSStore) readMeta(objPath string) (string, error) {
	data, err := os.ReadFile(objPath + metaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read object meta: %w", err)
	}
	return string(data), nil
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
