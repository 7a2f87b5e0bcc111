package blobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memObject struct {
	content  []byte
	metadata string
}

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject

	// Fault hooks, guarded by mu. See SetErr and SetUploadFailure.
	err         error
	failUploads func(path string) error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

// SetErr makes every call return err until it is cleared with nil. Tests use
// it to simulate an unreachable backend.
func (m *MemoryStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetUploadFailure makes Upload fail for paths where fn returns an error.
// A nil fn clears it.
func (m *MemoryStore) SetUploadFailure(fn func(path string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUploads = fn
}

func (m *MemoryStore) fault() (func(string) error, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failUploads, m.err
}

// Upload stores a copy of content at p.
func (m *MemoryStore) Upload(_ context.Context, p string, content []byte, opts UploadOptions) error {
	failUploads, storeErr := m.fault()
	if storeErr != nil {
		return storeErr
	}
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	if failUploads != nil {
		if err := failUploads(clean); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[clean]; ok && !opts.Upsert {
		return fmt.Errorf("%s: %w", clean, ErrAlreadyExists)
	}
	m.objects[clean] = memObject{
		content:  append([]byte(nil), content...),
		metadata: opts.Metadata,
	}
	return nil
}

// Download returns a copy of the content at p.
func (m *MemoryStore) Download(_ context.Context, p string) ([]byte, error) {
	if _, err := m.fault(); err != nil {
		return nil, err
	}
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[clean]
	if !ok {
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	}
	return append([]byte(nil), obj.content...), nil
}

// List returns the objects directly under dir.
func (m *MemoryStore) List(_ context.Context, dir string) ([]Object, error) {
	if _, err := m.fault(); err != nil {
		return nil, err
	}
	clean, err := cleanPath(dir)
	if err != nil {
		return nil, err
	}
	prefix := clean + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects := []Object{}
	for p, obj := range m.objects {
		name, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(name, "/") {
			continue
		}
		objects = append(objects, Object{Name: name, Metadata: obj.metadata, Size: int64(len(obj.content))})
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Name < objects[j].Name
	})
	return objects, nil
}

// Stat returns the object at p without content.
func (m *MemoryStore) Stat(_ context.Context, p string) (*Object, error) {
	if _, err := m.fault(); err != nil {
		return nil, err
	}
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[clean]
	if !ok {
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	}
	name := clean[strings.LastIndex(clean, "/")+1:]
	return &Object{Name: name, Metadata: obj.metadata, Size: int64(len(obj.content))}, nil
}

// Put stores an object directly, bypassing upload rules. Intended for seeding
// test fixtures such as corrupt metadata.
func (m *MemoryStore) Put(p string, content []byte, metadata string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = memObject{content: append([]byte(nil), content...), metadata: metadata}
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
