package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key written by the store.
	Prefix string
}

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const connectionTimeout = 5 * time.Second

// uploadScript writes an object hash and registers its name in the parent
// directory set. KEYS: object, directory. ARGV: content, metadata, upsert, name.
var uploadScript = redis.NewScript(`
if ARGV[3] == "0" and redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "content", ARGV[1], "metadata", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[4])
return 1
`)

// RedisStore implements Store on Redis. Each object is a hash with content
// and metadata fields; each directory is a set of object names.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "avc"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Upload stores the object. Non-upsert uploads are rejected atomically when
// the object exists.
func (s *RedisStore) Upload(ctx context.Context, p string, content []byte, opts UploadOptions) error {
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	upsert := "0"
	if opts.Upsert {
		upsert = "1"
	}

	dir, name := path.Split(clean)
	keys := []string{s.objectKey(clean), s.dirKey(strings.TrimSuffix(dir, "/"))}
	written, err := uploadScript.Run(ctx, s.client, keys, content, opts.Metadata, upsert, name).Int()
	if err != nil {
		return fmt.Errorf("upload %s: %w", clean, err)
	}
	if written == 0 {
		return fmt.Errorf("%s: %w", clean, ErrAlreadyExists)
	}
	return nil
}

// Download returns the content at p. Returns ErrNotFound if missing.
func (s *RedisStore) Download(ctx context.Context, p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := s.client.HGet(ctx, s.objectKey(clean), "content").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", clean, err)
	}
	return data, nil
}

// List returns the objects registered under dir.
func (s *RedisStore) List(ctx context.Context, dir string) ([]Object, error) {
	clean, err := cleanPath(dir)
	if err != nil {
		return nil, err
	}
	names, err := s.client.SMembers(ctx, s.dirKey(clean)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", clean, err)
	}
	sort.Strings(names)

	objects := make([]Object, 0, len(names))
	for _, name := range names {
		obj, err := s.stat(ctx, clean+"/"+name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		objects = append(objects, *obj)
	}
	return objects, nil
}

// Stat returns the object at p without content. Returns ErrNotFound if missing.
func (s *RedisStore) Stat(ctx context.Context, p string) (*Object, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	return s.stat(ctx, clean)
}

func (s *RedisStore) stat(ctx context.Context, clean string) (*Object, error) {
	key := s.objectKey(clean)

	pipe := s.client.Pipeline()
	lenCmd := pipe.HStrLen(ctx, key, "content")
	metaCmd := pipe.HGet(ctx, key, "metadata")
	existsCmd := pipe.Exists(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("stat %s: %w", clean, err)
	}
	if existsCmd.Val() == 0 {
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	}
	return &Object{
		Name:     path.Base(clean),
		Metadata: metaCmd.Val(),
		Size:     lenCmd.Val(),
	}, nil
}

func (s *RedisStore) objectKey(clean string) string {
	return s.prefix + ":obj:" + clean
}

func (s *RedisStore) dirKey(dir string) string {
	return s.prefix + ":dir:" + dir
}
