package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding item content.
const ClassName = "ItemContent"

// ObjectClient is the subset of Weaviate operations the indexer needs.
type ObjectClient interface {
	GetClasses(ctx context.Context) ([]string, error)
	CreateClass(ctx context.Context, class *weaviatemodels.Class) error
	ObjectExists(ctx context.Context, className, id string) (bool, error)
	CreateObject(ctx context.Context, className, id string, props map[string]interface{}) error
	UpdateObject(ctx context.Context, className, id string, props map[string]interface{}) error
}

// WeaviateClient wraps the Weaviate client.
type WeaviateClient struct {
	client *weaviate.Client
	url    string
}

var _ ObjectClient = (*WeaviateClient)(nil)

// NewWeaviateClient creates a new Weaviate client
func NewWeaviateClient(url string) (*WeaviateClient, error) {
	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}

	if host, ok := strings.CutPrefix(url, "http://"); ok {
		cfg.Host = host
	} else if host, ok := strings.CutPrefix(url, "https://"); ok {
		cfg.Host = host
		cfg.Scheme = "https"
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	return &WeaviateClient{client: client, url: url}, nil
}

// Ping checks if Weaviate is reachable
func (c *WeaviateClient) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Weaviate: %w", err)
	}
	if !live {
		return fmt.Errorf("weaviate is not live")
	}
	return nil
}

// GetClasses returns all class names in the schema
func (c *WeaviateClient) GetClasses(ctx context.Context) ([]string, error) {
	schema, err := c.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, err
	}

	var classes []string
	for _, class := range schema.Classes {
		classes = append(classes, class.Class)
	}
	return classes, nil
}

// CreateClass creates a new class in Weaviate
func (c *WeaviateClient) CreateClass(ctx context.Context, class *weaviatemodels.Class) error {
	return c.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

// ObjectExists checks if an object exists in Weaviate
func (c *WeaviateClient) ObjectExists(ctx context.Context, className, id string) (bool, error) {
	return c.client.Data().Checker().
		WithClassName(className).
		WithID(id).
		Do(ctx)
}

// CreateObject creates a new object
func (c *WeaviateClient) CreateObject(ctx context.Context, className, id string, props map[string]interface{}) error {
	_, err := c.client.Data().Creator().
		WithClassName(className).
		WithID(id).
		WithProperties(props).
		Do(ctx)
	return err
}

// UpdateObject replaces the properties of an existing object
func (c *WeaviateClient) UpdateObject(ctx context.Context, className, id string, props map[string]interface{}) error {
	return c.client.Data().Updater().
		WithClassName(className).
		WithID(id).
		WithProperties(props).
		Do(ctx)
}

// itemContentClass is the schema for ClassName. Vectors are left to the
// server's configured module.
func itemContentClass() *weaviatemodels.Class {
	text := func(name, desc string) *weaviatemodels.Property {
		return &weaviatemodels.Property{Name: name, DataType: []string{"text"}, Description: desc}
	}
	return &weaviatemodels.Class{
		Class:       ClassName,
		Description: "Extracted content of saved items",
		Properties: []*weaviatemodels.Property{
			text("slug", "Item slug"),
			text("url", "Cleaned item URL"),
			text("title", ""),
			text("description", ""),
			text("author", ""),
			text("content", "Main content in Markdown"),
			text("contentVersionName", "Version the content was taken from"),
		},
	}
}

// WeaviateIndexer indexes documents as ItemContent objects. Object IDs are
// derived from the slug so a repeat index updates in place.
type WeaviateIndexer struct {
	client ObjectClient
	logger *slog.Logger

	mu           sync.Mutex
	classEnsured bool
}

// NewWeaviateIndexer creates an indexer over client.
func NewWeaviateIndexer(client ObjectClient, logger *slog.Logger) *WeaviateIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateIndexer{client: client, logger: logger}
}

// ObjectID returns the Weaviate object id for slug.
func ObjectID(slug string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(slug)).String()
}

// Index creates or replaces one object per document.
func (w *WeaviateIndexer) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := w.ensureClass(ctx); err != nil {
		return err
	}

	failed := map[string]string{}
	for _, doc := range docs {
		if err := w.upsert(ctx, doc); err != nil {
			w.logger.Warn("failed to index document", "backend", "weaviate", "slug", doc.Slug, "error", err)
			failed[doc.Slug] = err.Error()
		}
	}
	if len(failed) > 0 {
		return &IndexError{Backend: "weaviate", Failed: failed}
	}
	return nil
}

func (w *WeaviateIndexer) upsert(ctx context.Context, doc Document) error {
	id := ObjectID(doc.Slug)
	props := map[string]interface{}{
		"slug":               doc.Slug,
		"url":                doc.URL,
		"title":              doc.Title,
		"description":        doc.Description,
		"author":             doc.Author,
		"content":            doc.Content,
		"contentVersionName": doc.ContentVersionName,
	}

	exists, err := w.client.ObjectExists(ctx, ClassName, id)
	if err != nil {
		return fmt.Errorf("check object %s: %w", id, err)
	}
	if exists {
		return w.client.UpdateObject(ctx, ClassName, id, props)
	}
	return w.client.CreateObject(ctx, ClassName, id, props)
}

func (w *WeaviateIndexer) ensureClass(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.classEnsured {
		return nil
	}

	classes, err := w.client.GetClasses(ctx)
	if err != nil {
		return fmt.Errorf("get classes: %w", err)
	}
	for _, c := range classes {
		if c == ClassName {
			w.classEnsured = true
			return nil
		}
	}

	if err := w.client.CreateClass(ctx, itemContentClass()); err != nil {
		return fmt.Errorf("create class %s: %w", ClassName, err)
	}
	w.logger.Info("created weaviate class", "class", ClassName)
	w.classEnsured = true
	return nil
}
