package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
)

// DefaultIndex is the Elasticsearch index used when none is configured.
const DefaultIndex = "item_content"

// NewElasticsearchClient creates a client for url.
func NewElasticsearchClient(url string) (*es.Client, error) {
	if url == "" {
		url = "http://localhost:9200"
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	client, err := es.NewClient(es.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return client, nil
}

// ElasticsearchIndexer indexes documents with the bulk API, using the slug as
// document id.
type ElasticsearchIndexer struct {
	client *es.Client
	index  string
	logger *slog.Logger
}

// NewElasticsearchIndexer creates an indexer writing to index.
func NewElasticsearchIndexer(client *es.Client, index string, logger *slog.Logger) *ElasticsearchIndexer {
	if index == "" {
		index = DefaultIndex
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElasticsearchIndexer{client: client, index: index, logger: logger}
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Index sends all documents in one bulk request.
func (x *ElasticsearchIndexer) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": x.index,
				"_id":    doc.Slug,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}

	res, err := x.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		x.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk indexing error: %s", res.String())
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("error decoding bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}

	failed := map[string]string{}
	for _, item := range br.Items {
		for _, result := range item {
			if result.Status >= 300 {
				failed[result.ID] = result.Error.Type + ": " + result.Error.Reason
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}
	x.logger.Warn("bulk indexing partially failed", "backend", "elasticsearch", "failed", len(failed))
	return &IndexError{Backend: "elasticsearch", Failed: failed}
}
