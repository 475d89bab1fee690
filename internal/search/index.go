// Package search maintains the denormalized game index in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// popularityRetries bounds the optimistic-concurrency retry on the scripted
// increment; overlapping confirmations for the same game are expected.
const popularityRetries = 3

// Document is the indexed shape of a game.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
	Popularity  int64     `json:"popularity"`
}

// Query narrows a paginated document search.
type Query struct {
	Title    string
	MinPrice *float64
	MaxPrice *float64
	Page     int
	PageSize int
}

// Index wraps an Elasticsearch index of game documents.
type Index struct {
	es   *elasticsearch.Client
	name string
}

// New connects an Index to the given Elasticsearch endpoints.
func New(addresses []string, apiKey, name string) (*Index, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		APIKey:    apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Index{es: es, name: name}, nil
}

func (i *Index) Add(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	res, err := i.es.Index(i.name, bytes.NewReader(body),
		i.es.Index.WithDocumentID(doc.ID),
		i.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	return closeAndCheck(res, "index document")
}

func (i *Index) Update(ctx context.Context, doc Document) error {
	body, err := json.Marshal(map[string]any{
		"doc": map[string]any{
			"title":       doc.Title,
			"price":       doc.Price,
			"description": doc.Description,
			"category":    doc.Category,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal partial document: %w", err)
	}

	res, err := i.es.Update(i.name, doc.ID, bytes.NewReader(body),
		i.es.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	return closeAndCheck(res, "update document")
}

func (i *Index) Delete(ctx context.Context, id string) error {
	res, err := i.es.Delete(i.name, id, i.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return closeAndCheck(res, "delete document")
}

// IncrementPopularity bumps the counter with a scripted update so concurrent
// confirmations retry on version conflict instead of losing increments.
func (i *Index) IncrementPopularity(ctx context.Context, id string) error {
	body := `{"script":{"source":"ctx._source.popularity += 1","lang":"painless"}}`

	res, err := i.es.Update(i.name, id, bytes.NewReader([]byte(body)),
		i.es.Update.WithContext(ctx),
		i.es.Update.WithRetryOnConflict(popularityRetries),
	)
	if err != nil {
		return fmt.Errorf("increment popularity for %s: %w", id, err)
	}
	return closeAndCheck(res, "increment popularity")
}

// Search runs a paginated title/price query and returns matches plus the
// total match count.
func (i *Index) Search(ctx context.Context, q Query) ([]Document, int64, error) {
	must := make([]map[string]any, 0, 2)

	if q.Title != "" {
		must = append(must, map[string]any{
			"wildcard": map[string]any{
				"title": map[string]any{
					"value":            "*" + q.Title + "*",
					"case_insensitive": true,
				},
			},
		})
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		rng := map[string]any{}
		if q.MinPrice != nil {
			rng["gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			rng["lte"] = *q.MaxPrice
		}
		must = append(must, map[string]any{
			"range": map[string]any{"price": rng},
		})
	}

	var query map[string]any
	if len(must) == 0 {
		query = map[string]any{"match_all": map[string]any{}}
	} else {
		query = map[string]any{"bool": map[string]any{"must": must}}
	}

	return i.search(ctx, map[string]any{
		"query":            query,
		"from":             offset(q.Page, q.PageSize),
		"size":             q.PageSize,
		"track_total_hits": true,
	})
}

// PopularitySorted lists documents most-purchased first.
func (i *Index) PopularitySorted(ctx context.Context, page, pageSize int) ([]Document, int64, error) {
	return i.search(ctx, map[string]any{
		"query":            map[string]any{"match_all": map[string]any{}},
		"sort":             []map[string]any{{"popularity": map[string]any{"order": "desc"}}},
		"from":             offset(page, pageSize),
		"size":             pageSize,
		"track_total_hits": true,
	})
}

// RecommendByCategories returns documents matching any of the given categories.
func (i *Index) RecommendByCategories(ctx context.Context, categories []string) ([]Document, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	docs, _, err := i.search(ctx, map[string]any{
		"query": map[string]any{"terms": map[string]any{"category": categories}},
		"size":  50,
	})
	return docs, err
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (i *Index) search(ctx context.Context, body map[string]any) ([]Document, int64, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal query: %w", err)
	}

	res, err := i.es.Search(
		i.es.Search.WithContext(ctx),
		i.es.Search.WithIndex(i.name),
		i.es.Search.WithBody(bytes.NewReader(raw)),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("search: %s", res.String())
	}

	var decoded searchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]Document, 0, len(decoded.Hits.Hits))
	for _, h := range decoded.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, decoded.Hits.Total.Value, nil
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

func closeAndCheck(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%s: %s", op, res.String())
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
