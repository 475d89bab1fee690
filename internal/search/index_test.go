package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method string
	path   string
	query  string
	body   map[string]any
}

// newStubES serves canned Elasticsearch responses and records the last request.
func newStubES(t *testing.T, status int, response string) (*Index, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.query = r.URL.RawQuery

		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &captured.body)
		}

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	idx, err := New([]string{srv.URL}, "", "games")
	require.NoError(t, err)
	return idx, captured
}

func TestAddIndexesDocument(t *testing.T) {
	idx, captured := newStubES(t, http.StatusCreated, `{"result":"created"}`)

	err := idx.Add(context.Background(), Document{
		ID:    "g-1",
		Title: "Chrono",
		Price: 59.99,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, captured.method)
	assert.Equal(t, "/games/_doc/g-1", captured.path)
	assert.Equal(t, "Chrono", captured.body["title"])
	assert.Equal(t, float64(0), captured.body["popularity"])
}

func TestSearchBuildsTitleAndPriceFilters(t *testing.T) {
	idx, captured := newStubES(t, http.StatusOK, `{
		"hits": {
			"total": {"value": 1},
			"hits": [{"_source": {"id": "g-1", "title": "Super Mario", "price": 49.99}}]
		}
	}`)

	min, max := 10.0, 70.0
	docs, total, err := idx.Search(context.Background(), Query{
		Title:    "mario",
		MinPrice: &min,
		MaxPrice: &max,
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, "Super Mario", docs[0].Title)

	assert.Equal(t, "/games/_search", captured.path)

	must := captured.body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	wildcard := must[0].(map[string]any)["wildcard"].(map[string]any)["title"].(map[string]any)
	assert.Equal(t, "*mario*", wildcard["value"])
	assert.Equal(t, true, wildcard["case_insensitive"])
	rng := must[1].(map[string]any)["range"].(map[string]any)["price"].(map[string]any)
	assert.Equal(t, 10.0, rng["gte"])
	assert.Equal(t, 70.0, rng["lte"])
}

func TestSearchWithoutFiltersMatchesAll(t *testing.T) {
	idx, captured := newStubES(t, http.StatusOK, `{"hits":{"total":{"value":0},"hits":[]}}`)

	_, _, err := idx.Search(context.Background(), Query{Page: 2, PageSize: 5})
	require.NoError(t, err)

	_, ok := captured.body["query"].(map[string]any)["match_all"]
	assert.True(t, ok)
	assert.Equal(t, float64(5), captured.body["from"])
	assert.Equal(t, float64(5), captured.body["size"])
}

func TestPopularitySortedOrdersDescending(t *testing.T) {
	idx, captured := newStubES(t, http.StatusOK, `{"hits":{"total":{"value":0},"hits":[]}}`)

	_, _, err := idx.PopularitySorted(context.Background(), 1, 10)
	require.NoError(t, err)

	sorts := captured.body["sort"].([]any)
	require.Len(t, sorts, 1)
	pop := sorts[0].(map[string]any)["popularity"].(map[string]any)
	assert.Equal(t, "desc", pop["order"])
}

func TestIncrementPopularityUsesBoundedConflictRetry(t *testing.T) {
	idx, captured := newStubES(t, http.StatusOK, `{"result":"updated"}`)

	err := idx.IncrementPopularity(context.Background(), "g-1")
	require.NoError(t, err)

	assert.Equal(t, "/games/_update/g-1", captured.path)
	assert.Contains(t, captured.query, "retry_on_conflict=3")

	script := captured.body["script"].(map[string]any)
	assert.Contains(t, script["source"], "popularity += 1")
}

func TestRecommendByCategoriesTermsQuery(t *testing.T) {
	idx, captured := newStubES(t, http.StatusOK, `{"hits":{"total":{"value":0},"hits":[]}}`)

	_, err := idx.RecommendByCategories(context.Background(), []string{"RPG", "Platform"})
	require.NoError(t, err)

	terms := captured.body["query"].(map[string]any)["terms"].(map[string]any)["category"].([]any)
	assert.ElementsMatch(t, []any{"RPG", "Platform"}, terms)
}

func TestRecommendByCategoriesEmptySkipsRequest(t *testing.T) {
	idx, captured := newStubES(t, http.StatusOK, `{}`)

	docs, err := idx.RecommendByCategories(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, docs)
	assert.Empty(t, captured.path)
}

func TestErrorResponsesSurface(t *testing.T) {
	idx, _ := newStubES(t, http.StatusInternalServerError, `{"error":{"reason":"boom"}}`)

	err := idx.Delete(context.Background(), "g-1")
	require.Error(t, err)

	_, _, err = idx.Search(context.Background(), Query{Page: 1, PageSize: 10})
	require.Error(t, err)
}
