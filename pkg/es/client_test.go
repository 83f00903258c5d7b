package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat-go/internal/model"
)

func TestBuildSearchQueryFiltersByUser(t *testing.T) {
	q := BuildSearchQuery("u-1", "아이폰", 5)
	raw, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"size": 5,
		"query": {"bool": {
			"must": {"match": {"content": {"query": "아이폰"}}},
			"filter": {"term": {"user_id": "u-1"}}
		}},
		"sort": ["_score", {"created_at": "desc"}]
	}`, string(raw))
}

func TestSearchDecodesHits(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_score":1.5,"_source":{"entry_id":"e-1","user_id":"u-1","session_id":"s-1","role":"user","content":"아이폰 찾아줘","created_at":"2024-01-15T10:30:00Z"}}]}}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	idx := &EntryIndex{client: client, index: "test"}

	hits, err := idx.Search(context.Background(), "u-1", "아이폰", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, model.SearchHit{
		EntryID:   "e-1",
		SessionID: "s-1",
		Role:      "user",
		Content:   "아이폰 찾아줘",
		CreatedAt: hits[0].CreatedAt,
		Score:     1.5,
	}, hits[0])
	assert.Equal(t, 2024, hits[0].CreatedAt.Year())
	assert.Contains(t, gotBody, `"user_id":"u-1"`)
}
