package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SearchProductIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/indexes/products/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "iphone", req.Query)
		assert.Equal(t, 50, req.Limit)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hits": [{"id": 3, "name": "iPhone 15"}, {"id": 7, "name": "iPhone SE"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "products", time.Second)

	ids, err := client.SearchProductIDs(context.Background(), "iphone", 50)

	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, ids)
}

func TestClient_SearchProductIDs_NoHitsIsEmptyNotNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "products", time.Second)

	ids, err := client.SearchProductIDs(context.Background(), "nothing here", 50)

	require.NoError(t, err)
	require.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestClient_SearchProductIDs_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "products", time.Second)

	_, err := client.SearchProductIDs(context.Background(), "iphone", 50)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
}
