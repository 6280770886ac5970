package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the product full-text index (a Meilisearch instance). The
// engine itself only needs an opaque ID list back: relevance lives in the
// sidecar, ranking and filtering stay in this service.
type Client struct {
	baseURL    string
	apiKey     string
	indexName  string
	httpClient *http.Client
}

// NewClient creates a search sidecar client.
func NewClient(baseURL, apiKey, indexName string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		indexName:  indexName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query string `json:"q"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Hits []struct {
		ID int64 `json:"id"`
	} `json:"hits"`
}

// SearchProductIDs runs a full-text query against the product index and
// returns the matching product IDs in relevance order. The result is never
// nil on success, so callers can distinguish "no narrowing" (nil) from
// "matched nothing" (empty).
func (c *Client) SearchProductIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("search: failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/search", c.baseURL, c.indexName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d from index", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("search: failed to decode response: %w", err)
	}

	ids := make([]int64, 0, len(decoded.Hits))
	for _, hit := range decoded.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
