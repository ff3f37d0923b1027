package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ansari/internal/config"
	"ansari/internal/logging"
)

const defaultResultLimit = 10

// searchClient talks to one remote search backend. All backends share the
// same minimal contract: POST /search with a free-text query, JSON hits back.
type searchClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newSearchClient(cfg config.SearchServiceConfig) *searchClient {
	return &searchClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []Hit `json:"results"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// search performs one query against the backend. Transport failures
// propagate to the agent loop, which counts them against its failure budget.
func (c *searchClient) search(ctx context.Context, path, query string) ([]Hit, error) {
	startTime := time.Now()
	log := logging.Get(logging.CategoryTools)

	if c.apiKey == "" {
		return nil, fmt.Errorf("search API key not configured")
	}

	body, err := json.Marshal(searchRequest{Query: query, Limit: defaultResultLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded searchResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("search error: %s", decoded.Error.Message)
	}

	log.Debugf("search %s: query_len=%d hits=%d elapsed=%v", path, len(query), len(decoded.Results), time.Since(startTime))
	return decoded.Results, nil
}
