package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// SearchService proxies the Google Custom Search API.
type SearchService struct {
	client   *resty.Client
	apiKey   string
	engineID string
}

type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Items []SearchResult `json:"items"`
}

func NewSearchService(apiKey, engineID string) *SearchService {
	return &SearchService{
		client: resty.New().
			SetBaseURL("https://www.googleapis.com/customsearch").
			SetTimeout(10 * time.Second),
		apiKey:   apiKey,
		engineID: engineID,
	}
}

// Search runs one web search and returns the result list.
func (s *SearchService) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var out searchResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key": s.apiKey,
			"cx":  s.engineID,
			"q":   query,
		}).
		SetResult(&out).
		Get("/v1")
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("search status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Items, nil
}
