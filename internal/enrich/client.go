package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrRateLimited is returned when the local request window is exhausted.
// Callers should retry after the window resets.
var ErrRateLimited = errors.New("enrichment rate limit exceeded")

// CompanyProfile is the provider's view of a company.
type CompanyProfile struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Industry    string   `json:"industry"`
	Size        string   `json:"size"`
	Location    string   `json:"location"`
	Website     string   `json:"website"`
	FoundedYear int      `json:"foundedYear"`
	Tags        []string `json:"tags"`
}

// Client calls the company-data API. The rate limiter is shared by
// reference so concurrent requests draw from one window.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *RateLimit
}

// NewClient creates an enrichment client. limiter must not be nil.
func NewClient(baseURL, apiKey string, limiter *RateLimit) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
	}
}

// Lookup fetches the company profile for a name or domain. A non-2xx
// provider response is a transient failure the caller may retry.
func (c *Client) Lookup(ctx context.Context, query string) (CompanyProfile, error) {
	if !c.limiter.Allow() {
		return CompanyProfile{}, ErrRateLimited
	}

	endpoint := fmt.Sprintf("%s/v1/companies?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CompanyProfile{}, fmt.Errorf("build enrichment request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CompanyProfile{}, fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompanyProfile{}, fmt.Errorf("enrichment provider returned %d", resp.StatusCode)
	}

	var profile CompanyProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return CompanyProfile{}, fmt.Errorf("decode enrichment response: %w", err)
	}
	return profile, nil
}
