// Package stats fetches team statistics and head-to-head records from
// several football data providers, cached in Redis and backed by an
// always-available estimator.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/phenomenon0/bet-copilot/core"
)

// ClientOption configures an API client.
type ClientOption func(*httpClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *httpClient) {
		c.http = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// httpClient is the JSON GET plumbing shared by the provider clients.
type httpClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

func newHTTPClient(name, baseURL string, rps float64, burst int, headers map[string]string, opts []ClientOption) *httpClient {
	c := &httpClient{
		name:    name,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		headers: headers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a GET and decodes the JSON body into result. Errors are
// classified: throttling and 5xx are unavailability, other 4xx and
// undecodable bodies are bad responses.
func (c *httpClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.FromContext(c.name, fmt.Errorf("rate limiter: %w", err))
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.BadResponse(c.name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.FromContext(c.name, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 ||
			resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return core.Unavailable(c.name, err)
		}
		return core.BadResponse(c.name, err)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return core.BadResponse(c.name, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
