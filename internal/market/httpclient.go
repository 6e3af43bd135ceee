// Package market collects the KR and US stock universes, daily ranking
// boards, and trading session status. Data sources are the Naver and
// Daum finance pages for Korea, SlickCharts for the NASDAQ-100, and the
// Yahoo chart API for US closes and volumes.
package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/marketlens/marketlens/internal/config"
)

const (
	maxRetries   = 3
	retryBackoff = 600 * time.Millisecond
)

// backoffDelay doubles per retry: 600ms, 1.2s, ...
func backoffDelay(attempt int) time.Duration {
	return retryBackoff << (attempt - 1)
}

// Fetcher retrieves remote pages and JSON documents. Implemented by
// HTTPClient and by test fakes.
type Fetcher interface {
	GetText(ctx context.Context, rawURL, referer string) (string, error)
	GetTextEUCKR(ctx context.Context, rawURL, referer string) (string, error)
	GetJSON(ctx context.Context, rawURL string, params url.Values, referer string) ([]byte, error)
}

// HTTPClient is a retrying HTTP fetcher with a browser user agent.
// Finance pages reject requests without one.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// NewHTTPClient builds a fetcher from crawler configuration.
func NewHTTPClient(cfg config.CrawlerConfig) *HTTPClient {
	return &HTTPClient{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

func (c *HTTPClient) get(ctx context.Context, rawURL, referer, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if referer != "" {
			req.Header.Set("Referer", referer)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d from %s", resp.StatusCode, rawURL)
			continue
		default:
			return nil, fmt.Errorf("status %d from %s", resp.StatusCode, rawURL)
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}

// GetText fetches a UTF-8 page.
func (c *HTTPClient) GetText(ctx context.Context, rawURL, referer string) (string, error) {
	body, err := c.get(ctx, rawURL, referer, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetTextEUCKR fetches a page and decodes it from EUC-KR. The Naver
// finance pages still serve that encoding.
func (c *HTTPClient) GetTextEUCKR(ctx context.Context, rawURL, referer string) (string, error) {
	body, err := c.get(ctx, rawURL, referer, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(transform.NewReader(strings.NewReader(string(body)), korean.EUCKR.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("failed to decode EUC-KR page: %w", err)
	}
	return string(decoded), nil
}

// GetJSON fetches a JSON document with query parameters.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, params url.Values, referer string) ([]byte, error) {
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + params.Encode()
	}
	return c.get(ctx, rawURL, referer, "application/json, text/plain, */*")
}
