package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Config holds catalog API client configuration
type Config struct {
	BaseURL        string
	AccessToken    string
	PageSize       int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RateLimitDelay time.Duration
	RequestTimeout time.Duration
}

// Client is a retrying HTTP client for the external catalog API.
// It keeps no state between calls beyond connection reuse.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Page is one page of catalog items
type Page struct {
	Items      []Item
	NextCursor string
	HasMore    bool
}

// NewClient creates a new catalog API client
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type pageResponse struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

// FetchPage fetches one page of items for a tenant. An empty cursor starts
// from the beginning.
func (c *Client) FetchPage(ctx context.Context, tenantID, cursor string) (*Page, error) {
	url := fmt.Sprintf("%s/tenants/%s/items?limit=%d", c.config.BaseURL, tenantID, c.config.PageSize)
	if cursor != "" {
		url += "&cursor=" + cursor
	}

	body, err := c.doWithRetry(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog page: %w", err)
	}

	var resp pageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode catalog page: %w", err)
	}

	return &Page{
		Items:      resp.Items,
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}, nil
}

// GetItem fetches the current remote state of a single item
func (c *Client) GetItem(ctx context.Context, tenantID, itemID string) (*Item, error) {
	url := fmt.Sprintf("%s/tenants/%s/items/%s", c.config.BaseURL, tenantID, itemID)

	body, err := c.doWithRetry(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item %s: %w", itemID, err)
	}

	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", itemID, err)
	}

	return &item, nil
}

// UpdateTitleDescription replaces the item's title+description field group.
// The catalog API only accepts the group as a whole, so callers must pass
// the current value of any field they do not intend to change.
func (c *Client) UpdateTitleDescription(ctx context.Context, tenantID, itemID, title, description string) error {
	url := fmt.Sprintf("%s/tenants/%s/items/%s", c.config.BaseURL, tenantID, itemID)

	payload, err := json.Marshal(map[string]string{
		"title":       title,
		"description": description,
	})
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	if _, err := c.doWithRetry(ctx, http.MethodPut, url, payload); err != nil {
		return fmt.Errorf("failed to update item %s: %w", itemID, err)
	}

	return nil
}

// UpdateImageAltText sets the alt text of one item image
func (c *Client) UpdateImageAltText(ctx context.Context, tenantID, itemID, imageID, altText string) error {
	url := fmt.Sprintf("%s/tenants/%s/items/%s/images/%s", c.config.BaseURL, tenantID, itemID, imageID)

	payload, err := json.Marshal(map[string]string{
		"alt_text": altText,
	})
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	if _, err := c.doWithRetry(ctx, http.MethodPut, url, payload); err != nil {
		return fmt.Errorf("failed to update image %s of item %s: %w", imageID, itemID, err)
	}

	return nil
}

// UpdateSchemaMarkup sets the item's structured-data markup
func (c *Client) UpdateSchemaMarkup(ctx context.Context, tenantID, itemID, markup string) error {
	url := fmt.Sprintf("%s/tenants/%s/items/%s/schema", c.config.BaseURL, tenantID, itemID)

	payload, err := json.Marshal(map[string]string{
		"schema_markup": markup,
	})
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	if _, err := c.doWithRetry(ctx, http.MethodPut, url, payload); err != nil {
		return fmt.Errorf("failed to update schema of item %s: %w", itemID, err)
	}

	return nil
}

// doWithRetry performs one HTTP call with the adapter's retry policy:
// 429 sleeps for the server-specified delay and retries without consuming
// the attempt budget; 401/403 fails immediately; anything else retries up
// to the attempt budget with doubling backoff.
func (c *Client) doWithRetry(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	maxAttempts := c.config.RetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("X-Access-Token", c.config.AccessToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				if err := c.backoff(ctx, attempt); err != nil {
					return nil, err
				}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response body: %w", readErr)
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			delay := c.retryAfter(resp)
			c.logger.Warn("Catalog API rate limited, waiting",
				slog.String("url", url),
				slog.Duration("delay", delay),
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			// A rate-limit response does not consume the attempt budget
			attempt--

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)

		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrItemNotFound

		default:
			lastErr = fmt.Errorf("catalog API returned status %d: %s", resp.StatusCode, string(body))
			if attempt < maxAttempts {
				c.logger.Warn("Catalog API call failed, retrying",
					slog.String("url", url),
					slog.Int("status", resp.StatusCode),
					slog.Int("attempt", attempt),
				)
				if err := c.backoff(ctx, attempt); err != nil {
					return nil, err
				}
			}
		}
	}

	return nil, fmt.Errorf("catalog API call failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryAfter reads the server-specified delay, falling back to the default
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.config.RateLimitDelay
}

// backoff sleeps for the exponential backoff delay of the given attempt
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.config.RetryBaseDelay * time.Duration(uint(1)<<uint(attempt-1))
	return sleepCtx(ctx, delay)
}

// sleepCtx sleeps for d or until the context is canceled
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
