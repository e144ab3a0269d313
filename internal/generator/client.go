package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/optimly/catalog-optimizer/internal/catalog"
)

// Config holds generation service client configuration
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	TitleBounds    Bounds
	DescBounds     Bounds
	AltTextBounds  Bounds
}

// Client talks to the external content generation service. Every result
// goes through the normalization pipeline before being returned; an empty
// return value means "skip this field".
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new generation service client
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type generateRequest struct {
	Field        string   `json:"field"`
	Strategy     string   `json:"strategy"`
	Tone         string   `json:"tone,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
}

type generateResponse struct {
	Value string `json:"value"`
}

// GenerateTitle produces a candidate title for the item
func (c *Client) GenerateTitle(ctx context.Context, item *catalog.Item, tone, instructions string) (string, error) {
	value, err := c.generate(ctx, &generateRequest{
		Field:        "title",
		Strategy:     "text",
		Tone:         tone,
		Instructions: instructions,
		Title:        item.Title,
		Description:  item.Description,
		Tags:         item.Tags,
	})
	if err != nil {
		return "", err
	}

	return Normalize(value, c.config.TitleBounds), nil
}

// GenerateDescription produces a candidate description for the item
func (c *Client) GenerateDescription(ctx context.Context, item *catalog.Item, tone, instructions string) (string, error) {
	value, err := c.generate(ctx, &generateRequest{
		Field:        "description",
		Strategy:     "text",
		Tone:         tone,
		Instructions: instructions,
		Title:        item.Title,
		Description:  item.Description,
		Tags:         item.Tags,
	})
	if err != nil {
		return "", err
	}

	return Normalize(value, c.config.DescBounds), nil
}

// GenerateAltText produces a candidate alt text for one item image. The
// primary image-aware strategy is tried first; when it errors or comes
// back empty the simpler text-only strategy is used instead.
func (c *Client) GenerateAltText(ctx context.Context, item *catalog.Item, image *catalog.Image, tone, instructions string) (string, error) {
	value, err := c.generate(ctx, &generateRequest{
		Field:        "alt_text",
		Strategy:     "vision",
		Tone:         tone,
		Instructions: instructions,
		Title:        item.Title,
		Tags:         item.Tags,
		ImageURL:     image.Src,
	})
	if err != nil || value == "" {
		if err != nil {
			c.logger.Warn("Vision alt text generation failed, falling back to text strategy",
				slog.String("item_id", item.ID),
				slog.String("image_id", image.ID),
				slog.Any("error", err),
			)
		}

		value, err = c.generate(ctx, &generateRequest{
			Field:        "alt_text",
			Strategy:     "text",
			Tone:         tone,
			Instructions: instructions,
			Title:        item.Title,
			Description:  item.Description,
			Tags:         item.Tags,
		})
		if err != nil {
			return "", err
		}
	}

	return Normalize(value, c.config.AltTextBounds), nil
}

// generate performs one generation call
func (c *Client) generate(ctx context.Context, req *generateRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation service returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}

	return genResp.Value, nil
}
