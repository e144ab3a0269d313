package generator

import (
	"encoding/json"
	"fmt"

	"github.com/optimly/catalog-optimizer/internal/catalog"
)

// BuildSchemaMarkup renders schema.org Product JSON-LD from the item's
// current fields. Built locally rather than generated: the markup is
// deterministic given the item.
func BuildSchemaMarkup(item *catalog.Item) (string, error) {
	if item.Title == "" {
		return "", nil
	}

	markup := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "Product",
		"name":        item.Title,
		"description": item.Description,
	}

	if len(item.Images) > 0 {
		urls := make([]string, 0, len(item.Images))
		for _, img := range item.Images {
			if img.Src != "" {
				urls = append(urls, img.Src)
			}
		}
		if len(urls) > 0 {
			markup["image"] = urls
		}
	}

	if len(item.Tags) > 0 {
		markup["keywords"] = item.Tags
	}

	data, err := json.Marshal(markup)
	if err != nil {
		return "", fmt.Errorf("failed to encode schema markup: %w", err)
	}

	return string(data), nil
}
