package optimizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/optimly/catalog-optimizer/internal/catalog"
	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

// CatalogAPI is the catalog source adapter as seen by the optimizer core
type CatalogAPI interface {
	FetchPage(ctx context.Context, tenantID, cursor string) (*catalog.Page, error)
	GetItem(ctx context.Context, tenantID, itemID string) (*catalog.Item, error)
	UpdateTitleDescription(ctx context.Context, tenantID, itemID, title, description string) error
	UpdateImageAltText(ctx context.Context, tenantID, itemID, imageID, altText string) error
	UpdateSchemaMarkup(ctx context.Context, tenantID, itemID, markup string) error
}

// FieldChange is one desired field mutation for an item
type FieldChange struct {
	Field    string
	ImageID  string // set for ALT_TEXT changes
	OldValue string
	NewValue string
}

// Applier merges desired changes into an item's remote field set.
// Title and description form one field group that the catalog API only
// accepts as a whole, so the current remote value of an untouched sibling
// is always carried into the write.
type Applier struct {
	catalog CatalogAPI
	logger  *slog.Logger
}

// NewApplier creates a new mutation applier
func NewApplier(catalogAPI CatalogAPI, logger *slog.Logger) *Applier {
	return &Applier{
		catalog: catalogAPI,
		logger:  logger,
	}
}

// Apply writes the given changes to the remote item. The item argument
// must reflect the current remote state; its untouched sibling values are
// what the group write carries forward.
func (a *Applier) Apply(ctx context.Context, tenantID string, item *catalog.Item, changes []FieldChange) error {
	title := item.Title
	description := item.Description
	groupChanged := false

	for _, change := range changes {
		switch change.Field {
		case domain.FieldTitle:
			title = change.NewValue
			groupChanged = true

		case domain.FieldDescription:
			description = change.NewValue
			groupChanged = true

		case domain.FieldAltText:
			if change.ImageID == "" {
				return fmt.Errorf("alt text change for item %s is missing an image id", item.ID)
			}
			if err := a.catalog.UpdateImageAltText(ctx, tenantID, item.ID, change.ImageID, change.NewValue); err != nil {
				return err
			}

		case domain.FieldSchema:
			if err := a.catalog.UpdateSchemaMarkup(ctx, tenantID, item.ID, change.NewValue); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown field %q for item %s", change.Field, item.ID)
		}
	}

	if groupChanged {
		if err := a.catalog.UpdateTitleDescription(ctx, tenantID, item.ID, title, description); err != nil {
			return err
		}
	}

	a.logger.Debug("Applied item mutation",
		slog.String("tenant_id", tenantID),
		slog.String("item_id", item.ID),
		slog.Int("changes", len(changes)),
	)

	return nil
}
