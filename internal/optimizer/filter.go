package optimizer

import (
	"strings"

	"github.com/optimly/catalog-optimizer/internal/catalog"
	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

// Excluded reports whether an item matches the tenant's block-lists.
// Tag matching is case-insensitive; collection matching is by identifier.
func Excluded(item *catalog.Item, rules *domain.ExclusionRules) bool {
	if rules == nil {
		return false
	}

	for _, tag := range item.Tags {
		for _, blocked := range rules.BlockedTags {
			if strings.EqualFold(tag, blocked) {
				return true
			}
		}
	}

	for _, collectionID := range item.CollectionIDs {
		for _, blocked := range rules.BlockedCollections {
			if collectionID == blocked {
				return true
			}
		}
	}

	return false
}

// FilterItems drops every item matching the tenant's block-lists
func FilterItems(items []catalog.Item, rules *domain.ExclusionRules) []catalog.Item {
	if rules == nil || (len(rules.BlockedTags) == 0 && len(rules.BlockedCollections) == 0) {
		return items
	}

	kept := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		if !Excluded(&item, rules) {
			kept = append(kept, item)
		}
	}
	return kept
}
