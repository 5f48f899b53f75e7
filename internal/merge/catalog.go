package merge

import (
	"context"

	"variant-merger/internal/models"
)

// Catalog is the external item store a merge reads from and mutates
type Catalog interface {
	// ListSimplePublishedItems pages through simple, published items ordered by id,
	// starting after the given id.
	ListSimplePublishedItems(ctx context.Context, after string, limit int) ([]models.Item, error)
	// GetItem returns nil without error when the item does not exist.
	GetItem(ctx context.Context, id string) (*models.Item, error)
	CreateCombinedItem(ctx context.Context, spec models.CombinedItemSpec) (string, error)
	UpdateCombinedItem(ctx context.Context, id string, name string, attributes []models.Attribute) error
	CreateVariant(ctx context.Context, parentID string, spec models.VariantSpec) (string, error)
	UpdateItemStatus(ctx context.Context, id string, status models.ItemStatus, mergedInto string) error
	ListItemTaxonomies(ctx context.Context, id string) ([]string, error)
	GetItemTerms(ctx context.Context, id string, taxonomy string) ([]models.Term, error)
	SetItemTerms(ctx context.Context, id string, taxonomy string, terms []models.Term) error
}
