// Package catalog is a SQLite-backed item store implementing the merge catalog.
// It backs local runs and tests and can be seeded from YAML fixtures.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"variant-merger/internal/merge"
	"variant-merger/internal/models"
)

// DefaultPageSize is the listing page size when none is given
const DefaultPageSize = 50

var itemColumns = []string{
	"id", "kind", "status", "visibility", "name", "sku", "description", "short_description", "brand",
	"attributes", "variant_attributes", "price", "regular_price", "sale_price", "manage_stock",
	"stock_quantity", "stock_status", "weight", "length", "width", "height", "image_id",
	"parent_id", "merged_into",
}

type itemRow struct {
	ID                string        `db:"id"`
	Kind              string        `db:"kind"`
	Status            string        `db:"status"`
	Visibility        string        `db:"visibility"`
	Name              string        `db:"name"`
	SKU               string        `db:"sku"`
	Description       string        `db:"description"`
	ShortDescription  string        `db:"short_description"`
	Brand             string        `db:"brand"`
	Attributes        string        `db:"attributes"`
	VariantAttributes string        `db:"variant_attributes"`
	Price             string        `db:"price"`
	RegularPrice      string        `db:"regular_price"`
	SalePrice         string        `db:"sale_price"`
	ManageStock       bool          `db:"manage_stock"`
	StockQuantity     sql.NullInt64 `db:"stock_quantity"`
	StockStatus       string        `db:"stock_status"`
	Weight            string        `db:"weight"`
	Length            string        `db:"length"`
	Width             string        `db:"width"`
	Height            string        `db:"height"`
	ImageID           string        `db:"image_id"`
	ParentID          string        `db:"parent_id"`
	MergedInto        string        `db:"merged_into"`
}

func (r itemRow) toModel() (models.Item, error) {
	item := models.Item{
		ID:               r.ID,
		Kind:             models.ItemKind(r.Kind),
		Status:           models.ItemStatus(r.Status),
		Name:             r.Name,
		SKU:              r.SKU,
		Description:      r.Description,
		ShortDescription: r.ShortDescription,
		Brand:            r.Brand,
		Price:            r.Price,
		RegularPrice:     r.RegularPrice,
		SalePrice:        r.SalePrice,
		ManageStock:      r.ManageStock,
		StockStatus:      r.StockStatus,
		Weight:           r.Weight,
		Dimensions:       models.Dimensions{Length: r.Length, Width: r.Width, Height: r.Height},
		ImageID:          r.ImageID,
		ParentID:         r.ParentID,
		MergedInto:       r.MergedInto,
	}
	if r.StockQuantity.Valid {
		q := int(r.StockQuantity.Int64)
		item.StockQuantity = &q
	}
	if err := json.Unmarshal([]byte(r.Attributes), &item.Attributes); err != nil {
		return item, fmt.Errorf("failed to decode attributes of item %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.VariantAttributes), &item.VariantAttributes); err != nil {
		return item, fmt.Errorf("failed to decode variant attributes of item %s: %w", r.ID, err)
	}
	if len(item.Attributes) == 0 {
		item.Attributes = nil
	}
	if len(item.VariantAttributes) == 0 {
		item.VariantAttributes = nil
	}
	return item, nil
}

// SQLiteCatalog implements merge.Catalog using SQLite
type SQLiteCatalog struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteCatalog creates a catalog on an open database
func NewSQLiteCatalog(db *sqlx.DB, logger *zap.Logger) *SQLiteCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteCatalog{db: db, logger: logger, now: time.Now}
}

// ListSimplePublishedItems returns up to limit simple published items with ids after `after`
func (c *SQLiteCatalog) ListSimplePublishedItems(ctx context.Context, after string, limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(itemColumns...).From("items")
	sb.Where(
		sb.Equal("kind", string(models.KindSimple)),
		sb.Equal("status", string(models.ItemPublished)),
		sb.GreaterThan("id", after),
	)
	sb.OrderBy("id ASC").Limit(limit)

	return c.selectItems(ctx, sb)
}

// SearchItems lists simple published items matching the filter, with the total match count
func (c *SQLiteCatalog) SearchItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}

	countSb := sqlbuilder.SQLite.NewSelectBuilder()
	countSb.Select("COUNT(*)").From("items")
	applyFilter(countSb, filter)
	query, args := countSb.Build()

	var total int
	if err := c.db.GetContext(ctx, &total, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(itemColumns...).From("items")
	applyFilter(sb, filter)
	sb.OrderBy("id ASC").Limit(filter.Limit)

	items, err := c.selectItems(ctx, sb)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func applyFilter(sb *sqlbuilder.SelectBuilder, filter models.ItemFilter) {
	sb.Where(
		sb.Equal("kind", string(models.KindSimple)),
		sb.Equal("status", string(models.ItemPublished)),
	)
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		sb.Where(sb.Or(sb.Like("name", pattern), sb.Like("sku", pattern)))
	}
	if filter.Category != "" {
		sub := sqlbuilder.SQLite.NewSelectBuilder()
		sub.Select("1").From("item_terms")
		sub.Where(
			"item_terms.item_id = items.id",
			sub.Equal("item_terms.taxonomy", models.TaxonomyCategory),
			sub.Equal("item_terms.term_id", filter.Category),
		)
		sb.Where(sb.Exists(sub))
	}
}

// GetItem returns the item, or nil when it does not exist
func (c *SQLiteCatalog) GetItem(ctx context.Context, id string) (*models.Item, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(itemColumns...).From("items").Where(sb.Equal("id", id))

	items, err := c.selectItems(ctx, sb)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ListVariants returns the variations under a combined item
func (c *SQLiteCatalog) ListVariants(ctx context.Context, parentID string) ([]models.Item, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(itemColumns...).From("items")
	sb.Where(sb.Equal("parent_id", parentID), sb.Equal("kind", string(models.KindVariation)))
	sb.OrderBy("created_at ASC", "rowid ASC")

	return c.selectItems(ctx, sb)
}

func (c *SQLiteCatalog) selectItems(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Item, error) {
	query, args := sb.Build()

	var rows []itemRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	items := make([]models.Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toModel()
		if err != nil {
			return nil, err
		}
		categories, err := c.GetItemTerms(ctx, item.ID, models.TaxonomyCategory)
		if err != nil {
			return nil, err
		}
		for _, term := range categories {
			item.CategoryIDs = append(item.CategoryIDs, term.ID)
		}
		items = append(items, item)
	}
	return items, nil
}

// CreateCombinedItem inserts a variable item and returns its id
func (c *SQLiteCatalog) CreateCombinedItem(ctx context.Context, spec models.CombinedItemSpec) (string, error) {
	attributes, err := json.Marshal(nonNilAttributes(spec.Attributes))
	if err != nil {
		return "", fmt.Errorf("failed to encode attributes: %w", err)
	}

	id := uuid.New().String()
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("items")
	ib.Cols("id", "kind", "status", "visibility", "name", "description", "short_description", "image_id", "attributes", "created_at")
	ib.Values(id, string(models.KindVariable), string(spec.Status), spec.Visibility, spec.Name,
		spec.Description, spec.ShortDescription, spec.ImageID, string(attributes), c.now().UnixMilli())
	query, args := ib.Build()

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to create combined item: %w", err)
	}
	c.logger.Debug("created combined item", zap.String("combined_id", id))
	return id, nil
}

// UpdateCombinedItem sets the name and attribute set of a combined item
func (c *SQLiteCatalog) UpdateCombinedItem(ctx context.Context, id string, name string, attributes []models.Attribute) error {
	encoded, err := json.Marshal(nonNilAttributes(attributes))
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("items")
	ub.Set(ub.Assign("name", name), ub.Assign("attributes", string(encoded)))
	ub.Where(ub.Equal("id", id), ub.Equal("kind", string(models.KindVariable)))
	return c.execOne(ctx, ub, "update combined item", id)
}

// CreateVariant inserts a variation under parentID and returns its id
func (c *SQLiteCatalog) CreateVariant(ctx context.Context, parentID string, spec models.VariantSpec) (string, error) {
	selected := spec.Attributes
	if selected == nil {
		selected = map[string]string{}
	}
	encoded, err := json.Marshal(selected)
	if err != nil {
		return "", fmt.Errorf("failed to encode variant attributes: %w", err)
	}

	var stock interface{}
	if spec.StockQuantity != nil {
		stock = *spec.StockQuantity
	}

	id := uuid.New().String()
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("items")
	ib.Cols("id", "kind", "status", "parent_id", "variant_attributes", "price", "regular_price", "sale_price",
		"manage_stock", "stock_quantity", "stock_status", "weight", "length", "width", "height", "image_id", "created_at")
	ib.Values(id, string(models.KindVariation), string(spec.Status), parentID, string(encoded),
		spec.Price, spec.RegularPrice, spec.SalePrice, spec.ManageStock, stock, spec.StockStatus,
		spec.Weight, spec.Dimensions.Length, spec.Dimensions.Width, spec.Dimensions.Height, spec.ImageID,
		c.now().UnixMilli())
	query, args := ib.Build()

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to create variant of %s: %w", parentID, err)
	}
	return id, nil
}

// UpdateItemStatus sets an item's status and, when given, its merged-into back-reference
func (c *SQLiteCatalog) UpdateItemStatus(ctx context.Context, id string, status models.ItemStatus, mergedInto string) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("items")
	ub.Set(ub.Assign("status", string(status)))
	if mergedInto != "" {
		ub.SetMore(ub.Assign("merged_into", mergedInto))
	}
	ub.Where(ub.Equal("id", id))
	return c.execOne(ctx, ub, "update item status", id)
}

// ListItemTaxonomies returns the taxonomies the item has terms in
func (c *SQLiteCatalog) ListItemTaxonomies(ctx context.Context, id string) ([]string, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("taxonomy").Distinct().From("item_terms").Where(sb.Equal("item_id", id)).OrderBy("taxonomy")
	query, args := sb.Build()

	var taxonomies []string
	if err := c.db.SelectContext(ctx, &taxonomies, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list taxonomies of %s: %w", id, err)
	}
	return taxonomies, nil
}

// GetItemTerms returns the item's terms in a taxonomy in assignment order
func (c *SQLiteCatalog) GetItemTerms(ctx context.Context, id string, taxonomy string) ([]models.Term, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("term_id AS id", "term_name AS name").From("item_terms")
	sb.Where(sb.Equal("item_id", id), sb.Equal("taxonomy", taxonomy))
	sb.OrderBy("position ASC")
	query, args := sb.Build()

	var terms []models.Term
	if err := c.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get %s terms of %s: %w", taxonomy, id, err)
	}
	return terms, nil
}

// SetItemTerms replaces the item's terms in a taxonomy
func (c *SQLiteCatalog) SetItemTerms(ctx context.Context, id string, taxonomy string, terms []models.Term) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("item_terms").Where(del.Equal("item_id", id), del.Equal("taxonomy", taxonomy))
	query, args := del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear %s terms of %s: %w", taxonomy, id, err)
	}

	if len(terms) > 0 {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertIgnoreInto("item_terms")
		ib.Cols("item_id", "taxonomy", "term_id", "term_name", "position")
		for i, term := range terms {
			ib.Values(id, taxonomy, term.ID, term.Name, i)
		}
		query, args = ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to set %s terms of %s: %w", taxonomy, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ErrItemNotFound is returned when an update matches no item
var ErrItemNotFound = errors.New("item not found")

func (c *SQLiteCatalog) execOne(ctx context.Context, builder sqlbuilder.Builder, op, id string) error {
	query, args := builder.Build()
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to %s %s: %w", op, id, ErrItemNotFound)
	}
	return nil
}

func nonNilAttributes(attrs []models.Attribute) []models.Attribute {
	if attrs == nil {
		return []models.Attribute{}
	}
	return attrs
}

var _ merge.Catalog = (*SQLiteCatalog)(nil)
