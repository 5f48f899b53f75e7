package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"variant-merger/internal/models"
)

// Fixture is a YAML document of items to load into the catalog
type Fixture struct {
	Items []FixtureItem `yaml:"items"`
}

// FixtureItem is an item plus its taxonomy terms. Category ids become product_cat terms.
type FixtureItem struct {
	models.Item `yaml:",inline"`
	Terms       map[string][]models.Term `yaml:"terms,omitempty"`
}

// LoadFixture reads a fixture file
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes fixture YAML
func ParseFixture(data []byte) (*Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	for i, item := range fixture.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("fixture item %d has no id", i)
		}
	}
	return &fixture, nil
}

// Seed inserts or replaces every fixture item and its terms
func (c *SQLiteCatalog) Seed(ctx context.Context, fixture *Fixture) (int, error) {
	for _, fi := range fixture.Items {
		if err := c.upsertItem(ctx, fi.Item); err != nil {
			return 0, err
		}

		categories := make([]models.Term, 0, len(fi.CategoryIDs))
		for _, id := range fi.CategoryIDs {
			categories = append(categories, models.Term{ID: id, Name: id})
		}
		if err := c.SetItemTerms(ctx, fi.ID, models.TaxonomyCategory, categories); err != nil {
			return 0, err
		}

		for taxonomy, terms := range fi.Terms {
			if taxonomy == models.TaxonomyCategory {
				continue
			}
			if err := c.SetItemTerms(ctx, fi.ID, taxonomy, terms); err != nil {
				return 0, err
			}
		}
	}

	c.logger.Info("seeded catalog", zap.Int("items", len(fixture.Items)))
	return len(fixture.Items), nil
}

func (c *SQLiteCatalog) upsertItem(ctx context.Context, item models.Item) error {
	if item.Kind == "" {
		item.Kind = models.KindSimple
	}
	if item.Status == "" {
		item.Status = models.ItemPublished
	}

	attributes, err := json.Marshal(nonNilAttributes(item.Attributes))
	if err != nil {
		return fmt.Errorf("failed to encode attributes of %s: %w", item.ID, err)
	}
	selected := item.VariantAttributes
	if selected == nil {
		selected = map[string]string{}
	}
	variantAttributes, err := json.Marshal(selected)
	if err != nil {
		return fmt.Errorf("failed to encode variant attributes of %s: %w", item.ID, err)
	}

	var stock interface{}
	if item.StockQuantity != nil {
		stock = *item.StockQuantity
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto("items")
	ib.Cols(append(append([]string{}, itemColumns...), "created_at")...)
	ib.Values(
		item.ID, string(item.Kind), string(item.Status), models.VisibilityVisible, item.Name, item.SKU,
		item.Description, item.ShortDescription, item.Brand, string(attributes), string(variantAttributes),
		item.Price, item.RegularPrice, item.SalePrice, item.ManageStock, stock, item.StockStatus,
		item.Weight, item.Dimensions.Length, item.Dimensions.Width, item.Dimensions.Height, item.ImageID,
		item.ParentID, item.MergedInto, c.now().UnixMilli(),
	)
	query, args := ib.Build()

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
	}
	return nil
}
