package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"variant-merger/internal/database"
	"variant-merger/internal/models"
)

func newSeededCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := NewSQLiteCatalog(db, nil)
	fixture, err := LoadFixture(filepath.Join("testdata", "shirts.yaml"))
	require.NoError(t, err)

	n, err := c.Seed(context.Background(), fixture)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	return c
}

func TestSQLiteCatalog_GetItem(t *testing.T) {
	c := newSeededCatalog(t)

	item, err := c.GetItem(context.Background(), "101")
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, "Red Shirt", item.Name)
	assert.Equal(t, models.KindSimple, item.Kind)
	assert.Equal(t, models.ItemPublished, item.Status)
	assert.Equal(t, []string{"5", "9"}, item.CategoryIDs)
	assert.Equal(t, "5", item.PrimaryCategory())
	assert.Equal(t, "X", item.Brand)
	require.NotNil(t, item.StockQuantity)
	assert.Equal(t, 12, *item.StockQuantity)
	assert.Equal(t, models.Dimensions{Length: "30", Width: "20", Height: "2"}, item.Dimensions)
	require.Len(t, item.Attributes, 2)
	assert.True(t, item.Attributes[1].Taxonomy)
}

func TestSQLiteCatalog_GetItemMissing(t *testing.T) {
	c := newSeededCatalog(t)

	item, err := c.GetItem(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestSQLiteCatalog_ListSimplePublishedItemsPages(t *testing.T) {
	c := newSeededCatalog(t)
	ctx := context.Background()

	page, err := c.ListSimplePublishedItems(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "101", page[0].ID)
	assert.Equal(t, "102", page[1].ID)

	page, err = c.ListSimplePublishedItems(ctx, "102", 2)
	require.NoError(t, err)
	require.Len(t, page, 1, "draft item is excluded")
	assert.Equal(t, "103", page[0].ID)

	page, err = c.ListSimplePublishedItems(ctx, "103", 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSQLiteCatalog_SearchItems(t *testing.T) {
	c := newSeededCatalog(t)
	ctx := context.Background()

	items, total, err := c.SearchItems(ctx, models.ItemFilter{Search: "shirt"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = c.SearchItems(ctx, models.ItemFilter{Search: "BP-"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "103", items[0].ID)

	items, total, err = c.SearchItems(ctx, models.ItemFilter{Category: "9"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "101", items[0].ID)

	items, total, err = c.SearchItems(ctx, models.ItemFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 1)
}

func TestSQLiteCatalog_Terms(t *testing.T) {
	c := newSeededCatalog(t)
	ctx := context.Background()

	taxonomies, err := c.ListItemTaxonomies(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, []string{"pa_size", "product_cat"}, taxonomies)

	terms, err := c.GetItemTerms(ctx, "101", "pa_size")
	require.NoError(t, err)
	assert.Equal(t, []models.Term{{ID: "size-m", Name: "M"}}, terms)

	require.NoError(t, c.SetItemTerms(ctx, "101", "pa_size", []models.Term{{ID: "size-s", Name: "S"}, {ID: "size-m", Name: "M"}}))
	terms, err = c.GetItemTerms(ctx, "101", "pa_size")
	require.NoError(t, err)
	assert.Equal(t, []models.Term{{ID: "size-s", Name: "S"}, {ID: "size-m", Name: "M"}}, terms)

	require.NoError(t, c.SetItemTerms(ctx, "101", "pa_size", nil))
	terms, err = c.GetItemTerms(ctx, "101", "pa_size")
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestSQLiteCatalog_CombinedItemAndVariants(t *testing.T) {
	c := newSeededCatalog(t)
	ctx := context.Background()

	id, err := c.CreateCombinedItem(ctx, models.CombinedItemSpec{
		Name:       "Shirt",
		Status:     models.ItemPublished,
		Visibility: models.VisibilityVisible,
		ImageID:    "img-101",
	})
	require.NoError(t, err)

	attrs := []models.Attribute{{Name: "color", Options: []string{"Red", "Blue"}, Visible: true, Variation: true}}
	require.NoError(t, c.UpdateCombinedItem(ctx, id, "Classic Shirt", attrs))

	qty := 3
	variantID, err := c.CreateVariant(ctx, id, models.VariantSpec{
		SourceID:      "101",
		Attributes:    map[string]string{"color": "Red"},
		Status:        models.ItemPublished,
		Price:         "19.99",
		ManageStock:   true,
		StockQuantity: &qty,
	})
	require.NoError(t, err)

	combined, err := c.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.KindVariable, combined.Kind)
	assert.Equal(t, "Classic Shirt", combined.Name)
	assert.Equal(t, attrs, combined.Attributes)

	variants, err := c.ListVariants(ctx, id)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, variantID, variants[0].ID)
	assert.Equal(t, map[string]string{"color": "Red"}, variants[0].VariantAttributes)
	assert.Equal(t, 3, *variants[0].StockQuantity)
}

func TestSQLiteCatalog_UpdateItemStatus(t *testing.T) {
	c := newSeededCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.UpdateItemStatus(ctx, "101", models.ItemSuperseded, "combined-1"))

	item, err := c.GetItem(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, models.ItemSuperseded, item.Status)
	assert.Equal(t, "combined-1", item.MergedInto)

	err = c.UpdateItemStatus(ctx, "missing", models.ItemSuperseded, "")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestParseFixture_RequiresID(t *testing.T) {
	_, err := ParseFixture([]byte("items:\n  - name: nameless\n"))
	assert.Error(t, err)
}
