package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"variant-merger/internal/models"
	"variant-merger/internal/tracing"
)

// ItemSearcher lists candidate items for the selection screen
type ItemSearcher interface {
	SearchItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error)
}

// ItemSummary is one row of the candidate listing
type ItemSummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	SKU        string   `json:"sku"`
	Price      string   `json:"price"`
	Stock      *int     `json:"stock"`
	Categories []string `json:"categories"`
}

// ItemListResponse is the candidate listing with the unpaged total
type ItemListResponse struct {
	Products []ItemSummary `json:"products"`
	Total    int           `json:"total"`
}

// ItemHandler serves candidate item listings
type ItemHandler struct {
	items ItemSearcher
}

// NewItemHandler creates a new item handler
func NewItemHandler(items ItemSearcher) *ItemHandler {
	return &ItemHandler{items: items}
}

// Register registers the item routes
func (h *ItemHandler) Register(g *echo.Group) {
	g.GET("/items", h.List)
}

// List handles GET /items?search=&category=&limit=
func (h *ItemHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ItemHandler.List")
	defer span.End()

	filter := models.ItemFilter{
		Search:   c.QueryParam("search"),
		Category: c.QueryParam("category"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid limit %q", raw)
		}
		filter.Limit = limit
	}

	items, total, err := h.items.SearchItems(ctx, filter)
	if err != nil {
		tracing.Fail(span, err)
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	products := make([]ItemSummary, 0, len(items))
	for _, item := range items {
		categories := item.CategoryIDs
		if categories == nil {
			categories = []string{}
		}
		products = append(products, ItemSummary{
			ID:         item.ID,
			Name:       item.Name,
			SKU:        item.SKU,
			Price:      item.Price,
			Stock:      item.StockQuantity,
			Categories: categories,
		})
	}

	return c.JSON(http.StatusOK, ItemListResponse{Products: products, Total: total})
}
