package models

// ItemKind is the catalog product type
type ItemKind string

const (
	KindSimple    ItemKind = "simple"
	KindVariable  ItemKind = "variable"
	KindVariation ItemKind = "variation"
)

// ItemStatus is the catalog publication status
type ItemStatus string

const (
	ItemPublished ItemStatus = "publish"
	// ItemSuperseded marks a source item that has been merged into a combined item.
	ItemSuperseded ItemStatus = "draft"
)

// Visibility values for combined items
const (
	VisibilityVisible = "visible"
)

// TaxonomyCategory is the taxonomy holding category assignments
const TaxonomyCategory = "product_cat"

// Attribute is a named, ordered list of values on an item.
// Taxonomy attributes resolve their values from catalog terms.
type Attribute struct {
	Name      string   `json:"name" yaml:"name"`
	Options   []string `json:"options" yaml:"options"`
	Taxonomy  bool     `json:"taxonomy,omitempty" yaml:"taxonomy,omitempty"`
	Visible   bool     `json:"visible,omitempty" yaml:"visible,omitempty"`
	Variation bool     `json:"variation,omitempty" yaml:"variation,omitempty"`
}

// Term is a taxonomy term assigned to an item
type Term struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Dimensions holds the physical dimensions of an item
type Dimensions struct {
	Length string `json:"length,omitempty" yaml:"length,omitempty"`
	Width  string `json:"width,omitempty" yaml:"width,omitempty"`
	Height string `json:"height,omitempty" yaml:"height,omitempty"`
}

// Item represents a catalog entry owned by the external catalog
type Item struct {
	ID               string      `json:"id" yaml:"id"`
	Kind             ItemKind    `json:"kind" yaml:"kind"`
	Status           ItemStatus  `json:"status" yaml:"status"`
	Name             string      `json:"name" yaml:"name"`
	SKU              string      `json:"sku,omitempty" yaml:"sku,omitempty"`
	Description      string      `json:"description,omitempty" yaml:"description,omitempty"`
	ShortDescription string      `json:"short_description,omitempty" yaml:"short_description,omitempty"`
	CategoryIDs      []string    `json:"category_ids" yaml:"category_ids"`
	Brand            string      `json:"brand,omitempty" yaml:"brand,omitempty"`
	Attributes       []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Price            string      `json:"price,omitempty" yaml:"price,omitempty"`
	RegularPrice     string      `json:"regular_price,omitempty" yaml:"regular_price,omitempty"`
	SalePrice        string      `json:"sale_price,omitempty" yaml:"sale_price,omitempty"`
	ManageStock      bool        `json:"manage_stock" yaml:"manage_stock"`
	StockQuantity    *int        `json:"stock_quantity,omitempty" yaml:"stock_quantity,omitempty"`
	StockStatus      string      `json:"stock_status,omitempty" yaml:"stock_status,omitempty"`
	Weight           string      `json:"weight,omitempty" yaml:"weight,omitempty"`
	Dimensions       Dimensions  `json:"dimensions" yaml:"dimensions"`
	ImageID          string      `json:"image_id,omitempty" yaml:"image_id,omitempty"`
	ParentID         string      `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	MergedInto       string      `json:"merged_into,omitempty" yaml:"merged_into,omitempty"`

	// VariantAttributes holds the selected attribute values of a variation
	VariantAttributes map[string]string `json:"variant_attributes,omitempty" yaml:"variant_attributes,omitempty"`
}

// PrimaryCategory returns the first category id, or "" when the item is uncategorized
func (i Item) PrimaryCategory() string {
	if len(i.CategoryIDs) == 0 {
		return ""
	}
	return i.CategoryIDs[0]
}

// CombinedItemSpec describes a variable item to create
type CombinedItemSpec struct {
	Name             string
	Description      string
	ShortDescription string
	Status           ItemStatus
	Visibility       string
	ImageID          string
	Attributes       []Attribute
}

// VariantSpec describes one variation under a combined item
type VariantSpec struct {
	SourceID      string
	Attributes    map[string]string
	Status        ItemStatus
	Price         string
	RegularPrice  string
	SalePrice     string
	ManageStock   bool
	StockQuantity *int
	StockStatus   string
	Weight        string
	Dimensions    Dimensions
	ImageID       string
}

// ItemFilter narrows the candidate listing
type ItemFilter struct {
	Search   string
	Category string
	Limit    int
}

// CandidateGroup is an ordered list of item ids sharing inferred similarity
type CandidateGroup []string
