package merge

import (
	"errors"
	"fmt"
)

// Reason identifies why a group failed merge preconditions
type Reason string

const (
	ReasonNoProducts         Reason = "no_products"
	ReasonInvalidProductType Reason = "invalid_product_type"
	ReasonDifferentCategory  Reason = "different_categories"
	ReasonDifferentBrands    Reason = "different_brands"
	ReasonTitleMismatch      Reason = "title_mismatch"
)

// ValidationError is returned when a group must not be merged
type ValidationError struct {
	Reason Reason
	ItemID string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonNoProducts:
		return "no products selected"
	case ReasonInvalidProductType:
		return fmt.Sprintf("product %s is not a simple product", e.ItemID)
	case ReasonDifferentCategory:
		return "products must share the same category"
	case ReasonDifferentBrands:
		return "products must have the same brand"
	case ReasonTitleMismatch:
		return "product titles are not similar enough"
	}
	return string(e.Reason)
}

// IsValidationReason reports whether err is a ValidationError with the given reason
func IsValidationReason(err error, reason Reason) bool {
	var verr *ValidationError
	return errors.As(err, &verr) && verr.Reason == reason
}

// Execution steps, in order
const (
	StepCreateCombined = "create_combined_item"
	StepCopyTaxonomies = "copy_taxonomies"
	StepSetAttributes  = "set_attributes"
	StepCreateVariant  = "create_variant"
	StepSupersede      = "supersede_source"
)

// ExecutionError is a catalog mutation that failed partway through a merge.
// CombinedID is set when the combined item was already created and is left in place.
type ExecutionError struct {
	Step       string
	CombinedID string
	ItemID     string
	Err        error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("merge failed at %s", e.Step)
	if e.ItemID != "" {
		msg += fmt.Sprintf(" for item %s", e.ItemID)
	}
	if e.CombinedID != "" {
		msg += fmt.Sprintf(" (combined item %s left in place)", e.CombinedID)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
