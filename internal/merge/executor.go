// Package merge validates candidate groups and turns them into a combined
// variable item with one variant per source item.
package merge

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
	"variant-merger/internal/similarity"
	"variant-merger/internal/synthesis"
	"variant-merger/internal/tracing"
)

// StepResolveTerms loads taxonomy terms before anything is written
const StepResolveTerms = "resolve_terms"

// Result describes a completed merge
type Result struct {
	CombinedID string
	Name       string
	VariantIDs []string
	Analysis   synthesis.Analysis
}

// Executor merges validated groups against a catalog
type Executor struct {
	catalog Catalog
	synth   *synthesis.Synthesizer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewExecutor creates a merge executor
func NewExecutor(catalog Catalog, synth *synthesis.Synthesizer, m *metrics.Metrics, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if synth == nil {
		synth = synthesis.NewSynthesizer(nil, 0, logger)
	}
	return &Executor{catalog: catalog, synth: synth, metrics: m, logger: logger}
}

// Validate loads the group's items and checks them against the merge rules.
// Groups can come from stale queue entries, so every rule is re-evaluated here.
// A rule violation is returned as *ValidationError; catalog read failures are returned as-is.
func (e *Executor) Validate(ctx context.Context, group models.CandidateGroup, threshold float64) ([]models.Item, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Executor.Validate", attribute.StringSlice("item_ids", group))
	defer span.End()

	if len(group) == 0 {
		return nil, &ValidationError{Reason: ReasonNoProducts}
	}

	items := make([]models.Item, 0, len(group))
	for _, id := range group {
		item, err := e.catalog.GetItem(ctx, id)
		if err != nil {
			tracing.Fail(span, err)
			return nil, fmt.Errorf("failed to load item %s: %w", id, err)
		}
		if item == nil || item.Kind != models.KindSimple || item.Status == models.ItemSuperseded || item.MergedInto != "" {
			return nil, &ValidationError{Reason: ReasonInvalidProductType, ItemID: id}
		}
		items = append(items, *item)
	}

	if !similarity.SharesCategory(items) {
		return nil, &ValidationError{Reason: ReasonDifferentCategory}
	}
	if !similarity.BrandsAgree(items) {
		return nil, &ValidationError{Reason: ReasonDifferentBrands}
	}
	if !similarity.TitlesSimilar(items, similarity.ClampThreshold(threshold)) {
		return nil, &ValidationError{Reason: ReasonTitleMismatch}
	}

	if opinion, ok := e.synth.Review(ctx, items, threshold); ok {
		e.logger.Info("oracle similarity review",
			zap.Strings("item_ids", group),
			zap.Bool("similar", opinion.Similar),
			zap.Float64("score", opinion.Score),
			zap.String("explanation", opinion.Explanation))
	}

	return items, nil
}

// Execute creates the combined item and its variants from validated items, then
// supersedes the sources. A failure after the combined item exists is reported
// with its id; nothing already written is rolled back.
func (e *Executor) Execute(ctx context.Context, items []models.Item) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Executor.Execute", attribute.Int("item_count", len(items)))
	defer span.End()

	if len(items) == 0 {
		return nil, &ValidationError{Reason: ReasonNoProducts}
	}

	start := time.Now()
	log := e.logger.With(zap.Strings("item_ids", itemIDs(items)))

	resolved, terms, err := e.resolveTerms(ctx, items)
	if err != nil {
		return nil, e.fail(span, &ExecutionError{Step: StepResolveTerms, Err: err})
	}
	first := resolved[0]

	combinedID, err := e.catalog.CreateCombinedItem(ctx, models.CombinedItemSpec{
		Name:             first.Name,
		Description:      first.Description,
		ShortDescription: first.ShortDescription,
		Status:           models.ItemPublished,
		Visibility:       models.VisibilityVisible,
		ImageID:          first.ImageID,
	})
	if err != nil {
		return nil, e.fail(span, &ExecutionError{Step: StepCreateCombined, Err: err})
	}
	log = log.With(zap.String("combined_id", combinedID))

	if err := e.copyTaxonomies(ctx, first.ID, combinedID); err != nil {
		return nil, e.fail(span, &ExecutionError{Step: StepCopyTaxonomies, CombinedID: combinedID, Err: err})
	}

	analysis := e.synth.Analyze(ctx, resolved)
	log.Debug("attribute analysis",
		zap.String("source", analysis.Source),
		zap.Strings("attributes", analysis.Attributes),
		zap.Int("variations", len(analysis.Variations)))

	name := e.synth.Name(ctx, resolved)
	attributes := e.synth.Attributes(resolved)
	if err := e.catalog.UpdateCombinedItem(ctx, combinedID, name, attributes); err != nil {
		return nil, e.fail(span, &ExecutionError{Step: StepSetAttributes, CombinedID: combinedID, Err: err})
	}
	for _, attr := range attributes {
		if !attr.Taxonomy || len(terms[attr.Name]) == 0 {
			continue
		}
		if err := e.catalog.SetItemTerms(ctx, combinedID, attr.Name, terms[attr.Name]); err != nil {
			return nil, e.fail(span, &ExecutionError{Step: StepSetAttributes, CombinedID: combinedID, Err: err})
		}
	}

	variantIDs := make([]string, 0, len(resolved))
	for _, item := range resolved {
		variantID, err := e.catalog.CreateVariant(ctx, combinedID, variantSpec(item))
		if err != nil {
			return nil, e.fail(span, &ExecutionError{Step: StepCreateVariant, CombinedID: combinedID, ItemID: item.ID, Err: err})
		}
		variantIDs = append(variantIDs, variantID)
	}

	for _, item := range resolved {
		if err := e.catalog.UpdateItemStatus(ctx, item.ID, models.ItemSuperseded, combinedID); err != nil {
			return nil, e.fail(span, &ExecutionError{Step: StepSupersede, CombinedID: combinedID, ItemID: item.ID, Err: err})
		}
	}

	e.metrics.ObserveMerge(len(resolved), time.Since(start))
	log.Info("created combined item", zap.String("name", name), zap.Int("variants", len(variantIDs)))

	return &Result{
		CombinedID: combinedID,
		Name:       name,
		VariantIDs: variantIDs,
		Analysis:   analysis,
	}, nil
}

// Merge validates and executes a group
func (e *Executor) Merge(ctx context.Context, group models.CandidateGroup, threshold float64) (*Result, error) {
	items, err := e.Validate(ctx, group, threshold)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, items)
}

func (e *Executor) fail(span trace.Span, err *ExecutionError) error {
	tracing.Fail(span, err)
	e.logger.Error("merge execution failed",
		zap.String("step", err.Step),
		zap.String("combined_id", err.CombinedID),
		zap.String("item_id", err.ItemID),
		zap.Error(err.Err))
	return err
}

// resolveTerms replaces taxonomy attribute options with the names of the item's
// assigned terms, and collects each taxonomy's terms across the group.
func (e *Executor) resolveTerms(ctx context.Context, items []models.Item) ([]models.Item, map[string][]models.Term, error) {
	resolved := make([]models.Item, len(items))
	terms := make(map[string][]models.Term)
	seen := make(map[string]map[string]struct{})

	for i, item := range items {
		attrs := make([]models.Attribute, len(item.Attributes))
		copy(attrs, item.Attributes)

		for j, attr := range attrs {
			if !attr.Taxonomy {
				continue
			}
			assigned, err := e.catalog.GetItemTerms(ctx, item.ID, attr.Name)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load %s terms for item %s: %w", attr.Name, item.ID, err)
			}
			if len(assigned) == 0 {
				continue
			}

			names := make([]string, 0, len(assigned))
			if seen[attr.Name] == nil {
				seen[attr.Name] = make(map[string]struct{})
			}
			for _, term := range assigned {
				names = append(names, term.Name)
				if _, dup := seen[attr.Name][term.ID]; !dup {
					seen[attr.Name][term.ID] = struct{}{}
					terms[attr.Name] = append(terms[attr.Name], term)
				}
			}
			attrs[j].Options = names
		}

		item.Attributes = attrs
		resolved[i] = item
	}

	return resolved, terms, nil
}

func (e *Executor) copyTaxonomies(ctx context.Context, sourceID, targetID string) error {
	taxonomies, err := e.catalog.ListItemTaxonomies(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, taxonomy := range taxonomies {
		terms, err := e.catalog.GetItemTerms(ctx, sourceID, taxonomy)
		if err != nil {
			return err
		}
		if err := e.catalog.SetItemTerms(ctx, targetID, taxonomy, terms); err != nil {
			return err
		}
	}
	return nil
}

// variantSpec selects each attribute's first value and copies the source's
// price, stock, shipping and image fields
func variantSpec(item models.Item) models.VariantSpec {
	selected := make(map[string]string, len(item.Attributes))
	for _, attr := range item.Attributes {
		if len(attr.Options) > 0 {
			selected[attr.Name] = attr.Options[0]
		}
	}

	return models.VariantSpec{
		SourceID:      item.ID,
		Attributes:    selected,
		Status:        models.ItemPublished,
		Price:         item.Price,
		RegularPrice:  item.RegularPrice,
		SalePrice:     item.SalePrice,
		ManageStock:   item.ManageStock,
		StockQuantity: item.StockQuantity,
		StockStatus:   item.StockStatus,
		Weight:        item.Weight,
		Dimensions:    item.Dimensions,
		ImageID:       item.ImageID,
	}
}

func itemIDs(items []models.Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
