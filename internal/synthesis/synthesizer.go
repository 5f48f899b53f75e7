// Package synthesis derives the combined name and variation attributes of a group.
//
// Oracle calls are isolated: each runs under its own deadline and any failure,
// timeout or panic falls back to the deterministic result.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"variant-merger/internal/models"
	"variant-merger/internal/oracle"
)

// ErrOracleTimeout is returned when an oracle call exceeds its deadline
var ErrOracleTimeout = errors.New("oracle call timed out")

const (
	SourceOracle        = "oracle"
	SourceDeterministic = "deterministic"
)

// Analysis is an attribute/variation decomposition of a group
type Analysis struct {
	Source     string           `json:"source"`
	Attributes []string         `json:"attributes"`
	Variations []map[string]any `json:"variations"`
}

// Synthesizer builds combined item names and attributes
type Synthesizer struct {
	oracle  oracle.Oracle
	timeout time.Duration
	logger  *zap.Logger
}

// NewSynthesizer creates a synthesizer. A nil oracle selects fallbacks throughout.
func NewSynthesizer(o oracle.Oracle, timeout time.Duration, logger *zap.Logger) *Synthesizer {
	if timeout <= 0 {
		timeout = oracle.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{oracle: o, timeout: timeout, logger: logger}
}

// HasOracle reports whether an oracle is configured
func (s *Synthesizer) HasOracle() bool {
	return s.oracle != nil
}

// Name returns the oracle's name for the group, or the first item's name
func (s *Synthesizer) Name(ctx context.Context, items []models.Item) string {
	if len(items) == 0 {
		return ""
	}
	fallback := items[0].Name
	if s.oracle == nil {
		return fallback
	}

	name, err := isolate(ctx, s.timeout, func(ctx context.Context) (string, error) {
		return s.oracle.GenerateName(ctx, items)
	})
	if err != nil {
		s.logger.Warn("oracle name generation failed, using first item name",
			zap.String("provider", s.oracle.Provider()), zap.Error(err))
		return fallback
	}
	if name == "" {
		return fallback
	}
	return name
}

// Attributes merges attributes by name across items. Values are de-duplicated
// in first-seen order and every merged attribute is marked for variation.
func (s *Synthesizer) Attributes(items []models.Item) []models.Attribute {
	return MergeAttributes(items)
}

// MergeAttributes is the deterministic attribute merge
func MergeAttributes(items []models.Item) []models.Attribute {
	var merged []models.Attribute
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})

	for _, item := range items {
		for _, attr := range item.Attributes {
			i, ok := index[attr.Name]
			if !ok {
				i = len(merged)
				index[attr.Name] = i
				seen[attr.Name] = make(map[string]struct{})
				merged = append(merged, models.Attribute{
					Name:      attr.Name,
					Taxonomy:  attr.Taxonomy,
					Visible:   true,
					Variation: true,
				})
			}
			for _, value := range attr.Options {
				if _, dup := seen[attr.Name][value]; dup {
					continue
				}
				seen[attr.Name][value] = struct{}{}
				merged[i].Options = append(merged[i].Options, value)
			}
		}
	}

	return merged
}

// Analyze prefers the oracle's decomposition and falls back to the merged attributes
func (s *Synthesizer) Analyze(ctx context.Context, items []models.Item) Analysis {
	if s.oracle != nil {
		result, err := isolate(ctx, s.timeout, func(ctx context.Context) (oracle.AttributeAnalysis, error) {
			return s.oracle.AnalyzeAttributes(ctx, items)
		})
		if err == nil && len(result.Attributes) > 0 {
			return Analysis{Source: SourceOracle, Attributes: result.Attributes, Variations: result.Variations}
		}
		if err != nil {
			s.logger.Warn("oracle attribute analysis failed, using merged attributes",
				zap.String("provider", s.oracle.Provider()), zap.Error(err))
		}
	}

	return deterministicAnalysis(items)
}

// Review asks the oracle for an advisory similarity opinion.
// ok is false when no opinion is available.
func (s *Synthesizer) Review(ctx context.Context, items []models.Item, threshold float64) (opinion oracle.SimilarityAnalysis, ok bool) {
	if s.oracle == nil {
		return opinion, false
	}
	opinion, err := isolate(ctx, s.timeout, func(ctx context.Context) (oracle.SimilarityAnalysis, error) {
		return s.oracle.AnalyzeSimilarity(ctx, items, threshold)
	})
	if err != nil {
		s.logger.Debug("oracle similarity review unavailable", zap.Error(err))
		return opinion, false
	}
	return opinion, true
}

func deterministicAnalysis(items []models.Item) Analysis {
	merged := MergeAttributes(items)
	analysis := Analysis{Source: SourceDeterministic}
	for _, attr := range merged {
		analysis.Attributes = append(analysis.Attributes, attr.Name)
	}
	for _, item := range items {
		variation := make(map[string]any, len(item.Attributes))
		for _, attr := range item.Attributes {
			if len(attr.Options) > 0 {
				variation[attr.Name] = attr.Options[0]
			}
		}
		analysis.Variations = append(analysis.Variations, variation)
	}
	return analysis
}

type outcome[T any] struct {
	value T
	err   error
}

// isolate runs fn under a deadline. It returns when fn returns or the deadline
// passes, whichever is first, and converts panics into errors.
func isolate[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{value: zero, err: fmt.Errorf("oracle panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrOracleTimeout, ctx.Err())
	}
}
