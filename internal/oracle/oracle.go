// Package oracle defines the optional text-generation capability used for naming
// combined items and proposing attribute decompositions. Every call may fail; callers
// are expected to fall back to deterministic behavior.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"variant-merger/internal/models"
)

var (
	ErrUnknownProvider    = errors.New("unknown oracle provider")
	ErrMissingCredentials = errors.New("oracle provider is missing credentials")
	ErrEmptyResponse      = errors.New("oracle returned an empty response")
)

// SimilarityAnalysis is the oracle's opinion on whether items belong together
type SimilarityAnalysis struct {
	Similar     bool    `json:"similar"`
	Score       float64 `json:"similarity_score"`
	Explanation string  `json:"explanation"`
}

// AttributeAnalysis is the oracle's proposed attribute/variation decomposition
type AttributeAnalysis struct {
	Attributes []string         `json:"attributes"`
	Variations []map[string]any `json:"variations"`
}

// Oracle is a pluggable text-generation/analysis capability
type Oracle interface {
	Provider() string
	GenerateName(ctx context.Context, items []models.Item) (string, error)
	AnalyzeSimilarity(ctx context.Context, items []models.Item, threshold float64) (SimilarityAnalysis, error)
	AnalyzeAttributes(ctx context.Context, items []models.Item) (AttributeAnalysis, error)
}

// Error wraps a failed oracle call
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
