package synthesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"variant-merger/internal/models"
	"variant-merger/internal/oracle"
)

// fakeOracle is a scripted oracle for synthesizer tests
type fakeOracle struct {
	name       string
	nameErr    error
	attributes oracle.AttributeAnalysis
	attrErr    error
	similarity oracle.SimilarityAnalysis
	delay      time.Duration
	panics     bool
}

func (f *fakeOracle) Provider() string { return "fake" }

func (f *fakeOracle) GenerateName(ctx context.Context, items []models.Item) (string, error) {
	if f.panics {
		panic("provider exploded")
	}
	if f.delay > 0 {
		// ignores ctx on purpose
		time.Sleep(f.delay)
	}
	return f.name, f.nameErr
}

func (f *fakeOracle) AnalyzeSimilarity(ctx context.Context, items []models.Item, threshold float64) (oracle.SimilarityAnalysis, error) {
	return f.similarity, nil
}

func (f *fakeOracle) AnalyzeAttributes(ctx context.Context, items []models.Item) (oracle.AttributeAnalysis, error) {
	return f.attributes, f.attrErr
}

var group = []models.Item{
	{ID: "a", Name: "Red Shirt", Attributes: []models.Attribute{
		{Name: "color", Options: []string{"red"}},
		{Name: "size", Options: []string{"M", "L"}},
	}},
	{ID: "b", Name: "Blue Shirt", Attributes: []models.Attribute{
		{Name: "size", Options: []string{"L", "XL"}},
		{Name: "color", Options: []string{"blue"}},
		{Name: "pa_material", Options: []string{"cotton"}, Taxonomy: true},
	}},
}

func TestName_UsesOracle(t *testing.T) {
	s := NewSynthesizer(&fakeOracle{name: "Classic Shirt"}, time.Second, nil)
	assert.Equal(t, "Classic Shirt", s.Name(context.Background(), group))
}

func TestName_FallsBack(t *testing.T) {
	tests := []struct {
		name   string
		oracle oracle.Oracle
	}{
		{"no oracle", nil},
		{"oracle error", &fakeOracle{nameErr: errors.New("down")}},
		{"empty name", &fakeOracle{name: ""}},
		{"panic", &fakeOracle{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSynthesizer(tt.oracle, time.Second, nil)
			assert.Equal(t, "Red Shirt", s.Name(context.Background(), group))
		})
	}
}

func TestName_TimeoutDoesNotBlock(t *testing.T) {
	s := NewSynthesizer(&fakeOracle{name: "late", delay: 2 * time.Second}, 20*time.Millisecond, nil)

	start := time.Now()
	name := s.Name(context.Background(), group)

	assert.Equal(t, "Red Shirt", name)
	assert.Less(t, time.Since(start), time.Second)
}

func TestName_EmptyGroup(t *testing.T) {
	s := NewSynthesizer(nil, 0, nil)
	assert.Equal(t, "", s.Name(context.Background(), nil))
}

func TestMergeAttributes(t *testing.T) {
	merged := MergeAttributes(group)

	assert.Equal(t, []models.Attribute{
		{Name: "color", Options: []string{"red", "blue"}, Visible: true, Variation: true},
		{Name: "size", Options: []string{"M", "L", "XL"}, Visible: true, Variation: true},
		{Name: "pa_material", Options: []string{"cotton"}, Taxonomy: true, Visible: true, Variation: true},
	}, merged)
}

func TestAnalyze_PrefersOracle(t *testing.T) {
	s := NewSynthesizer(&fakeOracle{attributes: oracle.AttributeAnalysis{
		Attributes: []string{"colour"},
		Variations: []map[string]any{{"colour": "red"}},
	}}, time.Second, nil)

	analysis := s.Analyze(context.Background(), group)
	assert.Equal(t, SourceOracle, analysis.Source)
	assert.Equal(t, []string{"colour"}, analysis.Attributes)
}

func TestAnalyze_FallsBackOnError(t *testing.T) {
	s := NewSynthesizer(&fakeOracle{attrErr: errors.New("bad json")}, time.Second, nil)

	analysis := s.Analyze(context.Background(), group)
	assert.Equal(t, SourceDeterministic, analysis.Source)
	assert.Equal(t, []string{"color", "size", "pa_material"}, analysis.Attributes)
	assert.Equal(t, []map[string]any{
		{"color": "red", "size": "M"},
		{"size": "L", "color": "blue", "pa_material": "cotton"},
	}, analysis.Variations)
}

func TestReview(t *testing.T) {
	s := NewSynthesizer(nil, time.Second, nil)
	_, ok := s.Review(context.Background(), group, 80)
	assert.False(t, ok)

	s = NewSynthesizer(&fakeOracle{similarity: oracle.SimilarityAnalysis{Similar: true, Score: 88}}, time.Second, nil)
	opinion, ok := s.Review(context.Background(), group, 80)
	assert.True(t, ok)
	assert.Equal(t, 88.0, opinion.Score)
}
