package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"variant-merger/internal/models"
)

func item(id, name, brand string, categories ...string) models.Item {
	return models.Item{ID: id, Name: name, Brand: brand, CategoryIDs: categories, Kind: models.KindSimple}
}

func TestTitleSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical lowercase", "red shirt", "red shirt", 100},
		{"case insensitive", "Red Shirt", "red shirt", 100},
		{"both empty", "", "", 100},
		{"one empty", "abc", "", 0},
		{"one edit in ten", "abcdefghij", "abcdefghiX", 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TitleSimilarity(tt.a, tt.b), 0.0001)
		})
	}

	assert.Less(t, TitleSimilarity("Red Shirt", "Blue Pants"), 80.0)
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("same", "same"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 4, LevenshteinDistance("", "four"))
	assert.Equal(t, 4, LevenshteinDistance("four", ""))
}

func TestClassify_GroupsSimilarItems(t *testing.T) {
	c := NewClassifier(80)
	groups := c.Classify([]models.Item{
		item("a", "Red Shirt", "X", "5"),
		item("b", "red shirt", "X", "5"),
	})

	assert.Equal(t, []models.CandidateGroup{{"a", "b"}}, groups)
}

func TestClassify_DissimilarTitlesNotGrouped(t *testing.T) {
	c := NewClassifier(80)
	groups := c.Classify([]models.Item{
		item("a", "Red Shirt", "X", "5"),
		item("b", "Blue Pants", "X", "5"),
	})

	assert.Empty(t, groups)
}

func TestClassify_BrandConflictSplits(t *testing.T) {
	c := NewClassifier(80)
	groups := c.Classify([]models.Item{
		item("a", "Red Shirt", "X", "5"),
		item("b", "Red Shirt", "Y", "5"),
		item("c", "Red Shirt", "", "5"),
	})

	// c has no brand, so it can join the first cluster
	assert.Equal(t, []models.CandidateGroup{{"a", "c"}}, groups)
}

func TestClassify_VacuousBrandMatch(t *testing.T) {
	c := NewClassifier(80)
	groups := c.Classify([]models.Item{
		item("a", "Red Shirt S", "", "5"),
		item("b", "Red Shirt M", "", "5"),
	})

	assert.Equal(t, []models.CandidateGroup{{"a", "b"}}, groups)
}

func TestClassify_BucketsByPrimaryCategory(t *testing.T) {
	c := NewClassifier(80)
	// b shares category 5 with a but its primary category differs,
	// so the first-category bucketing keeps them apart.
	groups := c.Classify([]models.Item{
		item("a", "Red Shirt", "", "5"),
		item("b", "Red Shirt", "", "7", "5"),
		item("c", "Red Shirt", "", "5", "9"),
		item("d", "Red Shirt", "", "7"),
	})

	assert.Equal(t, []models.CandidateGroup{{"a", "c"}, {"b", "d"}}, groups)
}

func TestClassify_SkipsUncategorized(t *testing.T) {
	c := NewClassifier(80)
	groups := c.Classify([]models.Item{
		item("a", "Red Shirt", ""),
		item("b", "Red Shirt", ""),
	})

	assert.Empty(t, groups)
}

func TestClassify_PreservesInputOrder(t *testing.T) {
	c := NewClassifier(50)
	groups := c.Classify([]models.Item{
		item("z", "Mug Blue", "", "1"),
		item("m", "Mug Red", "", "1"),
		item("a", "Mug Gray", "", "1"),
	})

	assert.Equal(t, []models.CandidateGroup{{"z", "m", "a"}}, groups)
}

func TestClassify_ThresholdClamped(t *testing.T) {
	assert.Equal(t, 100.0, NewClassifier(150).Threshold())
	assert.Equal(t, 0.0, NewClassifier(-3).Threshold())
}

func TestSharesCategory(t *testing.T) {
	assert.True(t, SharesCategory([]models.Item{item("a", "", "", "1", "2"), item("b", "", "", "2")}))
	assert.False(t, SharesCategory([]models.Item{item("a", "", "", "1"), item("b", "", "", "2")}))
	assert.False(t, SharesCategory(nil))
}

func TestBrandsAgree(t *testing.T) {
	assert.True(t, BrandsAgree([]models.Item{item("a", "", "X"), item("b", "", "X")}))
	assert.True(t, BrandsAgree([]models.Item{item("a", "", ""), item("b", "", " ")}))
	assert.False(t, BrandsAgree([]models.Item{item("a", "", "X"), item("b", "", "Y")}))
}

func TestTitlesSimilar(t *testing.T) {
	items := []models.Item{item("a", "Red Shirt", ""), item("b", "RED SHIRT", "")}
	assert.True(t, TitlesSimilar(items, 100))

	items = append(items, item("c", "Blue Pants", ""))
	assert.False(t, TitlesSimilar(items, 80))
}
