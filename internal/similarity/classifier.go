// Package similarity partitions catalog items into groups that are safe to merge.
//
// Items are first bucketed by their primary (first) category, then clustered
// greedily inside each bucket. An item joins the first cluster where every
// pairwise rule still holds: the clustered items share at least one category,
// their non-empty brands agree, and every title pair scores at least the
// threshold. Input order is preserved inside buckets and clusters.
package similarity

import (
	"strings"

	"variant-merger/internal/models"
)

// DefaultThreshold is the minimum title similarity percentage
const DefaultThreshold = 80.0

// Classifier groups similar items
type Classifier struct {
	threshold float64
}

// NewClassifier creates a classifier. Thresholds outside 0-100 are clamped.
func NewClassifier(threshold float64) *Classifier {
	return &Classifier{threshold: ClampThreshold(threshold)}
}

// ClampThreshold bounds a threshold to the 0-100 percentage range
func ClampThreshold(threshold float64) float64 {
	return min(max(threshold, 0), 100)
}

// Threshold returns the configured title similarity threshold
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify partitions items into candidate groups of two or more items
func (c *Classifier) Classify(items []models.Item) []models.CandidateGroup {
	var bucketOrder []string
	buckets := make(map[string][]models.Item)

	for _, item := range items {
		category := item.PrimaryCategory()
		if category == "" {
			// No category can ever intersect
			continue
		}
		if _, ok := buckets[category]; !ok {
			bucketOrder = append(bucketOrder, category)
		}
		buckets[category] = append(buckets[category], item)
	}

	var groups []models.CandidateGroup
	for _, category := range bucketOrder {
		for _, cluster := range c.cluster(buckets[category]) {
			if len(cluster) < 2 {
				continue
			}
			group := make(models.CandidateGroup, 0, len(cluster))
			for _, item := range cluster {
				group = append(group, item.ID)
			}
			groups = append(groups, group)
		}
	}

	return groups
}

func (c *Classifier) cluster(items []models.Item) [][]models.Item {
	var clusters [][]models.Item

	for _, item := range items {
		placed := false
		for i, cluster := range clusters {
			if c.fits(cluster, item) {
				clusters[i] = append(cluster, item)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []models.Item{item})
		}
	}

	return clusters
}

func (c *Classifier) fits(cluster []models.Item, candidate models.Item) bool {
	for _, member := range cluster {
		if TitleSimilarity(member.Name, candidate.Name) < c.threshold {
			return false
		}
	}

	proposed := make([]models.Item, 0, len(cluster)+1)
	proposed = append(proposed, cluster...)
	proposed = append(proposed, candidate)

	return SharesCategory(proposed) && BrandsAgree(proposed)
}

// SharesCategory reports whether the intersection of all category sets is non-empty
func SharesCategory(items []models.Item) bool {
	if len(items) == 0 {
		return false
	}

	common := make(map[string]struct{}, len(items[0].CategoryIDs))
	for _, id := range items[0].CategoryIDs {
		common[id] = struct{}{}
	}

	for _, item := range items[1:] {
		next := make(map[string]struct{}, len(common))
		for _, id := range item.CategoryIDs {
			if _, ok := common[id]; ok {
				next[id] = struct{}{}
			}
		}
		common = next
		if len(common) == 0 {
			return false
		}
	}

	return len(common) > 0
}

// BrandsAgree reports whether all items that carry a brand carry the same one.
// Items without a brand are ignored, so a group with no brands passes.
func BrandsAgree(items []models.Item) bool {
	brand := ""
	for _, item := range items {
		b := strings.TrimSpace(item.Brand)
		if b == "" {
			continue
		}
		if brand == "" {
			brand = b
			continue
		}
		if b != brand {
			return false
		}
	}
	return true
}

// TitlesSimilar reports whether every title pair scores at least threshold
func TitlesSimilar(items []models.Item, threshold float64) bool {
	for i := 0; i < len(items)-1; i++ {
		for j := i + 1; j < len(items); j++ {
			if TitleSimilarity(items[i].Name, items[j].Name) < threshold {
				return false
			}
		}
	}
	return true
}
