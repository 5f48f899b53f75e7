package similarity

import "strings"

// LevenshteinDistance calculates the byte-wise edit distance between two strings
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// TitleSimilarity scores two titles from 0 to 100 using case-insensitive edit distance.
// Two empty titles score 100.
func TitleSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 100
	}

	score := (1 - float64(LevenshteinDistance(a, b))/float64(maxLen)) * 100
	return max(score, 0)
}
