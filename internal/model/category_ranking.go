package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// CategoryRanking is how likely a description belongs to one category.
type CategoryRanking struct {
	Category string
	Score    float64
}

// Validate ensures the ranking names a category and has a score in [0, 1].
func (r CategoryRanking) Validate() error {
	switch {
	case strings.TrimSpace(r.Category) == "":
		return fmt.Errorf("category name is required")
	case r.Score < 0 || r.Score > 1:
		return fmt.Errorf("score must be between 0 and 1, got %.2f", r.Score)
	}
	return nil
}

// CategoryRankings is a classifier's candidate list for one description.
type CategoryRankings []CategoryRanking

func compareRankings(a, b CategoryRanking) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return strings.Compare(a.Category, b.Category)
}

// Sort orders rankings best first. Ties go to the alphabetically first name.
func (r CategoryRankings) Sort() {
	slices.SortFunc(r, compareRankings)
}

// Top returns the best ranking without reordering r.
func (r CategoryRankings) Top() (CategoryRanking, bool) {
	if len(r) == 0 {
		return CategoryRanking{}, false
	}
	return slices.MinFunc(r, compareRankings), true
}

// TopN returns a sorted copy of the n best rankings.
func (r CategoryRankings) TopN(n int) CategoryRankings {
	sorted := slices.Clone(r)
	sorted.Sort()
	return sorted[:max(0, min(n, len(sorted)))]
}

// AboveThreshold returns, best first, the rankings scoring at least threshold.
func (r CategoryRankings) AboveThreshold(threshold float64) CategoryRankings {
	kept := slices.DeleteFunc(slices.Clone(r), func(c CategoryRanking) bool { return c.Score < threshold })
	kept.Sort()
	return kept
}
