package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryRanking_Validate(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		ranking CategoryRanking
		wantErr bool
	}{
		{
			name:    "valid",
			ranking: CategoryRanking{Category: "Mercado", Score: 0.85},
		},
		{
			name:    "empty category name",
			ranking: CategoryRanking{Score: 0.5},
			wantErr: true,
			errMsg:  "category name is required",
		},
		{
			name:    "score too low",
			ranking: CategoryRanking{Category: "Lazer", Score: -0.1},
			wantErr: true,
			errMsg:  "score must be between 0 and 1, got -0.10",
		},
		{
			name:    "score too high",
			ranking: CategoryRanking{Category: "Lazer", Score: 1.1},
			wantErr: true,
			errMsg:  "score must be between 0 and 1, got 1.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ranking.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.errMsg)
		})
	}
}

func rankings() CategoryRankings {
	return CategoryRankings{
		{Category: "Transporte", Score: 0.2},
		{Category: "Mercado", Score: 0.6},
		{Category: "Saude", Score: 0.2},
	}
}

func TestCategoryRankings_Sort(t *testing.T) {
	r := rankings()
	r.Sort()
	assert.Equal(t, []string{"Mercado", "Saude", "Transporte"},
		[]string{r[0].Category, r[1].Category, r[2].Category}, "ties break by name")
}

func TestCategoryRankings_Top(t *testing.T) {
	r := rankings()
	top, ok := r.Top()
	require.True(t, ok)
	assert.Equal(t, "Mercado", top.Category)
	assert.Equal(t, "Transporte", r[0].Category, "Top leaves the receiver in place")

	_, ok = CategoryRankings{}.Top()
	assert.False(t, ok)
}

func TestCategoryRankings_TopN(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "zero", n: 0, want: 0},
		{name: "negative", n: -1, want: 0},
		{name: "some", n: 2, want: 2},
		{name: "more than available", n: 10, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, rankings().TopN(tt.n), tt.want)
		})
	}
}

func TestCategoryRankings_AboveThreshold(t *testing.T) {
	above := rankings().AboveThreshold(0.5)
	require.Len(t, above, 1)
	assert.Equal(t, "Mercado", above[0].Category)

	assert.Len(t, rankings().AboveThreshold(0.2), 3, "threshold is inclusive")
	assert.Empty(t, rankings().AboveThreshold(0.9))
}
