package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func txn(id, amount string, day int, desc string) model.Transaction {
	return model.Transaction{
		ID:           id,
		Amount:       decimal.RequireFromString(amount),
		Date:         jan1.AddDate(0, 0, day),
		Description:  desc,
		ReviewStatus: model.StatusPending,
	}
}

func groupIDs(groups []model.DuplicateGroup) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = model.IDs(g.Transactions)
	}
	return out
}

func TestFindDuplicates_ScenarioA(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "-50", 0, "MERCADO"),
		txn("2", "-50", 1, "MERCADO"),
		txn("3", "-50", 9, "MERCADO"),
	}

	groups, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"1", "2"}, model.IDs(groups[0].Transactions))
	assert.Equal(t, 2, groups[0].Count)
	assert.True(t, decimal.NewFromInt(-50).Equal(groups[0].Amount))
	assert.Equal(t, "MERCADO", groups[0].Description)
}

func TestFindDuplicates_ChainedProximity(t *testing.T) {
	// 0->2 and 2->4 are within 3 days; 0->4 is not. Chaining keeps all three.
	txns := []model.Transaction{
		txn("a", "-10", 0, "x"),
		txn("b", "-10", 2, "x"),
		txn("c", "-10", 4, "x"),
	}

	groups, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, groupIDs(groups))
}

func TestFindDuplicates_MixedOffsets(t *testing.T) {
	brt := time.FixedZone("BRT", -3*60*60)
	eet := time.FixedZone("EET", 2*60*60)

	// Jan 1 in BRT and Jan 5 in EET, but Jan 2 and Jan 4 in UTC.
	a := txn("a", "-80", 0, "UBER")
	a.Date = time.Date(2024, 1, 1, 22, 0, 0, 0, brt)
	b := txn("b", "-80", 0, "UBER")
	b.Date = time.Date(2024, 1, 5, 1, 0, 0, 0, eet)

	groups, err := FindDuplicates([]model.Transaction{b, a}, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, groupIDs(groups))
}

func TestFindDuplicates_AmountExactness(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "-50.00", 0, "x"),
		txn("2", "-50.01", 0, "x"),
		txn("3", "-50.001", 0, "x"),
		txn("4", "50.00", 0, "x"),
	}

	groups, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestFindDuplicates_EqualAmountsDifferentScale(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "-50", 0, "x"),
		txn("2", "-50.00", 1, "x"),
	}

	groups, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}}, groupIDs(groups))
}

func TestFindDuplicates_SingletonExclusion(t *testing.T) {
	txns := []model.Transaction{
		txn("lonely", "-99", 0, "x"),
		txn("1", "-20", 0, "x"),
		txn("2", "-20", 0, "x"),
	}

	groups, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	for _, g := range groups {
		assert.False(t, g.Contains("lonely"))
	}
}

func TestFindDuplicates_OrderAndSorting(t *testing.T) {
	// Buckets in discovery order; members sorted by date inside a bucket.
	txns := []model.Transaction{
		txn("b2", "-5", 2, "x"),
		txn("a1", "-7", 0, "x"),
		txn("b1", "-5", 0, "x"),
		txn("a2", "-7", 1, "x"),
	}

	groups, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b1", "b2"}, {"a1", "a2"}}, groupIDs(groups))
}

func TestFindDuplicates_SplitsBucketIntoSeveralGroups(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "-5", 0, "x"),
		txn("2", "-5", 1, "x"),
		txn("3", "-5", 20, "x"),
		txn("4", "-5", 21, "x"),
		txn("5", "-5", 40, "x"),
	}

	groups, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, groupIDs(groups))
}

func TestFindDuplicates_Determinism(t *testing.T) {
	var txns []model.Transaction
	for i := 0; i < 30; i++ {
		txns = append(txns, txn(fmt.Sprintf("t%d", i), fmt.Sprintf("-%d", i%4), i%7, "desc"))
	}

	first, err := FindDuplicates(txns, Options{ThresholdDays: 2})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := FindDuplicates(txns, Options{ThresholdDays: 2})
		require.NoError(t, err)
		assert.Equal(t, groupIDs(first), groupIDs(again))
	}
}

func TestFindDuplicates_DoesNotReorderInput(t *testing.T) {
	txns := []model.Transaction{
		txn("2", "-5", 2, "x"),
		txn("1", "-5", 0, "x"),
	}

	_, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, model.IDs(txns))
}

func TestFindDuplicates_EmptyInput(t *testing.T) {
	groups, err := FindDuplicates(nil, DefaultOptions())
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestFindDuplicates_InvalidThreshold(t *testing.T) {
	for _, threshold := range []int{0, -1} {
		_, err := FindDuplicates(nil, Options{ThresholdDays: threshold})
		assert.ErrorIs(t, err, common.ErrInvalidThreshold)
	}

	_, err := FindDuplicates(nil, Options{ThresholdDays: 1, MinSimilarity: 1.5})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestFindDuplicates_DescriptionSimilarity(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "-30", 0, "PIX ENVIADO JOAO"),
		txn("2", "-30", 1, "pix enviado  joao "),
		txn("3", "-30", 2, "NETFLIX.COM"),
	}

	loose, err := FindDuplicates(txns, Options{ThresholdDays: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", "3"}}, groupIDs(loose))

	strict, err := FindDuplicates(txns, Options{ThresholdDays: 3, MinSimilarity: 0.8})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}}, groupIDs(strict))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Uber Trip", "  UBER   trip"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("", "x"), 1e-9)
	assert.InDelta(t, 0.8, Similarity("abcde", "abcdx"), 1e-9)
}
