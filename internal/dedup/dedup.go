// Package dedup groups transactions that likely record the same real-world
// event: identical signed amount, close dates and, optionally, similar
// descriptions.
package dedup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/agnivade/levenshtein"
)

// DefaultThresholdDays is the date window used when callers do not pick one.
const DefaultThresholdDays = 3

// Options controls duplicate grouping.
type Options struct {
	// ThresholdDays is the largest gap, in calendar days, between consecutive
	// members of a group. Must be positive.
	ThresholdDays int
	// MinSimilarity, when positive, additionally requires each member's
	// normalized description to be at least this similar (0..1) to the
	// previous member's.
	MinSimilarity float64
}

// DefaultOptions returns the caller-side defaults.
func DefaultOptions() Options {
	return Options{ThresholdDays: DefaultThresholdDays}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.ThresholdDays <= 0 {
		return fmt.Errorf("%w: got %d", common.ErrInvalidThreshold, o.ThresholdDays)
	}
	if o.MinSimilarity < 0 || o.MinSimilarity > 1 {
		return fmt.Errorf("%w: min similarity %.2f outside [0,1]", common.ErrInvalidConfig, o.MinSimilarity)
	}
	return nil
}

// FindDuplicates partitions transactions into groups of likely duplicates.
//
// Transactions are bucketed by exact amount, each bucket is ordered by date,
// and a bucket is split wherever the gap to the previous member exceeds the
// threshold. Proximity chains: members at days 0, 2 and 4 with a threshold of
// 3 form one group even though the first and last are 4 days apart.
// Singleton groups are dropped. Output order is bucket discovery order, then
// date order within a bucket.
func FindDuplicates(transactions []model.Transaction, opts Options) ([]model.DuplicateGroup, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	groups := make([]model.DuplicateGroup, 0)
	for _, bucket := range bucketByAmount(transactions) {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Date.Before(bucket[j].Date)
		})

		current := []model.Transaction{bucket[0]}
		for _, txn := range bucket[1:] {
			prev := current[len(current)-1]
			if opts.joins(prev, txn) {
				current = append(current, txn)
				continue
			}
			groups = appendGroup(groups, current)
			current = []model.Transaction{txn}
		}
		groups = appendGroup(groups, current)
	}

	return groups, nil
}

func (o Options) joins(prev, next model.Transaction) bool {
	if format.DaysBetween(prev.Date, next.Date) > o.ThresholdDays {
		return false
	}
	if o.MinSimilarity > 0 && Similarity(prev.Description, next.Description) < o.MinSimilarity {
		return false
	}
	return true
}

// bucketByAmount keys on the canonical decimal string so that "-50" and
// "-50.00" share a bucket while "-50.00" and "-50.01" never do.
func bucketByAmount(transactions []model.Transaction) [][]model.Transaction {
	index := make(map[string]int)
	var buckets [][]model.Transaction

	for _, txn := range transactions {
		key := txn.Amount.String()
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, nil)
		}
		buckets[i] = append(buckets[i], txn)
	}

	return buckets
}

func appendGroup(groups []model.DuplicateGroup, members []model.Transaction) []model.DuplicateGroup {
	if len(members) < 2 {
		return groups
	}
	return append(groups, model.DuplicateGroup{
		Amount:       members[0].Amount,
		Description:  members[0].Description,
		Count:        len(members),
		Transactions: members,
	})
}

// NormalizeDescription lowercases, trims and collapses internal whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity returns 1 - levenshtein(a, b)/max(len) over normalized descriptions.
// Two empty descriptions are identical; one empty description matches nothing.
func Similarity(a, b string) float64 {
	a, b = NormalizeDescription(a), NormalizeDescription(b)
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}
