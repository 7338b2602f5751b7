// Package merge turns a duplicate group and a keep choice into a merge plan.
package merge

import (
	"fmt"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
)

// Resolve computes which members of group to remove when keepID survives.
// Remove ids keep the group's member order.
func Resolve(group model.DuplicateGroup, keepID string) (model.MergePlan, error) {
	if !group.Contains(keepID) {
		return model.MergePlan{}, fmt.Errorf("%w: %q", common.ErrKeepNotInGroup, keepID)
	}

	remove := make([]string, 0, len(group.Transactions)-1)
	for _, t := range group.Transactions {
		if t.ID != keepID {
			remove = append(remove, t.ID)
		}
	}

	if len(remove) == 0 {
		return model.MergePlan{}, common.ErrNothingToRemove
	}

	return model.MergePlan{KeepID: keepID, RemoveIDs: remove}, nil
}

// ValidatePlan checks a plan built elsewhere: a keep id, at least one removal,
// and no overlap between the two.
func ValidatePlan(plan model.MergePlan) error {
	if plan.KeepID == "" {
		return common.ErrNoKeepSelected
	}
	if len(plan.RemoveIDs) == 0 {
		return common.ErrNothingToRemove
	}
	for _, id := range plan.RemoveIDs {
		if id == plan.KeepID {
			return fmt.Errorf("%w: %q is both kept and removed", common.ErrKeepNotInGroup, id)
		}
	}
	return nil
}
