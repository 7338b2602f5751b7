package review

import "github.com/Veraticus/spice-reconcile/internal/model"

// Drafts holds the category a reviewer has chosen, per transaction id, before
// the review is submitted.
type Drafts struct {
	categories map[string]string
}

// NewDrafts seeds a draft for every transaction with its effective category.
func NewDrafts(txns []model.Transaction) *Drafts {
	d := &Drafts{}
	d.Reset(txns)
	return d
}

// Reset discards all drafts and reseeds them from txns.
func (d *Drafts) Reset(txns []model.Transaction) {
	d.categories = make(map[string]string, len(txns))
	for _, t := range txns {
		if c := t.EffectiveCategory(); c != "" {
			d.categories[t.ID] = c
		}
	}
}

// Set records the chosen category for a transaction.
func (d *Drafts) Set(transactionID, category string) {
	if d.categories == nil {
		d.categories = make(map[string]string)
	}
	d.categories[transactionID] = category
}

// Get returns the drafted category, if any.
func (d *Drafts) Get(transactionID string) (string, bool) {
	c, ok := d.categories[transactionID]
	return c, ok && c != ""
}

// Snapshot returns a copy of all drafts.
func (d *Drafts) Snapshot() map[string]string {
	out := make(map[string]string, len(d.categories))
	for k, v := range d.categories {
		out[k] = v
	}
	return out
}
