package merge

// Selection records, per duplicate group index, which transaction to keep.
// It is only meaningful for the group list it was built against and must be
// cleared whenever groups are recomputed.
type Selection struct {
	keep map[int]string
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{keep: make(map[int]string)}
}

// Select marks transactionID as the survivor of group groupIndex.
func (s *Selection) Select(groupIndex int, transactionID string) {
	if s.keep == nil {
		s.keep = make(map[int]string)
	}
	s.keep[groupIndex] = transactionID
}

// Keep returns the selected survivor for a group.
func (s *Selection) Keep(groupIndex int) (string, bool) {
	id, ok := s.keep[groupIndex]
	return id, ok
}

// Clear drops every selection.
func (s *Selection) Clear() {
	s.keep = make(map[int]string)
}

// Len returns the number of groups with a selection.
func (s *Selection) Len() int {
	return len(s.keep)
}

// Snapshot returns a copy of the selection map.
func (s *Selection) Snapshot() map[int]string {
	out := make(map[int]string, len(s.keep))
	for k, v := range s.keep {
		out[k] = v
	}
	return out
}
