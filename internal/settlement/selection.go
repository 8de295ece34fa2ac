package settlement

import (
	"sort"
)

// Line is one selected due with its allocated amount.
type Line struct {
	Due       Due
	Allocated float64
}

// Selection tracks which open dues are chosen for the current settlement and
// how much is allocated to each. It is bound to one balance snapshot; dues are
// referenced by id only and never mutated. Iteration order follows the dues'
// settlement order (due date ascending, larger remaining first on ties).
type Selection struct {
	dues  map[int64]Due
	order []int64
	alloc map[int64]float64
}

// NewSelection builds an empty selection over the given open dues.
func NewSelection(openDues []Due) *Selection {
	sorted := make([]Due, len(openDues))
	copy(sorted, openDues)
	sortDues(sorted)

	s := &Selection{
		dues:  make(map[int64]Due, len(sorted)),
		order: make([]int64, 0, len(sorted)),
		alloc: make(map[int64]float64),
	}
	for _, d := range sorted {
		s.dues[d.ID] = d
		s.order = append(s.order, d.ID)
	}
	return s
}

// sortDues orders dues by due date ascending; dues sharing a date are ordered
// by descending remaining so the largest remaining is settled first.
func sortDues(dues []Due) {
	sort.SliceStable(dues, func(i, j int) bool {
		if !dues[i].DueDate.Equal(dues[j].DueDate) {
			return dues[i].DueDate.Before(dues[j].DueDate)
		}
		return dues[i].Remaining() > dues[j].Remaining()
	})
}

// Toggle selects the due at its full remaining, or removes it when already
// selected. Dues with nothing remaining are ignored.
func (s *Selection) Toggle(dueID int64) {
	due, ok := s.dues[dueID]
	if !ok || due.Remaining() <= 0 {
		return
	}
	if _, selected := s.alloc[dueID]; selected {
		delete(s.alloc, dueID)
		return
	}
	s.alloc[dueID] = due.Remaining()
}

// SetAmount updates the allocation of an already selected due, clamped into
// [0, remaining]. It does not auto-select; an allocation of zero removes the
// line.
func (s *Selection) SetAmount(dueID int64, amount float64) {
	if _, selected := s.alloc[dueID]; !selected {
		return
	}
	due := s.dues[dueID]
	if amount < 0 {
		amount = 0
	}
	if remaining := due.Remaining(); amount > remaining {
		amount = remaining
	}
	if amount == 0 {
		delete(s.alloc, dueID)
		return
	}
	s.alloc[dueID] = amount
}

// SelectAll selects every open due at its full remaining.
func (s *Selection) SelectAll() {
	for id, due := range s.dues {
		if due.Remaining() > 0 {
			s.alloc[id] = due.Remaining()
		}
	}
}

// ClearAll removes every line.
func (s *Selection) ClearAll() {
	s.alloc = make(map[int64]float64)
}

// TotalAllocated returns the live sum over all lines.
func (s *Selection) TotalAllocated() float64 {
	var total float64
	for _, amount := range s.alloc {
		total += amount
	}
	return total
}

// IsEmpty reports whether no due is selected.
func (s *Selection) IsEmpty() bool {
	return len(s.alloc) == 0
}

// Len returns the number of selected lines.
func (s *Selection) Len() int {
	return len(s.alloc)
}

// Allocated returns the allocation for a due and whether it is selected.
func (s *Selection) Allocated(dueID int64) (float64, bool) {
	amount, ok := s.alloc[dueID]
	return amount, ok
}

// Lines returns the selected lines in settlement order.
func (s *Selection) Lines() []Line {
	lines := make([]Line, 0, len(s.alloc))
	for _, id := range s.order {
		if amount, ok := s.alloc[id]; ok {
			lines = append(lines, Line{Due: s.dues[id], Allocated: amount})
		}
	}
	return lines
}

// Allocations returns a copy of the raw dueID to amount mapping, used to
// persist selection state between requests.
func (s *Selection) Allocations() map[int64]float64 {
	out := make(map[int64]float64, len(s.alloc))
	for id, amount := range s.alloc {
		out[id] = amount
	}
	return out
}

// Restore replaces the current lines with a previously captured allocation
// map. Unknown dues are dropped and amounts are clamped, so a stale map can
// never violate the line invariant.
func (s *Selection) Restore(allocations map[int64]float64) {
	s.alloc = make(map[int64]float64, len(allocations))
	for id, amount := range allocations {
		due, ok := s.dues[id]
		if !ok || due.Remaining() <= 0 || amount <= 0 {
			continue
		}
		if remaining := due.Remaining(); amount > remaining {
			amount = remaining
		}
		s.alloc[id] = amount
	}
}

// Remove drops the lines for the given due ids, leaving others untouched.
// Used to purge already settled lines before a retry.
func (s *Selection) Remove(dueIDs ...int64) {
	for _, id := range dueIDs {
		delete(s.alloc, id)
	}
}
