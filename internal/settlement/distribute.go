package settlement

// Distribute replaces the whole selection with an automatic allocation of the
// target amount: dues are filled greedily in settlement order (due date
// ascending, larger remaining first on equal dates) until the target is
// exhausted. A non-positive target yields an empty selection; a target beyond
// the total remaining selects every due in full and the surplus is discarded.
func (s *Selection) Distribute(target float64) {
	s.alloc = make(map[int64]float64)
	if target <= 0 {
		return
	}
	leftover := target
	for _, id := range s.order {
		if leftover <= 0 {
			break
		}
		due := s.dues[id]
		remaining := due.Remaining()
		if remaining <= 0 {
			continue
		}
		amount := remaining
		if leftover < amount {
			amount = leftover
		}
		s.alloc[id] = amount
		leftover -= amount
	}
}
