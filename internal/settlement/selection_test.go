package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(offset int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func testDues() []Due {
	return []Due{
		{ID: 1, Motive: "Cotisation Q1", AmountDue: 1000, AmountPaid: 0, DueDate: day(0)},
		{ID: 2, Motive: "Cotisation Q2", AmountDue: 800, AmountPaid: 0, DueDate: day(30)},
		{ID: 3, Motive: "Amende retard", AmountDue: 500, AmountPaid: 200, DueDate: day(30)},
	}
}

func TestToggleSelectsFullRemaining(t *testing.T) {
	sel := NewSelection(testDues())

	sel.Toggle(1)
	amount, ok := sel.Allocated(1)
	require.True(t, ok)
	require.Equal(t, 1000.0, amount)

	sel.Toggle(1)
	_, ok = sel.Allocated(1)
	require.False(t, ok)
}

func TestToggleIgnoresSettledDue(t *testing.T) {
	sel := NewSelection([]Due{
		{ID: 9, AmountDue: 300, AmountPaid: 300, DueDate: day(0)},
	})
	sel.Toggle(9)
	require.True(t, sel.IsEmpty())
}

func TestSetAmountClampsToRemaining(t *testing.T) {
	sel := NewSelection(testDues())
	sel.Toggle(3)

	sel.SetAmount(3, 900)
	amount, _ := sel.Allocated(3)
	require.Equal(t, 300.0, amount, "clamped to remaining 500-200")

	sel.SetAmount(3, -50)
	_, ok := sel.Allocated(3)
	require.False(t, ok, "clamp to zero removes the line")
}

func TestSetAmountDoesNotAutoSelect(t *testing.T) {
	sel := NewSelection(testDues())
	sel.SetAmount(1, 400)
	require.True(t, sel.IsEmpty())
}

func TestSetAmountIdempotent(t *testing.T) {
	sel := NewSelection(testDues())
	sel.Toggle(1)
	sel.Toggle(2)

	sel.SetAmount(1, 250)
	first := sel.Allocations()
	sel.SetAmount(1, 250)
	require.Equal(t, first, sel.Allocations())
	require.Equal(t, 250.0+800.0, sel.TotalAllocated())
}

func TestSelectAllAndClearAll(t *testing.T) {
	sel := NewSelection(testDues())
	sel.SelectAll()
	require.Equal(t, 3, sel.Len())
	require.Equal(t, 1000.0+800.0+300.0, sel.TotalAllocated())

	sel.ClearAll()
	require.True(t, sel.IsEmpty())
	require.Equal(t, 0.0, sel.TotalAllocated())
}

func TestTotalAllocatedTracksEveryMutation(t *testing.T) {
	sel := NewSelection(testDues())
	require.Equal(t, 0.0, sel.TotalAllocated())

	sel.Toggle(1)
	require.Equal(t, 1000.0, sel.TotalAllocated())

	sel.SetAmount(1, 600)
	require.Equal(t, 600.0, sel.TotalAllocated())

	sel.Toggle(2)
	require.Equal(t, 1400.0, sel.TotalAllocated())

	sel.Toggle(1)
	require.Equal(t, 800.0, sel.TotalAllocated())
}

func TestLinesFollowSettlementOrder(t *testing.T) {
	sel := NewSelection(testDues())
	// Select in reverse to prove insertion order does not leak into iteration.
	sel.Toggle(3)
	sel.Toggle(2)
	sel.Toggle(1)

	lines := sel.Lines()
	require.Len(t, lines, 3)
	require.Equal(t, int64(1), lines[0].Due.ID, "earliest due date first")
	require.Equal(t, int64(2), lines[1].Due.ID, "larger remaining wins the date tie")
	require.Equal(t, int64(3), lines[2].Due.ID)
}

func TestLineInvariantHolds(t *testing.T) {
	sel := NewSelection(testDues())
	sel.SelectAll()
	sel.SetAmount(2, 10000)
	sel.SetAmount(1, 1)

	for _, line := range sel.Lines() {
		require.GreaterOrEqual(t, line.Allocated, 0.0)
		require.LessOrEqual(t, line.Allocated, line.Due.Remaining())
	}
}

func TestRestoreDropsUnknownAndClamps(t *testing.T) {
	sel := NewSelection(testDues())
	sel.Restore(map[int64]float64{
		1:  700,
		3:  9999, // stale amount, clamp to remaining
		42: 100,  // unknown due, drop
	})
	require.Equal(t, 2, sel.Len())
	amount, _ := sel.Allocated(3)
	require.Equal(t, 300.0, amount)
	require.Equal(t, 1000.0, sel.TotalAllocated())
}

func TestRemovePurgesLines(t *testing.T) {
	sel := NewSelection(testDues())
	sel.SelectAll()
	sel.Remove(1, 3)
	require.Equal(t, 1, sel.Len())
	_, ok := sel.Allocated(2)
	require.True(t, ok)
}
