package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistributeGreedyFill(t *testing.T) {
	sel := NewSelection([]Due{
		{ID: 1, AmountDue: 1000, DueDate: day(0)},
		{ID: 2, AmountDue: 800, DueDate: day(30)},
	})

	sel.Distribute(1500)

	a, _ := sel.Allocated(1)
	b, _ := sel.Allocated(2)
	require.Equal(t, 1000.0, a, "older due filled first")
	require.Equal(t, 500.0, b, "newer due takes the leftover")
	require.Equal(t, 1500.0, sel.TotalAllocated())
}

func TestDistributeZeroOrNegativeTargetEmpties(t *testing.T) {
	sel := NewSelection(testDues())
	sel.SelectAll()

	sel.Distribute(0)
	require.True(t, sel.IsEmpty())

	sel.Distribute(-200)
	require.True(t, sel.IsEmpty())
}

func TestDistributeTargetAboveRemainingSelectsEverything(t *testing.T) {
	dues := testDues()
	sel := NewSelection(dues)

	var sum float64
	for _, d := range dues {
		sum += d.Remaining()
	}

	sel.Distribute(sum + 5000)
	require.Equal(t, len(dues), sel.Len())
	require.Equal(t, sum, sel.TotalAllocated(), "surplus silently discarded")
	for _, line := range sel.Lines() {
		require.Equal(t, line.Due.Remaining(), line.Allocated)
	}
}

func TestDistributeReplacesManualSelection(t *testing.T) {
	sel := NewSelection(testDues())
	sel.Toggle(3)
	sel.SetAmount(3, 100)

	sel.Distribute(1000)

	_, ok := sel.Allocated(3)
	require.False(t, ok, "prior manual selection is not merged")
	a, _ := sel.Allocated(1)
	require.Equal(t, 1000.0, a)
}

func TestDistributeTieBreakLargerRemainingFirst(t *testing.T) {
	sel := NewSelection([]Due{
		{ID: 1, AmountDue: 300, DueDate: day(10)},
		{ID: 2, AmountDue: 900, DueDate: day(10)},
	})

	sel.Distribute(1000)

	big, _ := sel.Allocated(2)
	small, _ := sel.Allocated(1)
	require.Equal(t, 900.0, big, "same-date dues settle largest remaining first")
	require.Equal(t, 100.0, small)
}

func TestDistributeSkipsSettledDues(t *testing.T) {
	sel := NewSelection([]Due{
		{ID: 1, AmountDue: 500, AmountPaid: 500, DueDate: day(0)},
		{ID: 2, AmountDue: 400, DueDate: day(5)},
	})

	sel.Distribute(400)
	_, ok := sel.Allocated(1)
	require.False(t, ok)
	b, _ := sel.Allocated(2)
	require.Equal(t, 400.0, b)
}
