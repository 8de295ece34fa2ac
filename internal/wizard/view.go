package wizard

import (
	"time"

	"github.com/sankofa-mutual/sankofa/internal/settlement"
)

// dueView decorates an open due with its remaining and current allocation.
type dueView struct {
	settlement.Due
	Remaining float64 `json:"remaining"`
	Allocated float64 `json:"allocated"`
	Selected  bool    `json:"selected"`
}

type balanceView struct {
	OwnerID   int64     `json:"owner_id"`
	TotalDue  float64   `json:"total_due"`
	TotalPaid float64   `json:"total_paid"`
	Remaining float64   `json:"remaining"`
	OpenDues  []dueView `json:"open_dues"`
	FetchedAt time.Time `json:"fetched_at"`
}

// stateView is the wire representation of a wizard state.
type stateView struct {
	ID             string                  `json:"id"`
	Kind           OwnerKind               `json:"kind"`
	Step           Step                    `json:"step"`
	History        []Step                  `json:"history,omitempty"`
	GroupID        int64                   `json:"group_id,omitempty"`
	Owner          *OwnerRef               `json:"owner,omitempty"`
	Balance        *balanceView            `json:"balance,omitempty"`
	TotalAllocated float64                 `json:"total_allocated"`
	SelectedLines  int                     `json:"selected_lines"`
	Result         *settlement.BatchResult `json:"result,omitempty"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

func newStateView(st *State) stateView {
	sel := st.selection()
	view := stateView{
		ID:             st.ID,
		Kind:           st.Kind,
		Step:           st.Step,
		History:        st.History,
		GroupID:        st.GroupID,
		Owner:          st.Owner,
		TotalAllocated: sel.TotalAllocated(),
		SelectedLines:  sel.Len(),
		Result:         st.Result,
		UpdatedAt:      st.UpdatedAt,
	}
	if st.Balance != nil {
		bv := balanceView{
			OwnerID:   st.Balance.OwnerID,
			TotalDue:  st.Balance.TotalDue,
			TotalPaid: st.Balance.TotalPaid,
			Remaining: st.Balance.Remaining(),
			FetchedAt: st.Balance.FetchedAt,
		}
		for _, d := range st.Balance.OpenDues {
			allocated, selected := sel.Allocated(d.ID)
			bv.OpenDues = append(bv.OpenDues, dueView{
				Due:       d,
				Remaining: d.Remaining(),
				Allocated: allocated,
				Selected:  selected,
			})
		}
		view.Balance = &bv
	}
	return view
}
