package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sankofa-mutual/sankofa/internal/settlement"
)

// Step is one stop in the settlement wizard.
type Step string

const (
	StepGroupSelect    Step = "GROUP_SELECT"
	StepOwnerSelect    Step = "OWNER_SELECT"
	StepDueSelection   Step = "DUE_SELECTION"
	StepPaymentDetails Step = "PAYMENT_DETAILS"
	StepConfirmation   Step = "CONFIRMATION"
)

var (
	ErrStepNotAllowed = errors.New("wizard: step not allowed from current state")
	ErrNoHistory      = errors.New("wizard: no previous step")
	ErrOwnerMismatch  = errors.New("wizard: owner does not belong to selected group")
	ErrFinished       = errors.New("wizard: already confirmed, restart to begin again")
	ErrGroupNotFound  = errors.New("wizard: unknown group")
	ErrOwnerNotFound  = errors.New("wizard: unknown owner")
)

// State is the per-wizard session payload. It is serialized wholesale into
// the wizard store between requests.
type State struct {
	ID          string                      `json:"id"`
	Kind        OwnerKind                   `json:"kind"`
	Step        Step                        `json:"step"`
	History     []Step                      `json:"history,omitempty"`
	GroupID     int64                       `json:"group_id,omitempty"`
	Owner       *OwnerRef                   `json:"owner,omitempty"`
	Balance     *settlement.BalanceSummary  `json:"balance,omitempty"`
	Allocations map[int64]float64           `json:"allocations,omitempty"`
	Result      *settlement.BatchResult     `json:"result,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// canEnter is the pure gating predicate for forward transitions.
func (st *State) canEnter(step Step) bool {
	switch step {
	case StepGroupSelect:
		return true
	case StepOwnerSelect:
		return st.GroupID != 0
	case StepDueSelection:
		return st.Owner != nil && st.Balance != nil
	case StepPaymentDetails:
		return len(st.Allocations) > 0
	case StepConfirmation:
		return st.Result != nil
	}
	return false
}

// selection rebuilds the live selection from the balance snapshot plus the
// persisted allocation map.
func (st *State) selection() *settlement.Selection {
	var dues []settlement.Due
	if st.Balance != nil {
		dues = st.Balance.OpenDues
	}
	sel := settlement.NewSelection(dues)
	sel.Restore(st.Allocations)
	return sel
}

func (st *State) advance(next Step) {
	st.History = append(st.History, st.Step)
	st.Step = next
}

// Engine drives one wizard variant. Both variants share this exact engine;
// only the injected Provider differs.
type Engine struct {
	provider   Provider
	controller *settlement.Controller
	logger     *slog.Logger
}

// NewEngine builds an Engine for the given owner provider.
func NewEngine(provider Provider, controller *settlement.Controller, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{provider: provider, controller: controller, logger: logger}
}

// Kind returns the owner kind this engine settles.
func (e *Engine) Kind() OwnerKind {
	return e.provider.Kind()
}

// Start creates a fresh wizard state at the first step.
func (e *Engine) Start() *State {
	now := time.Now()
	return &State{
		ID:        uuid.NewString(),
		Kind:      e.provider.Kind(),
		Step:      StepGroupSelect,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ChooseGroup records the category/family choice and advances to owner
// selection.
func (e *Engine) ChooseGroup(ctx context.Context, st *State, groupID int64) error {
	if st.Step != StepGroupSelect {
		return ErrStepNotAllowed
	}
	groups, err := e.provider.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	found := false
	for _, g := range groups {
		if g.ID == groupID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	st.GroupID = groupID
	st.advance(StepOwnerSelect)
	st.UpdatedAt = time.Now()
	return nil
}

// ChooseOwner records the owner, fetches a fresh balance snapshot and clears
// any prior selection, then advances to due selection.
func (e *Engine) ChooseOwner(ctx context.Context, st *State, ownerID int64) error {
	if st.Step != StepOwnerSelect || !st.canEnter(StepOwnerSelect) {
		return ErrStepNotAllowed
	}
	owner, err := e.provider.GetOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner.GroupID != st.GroupID {
		return ErrOwnerMismatch
	}
	balance, err := e.provider.FetchBalance(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	st.Owner = &owner
	st.Balance = &balance
	st.Allocations = nil
	st.advance(StepDueSelection)
	st.UpdatedAt = time.Now()
	return nil
}

// EditSelection applies a mutation to the selection while on the due
// selection step and persists the resulting allocation map.
func (e *Engine) EditSelection(st *State, edit func(*settlement.Selection)) error {
	if st.Step != StepDueSelection {
		return ErrStepNotAllowed
	}
	sel := st.selection()
	edit(sel)
	st.Allocations = sel.Allocations()
	st.UpdatedAt = time.Now()
	return nil
}

// ConfirmSelection gates the move to payment details: the selection must be
// non-empty.
func (e *Engine) ConfirmSelection(st *State) error {
	if st.Step != StepDueSelection || !st.canEnter(StepPaymentDetails) {
		return ErrStepNotAllowed
	}
	st.advance(StepPaymentDetails)
	st.UpdatedAt = time.Now()
	return nil
}

// Submit runs the batch for the current selection. Validation and systemic
// failures leave the state untouched. An all-failed batch keeps the wizard on
// the payment details step; partial and full successes advance to
// confirmation, purging settled lines from the selection so a retry cannot
// resubmit them.
func (e *Engine) Submit(ctx context.Context, st *State, details settlement.PaymentDetails) (settlement.BatchResult, error) {
	if st.Step != StepPaymentDetails {
		return settlement.BatchResult{}, ErrStepNotAllowed
	}

	sel := st.selection()
	result, err := e.controller.Submit(ctx, settlement.BatchInput{
		OwnerID:    st.Owner.ID,
		Balance:    *st.Balance,
		Selection:  sel,
		Details:    details,
		GuardScope: st.ID,
	}, e.provider)
	if err != nil {
		return settlement.BatchResult{}, err
	}

	if result.Outcome == settlement.OutcomeAllFailed {
		e.logger.Warn("settlement batch failed entirely",
			slog.String("wizard_id", st.ID),
			slog.Int("lines", len(result.Failures)))
		return result, nil
	}

	settled := make([]int64, 0, len(result.Records))
	for _, rec := range result.Records {
		settled = append(settled, rec.DueID)
	}
	sel.Remove(settled...)
	st.Allocations = sel.Allocations()
	st.Result = &result
	st.advance(StepConfirmation)
	st.UpdatedAt = time.Now()

	e.logger.Info("settlement batch completed",
		slog.String("wizard_id", st.ID),
		slog.String("outcome", string(result.Outcome)),
		slog.Int("succeeded", len(result.Records)),
		slog.Int("failed", len(result.Failures)),
		slog.Float64("total", result.TotalSettled()))
	return result, nil
}

// Back pops the last visited step off the history stack. Confirmation is
// terminal: the only way out is Restart.
func (e *Engine) Back(st *State) error {
	if st.Step == StepConfirmation {
		return ErrFinished
	}
	if len(st.History) == 0 {
		return ErrNoHistory
	}
	last := len(st.History) - 1
	st.Step = st.History[last]
	st.History = st.History[:last]
	st.UpdatedAt = time.Now()
	return nil
}

var stepRank = map[Step]int{
	StepGroupSelect:    0,
	StepOwnerSelect:    1,
	StepDueSelection:   2,
	StepPaymentDetails: 3,
	StepConfirmation:   4,
}

// JumpTo moves directly forward to an already-validated step without
// replaying the intermediate transitions. Confirmation is never a jump
// target; it is only reachable through a completed batch.
func (e *Engine) JumpTo(st *State, step Step) error {
	if st.Step == StepConfirmation {
		return ErrFinished
	}
	if step == StepConfirmation || stepRank[step] <= stepRank[st.Step] || !st.canEnter(step) {
		return ErrStepNotAllowed
	}
	st.advance(step)
	st.UpdatedAt = time.Now()
	return nil
}

// Restart resets the wizard to its initial step, discarding all progress but
// keeping the wizard id.
func (e *Engine) Restart(st *State) {
	st.Step = StepGroupSelect
	st.History = nil
	st.GroupID = 0
	st.Owner = nil
	st.Balance = nil
	st.Allocations = nil
	st.Result = nil
	st.UpdatedAt = time.Now()
}
