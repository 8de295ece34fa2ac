package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sankofa-mutual/sankofa/internal/settlement"
)

type stubProvider struct {
	kind    OwnerKind
	groups  []Group
	owners  map[int64][]OwnerRef
	balance settlement.BalanceSummary

	submitted []settlement.LineSubmission
	failDues  map[int64]error
	nextID    int64
}

func (p *stubProvider) Kind() OwnerKind { return p.kind }

func (p *stubProvider) ListGroups(context.Context) ([]Group, error) {
	return p.groups, nil
}

func (p *stubProvider) ListOwners(_ context.Context, groupID int64) ([]OwnerRef, error) {
	return p.owners[groupID], nil
}

func (p *stubProvider) GetOwner(_ context.Context, ownerID int64) (OwnerRef, error) {
	for _, refs := range p.owners {
		for _, ref := range refs {
			if ref.ID == ownerID {
				return ref, nil
			}
		}
	}
	return OwnerRef{}, errors.New("stub: owner not found")
}

func (p *stubProvider) FetchBalance(_ context.Context, ownerID int64) (settlement.BalanceSummary, error) {
	b := p.balance
	b.OwnerID = ownerID
	b.FetchedAt = time.Now()
	return b, nil
}

func (p *stubProvider) SubmitPayment(_ context.Context, line settlement.LineSubmission) (settlement.PaymentRecord, error) {
	if err, ok := p.failDues[line.DueID]; ok {
		return settlement.PaymentRecord{}, err
	}
	p.submitted = append(p.submitted, line)
	p.nextID++
	return settlement.PaymentRecord{
		ID:     p.nextID,
		DueID:  line.DueID,
		Amount: line.Amount,
		Mode:   line.Mode,
		Date:   line.Date,
		Status: "RECORDED",
	}, nil
}

func day(offset int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func newTestEngine(t *testing.T) (*Engine, *stubProvider) {
	t.Helper()
	provider := &stubProvider{
		kind:   KindMember,
		groups: []Group{{ID: 10, Name: "Actifs"}, {ID: 11, Name: "Retraités"}},
		owners: map[int64][]OwnerRef{
			10: {{ID: 100, Label: "Awa Diop", GroupID: 10}},
			11: {{ID: 200, Label: "Moussa Ndiaye", GroupID: 11}},
		},
		balance: settlement.BalanceSummary{
			TotalDue:  2300,
			TotalPaid: 200,
			OpenDues: []settlement.Due{
				{ID: 1, Motive: "Cotisation Q1", AmountDue: 1000, DueDate: day(0)},
				{ID: 2, Motive: "Cotisation Q2", AmountDue: 800, DueDate: day(30)},
				{ID: 3, Motive: "Amende retard", AmountDue: 500, AmountPaid: 200, DueDate: day(30)},
			},
		},
	}
	controller := settlement.NewController(settlement.Config{}, slog.Default(), nil)
	return NewEngine(provider, controller, slog.Default()), provider
}

func details() settlement.PaymentDetails {
	return settlement.PaymentDetails{Date: day(1), Mode: settlement.ModeCash}
}

// walk drives a fresh wizard up to payment details with due 1 fully selected.
func walk(t *testing.T, e *Engine) *State {
	t.Helper()
	ctx := context.Background()
	st := e.Start()
	require.NoError(t, e.ChooseGroup(ctx, st, 10))
	require.NoError(t, e.ChooseOwner(ctx, st, 100))
	require.NoError(t, e.EditSelection(st, func(sel *settlement.Selection) {
		sel.Toggle(1)
	}))
	require.NoError(t, e.ConfirmSelection(st))
	return st
}

func TestStartInitialState(t *testing.T) {
	e, _ := newTestEngine(t)
	st := e.Start()

	require.NotEmpty(t, st.ID)
	require.Equal(t, KindMember, st.Kind)
	require.Equal(t, StepGroupSelect, st.Step)
	require.Empty(t, st.History)
}

func TestChooseGroupUnknown(t *testing.T) {
	e, _ := newTestEngine(t)
	st := e.Start()

	err := e.ChooseGroup(context.Background(), st, 999)
	require.Error(t, err)
	require.Equal(t, StepGroupSelect, st.Step)
}

func TestChooseOwnerWrongGroup(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st := e.Start()
	require.NoError(t, e.ChooseGroup(ctx, st, 10))

	err := e.ChooseOwner(ctx, st, 200)
	require.ErrorIs(t, err, ErrOwnerMismatch)
	require.Equal(t, StepOwnerSelect, st.Step)
}

func TestChooseOwnerFetchesBalanceAndClearsSelection(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st := e.Start()
	require.NoError(t, e.ChooseGroup(ctx, st, 10))
	require.NoError(t, e.ChooseOwner(ctx, st, 100))

	require.Equal(t, StepDueSelection, st.Step)
	require.NotNil(t, st.Balance)
	require.Len(t, st.Balance.OpenDues, 3)
	require.Empty(t, st.Allocations)
	require.Equal(t, []Step{StepGroupSelect, StepOwnerSelect}, st.History)
}

func TestStepGating(t *testing.T) {
	e, _ := newTestEngine(t)
	st := e.Start()

	// every forward action is rejected before its prerequisites exist
	require.ErrorIs(t, e.ChooseOwner(context.Background(), st, 100), ErrStepNotAllowed)
	require.ErrorIs(t, e.EditSelection(st, func(*settlement.Selection) {}), ErrStepNotAllowed)
	require.ErrorIs(t, e.ConfirmSelection(st), ErrStepNotAllowed)
	_, err := e.Submit(context.Background(), st, details())
	require.ErrorIs(t, err, ErrStepNotAllowed)
}

func TestConfirmSelectionRequiresAllocation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st := e.Start()
	require.NoError(t, e.ChooseGroup(ctx, st, 10))
	require.NoError(t, e.ChooseOwner(ctx, st, 100))

	require.ErrorIs(t, e.ConfirmSelection(st), ErrStepNotAllowed)

	require.NoError(t, e.EditSelection(st, func(sel *settlement.Selection) {
		sel.SetAmount(1, 400)
	}))
	require.NoError(t, e.ConfirmSelection(st))
	require.Equal(t, StepPaymentDetails, st.Step)
}

func TestSubmitAllSucceededAdvances(t *testing.T) {
	e, provider := newTestEngine(t)
	st := walk(t, e)

	result, err := e.Submit(context.Background(), st, details())
	require.NoError(t, err)
	require.Equal(t, settlement.OutcomeAllSucceeded, result.Outcome)
	require.Len(t, provider.submitted, 1)
	require.Equal(t, StepConfirmation, st.Step)
	require.Empty(t, st.Allocations)
	require.NotNil(t, st.Result)
}

func TestSubmitPartialPurgesSettledLines(t *testing.T) {
	e, provider := newTestEngine(t)
	provider.failDues = map[int64]error{2: errors.New("stub: constraint violation")}

	ctx := context.Background()
	st := e.Start()
	require.NoError(t, e.ChooseGroup(ctx, st, 10))
	require.NoError(t, e.ChooseOwner(ctx, st, 100))
	require.NoError(t, e.EditSelection(st, func(sel *settlement.Selection) {
		sel.SelectAll()
	}))
	require.NoError(t, e.ConfirmSelection(st))

	result, err := e.Submit(ctx, st, details())
	require.NoError(t, err)
	require.Equal(t, settlement.OutcomePartial, result.Outcome)
	require.Len(t, result.Records, 2)
	require.Len(t, result.Failures, 1)
	require.Equal(t, int64(2), result.Failures[0].DueID)

	// settled lines are gone, the failed one survives for a retry
	require.Equal(t, StepConfirmation, st.Step)
	require.Len(t, st.Allocations, 1)
	require.Contains(t, st.Allocations, int64(2))
}

func TestSubmitAllFailedStaysOnPaymentDetails(t *testing.T) {
	e, provider := newTestEngine(t)
	provider.failDues = map[int64]error{1: errors.New("stub: constraint violation")}
	st := walk(t, e)

	result, err := e.Submit(context.Background(), st, details())
	require.NoError(t, err)
	require.Equal(t, settlement.OutcomeAllFailed, result.Outcome)
	require.Equal(t, StepPaymentDetails, st.Step)
	require.Nil(t, st.Result)
	require.Len(t, st.Allocations, 1)
}

func TestSubmitSystemicFailureLeavesStateUntouched(t *testing.T) {
	e, provider := newTestEngine(t)
	provider.failDues = map[int64]error{
		1: fmt.Errorf("%w: dial tcp refused", settlement.ErrUnavailable),
	}
	st := walk(t, e)

	_, err := e.Submit(context.Background(), st, details())
	require.ErrorIs(t, err, settlement.ErrUnavailable)
	require.Equal(t, StepPaymentDetails, st.Step)
	require.Len(t, st.Allocations, 1)
}

func TestBackPopsHistory(t *testing.T) {
	e, _ := newTestEngine(t)
	st := walk(t, e)
	require.Equal(t, StepPaymentDetails, st.Step)

	require.NoError(t, e.Back(st))
	require.Equal(t, StepDueSelection, st.Step)
	require.NoError(t, e.Back(st))
	require.Equal(t, StepOwnerSelect, st.Step)
	require.NoError(t, e.Back(st))
	require.Equal(t, StepGroupSelect, st.Step)
	require.ErrorIs(t, e.Back(st), ErrNoHistory)
}

func TestBackAfterConfirmationIsFinal(t *testing.T) {
	e, _ := newTestEngine(t)
	st := walk(t, e)
	_, err := e.Submit(context.Background(), st, details())
	require.NoError(t, err)

	require.ErrorIs(t, e.Back(st), ErrFinished)
}

func TestBackPreservesSelection(t *testing.T) {
	e, _ := newTestEngine(t)
	st := walk(t, e)

	require.NoError(t, e.Back(st))
	require.Equal(t, StepDueSelection, st.Step)
	require.Len(t, st.Allocations, 1)
	require.InDelta(t, 1000, st.Allocations[1], 1e-9)
}

func TestJumpForwardOnlyWhenValidated(t *testing.T) {
	e, _ := newTestEngine(t)
	st := walk(t, e)

	// back to the beginning, then jump straight to payment details
	require.NoError(t, e.Back(st))
	require.NoError(t, e.Back(st))
	require.NoError(t, e.Back(st))
	require.Equal(t, StepGroupSelect, st.Step)

	require.NoError(t, e.JumpTo(st, StepPaymentDetails))
	require.Equal(t, StepPaymentDetails, st.Step)
}

func TestJumpRejectsBackwardAndConfirmation(t *testing.T) {
	e, _ := newTestEngine(t)
	st := walk(t, e)

	require.ErrorIs(t, e.JumpTo(st, StepDueSelection), ErrStepNotAllowed)
	require.ErrorIs(t, e.JumpTo(st, StepConfirmation), ErrStepNotAllowed)
}

func TestJumpRejectsUnvalidatedStep(t *testing.T) {
	e, _ := newTestEngine(t)
	st := e.Start()

	require.ErrorIs(t, e.JumpTo(st, StepDueSelection), ErrStepNotAllowed)
}

func TestRestartKeepsIdentity(t *testing.T) {
	e, _ := newTestEngine(t)
	st := walk(t, e)
	id := st.ID

	e.Restart(st)
	require.Equal(t, id, st.ID)
	require.Equal(t, KindMember, st.Kind)
	require.Equal(t, StepGroupSelect, st.Step)
	require.Empty(t, st.History)
	require.Nil(t, st.Owner)
	require.Nil(t, st.Balance)
	require.Empty(t, st.Allocations)
}
