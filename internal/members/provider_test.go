package members

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sankofa-mutual/sankofa/internal/settlement"
	"github.com/sankofa-mutual/sankofa/internal/wizard"
)

type memoryRepo struct {
	categories []Category
	members    []Member
	dues       map[int64][]settlement.Due
	payments   []settlement.LineSubmission
	nextID     int64
}

func (m *memoryRepo) ListCategories(context.Context) ([]Category, error) {
	return m.categories, nil
}

func (m *memoryRepo) ListMembers(_ context.Context, categoryID int64) ([]Member, error) {
	var out []Member
	for _, mem := range m.members {
		if mem.CategoryID == categoryID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetMember(_ context.Context, id int64) (Member, error) {
	for _, mem := range m.members {
		if mem.ID == id {
			return mem, nil
		}
	}
	return Member{}, ErrNotFound
}

func (m *memoryRepo) ListOpenDues(_ context.Context, memberID int64) ([]settlement.Due, error) {
	var out []settlement.Due
	for _, d := range m.dues[memberID] {
		if d.Remaining() > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryRepo) DuesTotals(_ context.Context, memberID int64) (float64, float64, error) {
	var due, paid float64
	for _, d := range m.dues[memberID] {
		due += d.AmountDue
		paid += d.AmountPaid
	}
	return due, paid, nil
}

func (m *memoryRepo) InsertPayment(_ context.Context, line settlement.LineSubmission) (settlement.PaymentRecord, error) {
	dues := m.dues[line.OwnerID]
	for i, d := range dues {
		if d.ID != line.DueID {
			continue
		}
		if d.AmountPaid+line.Amount > d.AmountDue {
			return settlement.PaymentRecord{}, fmt.Errorf("%w: due %d", ErrAllocationExceedsDue, line.DueID)
		}
		dues[i].AmountPaid += line.Amount
		m.payments = append(m.payments, line)
		m.nextID++
		return settlement.PaymentRecord{
			ID: m.nextID, DueID: line.DueID, Amount: line.Amount,
			Mode: line.Mode, Date: line.Date, Status: "RECORDED",
		}, nil
	}
	return settlement.PaymentRecord{}, ErrNotFound
}

func newTestProvider(t *testing.T) (*Provider, *memoryRepo) {
	t.Helper()
	repo := &memoryRepo{
		categories: []Category{{ID: 10, Name: "Actifs"}, {ID: 11, Name: "Retraités"}},
		members: []Member{
			{ID: 100, FullName: "Awa Diop", CategoryID: 10},
			{ID: 101, FullName: "Fatou Sow", CategoryID: 10},
			{ID: 200, FullName: "Moussa Ndiaye", CategoryID: 11},
		},
		dues: map[int64][]settlement.Due{
			100: {
				{ID: 1, Motive: "Cotisation Q1", AmountDue: 1000, DueDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
				{ID: 2, Motive: "Amende retard", AmountDue: 500, AmountPaid: 500, DueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
			},
		},
	}
	return NewProvider(repo, nil, nil), repo
}

func TestProviderKind(t *testing.T) {
	p, _ := newTestProvider(t)
	require.Equal(t, wizard.KindMember, p.Kind())
}

func TestProviderListGroups(t *testing.T) {
	p, _ := newTestProvider(t)

	groups, err := p.ListGroups(context.Background())
	require.NoError(t, err)
	require.Equal(t, []wizard.Group{{ID: 10, Name: "Actifs"}, {ID: 11, Name: "Retraités"}}, groups)
}

func TestProviderListOwners(t *testing.T) {
	p, _ := newTestProvider(t)

	owners, err := p.ListOwners(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, owners, 2)
	require.Equal(t, wizard.OwnerRef{ID: 100, Label: "Awa Diop", GroupID: 10}, owners[0])
}

func TestProviderGetOwner(t *testing.T) {
	p, _ := newTestProvider(t)

	owner, err := p.GetOwner(context.Background(), 200)
	require.NoError(t, err)
	require.Equal(t, "Moussa Ndiaye", owner.Label)
	require.Equal(t, int64(11), owner.GroupID)

	_, err = p.GetOwner(context.Background(), 999)
	require.ErrorIs(t, err, wizard.ErrOwnerNotFound)
}

func TestProviderFetchBalance(t *testing.T) {
	p, _ := newTestProvider(t)

	balance, err := p.FetchBalance(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.OwnerID)
	require.InDelta(t, 1500, balance.TotalDue, 1e-9)
	require.InDelta(t, 500, balance.TotalPaid, 1e-9)
	require.InDelta(t, 1000, balance.Remaining(), 1e-9)
	// the fully paid fine is not an open due
	require.Len(t, balance.OpenDues, 1)
	require.Equal(t, int64(1), balance.OpenDues[0].ID)
	require.False(t, balance.FetchedAt.IsZero())
}

func TestProviderSubmitPaymentUpdatesBalance(t *testing.T) {
	p, repo := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SubmitPayment(ctx, settlement.LineSubmission{
		DueID: 1, OwnerID: 100, Amount: 400,
		Mode: settlement.ModeCash, Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, repo.payments, 1)

	balance, err := p.FetchBalance(ctx, 100)
	require.NoError(t, err)
	require.InDelta(t, 600, balance.Remaining(), 1e-9)
	require.InDelta(t, 600, balance.OpenDues[0].Remaining(), 1e-9)
}

func TestProviderSubmitPaymentRejectsOverpay(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.SubmitPayment(context.Background(), settlement.LineSubmission{
		DueID: 1, OwnerID: 100, Amount: 1200,
		Mode: settlement.ModeCash, Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrAllocationExceedsDue)
}
