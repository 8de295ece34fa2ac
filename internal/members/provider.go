package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sankofa-mutual/sankofa/internal/platform/cache"
	"github.com/sankofa-mutual/sankofa/internal/settlement"
	"github.com/sankofa-mutual/sankofa/internal/wizard"
)

// RepositoryPort defines the data access the member provider needs.
type RepositoryPort interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListMembers(ctx context.Context, categoryID int64) ([]Member, error)
	GetMember(ctx context.Context, id int64) (Member, error)
	ListOpenDues(ctx context.Context, memberID int64) ([]settlement.Due, error)
	DuesTotals(ctx context.Context, memberID int64) (totalDue, totalPaid float64, err error)
	InsertPayment(ctx context.Context, line settlement.LineSubmission) (settlement.PaymentRecord, error)
}

// Provider is the member-settlement owner capability: it feeds the generic
// wizard engine with category/member listings and settles dues against
// member tables.
type Provider struct {
	repo      RepositoryPort
	snapshots *cache.Snapshots
	logger    *slog.Logger
}

// NewProvider builds a member Provider. The snapshot cache may be nil.
func NewProvider(repo RepositoryPort, snapshots *cache.Snapshots, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{repo: repo, snapshots: snapshots, logger: logger}
}

// Kind identifies the wizard variant.
func (p *Provider) Kind() wizard.OwnerKind {
	return wizard.KindMember
}

// ListGroups returns member categories, served from the snapshot cache when
// warm.
func (p *Provider) ListGroups(ctx context.Context) ([]wizard.Group, error) {
	const key = "members:categories"
	var groups []wizard.Group
	if hit, err := p.snapshots.Get(ctx, key, &groups); err != nil {
		p.logger.Warn("category snapshot read", slog.Any("error", err))
	} else if hit {
		return groups, nil
	}

	categories, err := p.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	groups = make([]wizard.Group, 0, len(categories))
	for _, c := range categories {
		groups = append(groups, wizard.Group{ID: c.ID, Name: c.Name})
	}
	if err := p.snapshots.Set(ctx, key, groups); err != nil {
		p.logger.Warn("category snapshot write", slog.Any("error", err))
	}
	return groups, nil
}

// ListOwners returns the members of one category.
func (p *Provider) ListOwners(ctx context.Context, groupID int64) ([]wizard.OwnerRef, error) {
	key := fmt.Sprintf("members:category:%d", groupID)
	var owners []wizard.OwnerRef
	if hit, err := p.snapshots.Get(ctx, key, &owners); err != nil {
		p.logger.Warn("member snapshot read", slog.Any("error", err))
	} else if hit {
		return owners, nil
	}

	members, err := p.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	owners = make([]wizard.OwnerRef, 0, len(members))
	for _, m := range members {
		owners = append(owners, wizard.OwnerRef{ID: m.ID, Label: m.FullName, GroupID: m.CategoryID})
	}
	if err := p.snapshots.Set(ctx, key, owners); err != nil {
		p.logger.Warn("member snapshot write", slog.Any("error", err))
	}
	return owners, nil
}

// GetOwner resolves one member.
func (p *Provider) GetOwner(ctx context.Context, ownerID int64) (wizard.OwnerRef, error) {
	m, err := p.repo.GetMember(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return wizard.OwnerRef{}, fmt.Errorf("%w: member %d", wizard.ErrOwnerNotFound, ownerID)
		}
		return wizard.OwnerRef{}, err
	}
	return wizard.OwnerRef{ID: m.ID, Label: m.FullName, GroupID: m.CategoryID}, nil
}

// FetchBalance assembles a fresh balance snapshot. Balances are never cached:
// the wizard relies on a refetch reflecting payments recorded elsewhere.
func (p *Provider) FetchBalance(ctx context.Context, ownerID int64) (settlement.BalanceSummary, error) {
	totalDue, totalPaid, err := p.repo.DuesTotals(ctx, ownerID)
	if err != nil {
		return settlement.BalanceSummary{}, err
	}
	openDues, err := p.repo.ListOpenDues(ctx, ownerID)
	if err != nil {
		return settlement.BalanceSummary{}, err
	}
	return settlement.BalanceSummary{
		OwnerID:   ownerID,
		TotalDue:  totalDue,
		TotalPaid: totalPaid,
		OpenDues:  openDues,
		FetchedAt: time.Now(),
	}, nil
}

// SubmitPayment persists one allocation line.
func (p *Provider) SubmitPayment(ctx context.Context, line settlement.LineSubmission) (settlement.PaymentRecord, error) {
	return p.repo.InsertPayment(ctx, line)
}
