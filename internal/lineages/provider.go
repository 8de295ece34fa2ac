package lineages

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

// RepositoryPort defines the data access the lineage provider needs.
type RepositoryPort interface {
	ListFamilies(ctx context.Context) ([]Family, error)
	ListLineages(ctx context.Context, familyID int64) ([]Lineage, error)
	GetLineage(ctx context.Context, id int64) (Lineage, error)
	ListOpenDues(ctx context.Context, lineageID int64) ([]settlement.Due, error)
	DuesTotals(ctx context.Context, lineageID int64) (totalDue, totalPaid float64, err error)
	InsertPayment(ctx context.Context, line settlement.LineSubmission) (settlement.PaymentRecord, error)
}

// Provider is the lineage-settlement owner capability: the same wizard flow
// as members, settling against family trees instead of categories.
type Provider struct {
	repo      RepositoryPort
	snapshots *cache.Snapshots
	logger    *slog.Logger
}

// NewProvider builds a lineage Provider. The snapshot cache may be nil.
func NewProvider(repo RepositoryPort, snapshots *cache.Snapshots, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{repo: repo, snapshots: snapshots, logger: logger}
}

// Kind identifies the wizard variant.
func (p *Provider) Kind() wizard.OwnerKind {
	return wizard.KindLineage
}

// ListGroups returns families, served from the snapshot cache when warm.
func (p *Provider) ListGroups(ctx context.Context) ([]wizard.Group, error) {
	const key = "lineages:families"
	var groups []wizard.Group
	if hit, err := p.snapshots.Get(ctx, key, &groups); err != nil {
		p.logger.Warn("family snapshot read", slog.Any("error", err))
	} else if hit {
		return groups, nil
	}

	families, err := p.repo.ListFamilies(ctx)
	if err != nil {
		return nil, err
	}
	groups = make([]wizard.Group, 0, len(families))
	for _, f := range families {
		groups = append(groups, wizard.Group{ID: f.ID, Name: f.Name, ParentID: f.ParentID})
	}
	if err := p.snapshots.Set(ctx, key, groups); err != nil {
		p.logger.Warn("family snapshot write", slog.Any("error", err))
	}
	return groups, nil
}

// ListOwners returns the lineages of one family.
func (p *Provider) ListOwners(ctx context.Context, groupID int64) ([]wizard.OwnerRef, error) {
	key := fmt.Sprintf("lineages:family:%d", groupID)
	var owners []wizard.OwnerRef
	if hit, err := p.snapshots.Get(ctx, key, &owners); err != nil {
		p.logger.Warn("lineage snapshot read", slog.Any("error", err))
	} else if hit {
		return owners, nil
	}

	lineages, err := p.repo.ListLineages(ctx, groupID)
	if err != nil {
		return nil, err
	}
	owners = make([]wizard.OwnerRef, 0, len(lineages))
	for _, l := range lineages {
		owners = append(owners, wizard.OwnerRef{ID: l.ID, Label: l.Name, GroupID: l.FamilyID})
	}
	if err := p.snapshots.Set(ctx, key, owners); err != nil {
		p.logger.Warn("lineage snapshot write", slog.Any("error", err))
	}
	return owners, nil
}

// GetOwner resolves one lineage.
func (p *Provider) GetOwner(ctx context.Context, ownerID int64) (wizard.OwnerRef, error) {
	l, err := p.repo.GetLineage(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return wizard.OwnerRef{}, fmt.Errorf("%w: lineage %d", wizard.ErrOwnerNotFound, ownerID)
		}
		return wizard.OwnerRef{}, err
	}
	return wizard.OwnerRef{ID: l.ID, Label: l.Name, GroupID: l.FamilyID}, nil
}

// FetchBalance assembles a fresh balance snapshot. Balances are never cached.
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
