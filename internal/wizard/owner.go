package wizard

import (
	"context"

	"github.com/sankofa-mutual/sankofa/internal/settlement"
)

// OwnerKind discriminates the two settlement wizard variants.
type OwnerKind string

const (
	KindMember  OwnerKind = "member"
	KindLineage OwnerKind = "lineage"
)

// Valid reports whether the kind names a known wizard variant.
func (k OwnerKind) Valid() bool {
	return k == KindMember || k == KindLineage
}

// Group is a category (for members) or a family (for lineages), consumed
// read-only to populate the wizard's first step.
type Group struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_group_id,omitempty"`
}

// OwnerRef identifies the entity whose dues are being settled.
type OwnerRef struct {
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	GroupID int64  `json:"group_id"`
}

// Provider is the owner capability the generic wizard engine is parameterized
// over. The member and lineage variants implement it against their own tables;
// the engine never knows which one it drives.
type Provider interface {
	Kind() OwnerKind
	ListGroups(ctx context.Context) ([]Group, error)
	ListOwners(ctx context.Context, groupID int64) ([]OwnerRef, error)
	GetOwner(ctx context.Context, ownerID int64) (OwnerRef, error)
	FetchBalance(ctx context.Context, ownerID int64) (settlement.BalanceSummary, error)
	SubmitPayment(ctx context.Context, line settlement.LineSubmission) (settlement.PaymentRecord, error)
}
