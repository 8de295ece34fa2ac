package lineages

// Family groups lineages for the wizard's first step. Families can nest, so
// a family may carry a parent.
type Family struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// Lineage is a household branch whose collective dues can be settled.
type Lineage struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FamilyID int64  `json:"family_id"`
}
