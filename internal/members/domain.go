package members

// Category groups members for the wizard's first step.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Member is an individual association member whose dues can be settled.
type Member struct {
	ID         int64  `json:"id"`
	FullName   string `json:"full_name"`
	CategoryID int64  `json:"category_id"`
}
