package feedback

import "time"

// NewProductAnnotation is a proposal that the catalog is missing an item,
// raised via Example.FeedbackKind == KindNewItem and refined by an admin.
type NewProductAnnotation struct {
	ID              uint64
	CreatedAt       time.Time
	Name            string
	Category        string
	Description     string
	ApprovedByAdmin bool
	ApprovedBy      string
	ApprovedAt      *time.Time
}

// Approve marks the annotation approved by the given admin principal.
func (a NewProductAnnotation) Approve(adminID string, at time.Time) NewProductAnnotation {
	a.ApprovedByAdmin = true
	a.ApprovedBy = adminID
	a.ApprovedAt = &at
	return a
}
