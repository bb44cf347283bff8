package models

import "time"

// ReviewStatus represents the state of the review sub-state-machine.
type ReviewStatus string

const (
	ReviewStatusPending          ReviewStatus = "pending"
	ReviewStatusApproved         ReviewStatus = "approved"
	ReviewStatusChangesRequested ReviewStatus = "changes_requested"
	ReviewStatusRejected         ReviewStatus = "rejected"
)

// Rejection is one entry in an execution's rejection history.
type Rejection struct {
	Iteration  int       `json:"iteration"`
	RejectedAt time.Time `json:"rejected_at"`
	RejectedBy string    `json:"rejected_by"`
	Reason     string    `json:"reason,omitempty"`
	Comments   string    `json:"comments"`
}

// ReviewState tracks a review-gated execution. Iteration starts at 1 and
// increments on each resubmission. RejectionHistory is append-only.
type ReviewState struct {
	Status           ReviewStatus `json:"status"`
	ReviewerID       string       `json:"reviewer_id" validate:"required"`
	Iteration        int          `json:"iteration"   validate:"min=1"`
	SubmittedAt      time.Time    `json:"submitted_at"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`
	Comments         string       `json:"comments,omitempty"`
	RejectionHistory []Rejection  `json:"rejection_history,omitempty"`
}
