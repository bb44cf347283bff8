package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/strackan/playbook-engine/pkg/events"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

const minRejectionComments = 10

// Review runs the review sub-state-machine on top of an execution. Only the
// assigned reviewer may act on a pending review, and only the execution
// owner may resubmit after a rejection.
type Review struct {
	persistence persistence.Persistence
	notifier    *notifier.Notifier
	logger      *slog.Logger
}

// NewReview creates a new review service.
func NewReview(p persistence.Persistence, n *notifier.Notifier, logger *slog.Logger) *Review {
	return &Review{
		persistence: p,
		notifier:    n,
		logger:      logger.With("module", "services.review"),
	}
}

// SubmitForReview puts the execution in front of a reviewer. Iteration
// starts at 1 and only resubmission advances it.
func (r *Review) SubmitForReview(ctx context.Context, executionID, reviewerID, actorID string) (*models.WorkflowExecution, error) {
	if reviewerID == "" {
		return nil, &ServiceError{Op: "SubmitForReview", Err: ErrReviewerRequired}
	}

	execution, err := r.getActive(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.ReviewState != nil && execution.ReviewState.Status == models.ReviewStatusPending {
		return nil, &ServiceError{Op: "SubmitForReview", Message: "review already pending", Err: ErrInvalidRequest}
	}

	now := time.Now().UTC()
	execution.ReviewState = &models.ReviewState{
		Status:      models.ReviewStatusPending,
		ReviewerID:  reviewerID,
		Iteration:   1,
		SubmittedAt: now,
	}
	execution.UpdatedAt = now

	if err := r.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	r.notifier.LogAction(ctx, executionID, models.ActionSubmit, "", actorID, map[string]any{
		"reviewer_id": reviewerID,
		"iteration":   1,
	})
	r.notifier.Publish(ctx, executionID, events.ReviewSubmitted{
		BaseEvent:  events.NewBaseEvent(events.ReviewSubmittedEvent, executionID),
		ReviewerID: reviewerID,
		Iteration:  1,
	})

	return execution, nil
}

// Approve closes a pending review. Only the assigned reviewer may approve.
func (r *Review) Approve(ctx context.Context, executionID, reviewerID, comments string) (*models.WorkflowExecution, error) {
	execution, state, err := r.getPending(ctx, executionID, reviewerID, "Approve")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.Status = models.ReviewStatusApproved
	state.ReviewedAt = &now
	state.Comments = comments
	execution.UpdatedAt = now

	if err := r.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	r.notifier.LogAction(ctx, executionID, models.ActionApprove, "", reviewerID, map[string]any{
		"iteration": state.Iteration,
	})
	r.notifier.Publish(ctx, executionID, events.ReviewApproved{
		BaseEvent:  events.NewBaseEvent(events.ReviewApprovedEvent, executionID),
		ReviewerID: reviewerID,
		Iteration:  state.Iteration,
	})

	return execution, nil
}

// RequestChanges sends a pending review back to the owner without recording
// a rejection. The iteration does not advance.
func (r *Review) RequestChanges(ctx context.Context, executionID, reviewerID, comments string) (*models.WorkflowExecution, error) {
	execution, state, err := r.getPending(ctx, executionID, reviewerID, "RequestChanges")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.Status = models.ReviewStatusChangesRequested
	state.ReviewedAt = &now
	state.Comments = comments
	execution.UpdatedAt = now

	if err := r.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	r.notifier.LogAction(ctx, executionID, models.ActionRequest, "", reviewerID, map[string]any{
		"iteration": state.Iteration,
	})

	return execution, nil
}

// RejectRequest carries a rejection's reason and comments.
type RejectRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
	Reason     string `json:"reason,omitempty"`
	Comments   string `json:"comments" validate:"required,min=10"`
}

// Reject records a rejection on a pending review. Comments must carry at
// least ten characters of substance, and the rejection is appended to the
// execution's permanent history.
func (r *Review) Reject(ctx context.Context, executionID string, req RejectRequest) (*models.WorkflowExecution, error) {
	if len(strings.TrimSpace(req.Comments)) < minRejectionComments {
		return nil, &ServiceError{Op: "Reject", Err: ErrRejectionCommentsShort}
	}

	execution, state, err := r.getPending(ctx, executionID, req.ReviewerID, "Reject")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.Status = models.ReviewStatusRejected
	state.ReviewedAt = &now
	state.Comments = req.Comments
	state.RejectionHistory = append(state.RejectionHistory, models.Rejection{
		Iteration:  state.Iteration,
		RejectedAt: now,
		RejectedBy: req.ReviewerID,
		Reason:     req.Reason,
		Comments:   req.Comments,
	})
	execution.UpdatedAt = now

	if err := r.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	r.notifier.LogAction(ctx, executionID, models.ActionReject, "", req.ReviewerID, map[string]any{
		"iteration": state.Iteration,
		"reason":    req.Reason,
	})
	r.notifier.Publish(ctx, executionID, events.ReviewRejected{
		BaseEvent:  events.NewBaseEvent(events.ReviewRejectedEvent, executionID),
		ReviewerID: req.ReviewerID,
		Iteration:  state.Iteration,
		Comments:   req.Comments,
	})

	return execution, nil
}

// Resubmit sends a rejected execution back into review. Only the execution
// owner may resubmit; the iteration advances and the rejection history
// stays intact.
func (r *Review) Resubmit(ctx context.Context, executionID, actorID string) (*models.WorkflowExecution, error) {
	execution, err := r.getActive(ctx, executionID)
	if err != nil {
		return nil, err
	}

	state := execution.ReviewState
	if state == nil {
		return nil, &ServiceError{Op: "Resubmit", Err: ErrNoReviewInProgress}
	}

	if state.Status != models.ReviewStatusRejected && state.Status != models.ReviewStatusChangesRequested {
		return nil, &ServiceError{Op: "Resubmit", Err: ErrReviewNotRejected}
	}

	if actorID != execution.UserID {
		return nil, &ServiceError{Op: "Resubmit", Err: ErrNotExecutionOwner}
	}

	now := time.Now().UTC()
	state.Status = models.ReviewStatusPending
	state.Iteration++
	state.SubmittedAt = now
	state.ReviewedAt = nil
	state.Comments = ""
	execution.UpdatedAt = now

	if err := r.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	r.notifier.LogAction(ctx, executionID, models.ActionResubmit, "", actorID, map[string]any{
		"iteration": state.Iteration,
	})
	r.notifier.Publish(ctx, executionID, events.ReviewResubmitted{
		BaseEvent: events.NewBaseEvent(events.ReviewResubmittedEvent, executionID),
		Iteration: state.Iteration,
	})

	return execution, nil
}

func (r *Review) getActive(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	execution, err := r.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.Terminal() {
		return nil, &ServiceError{Op: "review", Err: ErrExecutionTerminal}
	}

	return execution, nil
}

func (r *Review) getPending(ctx context.Context, executionID, reviewerID, op string) (*models.WorkflowExecution, *models.ReviewState, error) {
	execution, err := r.getActive(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	state := execution.ReviewState
	if state == nil {
		return nil, nil, &ServiceError{Op: op, Err: ErrNoReviewInProgress}
	}

	if state.Status != models.ReviewStatusPending {
		return nil, nil, &ServiceError{Op: op, Err: ErrReviewNotPending}
	}

	if reviewerID == "" || reviewerID != state.ReviewerID {
		return nil, nil, &ServiceError{Op: op, Err: ErrNotAssignedReviewer}
	}

	return execution, state, nil
}
