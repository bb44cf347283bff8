package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strackan/playbook-engine/pkg/models"
)

func TestReview_SubmitForReview(t *testing.T) {
	execService, reviewService, _, _ := newTestServices(t)

	execution := createTestExecution(t, execService, 2)

	submitted, err := reviewService.SubmitForReview(t.Context(), execution.ID, "reviewer-1", "user-1")
	require.NoError(t, err)

	state := submitted.ReviewState
	require.NotNil(t, state)
	assert.Equal(t, models.ReviewStatusPending, state.Status)
	assert.Equal(t, "reviewer-1", state.ReviewerID)
	assert.Equal(t, 1, state.Iteration)
	assert.False(t, state.SubmittedAt.IsZero())

	// A second submit while pending is rejected.
	_, err = reviewService.SubmitForReview(t.Context(), execution.ID, "reviewer-2", "user-1")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// Reviewer is mandatory.
	other := createTestExecution(t, execService, 1)
	_, err = reviewService.SubmitForReview(t.Context(), other.ID, "", "user-1")
	assert.ErrorIs(t, err, ErrReviewerRequired)
}

func TestReview_Approve(t *testing.T) {
	execService, reviewService, _, _ := newTestServices(t)

	execution := createTestExecution(t, execService, 2)
	_, err := reviewService.SubmitForReview(t.Context(), execution.ID, "reviewer-1", "user-1")
	require.NoError(t, err)

	// Only the assigned reviewer may act.
	_, err = reviewService.Approve(t.Context(), execution.ID, "someone-else", "lgtm")
	assert.ErrorIs(t, err, ErrNotAssignedReviewer)

	approved, err := reviewService.Approve(t.Context(), execution.ID, "reviewer-1", "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, approved.ReviewState.Status)
	assert.NotNil(t, approved.ReviewState.ReviewedAt)
	assert.Equal(t, "looks good", approved.ReviewState.Comments)

	// The review is no longer pending.
	_, err = reviewService.Approve(t.Context(), execution.ID, "reviewer-1", "again")
	assert.ErrorIs(t, err, ErrReviewNotPending)
}

func TestReview_Reject(t *testing.T) {
	execService, reviewService, _, _ := newTestServices(t)

	execution := createTestExecution(t, execService, 2)
	_, err := reviewService.SubmitForReview(t.Context(), execution.ID, "reviewer-1", "user-1")
	require.NoError(t, err)

	// Comments must carry substance.
	_, err = reviewService.Reject(t.Context(), execution.ID, RejectRequest{
		ReviewerID: "reviewer-1",
		Comments:   "no",
	})
	assert.ErrorIs(t, err, ErrRejectionCommentsShort)

	// Whitespace does not count as substance.
	_, err = reviewService.Reject(t.Context(), execution.ID, RejectRequest{
		ReviewerID: "reviewer-1",
		Comments:   "bad        ",
	})
	assert.ErrorIs(t, err, ErrRejectionCommentsShort)

	rejected, err := reviewService.Reject(t.Context(), execution.ID, RejectRequest{
		ReviewerID: "reviewer-1",
		Reason:     "incomplete",
		Comments:   "the usage data section is missing entirely",
	})
	require.NoError(t, err)

	state := rejected.ReviewState
	assert.Equal(t, models.ReviewStatusRejected, state.Status)
	require.Len(t, state.RejectionHistory, 1)
	assert.Equal(t, 1, state.RejectionHistory[0].Iteration)
	assert.Equal(t, "reviewer-1", state.RejectionHistory[0].RejectedBy)
	assert.Equal(t, "incomplete", state.RejectionHistory[0].Reason)
}

func TestReview_Resubmit(t *testing.T) {
	execService, reviewService, _, _ := newTestServices(t)

	execution := createTestExecution(t, execService, 2)
	_, err := reviewService.SubmitForReview(t.Context(), execution.ID, "reviewer-1", "user-1")
	require.NoError(t, err)

	// Resubmit requires a rejected review.
	_, err = reviewService.Resubmit(t.Context(), execution.ID, "user-1")
	assert.ErrorIs(t, err, ErrReviewNotRejected)

	_, err = reviewService.Reject(t.Context(), execution.ID, RejectRequest{
		ReviewerID: "reviewer-1",
		Comments:   "needs the adoption metrics filled in",
	})
	require.NoError(t, err)

	// Only the execution owner may resubmit.
	_, err = reviewService.Resubmit(t.Context(), execution.ID, "reviewer-1")
	assert.ErrorIs(t, err, ErrNotExecutionOwner)

	resubmitted, err := reviewService.Resubmit(t.Context(), execution.ID, "user-1")
	require.NoError(t, err)

	state := resubmitted.ReviewState
	assert.Equal(t, models.ReviewStatusPending, state.Status)
	assert.Equal(t, 2, state.Iteration)
	assert.Nil(t, state.ReviewedAt)
	assert.Empty(t, state.Comments)

	// The rejection history survives resubmission.
	require.Len(t, state.RejectionHistory, 1)

	// A second rejection appends, never replaces.
	_, err = reviewService.Reject(t.Context(), execution.ID, RejectRequest{
		ReviewerID: "reviewer-1",
		Comments:   "still missing the adoption metrics",
	})
	require.NoError(t, err)

	stored, err := execService.GetExecution(t.Context(), execution.ID)
	require.NoError(t, err)
	require.Len(t, stored.ReviewState.RejectionHistory, 2)
	assert.Equal(t, 2, stored.ReviewState.RejectionHistory[1].Iteration)
}

func TestReview_RequestChanges(t *testing.T) {
	execService, reviewService, _, _ := newTestServices(t)

	execution := createTestExecution(t, execService, 2)
	_, err := reviewService.SubmitForReview(t.Context(), execution.ID, "reviewer-1", "user-1")
	require.NoError(t, err)

	changed, err := reviewService.RequestChanges(t.Context(), execution.ID, "reviewer-1", "tighten the summary")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusChangesRequested, changed.ReviewState.Status)

	// Changes-requested does not touch the rejection history.
	assert.Empty(t, changed.ReviewState.RejectionHistory)

	// The owner can resubmit from changes-requested too.
	resubmitted, err := reviewService.Resubmit(t.Context(), execution.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, resubmitted.ReviewState.Iteration)
}

func TestReview_NoReviewInProgress(t *testing.T) {
	execService, reviewService, _, _ := newTestServices(t)

	execution := createTestExecution(t, execService, 1)

	_, err := reviewService.Approve(t.Context(), execution.ID, "reviewer-1", "")
	assert.ErrorIs(t, err, ErrNoReviewInProgress)

	_, err = reviewService.Resubmit(t.Context(), execution.ID, "user-1")
	assert.ErrorIs(t, err, ErrNoReviewInProgress)
}
