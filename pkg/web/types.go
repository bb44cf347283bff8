// Package web provides HTTP request and response types for the execution API.
package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SnoozeWorkflowRequest represents the request body for snoozing an execution.
type SnoozeWorkflowRequest struct {
	Reason   string            `json:"reason,omitempty"`
	Triggers []*models.Trigger `json:"triggers" validate:"required,min=1,dive"`
	ActorID  string            `json:"actor_id,omitempty"`
}

// SubmitReviewRequest represents the request body for submitting an execution for review.
type SubmitReviewRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
	ActorID    string `json:"actor_id,omitempty"`
}

// ReviewDecisionRequest represents the request body for approve and request-changes.
type ReviewDecisionRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
	Comments   string `json:"comments,omitempty"`
}

// RejectReviewRequest represents the request body for rejecting a review.
type RejectReviewRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
	Reason     string `json:"reason,omitempty"`
	Comments   string `json:"comments"    validate:"required,min=10"`
}

// ResubmitReviewRequest represents the request body for resubmitting after rejection.
type ResubmitReviewRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

// CompleteWorkflowRequest represents the request body for closing an execution.
type CompleteWorkflowRequest struct {
	ActorID string `json:"actor_id,omitempty"`
}

// SetManualFlagRequest represents the request body for setting a manual event flag.
type SetManualFlagRequest struct {
	EventKey string `json:"event_key" validate:"required"`
	SetBy    string `json:"set_by,omitempty"`
}

// triggerSchema is the JSON schema every trigger payload must satisfy before
// the typed model sees it. Struct tags catch missing fields; the schema also
// rejects unknown keys and malformed config shapes.
var triggerSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "kind"},
	"properties": map[string]any{
		"id":         map[string]any{"type": "string", "minLength": 1},
		"kind":       map[string]any{"type": "string", "enum": []any{"date", "event"}},
		"created_at": map[string]any{"type": "string"},
		"date": map[string]any{
			"type":     "object",
			"required": []any{"instant"},
			"properties": map[string]any{
				"instant":  map[string]any{"type": "string", "format": "date-time"},
				"timezone": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		"event": map[string]any{
			"type":     "object",
			"required": []any{"kind"},
			"properties": map[string]any{
				"kind": map[string]any{
					"type": "string",
					"enum": []any{
						"workflow_action_completed",
						"customer_login",
						"usage_threshold_crossed",
						"manual_event",
					},
				},
				"action_complete": map[string]any{
					"type":     "object",
					"required": []any{"execution_id"},
					"properties": map[string]any{
						"execution_id": map[string]any{"type": "string", "minLength": 1},
						"action_id":    map[string]any{"type": "string"},
					},
					"additionalProperties": false,
				},
				"usage_threshold": map[string]any{
					"type":     "object",
					"required": []any{"metric", "threshold", "operator"},
					"properties": map[string]any{
						"metric":    map[string]any{"type": "string", "minLength": 1},
						"threshold": map[string]any{"type": "number"},
						"operator":  map[string]any{"type": "string", "enum": []any{">", ">=", "<", "<="}},
					},
					"additionalProperties": false,
				},
				"manual": map[string]any{
					"type":     "object",
					"required": []any{"event_key"},
					"properties": map[string]any{
						"event_key": map[string]any{"type": "string", "minLength": 1},
					},
					"additionalProperties": false,
				},
			},
			"additionalProperties": false,
		},
	},
	"additionalProperties": false,
}

// ValidateTriggerPayloads validates raw trigger objects against the trigger
// JSON schema, returning one error naming every violation.
func ValidateTriggerPayloads(triggers []*models.Trigger) error {
	schemaLoader := gojsonschema.NewGoLoader(triggerSchema)

	for i, trigger := range triggers {
		raw, err := json.Marshal(trigger)
		if err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}

		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}

		if !result.Valid() {
			var details []string
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}

			return fmt.Errorf("trigger %d: validation errors: %s", i, strings.Join(details, "; "))
		}
	}

	return nil
}
