package evaluator

import "github.com/strackan/playbook-engine/pkg/models"

// ResultLabel names the semantic meaning of a fired trigger set for one
// variant: the snooze variant asks "should this workflow reactivate", the
// review and escalate variants ask "should someone be notified".
type ResultLabel string

const (
	ResultShouldReactivate ResultLabel = "should_reactivate"
	ResultShouldNotify     ResultLabel = "should_notify"
)

// VariantConfig parameterizes the shared evaluation core for one behavior.
// All three variants run identical logic; only this data differs.
type VariantConfig struct {
	// Mode selects which of the execution's trigger states to evaluate.
	Mode models.TriggerMode

	// LogTable is the variant's backing evaluation log table. Manual event
	// flags are read from the same table's flag store.
	LogTable string

	// FieldPrefix labels log and notification output for this variant.
	FieldPrefix string

	// ResultLabel is the semantic name of a fired result.
	ResultLabel ResultLabel

	// ChangesStatus marks the one variant whose fired triggers move the
	// execution status back to in-progress.
	ChangesStatus bool
}

// SnoozeVariant configures automatic pause/resume: a fired trigger wakes the
// workflow up.
func SnoozeVariant() VariantConfig {
	return VariantConfig{
		Mode:          models.TriggerModeSnooze,
		LogTable:      "snooze_trigger_evaluations",
		FieldPrefix:   "snooze",
		ResultLabel:   ResultShouldReactivate,
		ChangesStatus: true,
	}
}

// ReviewVariant configures review-gating: a fired trigger notifies the
// reviewer but does not change execution status. Review evaluations log
// into their own table, never the escalation one, so audit rows stay
// attributable to the behavior that produced them.
func ReviewVariant() VariantConfig {
	return VariantConfig{
		Mode:          models.TriggerModeReview,
		LogTable:      "review_trigger_evaluations",
		FieldPrefix:   "review",
		ResultLabel:   ResultShouldNotify,
		ChangesStatus: false,
	}
}

// EscalateVariant configures escalation: a fired trigger alerts the owning
// user without touching status.
func EscalateVariant() VariantConfig {
	return VariantConfig{
		Mode:          models.TriggerModeEscalate,
		LogTable:      "escalate_trigger_evaluations",
		FieldPrefix:   "escalate",
		ResultLabel:   ResultShouldNotify,
		ChangesStatus: false,
	}
}

// VariantFor returns the variant configuration for a mode.
func VariantFor(mode models.TriggerMode) (VariantConfig, error) {
	switch mode {
	case models.TriggerModeSnooze:
		return SnoozeVariant(), nil
	case models.TriggerModeReview:
		return ReviewVariant(), nil
	case models.TriggerModeEscalate:
		return EscalateVariant(), nil
	default:
		return VariantConfig{}, models.ErrUnknownTriggerMode
	}
}
