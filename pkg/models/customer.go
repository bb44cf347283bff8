package models

import "time"

// CustomerProfile is the slice of customer data trigger evaluation reads:
// the last-login timestamp for login triggers and usage counters for
// threshold triggers. The engine never writes customer rows.
type CustomerProfile struct {
	ID           string             `json:"id"   validate:"required"`
	Name         string             `json:"name"`
	LastLoginAt  *time.Time         `json:"last_login_at,omitempty"`
	UsageMetrics map[string]float64 `json:"usage_metrics,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
