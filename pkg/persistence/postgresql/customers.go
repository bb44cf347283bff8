package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// CustomerRepository reads customer profiles. Profiles are owned by the
// account-management side; SaveProfile exists for seeding and tests.
type CustomerRepository struct {
	db *sql.DB
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.CustomerProfile, error) {
	query := `
		SELECT
			id
		  , name
		  , last_login_at
		  , usage_metrics
		  , updated_at
		FROM customer_profiles
		WHERE id = $1
	`

	var (
		profile models.CustomerProfile
		name    sql.NullString
		metrics []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&name,
		&profile.LastLoginAt,
		&metrics,
		&profile.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrCustomerNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}

	profile.Name = name.String

	if err := json.Unmarshal(metrics, &profile.UsageMetrics); err != nil {
		return nil, fmt.Errorf("failed to decode usage metrics: %w", err)
	}

	return &profile, nil
}

func (r *CustomerRepository) SaveProfile(ctx context.Context, profile *models.CustomerProfile) error {
	metrics, err := json.Marshal(profile.UsageMetrics)
	if err != nil {
		return fmt.Errorf("failed to encode usage metrics: %w", err)
	}

	query := `
		INSERT INTO customer_profiles (id, name, last_login_at, usage_metrics, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , last_login_at = EXCLUDED.last_login_at
		  , usage_metrics = EXCLUDED.usage_metrics
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		profile.ID,
		nullString(profile.Name),
		profile.LastLoginAt,
		metrics,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer %s: %w", profile.ID, err)
	}

	return nil
}
