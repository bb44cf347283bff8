// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver
	"github.com/strackan/playbook-engine/pkg/persistence"
	"github.com/strackan/playbook-engine/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	executions    *ExecutionRepository
	steps         *StepRepository
	tasks         *TaskRepository
	customers     *CustomerRepository
	actionLog     *ActionLogRepository
	evalLogs      *EvaluationLogRepository
	notifications *NotificationRepository
	schedules     *BatchScheduleRepository
}

// NewPersistence connects, runs migrations and builds the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		executions:    &ExecutionRepository{db: database, logger: logger},
		steps:         &StepRepository{db: database, logger: logger},
		tasks:         &TaskRepository{db: database, logger: logger},
		customers:     &CustomerRepository{db: database},
		actionLog:     &ActionLogRepository{db: database},
		evalLogs:      &EvaluationLogRepository{db: database},
		notifications: &NotificationRepository{db: database},
		schedules:     &BatchScheduleRepository{db: database},
	}, nil
}

func (p *Persistence) Executions() persistence.ExecutionRepository         { return p.executions }
func (p *Persistence) Steps() persistence.StepRepository                   { return p.steps }
func (p *Persistence) Tasks() persistence.TaskRepository                   { return p.tasks }
func (p *Persistence) Customers() persistence.CustomerRepository           { return p.customers }
func (p *Persistence) ActionLog() persistence.ActionLogRepository          { return p.actionLog }
func (p *Persistence) EvaluationLogs() persistence.EvaluationLogRepository { return p.evalLogs }
func (p *Persistence) Notifications() persistence.NotificationRepository   { return p.notifications }
func (p *Persistence) BatchSchedules() persistence.BatchScheduleRepository { return p.schedules }

// HealthCheck verifies database connectivity.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}

var _ persistence.Persistence = (*Persistence)(nil)
