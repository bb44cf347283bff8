package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_executions (
				id UUID PRIMARY KEY,
				playbook_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				customer_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_step_index INT NOT NULL DEFAULT 0,
				total_steps INT NOT NULL DEFAULT 0,
				completed_steps_count INT NOT NULL DEFAULT 0,
				skipped_steps_count INT NOT NULL DEFAULT 0,
				completion_percentage INT NOT NULL DEFAULT 0,
				snooze_reason TEXT,
				snooze_state JSONB NOT NULL DEFAULT '{}',
				review_state_triggers JSONB NOT NULL DEFAULT '{}',
				escalate_state JSONB NOT NULL DEFAULT '{}',
				review_state JSONB,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_status ON workflow_executions(status);
			CREATE INDEX idx_executions_customer ON workflow_executions(customer_id);
			CREATE INDEX idx_executions_user ON workflow_executions(user_id);

			CREATE TABLE step_executions (
				execution_id UUID NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				id UUID NOT NULL,
				step_index INT NOT NULL DEFAULT 0,
				title VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				branch_path JSONB NOT NULL DEFAULT '[]',
				metadata JSONB NOT NULL DEFAULT '{}',
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (execution_id, step_id)
			);

			CREATE TABLE tasks (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
				title VARCHAR(255) NOT NULL,
				description TEXT,
				assignee_name VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				due_date TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_execution ON tasks(execution_id);
			CREATE INDEX idx_tasks_status ON tasks(status);

			CREATE TABLE customer_profiles (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255),
				last_login_at TIMESTAMP WITH TIME ZONE,
				usage_metrics JSONB NOT NULL DEFAULT '{}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE action_log (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL,
				action VARCHAR(100) NOT NULL,
				action_id VARCHAR(255),
				actor_id VARCHAR(255),
				details JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_log_execution ON action_log(execution_id);
			CREATE INDEX idx_action_log_action ON action_log(action);

			CREATE TABLE notifications (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				execution_id UUID,
				mode VARCHAR(50),
				title VARCHAR(255) NOT NULL,
				body TEXT,
				urgency VARCHAR(50),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				read_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_notifications_user ON notifications(user_id);

			CREATE TABLE batch_schedules (
				id UUID PRIMARY KEY,
				mode VARCHAR(50) NOT NULL UNIQUE,
				cron_expression VARCHAR(100) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
		2: `
			-- One evaluation log table per evaluator variant, identical shape.
			CREATE TABLE snooze_trigger_evaluations (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				trigger_id VARCHAR(255) NOT NULL,
				trigger_key VARCHAR(255) NOT NULL,
				trigger_kind VARCHAR(50) NOT NULL,
				fired BOOLEAN NOT NULL DEFAULT false,
				count INT NOT NULL DEFAULT 0,
				last_reason TEXT,
				last_error TEXT,
				first_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, trigger_key)
			);

			CREATE TABLE review_trigger_evaluations (
				LIKE snooze_trigger_evaluations INCLUDING ALL
			);

			CREATE TABLE escalate_trigger_evaluations (
				LIKE snooze_trigger_evaluations INCLUDING ALL
			);

			CREATE TABLE manual_event_flags (
				log_table VARCHAR(100) NOT NULL,
				workflow_id UUID NOT NULL,
				event_key VARCHAR(255) NOT NULL,
				set_flag BOOLEAN NOT NULL DEFAULT false,
				set_by VARCHAR(255),
				set_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (log_table, workflow_id, event_key)
			);
		`,
	}
}
