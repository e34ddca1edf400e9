package store

// schemaStatements creates the durable tables named in SPEC_FULL.md §6. They
// are applied with CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS so
// that boot is idempotent across restarts, mirroring the teacher's
// InitSchema approach in internal/storage/sqlite.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress_current INTEGER NOT NULL DEFAULT 0,
		progress_total INTEGER NOT NULL DEFAULT 0,
		progress_message TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		error_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER,
		resume_started_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(type)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS queue_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		action TEXT NOT NULL,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL DEFAULT 0,
		host TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		queue_size INTEGER NOT NULL DEFAULT 0,
		role TEXT NOT NULL DEFAULT '',
		depth_bucket TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_events_task_id ON queue_events(task_id)`,

	`CREATE TABLE IF NOT EXISTS task_problems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_problems_task_id ON task_problems(task_id)`,

	`CREATE TABLE IF NOT EXISTS task_milestones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_milestones_task_id ON task_milestones(task_id)`,

	`CREATE TABLE IF NOT EXISTS planner_stage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		stage TEXT NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		estimated_cost_ms INTEGER NOT NULL DEFAULT 0,
		decision TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_planner_stage_events_task_id ON planner_stage_events(task_id)`,
}
