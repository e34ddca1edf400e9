package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateTask inserts a new task row in the pending status and returns its id.
// id must already be unique (the orchestrator mints a UUID before calling
// this); a collision surfaces ErrDuplicateRegistration.
func (s *Store) CreateTask(ctx context.Context, id, taskType string, config json.RawMessage) error {
	if config == nil {
		config = json.RawMessage(`{}`)
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (id, type, status, config, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, '{}', ?, ?)
		`, id, taskType, string(StatusPending), string(config), now.Unix(), now.Unix())
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return ErrDuplicateRegistration
			}
			return err
		}
		return nil
	})
}

// GetTask loads a single task row. Returns ErrNotFound if absent.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = ?`, id)
		return scanTask(row, &t)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTaskStatus performs an atomic status transition. Rejects with
// ErrInvalidTransition if the current status is terminal. Sets started_at on
// first entry into running; sets/clears resume_started_at exactly while
// status is resuming.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status Status, opts StatusUpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry(ctx, func() error {
		return s.transitionStatus(ctx, id, status, opts)
	})
}

func (s *Store) transitionStatus(ctx context.Context, id string, status Status, opts StatusUpdateOptions) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current Status
	var startedAt sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT status, started_at FROM tasks WHERE id = ?`, id).Scan(&current, &startedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if current.IsTerminal() {
		return ErrInvalidTransition
	}

	now := time.Now()
	setClauses := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(status), now.Unix()}

	if status == StatusRunning && !startedAt.Valid {
		setClauses = append(setClauses, "started_at = ?")
		args = append(args, now.Unix())
	}

	if status == StatusResuming {
		setClauses = append(setClauses, "resume_started_at = ?")
		args = append(args, now.Unix())
	} else {
		setClauses = append(setClauses, "resume_started_at = NULL")
	}

	if opts.ErrorMessage != nil {
		setClauses = append(setClauses, "error_message = ?")
		args = append(args, *opts.ErrorMessage)
	}

	if status.IsTerminal() {
		completedAt := now
		if opts.CompletedAt != nil {
			completedAt = *opts.CompletedAt
		}
		setClauses = append(setClauses, "completed_at = ?")
		args = append(args, completedAt.Unix())
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ?`, strings.Join(setClauses, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateProgress applies a partial progress update. Each field is optional;
// callers are responsible for rate-limiting writes (the orchestrator
// coalesces at most one per 100ms per task).
func (s *Store) UpdateProgress(ctx context.Context, id string, update ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry(ctx, func() error {
		setClauses := []string{"updated_at = ?"}
		args := []interface{}{time.Now().Unix()}

		if update.Current != nil {
			setClauses = append(setClauses, "progress_current = ?")
			args = append(args, *update.Current)
		}
		if update.Total != nil {
			setClauses = append(setClauses, "progress_total = ?")
			args = append(args, *update.Total)
		}
		if update.Message != nil {
			setClauses = append(setClauses, "progress_message = ?")
			args = append(args, *update.Message)
		}
		if update.Metadata != nil {
			setClauses = append(setClauses, "metadata = ?")
			args = append(args, string(update.Metadata))
		}

		args = append(args, id)
		query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ?`, strings.Join(setClauses, ", "))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListTasks returns an ordered snapshot of tasks matching filter.
func (s *Store) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	query := taskSelectColumns + ` FROM tasks WHERE 1=1`
	var args []interface{}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		query += ` AND type = ?`
		args = append(args, *filter.Type)
	}

	order := "DESC"
	if filter.Order == "created_asc" {
		order = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY created_at %s`, order)

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var tasks []*Task
	err := s.withRetry(ctx, func() error {
		tasks = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t Task
			if err := scanTask(rows, &t); err != nil {
				return err
			}
			tasks = append(tasks, &t)
		}
		return rows.Err()
	})
	return tasks, err
}

// FindInterruptedTasks returns all tasks whose status is running or
// resuming — the recovery set consulted at boot (spec IP6).
func (s *Store) FindInterruptedTasks(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	err := s.withRetry(ctx, func() error {
		tasks = nil
		rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks WHERE status IN (?, ?)`,
			string(StatusRunning), string(StatusResuming))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t Task
			if err := scanTask(rows, &t); err != nil {
				return err
			}
			tasks = append(tasks, &t)
		}
		return rows.Err()
	})
	return tasks, err
}

// DeleteTask is the sole operation permitted to mutate a terminal task row
// (spec IP2): it removes the row and its telemetry entirely.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, table := range []string{"queue_events", "task_problems", "task_milestones", "planner_stage_events"} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id = ?`, table), id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return tx.Commit()
	})
}

const taskSelectColumns = `SELECT id, type, status, progress_current, progress_total, progress_message,
	config, metadata, error_message, created_at, started_at, updated_at, completed_at, resume_started_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner, t *Task) error {
	var (
		configStr, metadataStr string
		createdAt              int64
		startedAt              sql.NullInt64
		updatedAt              int64
		completedAt            sql.NullInt64
		resumeStartedAt        sql.NullInt64
	)

	if err := row.Scan(
		&t.ID, &t.Type, &t.Status,
		&t.ProgressCurrent, &t.ProgressTotal, &t.ProgressMessage,
		&configStr, &metadataStr, &t.ErrorMessage,
		&createdAt, &startedAt, &updatedAt, &completedAt, &resumeStartedAt,
	); err != nil {
		return err
	}

	t.Config = json.RawMessage(configStr)
	t.Metadata = json.RawMessage(metadataStr)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	if startedAt.Valid {
		v := time.Unix(startedAt.Int64, 0)
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := time.Unix(completedAt.Int64, 0)
		t.CompletedAt = &v
	}
	if resumeStartedAt.Valid {
		v := time.Unix(resumeStartedAt.Int64, 0)
		t.ResumeStartedAt = &v
	}
	return nil
}
