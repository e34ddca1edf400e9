package store

import (
	"context"
	"encoding/json"
	"time"
)

// AppendQueueEvent inserts a Frontier telemetry row. Telemetry appends are
// best-effort: failures are logged and swallowed so a storage hiccup never
// fails the task itself (spec §7, "Telemetry-append").
func (s *Store) AppendQueueEvent(ctx context.Context, taskID string, e QueueEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO queue_events (task_id, ts, action, url, depth, host, reason, queue_size, role, depth_bucket)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, taskID, time.Now().Unix(), e.Action, e.URL, e.Depth, e.Host, e.Reason, e.QueueSize, e.Role, e.DepthBucket)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to append queue event, dropping")
	}
}

// AppendProblem inserts a problem telemetry row. Best-effort (see AppendQueueEvent).
func (s *Store) AppendProblem(ctx context.Context, taskID string, p Problem) {
	s.appendDetailRow(ctx, "task_problems", taskID, p.Kind, p.Scope, p.Target, p.Message, p.Details)
}

// AppendMilestone inserts a milestone telemetry row. Best-effort.
func (s *Store) AppendMilestone(ctx context.Context, taskID string, m Milestone) {
	s.appendDetailRow(ctx, "task_milestones", taskID, m.Kind, m.Scope, m.Target, m.Message, m.Details)
}

func (s *Store) appendDetailRow(ctx context.Context, table, taskID, kind, scope, target, message string, details json.RawMessage) {
	if details == nil {
		details = json.RawMessage(`{}`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO `+table+` (task_id, ts, kind, scope, target, message, details) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			taskID, time.Now().Unix(), kind, scope, target, message, string(details))
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Str("table", table).Msg("failed to append telemetry row, dropping")
	}
}

// AppendPlannerStage inserts a planner-stage telemetry row. Best-effort.
func (s *Store) AppendPlannerStage(ctx context.Context, taskID string, e PlannerStageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO planner_stage_events (task_id, ts, stage, rationale, estimated_cost_ms, decision)
			VALUES (?, ?, ?, ?, ?, ?)
		`, taskID, time.Now().Unix(), e.Stage, e.Rationale, e.EstimatedCostMS, e.Decision)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to append planner stage event, dropping")
	}
}

// ListQueueEvents returns queue events for a task in insertion order, for
// telemetry inspection (e.g. CLI `task events`).
func (s *Store) ListQueueEvents(ctx context.Context, taskID string, limit int) ([]QueueEvent, error) {
	var events []QueueEvent
	err := s.withRetry(ctx, func() error {
		events = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, task_id, ts, action, url, depth, host, reason, queue_size, role, depth_bucket
			FROM queue_events WHERE task_id = ? ORDER BY id ASC LIMIT ?`, taskID, limitOrDefault(limit))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e QueueEvent
			var ts int64
			if err := rows.Scan(&e.ID, &e.TaskID, &ts, &e.Action, &e.URL, &e.Depth, &e.Host, &e.Reason, &e.QueueSize, &e.Role, &e.DepthBucket); err != nil {
				return err
			}
			e.Timestamp = time.Unix(ts, 0)
			events = append(events, e)
		}
		return rows.Err()
	})
	return events, err
}

// ListProblems returns problem telemetry rows for a task in insertion
// order, for telemetry inspection (e.g. analysis background tasks, CLI
// `task problems`).
func (s *Store) ListProblems(ctx context.Context, taskID string, limit int) ([]Problem, error) {
	var problems []Problem
	err := s.withRetry(ctx, func() error {
		problems = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, task_id, ts, kind, scope, target, message, details
			FROM task_problems WHERE task_id = ? ORDER BY id ASC LIMIT ?`, taskID, limitOrDefault(limit))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Problem
			var ts int64
			var details string
			if err := rows.Scan(&p.ID, &p.TaskID, &ts, &p.Kind, &p.Scope, &p.Target, &p.Message, &details); err != nil {
				return err
			}
			p.Timestamp = time.Unix(ts, 0)
			p.Details = json.RawMessage(details)
			problems = append(problems, p)
		}
		return rows.Err()
	})
	return problems, err
}

// ListMilestones returns milestone telemetry rows for a task in insertion
// order.
func (s *Store) ListMilestones(ctx context.Context, taskID string, limit int) ([]Milestone, error) {
	var milestones []Milestone
	err := s.withRetry(ctx, func() error {
		milestones = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, task_id, ts, kind, scope, target, message, details
			FROM task_milestones WHERE task_id = ? ORDER BY id ASC LIMIT ?`, taskID, limitOrDefault(limit))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m Milestone
			var ts int64
			var details string
			if err := rows.Scan(&m.ID, &m.TaskID, &ts, &m.Kind, &m.Scope, &m.Target, &m.Message, &details); err != nil {
				return err
			}
			m.Timestamp = time.Unix(ts, 0)
			m.Details = json.RawMessage(details)
			milestones = append(milestones, m)
		}
		return rows.Err()
	})
	return milestones, err
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
