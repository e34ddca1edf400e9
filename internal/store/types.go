// Package store is the single source of truth for task rows and their
// telemetry (queue events, problems, milestones, planner-stage events). All
// mutations to durable state go through it; nothing else touches the
// database directly.
package store

import (
	"encoding/json"
	"time"
)

// Status is one of the task lifecycle states from the orchestrator's state
// machine. Terminal statuses never transition further except via DeleteTask.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResuming  Status = "resuming"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether status is one of the completed/failed/cancelled
// terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the durable unit of work: either a crawl job or a background task.
// task_type keys into the orchestrator's TaskTypeRegistration; config and
// metadata are opaque JSON payloads owned by the task implementation.
type Task struct {
	ID               string
	Type             string
	Status           Status
	Config           json.RawMessage
	Metadata         json.RawMessage
	ProgressCurrent  int64
	ProgressTotal    int64
	ProgressMessage  string
	ErrorMessage     string
	CreatedAt        time.Time
	StartedAt        *time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	ResumeStartedAt  *time.Time
}

// ProgressUpdate is a partial update to a task's progress fields; nil fields
// are left unchanged. Metadata, when non-nil, replaces the stored metadata
// blob wholesale (the task implementation owns its shape).
type ProgressUpdate struct {
	Current  *int64
	Total    *int64
	Message  *string
	Metadata json.RawMessage
}

// StatusUpdateOptions carries the optional fields that accompany a status
// transition.
type StatusUpdateOptions struct {
	ErrorMessage *string
	CompletedAt  *time.Time
}

// ListFilter narrows a ListTasks snapshot query.
type ListFilter struct {
	Status *Status
	Type   *string
	Limit  int
	// Order is "created_asc" or "created_desc" (default).
	Order string
}

// QueueEvent is an append-only telemetry row recording a Frontier action for
// a crawl job.
type QueueEvent struct {
	ID         int64
	TaskID     string
	Timestamp  time.Time
	Action     string // enqueue | dequeue | skip
	URL        string
	Depth      int
	Host       string
	Reason     string
	QueueSize  int
	Role       string
	DepthBucket string
}

// Problem is an append-only advisory/fatal diagnostic attached to a task.
type Problem struct {
	ID        int64
	TaskID    string
	Timestamp time.Time
	Kind      string
	Scope     string
	Target    string
	Message   string
	Details   json.RawMessage
}

// Milestone is an append-only notable-event row attached to a task.
type Milestone struct {
	ID        int64
	TaskID    string
	Timestamp time.Time
	Kind      string
	Scope     string
	Target    string
	Message   string
	Details   json.RawMessage
}

// PlannerStageEvent is an append-only record of a Planner decision.
type PlannerStageEvent struct {
	ID              int64
	TaskID          string
	Timestamp       time.Time
	Stage           string
	Rationale       string
	EstimatedCostMS int64
	Decision        string
}
