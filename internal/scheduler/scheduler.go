// Package scheduler submits recurring background tasks on a cron schedule.
// It owns no task logic itself: every tick it calls
// OrchestrationFacade.StartBackgroundTask, which puts the task through the
// exact same pending -> scheduling path as an ad-hoc request (SPEC_FULL.md
// §4.9).
//
// Grounded on the teacher's internal/services/scheduler package, which
// wraps github.com/robfig/cron/v3 the same way: a Service struct holding a
// *cron.Cron, entries added at construction, Start/Stop lifecycle methods.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/facade"
)

// Job binds a cron spec to a background task type and config, mirroring
// internal/config.ScheduledJob.
type Job struct {
	Spec     string
	TaskType string
	Config   map[string]interface{}
}

// Service is the cron-driven recurring background task submitter.
type Service struct {
	cron   *cron.Cron
	facade *facade.Facade
	deps   facade.Deps
	logger arbor.ILogger
}

// New builds a Service and registers every job's cron entry. If any job's
// config cannot be marshalled or its spec fails to parse, New returns an
// error and no Service.
func New(f *facade.Facade, deps facade.Deps, logger arbor.ILogger, jobs []Job) (*Service, error) {
	s := &Service{cron: cron.New(), facade: f, deps: deps, logger: logger}

	for _, j := range jobs {
		job := j
		config, err := json.Marshal(job.Config)
		if err != nil {
			return nil, fmt.Errorf("scheduler: failed to marshal config for %s: %w", job.TaskType, err)
		}

		_, err = s.cron.AddFunc(job.Spec, func() {
			id, err := s.facade.StartBackgroundTask(context.Background(), s.deps, job.TaskType, config)
			if err != nil {
				s.logger.Warn().Err(err).Str("task_type", job.TaskType).Msg("scheduled task submission failed")
				return
			}
			s.logger.Info().Str("task_type", job.TaskType).Str("task_id", id.TaskID).Msg("scheduled task submitted")
		})
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid cron spec %q for %s: %w", job.Spec, job.TaskType, err)
		}
	}

	return s, nil
}

// Start begins running the cron scheduler in its own goroutine.
func (s *Service) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight submission to finish.
func (s *Service) Stop() { <-s.cron.Stop().Done() }
