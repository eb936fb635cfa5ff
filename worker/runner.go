// Package worker runs queued workflow jobs and records their outcome.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/storage"
	"github.com/KarmaFounder/friday-jarvis/workflow"
)

// Executor runs a decoded intent to completion.
type Executor interface {
	Execute(ctx context.Context, intent domain.Intent, sessionID string) workflow.Result
}

// RunRecorder persists one history row per finished job.
type RunRecorder interface {
	RecordRun(ctx context.Context, run storage.Run) error
}

// Runner decodes a job, executes it and records the run. A nil recorder
// disables run history.
type Runner struct {
	exec Executor
	runs RunRecorder
	log  *log.Logger
	now  func() time.Time
}

// NewRunner returns a Runner logging to logger, or the standard logger when nil.
func NewRunner(exec Executor, runs RunRecorder, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Runner{exec: exec, runs: runs, log: logger, now: time.Now}
}

// Run executes job. The returned error is set only when the job could not be
// decoded; workflow failures are reported in the result.
func (r *Runner) Run(ctx context.Context, job domain.Job) (workflow.Result, error) {
	intent, err := domain.DecodeIntent(job.Kind, job.Entities)
	if err != nil {
		return workflow.Result{}, err
	}
	started := r.now()
	res := r.exec.Execute(ctx, intent, job.SessionID)
	r.record(ctx, job, res, started)
	return res, nil
}

// Record stores the outcome of a job executed elsewhere.
func (r *Runner) Record(ctx context.Context, job domain.Job, res workflow.Result, started time.Time) {
	r.record(ctx, job, res, started)
}

func (r *Runner) record(ctx context.Context, job domain.Job, res workflow.Result, started time.Time) {
	if r.runs == nil || job.UserID == "" {
		return
	}
	run := NewRun(job, res, started, r.now())
	if err := r.runs.RecordRun(ctx, run); err != nil {
		r.log.WithError(err).WithFields(log.Fields{"job": job.ID, "run": run.ID}).Warn("record run failed")
	}
}

// NewRun builds the history row of a finished job. Subtask steps are
// flattened into the step list with the subtask name as prefix.
func NewRun(job domain.Job, res workflow.Result, started, finished time.Time) storage.Run {
	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	kind := job.Kind
	if kind == "" {
		kind = domain.IntentKind(res.Procedure)
	}
	run := storage.Run{
		ID:         id,
		UserID:     job.UserID,
		SessionID:  job.SessionID,
		Kind:       kind,
		Success:    res.Success,
		Summary:    res.Summary,
		Error:      res.Error,
		Steps:      append([]domain.WorkflowStep(nil), res.Steps...),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if res.Item != nil {
		run.ItemID = res.Item.ID
	}
	for _, sub := range res.Subtasks {
		for _, s := range sub.Steps {
			s.Name = fmt.Sprintf("%s / %s", sub.Name, s.Name)
			run.Steps = append(run.Steps, s)
		}
	}
	return run
}
