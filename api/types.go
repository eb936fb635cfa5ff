package api

import (
	"context"
	"time"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/storage"
	"github.com/KarmaFounder/friday-jarvis/workflow"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// IdempotencyKeys binds Idempotency-Key values to the job that first sent
// them.
type IdempotencyKeys interface {
	// Claim returns the holding job id and false when key is already taken.
	Claim(ctx context.Context, userID, key, jobID string) (string, bool, error)
	// Release frees key if jobID still holds it.
	Release(ctx context.Context, userID, key, jobID string) error
}

// Executor runs one intent to completion.
type Executor interface {
	Execute(ctx context.Context, intent domain.Intent, sessionID string) workflow.Result
}

// IntentExtractor turns a free-text request into an intent.
type IntentExtractor interface {
	ExtractIntent(ctx context.Context, text string) (domain.Intent, error)
}

// RunStore reads the run history.
type RunStore interface {
	GetRun(ctx context.Context, userID, runID string) (storage.Run, error)
	ListRuns(ctx context.Context, userID string, limit int) ([]storage.Run, error)
}

// RunRecorder writes the history row of a synchronously executed job.
type RunRecorder interface {
	Record(ctx context.Context, job domain.Job, res workflow.Result, started time.Time)
}

// JobQueue hands jobs to an out-of-process worker.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job domain.Job) error
}

// ProgressHub hands out per-session progress streams.
type ProgressHub interface {
	Register(sessionID string) (<-chan domain.ProgressEvent, func())
}

const maxBodySize = 64 * 1024

type workflowResponse struct {
	workflow.Result
	RunID string `json:"runId,omitempty"`
}

type acceptedResponse struct {
	Success   bool   `json:"success"`
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
}

type duplicateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	JobID   string `json:"jobId"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type chatRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId,omitempty"`
}

type runsResponse struct {
	Runs []storage.Run `json:"runs"`
}
