package domain

import "time"

// Item is a task created on a board. Subitems live on their own implicit
// board, so BoardID of a subitem differs from its parent's.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BoardID  string `json:"boardId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
	URL      string `json:"url,omitempty"`
	Subitems []Item `json:"subitems,omitempty"`
}

// ItemSnapshot is an item read back for reporting with the text of its
// status and people columns.
type ItemSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	People string `json:"people"`
}

// StepOutcome is the result of one workflow step.
type StepOutcome string

const (
	StepSuccess StepOutcome = "success"
	StepSkipped StepOutcome = "skipped"
	StepFailed  StepOutcome = "failed"
)

// WorkflowStep records a named unit of work and how it ended.
type WorkflowStep struct {
	Name    string      `json:"name"`
	Outcome StepOutcome `json:"outcome"`
	Detail  string      `json:"detail,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ProgressKind classifies progress events.
type ProgressKind string

const (
	ProgressConnected ProgressKind = "connected"
	ProgressInfo      ProgressKind = "info"
	ProgressStep      ProgressKind = "progress"
	ProgressComplete  ProgressKind = "complete"
)

// ProgressEvent is an incremental status message for one session.
type ProgressEvent struct {
	SessionID string       `json:"sessionId"`
	Kind      ProgressKind `json:"type"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}
