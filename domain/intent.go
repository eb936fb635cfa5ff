package domain

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// IntentKind names a user-facing procedure.
type IntentKind string

const (
	IntentCreateTask             IntentKind = "create_task"
	IntentCreateTaskWithSubtasks IntentKind = "create_task_with_subtasks"
	IntentCreateProject          IntentKind = "create_project"
	IntentStatusReport           IntentKind = "status_report"
	IntentWorkloadReport         IntentKind = "workload_report"
	IntentListBoards             IntentKind = "list_boards"
	IntentSearchTasks            IntentKind = "search_tasks"
	IntentAddUpdate              IntentKind = "add_update"
	IntentSetStatus              IntentKind = "set_status"
)

// Intent is a typed request for one procedure. Empty strings and zero counts
// mean the field was not supplied.
type Intent interface {
	Kind() IntentKind
}

// CreateTaskIntent carries the entities of a simple task creation.
type CreateTaskIntent struct {
	BoardName    string `json:"boardName,omitempty"`
	TaskName     string `json:"taskName"`
	GroupName    string `json:"groupName,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`
	UpdateTopic  string `json:"updateTopic,omitempty"`
	Update       string `json:"update,omitempty"`
	SubtaskCount int    `json:"subtaskCount,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
}

func (CreateTaskIntent) Kind() IntentKind { return IntentCreateTask }

// CreateTaskWithSubtasksIntent creates a task and a batch of generated subtasks.
type CreateTaskWithSubtasksIntent struct {
	BoardName    string `json:"boardName,omitempty"`
	TaskName     string `json:"taskName"`
	GroupName    string `json:"groupName,omitempty"`
	UpdateTopic  string `json:"updateTopic,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
	SubtaskTopic string `json:"subtaskTopic,omitempty"`
	SubtaskCount int    `json:"subtaskCount,omitempty"`
}

func (CreateTaskWithSubtasksIntent) Kind() IntentKind { return IntentCreateTaskWithSubtasks }

// SubtaskSpec describes one subtask of an autonomous project.
type SubtaskSpec struct {
	Name         string `json:"subtaskName"`
	Brief        string `json:"brief,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`
	Status       string `json:"status,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
}

// CreateProjectIntent carries a fully planned project.
type CreateProjectIntent struct {
	BoardName     string        `json:"boardName,omitempty"`
	TaskName      string        `json:"taskName"`
	GroupName     string        `json:"groupName,omitempty"`
	Deadline      string        `json:"deadline,omitempty"`
	Subtasks      []SubtaskSpec `json:"subtasks,omitempty"`
	ProjectLead   string        `json:"projectLead,omitempty"`
	MainTaskBrief string        `json:"mainTaskBrief,omitempty"`
	Status        string        `json:"status,omitempty"`
	SessionID     string        `json:"sessionId,omitempty"`
}

func (CreateProjectIntent) Kind() IntentKind { return IntentCreateProject }

// StatusReportIntent asks for status counts of a group.
type StatusReportIntent struct {
	BoardName string `json:"boardName,omitempty"`
	GroupName string `json:"groupName,omitempty"`
}

func (StatusReportIntent) Kind() IntentKind { return IntentStatusReport }

// WorkloadReportIntent asks for per-assignee load of a group.
type WorkloadReportIntent struct {
	BoardName string `json:"boardName,omitempty"`
	GroupName string `json:"groupName,omitempty"`
}

func (WorkloadReportIntent) Kind() IntentKind { return IntentWorkloadReport }

// ListBoardsIntent asks which boards the account can use.
type ListBoardsIntent struct{}

func (ListBoardsIntent) Kind() IntentKind { return IntentListBoards }

// SearchTasksIntent looks for items whose name contains Query. An empty
// query lists the whole board.
type SearchTasksIntent struct {
	BoardName string `json:"boardName,omitempty"`
	Query     string `json:"query,omitempty"`
}

func (SearchTasksIntent) Kind() IntentKind { return IntentSearchTasks }

// AddUpdateIntent posts an update on an existing item, named by ItemID or
// ItemName. A literal Update wins over a generated one for UpdateTopic.
type AddUpdateIntent struct {
	BoardName   string `json:"boardName,omitempty"`
	ItemID      string `json:"itemId,omitempty"`
	ItemName    string `json:"itemName,omitempty"`
	Update      string `json:"update,omitempty"`
	UpdateTopic string `json:"updateTopic,omitempty"`
}

func (AddUpdateIntent) Kind() IntentKind { return IntentAddUpdate }

// SetStatusIntent moves an existing item to another status label.
type SetStatusIntent struct {
	BoardName string `json:"boardName,omitempty"`
	ItemID    string `json:"itemId,omitempty"`
	ItemName  string `json:"itemName,omitempty"`
	Status    string `json:"status"`
}

func (SetStatusIntent) Kind() IntentKind { return IntentSetStatus }

// DecodeIntent builds the intent variant for kind from a JSON entity bag.
func DecodeIntent(kind IntentKind, raw []byte) (Intent, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		in  Intent
		err error
	)
	switch kind {
	case IntentCreateTask:
		var v CreateTaskIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	case IntentCreateTaskWithSubtasks:
		var v CreateTaskWithSubtasksIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	case IntentCreateProject:
		var v CreateProjectIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	case IntentStatusReport:
		var v StatusReportIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	case IntentWorkloadReport:
		var v WorkloadReportIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	case IntentListBoards:
		in = ListBoardsIntent{}
	case IntentSearchTasks:
		var v SearchTasksIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	case IntentAddUpdate:
		var v AddUpdateIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	case IntentSetStatus:
		var v SetStatusIntent
		err = sonic.Unmarshal(raw, &v)
		in = v
	default:
		return nil, fmt.Errorf("unknown intent %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s entities: %w", kind, err)
	}
	return in, nil
}

// Job is an asynchronous workflow request handed to the worker.
type Job struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	SessionID string                 `json:"sessionId,omitempty"`
	Kind      IntentKind             `json:"kind"`
	Entities  sonic.NoCopyRawMessage `json:"entities"`
	Timestamp int64                  `json:"timestamp"`
}
