package workflow

import (
	"fmt"
	"strings"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// Procedure names.
const (
	ProcCreateTask             = "create_task"
	ProcCreateTaskWithSubtasks = "create_task_with_subtasks"
	ProcCreateProject          = "create_project"
	ProcStatusReport           = "status_report"
	ProcWorkloadReport         = "workload_report"
	ProcListBoards             = "list_boards"
	ProcSearchTasks            = "search_tasks"
	ProcAddUpdate              = "add_update"
	ProcSetStatus              = "set_status"
)

// Result is the outcome of one procedure. Success is true once the required
// steps succeeded, regardless of later step failures.
type Result struct {
	Procedure string                `json:"procedure"`
	Success   bool                  `json:"success"`
	Item      *domain.Item          `json:"item,omitempty"`
	Subtasks  []SubtaskOutcome      `json:"subtasks,omitempty"`
	Status    *StatusReport         `json:"statusReport,omitempty"`
	Workload  *WorkloadReport       `json:"workloadReport,omitempty"`
	Boards    []domain.Board        `json:"boards,omitempty"`
	Items     []domain.ItemSnapshot `json:"items,omitempty"`
	Steps     []domain.WorkflowStep `json:"steps"`
	Summary   string                `json:"summary"`
	Error     string                `json:"error,omitempty"`
}

// FailedSteps returns the steps that failed.
func (r Result) FailedSteps() []domain.WorkflowStep {
	var out []domain.WorkflowStep
	for _, s := range r.Steps {
		if s.Outcome == domain.StepFailed {
			out = append(out, s)
		}
	}
	for _, sub := range r.Subtasks {
		for _, s := range sub.Steps {
			if s.Outcome == domain.StepFailed {
				out = append(out, s)
			}
		}
	}
	return out
}

// SubtaskOutcome is what happened to one subtask of a project.
type SubtaskOutcome struct {
	Name    string                `json:"name"`
	Created bool                  `json:"created"`
	Item    *domain.Item          `json:"item,omitempty"`
	Steps   []domain.WorkflowStep `json:"steps"`
}

// actionLog renders steps as one line each.
func actionLog(steps []domain.WorkflowStep) []string {
	lines := make([]string, 0, len(steps))
	for _, s := range steps {
		switch s.Outcome {
		case domain.StepSuccess:
			lines = append(lines, fmt.Sprintf("%s: %s", s.Name, s.Detail))
		case domain.StepFailed:
			msg := s.Error
			if s.Detail != "" {
				msg = s.Detail + ": " + s.Error
			}
			lines = append(lines, fmt.Sprintf("%s failed: %s", s.Name, msg))
		}
	}
	return lines
}

func summarize(headline string, steps []domain.WorkflowStep) string {
	lines := actionLog(steps)
	if len(lines) == 0 {
		return headline
	}
	return headline + "\n- " + strings.Join(lines, "\n- ")
}
