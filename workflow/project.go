package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

var errNoSubtaskName = errors.New("subtask name is required")

// CreateAutonomousProject creates a parent task with its deadline, lead,
// brief and status, then each planned subtask in order. A subtask's column
// steps run against the subtask's own board.
func (e *Executor) CreateAutonomousProject(ctx context.Context, in domain.CreateProjectIntent, sessionID string) (res Result) {
	if sessionID == "" {
		sessionID = in.SessionID
	}
	ctx, r := e.start(ctx, ProcCreateProject,
		attribute.String("workflow.task", in.TaskName),
		attribute.Int("workflow.subtasks", len(in.Subtasks)),
	)
	defer func() { r.end(&res) }()

	e.publish(sessionID, domain.ProgressInfo, "Starting project %q with %d subtasks", in.TaskName, len(in.Subtasks))
	parent, err := e.createParent(ctx, r, in.BoardName, in.GroupName, in.TaskName)
	if err != nil {
		e.publish(sessionID, domain.ProgressComplete, "Could not create project: %v", err)
		return Result{Error: err.Error()}
	}

	e.deadline(ctx, r, parent.BoardID, parent.ID, in.Deadline)
	e.assign(ctx, r, parent.BoardID, parent.ID, projectLead(in))
	e.update(ctx, r, parent.ID, strings.TrimSpace(in.MainTaskBrief))
	status := in.Status
	if status == "" {
		status = DefaultParentStatus
	}
	e.status(ctx, r, parent.BoardID, parent.ID, status)

	outcomes := make([]SubtaskOutcome, 0, len(in.Subtasks))
	for i, spec := range in.Subtasks {
		e.publish(sessionID, domain.ProgressStep, "creating subtask %d/%d: %s", i+1, len(in.Subtasks), spec.Name)
		outcome := e.createSubtask(ctx, r, parent.ID, spec)
		if outcome.Item != nil {
			parent.Subitems = append(parent.Subitems, *outcome.Item)
		}
		outcomes = append(outcomes, outcome)
	}

	created := len(parent.Subitems)
	e.publish(sessionID, domain.ProgressComplete, "Project %q created with %d/%d subtasks", parent.Name, created, len(in.Subtasks))
	return Result{
		Success:  true,
		Item:     &parent,
		Subtasks: outcomes,
		Summary:  projectSummary(parent, outcomes, r.steps),
	}
}

// createSubtask creates one subitem and runs its optional steps.
func (e *Executor) createSubtask(ctx context.Context, parent *run, parentID string, spec domain.SubtaskSpec) SubtaskOutcome {
	name := strings.TrimSpace(spec.Name)
	r := parent.sub(name)
	out := SubtaskOutcome{Name: name}

	if name == "" {
		r.fail(stepCreateSubitem, "missing subtask name", errNoSubtaskName)
		out.Steps = r.steps
		return out
	}
	item, err := e.remote.CreateSubitem(ctx, parentID, name)
	if err != nil {
		r.fail(stepCreateSubitem, name, err)
		out.Steps = r.steps
		return out
	}
	r.ok(stepCreateSubitem, "created %q", name)
	out.Created = true
	out.Item = &item

	e.update(ctx, r, item.ID, strings.TrimSpace(spec.Brief))
	e.assign(ctx, r, item.BoardID, item.ID, spec.AssigneeName)
	e.deadline(ctx, r, item.BoardID, item.ID, spec.Deadline)
	e.status(ctx, r, item.BoardID, item.ID, spec.Status)
	out.Steps = r.steps
	return out
}

// projectLead falls back to the first subtask's assignee.
func projectLead(in domain.CreateProjectIntent) string {
	if lead := strings.TrimSpace(in.ProjectLead); lead != "" {
		return lead
	}
	for _, s := range in.Subtasks {
		if a := strings.TrimSpace(s.AssigneeName); a != "" {
			return a
		}
	}
	return ""
}

func projectSummary(parent domain.Item, outcomes []SubtaskOutcome, steps []domain.WorkflowStep) string {
	var b strings.Builder
	b.WriteString(summarize(fmt.Sprintf("Created project %q.", parent.Name), steps))
	for i, o := range outcomes {
		label := o.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if !o.Created {
			fmt.Fprintf(&b, "\nSubtask %s was not created", label)
			if lines := actionLog(o.Steps); len(lines) > 0 {
				fmt.Fprintf(&b, " (%s)", lines[len(lines)-1])
			}
			continue
		}
		fmt.Fprintf(&b, "\nSubtask %s", label)
		for _, line := range actionLog(o.Steps) {
			b.WriteString("\n  - " + line)
		}
	}
	return b.String()
}
