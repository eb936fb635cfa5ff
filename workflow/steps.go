package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/schema"
)

var (
	errNoGenerator = errors.New("content generation is not configured")
	errNoBoard     = errors.New("item board is unknown")
)

// run is the step log of one procedure.
type run struct {
	procedure string
	steps     []domain.WorkflowStep
	span      trace.Span
	metrics   *Metrics
	log       *log.Entry
}

func (r *run) record(s domain.WorkflowStep) {
	r.steps = append(r.steps, s)
	r.metrics.observeStep(r.procedure, s.Name, s.Outcome)
	entry := r.log.WithFields(log.Fields{"step": s.Name, "outcome": s.Outcome})
	if s.Outcome == domain.StepFailed {
		entry.WithField("error", s.Error).Warn(s.Detail)
	} else {
		entry.Debug(s.Detail)
	}
}

func (r *run) ok(name, format string, args ...any) {
	r.record(domain.WorkflowStep{Name: name, Outcome: domain.StepSuccess, Detail: fmt.Sprintf(format, args...)})
}

func (r *run) skip(name, detail string) {
	r.record(domain.WorkflowStep{Name: name, Outcome: domain.StepSkipped, Detail: detail})
}

func (r *run) fail(name, detail string, err error) {
	r.record(domain.WorkflowStep{Name: name, Outcome: domain.StepFailed, Detail: detail, Error: err.Error()})
}

func (r *run) failed() int {
	n := 0
	for _, s := range r.steps {
		if s.Outcome == domain.StepFailed {
			n++
		}
	}
	return n
}

// sub returns a step log for a subtask that shares the span and metrics of r.
func (r *run) sub(name string) *run {
	return &run{
		procedure: r.procedure,
		span:      r.span,
		metrics:   r.metrics,
		log:       r.log.WithField("subtask", name),
	}
}

// Step names.
const (
	stepResolveBoard  = "resolve board"
	stepResolveGroup  = "resolve group"
	stepCreateItem    = "create item"
	stepAssign        = "assign user"
	stepUpdate        = "post update"
	stepGenerate      = "generate update"
	stepDeadline      = "set deadline"
	stepStatus        = "set status"
	stepSubtaskNames  = "generate subtask names"
	stepCreateSubitem = "create subitem"
)

// columnID finds the column of type t on boardID.
func (e *Executor) columnID(ctx context.Context, boardID string, t domain.ColumnType) (string, error) {
	if boardID == "" {
		return "", errNoBoard
	}
	s, err := e.schemas.Get(ctx, boardID)
	if err != nil {
		return "", err
	}
	id, ok := schema.ColumnIDByType(s, t)
	if !ok {
		return "", domain.NewNotFound("column", string(t))
	}
	return id, nil
}

// assign sets the people column of an item to the user called name.
func (e *Executor) assign(ctx context.Context, r *run, boardID, itemID, name string) bool {
	if name == "" {
		r.skip(stepAssign, "no assignee given")
		return false
	}
	user, err := e.resolver.ResolveUser(ctx, name)
	if err != nil {
		if domain.IsNotFound(err) {
			r.fail(stepAssign, "user not found", err)
		} else {
			r.fail(stepAssign, "assignment failed", err)
		}
		return false
	}
	col, err := e.columnID(ctx, boardID, domain.ColumnPeople)
	if err != nil {
		r.fail(stepAssign, "assignment failed", err)
		return false
	}
	if err := e.remote.ChangeColumnValue(ctx, boardID, itemID, col, peopleValue(user.ID)); err != nil {
		r.fail(stepAssign, "assignment failed", err)
		return false
	}
	r.ok(stepAssign, "assigned to %s", user.Name)
	return true
}

// deadline normalizes text and writes it to the date column of an item.
func (e *Executor) deadline(ctx context.Context, r *run, boardID, itemID, text string) bool {
	if text == "" {
		r.skip(stepDeadline, "no deadline given")
		return false
	}
	date, ok := e.dates.Normalize(text)
	if !ok {
		r.fail(stepDeadline, fmt.Sprintf("could not read %q as a date", text), domain.ErrParse)
		return false
	}
	col, err := e.columnID(ctx, boardID, domain.ColumnDate)
	if err != nil {
		r.fail(stepDeadline, "deadline not set", err)
		return false
	}
	if err := e.remote.ChangeColumnValue(ctx, boardID, itemID, col, map[string]string{"date": date}); err != nil {
		r.fail(stepDeadline, "deadline not set", err)
		return false
	}
	r.ok(stepDeadline, "deadline %s", date)
	return true
}

// status sets the status column of an item to the label matching text.
func (e *Executor) status(ctx context.Context, r *run, boardID, itemID, text string) bool {
	if text == "" {
		r.skip(stepStatus, "no status given")
		return false
	}
	if boardID == "" {
		r.fail(stepStatus, "status not set", errNoBoard)
		return false
	}
	label, err := e.resolver.ResolveStatus(ctx, boardID, text)
	if err != nil {
		r.fail(stepStatus, "status not set", err)
		return false
	}
	value := map[string]any{"index": labelIndex(label.LabelID)}
	if err := e.remote.ChangeColumnValue(ctx, boardID, itemID, label.ColumnID, value); err != nil {
		r.fail(stepStatus, "status not set", err)
		return false
	}
	r.ok(stepStatus, "status %s", label.Text)
	return true
}

// update posts body on an item.
func (e *Executor) update(ctx context.Context, r *run, itemID, body string) bool {
	if body == "" {
		r.skip(stepUpdate, "no update text")
		return false
	}
	if err := e.remote.CreateUpdate(ctx, itemID, body); err != nil {
		r.fail(stepUpdate, "update not posted", err)
		return false
	}
	r.ok(stepUpdate, "update posted")
	return true
}

// updateText returns literal when set, otherwise text generated about topic.
func (e *Executor) updateText(ctx context.Context, r *run, literal, topic string) string {
	if literal != "" {
		return literal
	}
	if topic == "" {
		r.skip(stepGenerate, "no update topic")
		return ""
	}
	if e.gen == nil {
		r.fail(stepGenerate, "update not generated", errNoGenerator)
		return ""
	}
	text, err := e.gen.GenerateUpdate(ctx, topic)
	if err != nil {
		r.fail(stepGenerate, "update not generated", err)
		return ""
	}
	r.ok(stepGenerate, "update written about %q", topic)
	return text
}

// subitems derives count names from source and creates one subitem per name.
func (e *Executor) subitems(ctx context.Context, r *run, parentID, source string, count int) []domain.Item {
	if count <= 0 {
		r.skip(stepSubtaskNames, "no subtasks requested")
		return nil
	}
	if e.gen == nil {
		r.fail(stepSubtaskNames, "subtasks not created", errNoGenerator)
		return nil
	}
	names, err := e.gen.GenerateSubtaskNames(ctx, source, count)
	if err != nil {
		r.fail(stepSubtaskNames, "subtasks not created", err)
		return nil
	}
	r.ok(stepSubtaskNames, "%d subtask names", len(names))
	var items []domain.Item
	for _, name := range names {
		sub, err := e.remote.CreateSubitem(ctx, parentID, name)
		if err != nil {
			r.fail(stepCreateSubitem, name, err)
			continue
		}
		r.ok(stepCreateSubitem, "created %q", name)
		items = append(items, sub)
	}
	return items
}

// peopleValue builds a people column value. Numeric user ids are sent as
// numbers as the remote API expects.
func peopleValue(userID string) map[string]any {
	var id any = userID
	if n, err := strconv.ParseInt(userID, 10, 64); err == nil {
		id = n
	}
	return map[string]any{"personsAndTeams": []map[string]any{{"id": id, "kind": "person"}}}
}

func labelIndex(labelID string) any {
	if n, err := strconv.Atoi(labelID); err == nil {
		return n
	}
	return labelID
}
