package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

var errNoTaskName = errors.New("task name is required")

// createParent runs the required steps: resolve the board and group, then
// create the item.
func (e *Executor) createParent(ctx context.Context, r *run, boardName, groupName, taskName string) (domain.Item, error) {
	taskName = strings.TrimSpace(taskName)
	if taskName == "" {
		r.fail(stepCreateItem, "missing task name", errNoTaskName)
		return domain.Item{}, errNoTaskName
	}
	board, err := e.resolver.ResolveBoard(ctx, boardName)
	if err != nil {
		r.fail(stepResolveBoard, boardName, err)
		return domain.Item{}, err
	}
	if groupName == "" {
		groupName = DefaultGroup
	}
	group, err := e.resolver.ResolveGroup(ctx, board.ID, groupName)
	if err != nil {
		r.fail(stepResolveGroup, groupName, err)
		return domain.Item{}, err
	}
	r.ok(stepResolveGroup, "group %s", group.Title)

	item, err := e.remote.CreateItem(ctx, board.ID, group.ID, taskName)
	if err != nil {
		r.fail(stepCreateItem, taskName, err)
		return domain.Item{}, fmt.Errorf("create item %q: %w", taskName, err)
	}
	r.ok(stepCreateItem, "created %q", item.Name)
	r.span.SetAttributes(attribute.String("workflow.item_id", item.ID), attribute.String("workflow.board_id", item.BoardID))
	return item, nil
}

// CreateTask creates a task and optionally assigns it, posts an update, sets
// its deadline and creates subtasks derived from the update text.
func (e *Executor) CreateTask(ctx context.Context, in domain.CreateTaskIntent, sessionID string) (res Result) {
	ctx, r := e.start(ctx, ProcCreateTask, attribute.String("workflow.task", in.TaskName))
	defer func() { r.end(&res) }()

	e.publish(sessionID, domain.ProgressInfo, "Creating task %q", in.TaskName)
	item, err := e.createParent(ctx, r, in.BoardName, in.GroupName, in.TaskName)
	if err != nil {
		e.publish(sessionID, domain.ProgressComplete, "Could not create task: %v", err)
		return Result{Error: err.Error()}
	}

	e.assign(ctx, r, item.BoardID, item.ID, in.AssigneeName)
	text := e.updateText(ctx, r, in.Update, in.UpdateTopic)
	e.update(ctx, r, item.ID, text)
	e.deadline(ctx, r, item.BoardID, item.ID, in.Deadline)
	if text != "" && in.SubtaskCount > 0 {
		item.Subitems = e.subitems(ctx, r, item.ID, text, in.SubtaskCount)
	}

	e.publish(sessionID, domain.ProgressComplete, "Task %q created", item.Name)
	return Result{
		Success: true,
		Item:    &item,
		Summary: summarize(fmt.Sprintf("Created task %q.", item.Name), r.steps),
	}
}

// CreateTaskWithSubtasks creates a task, an optional generated update, an
// optional deadline and a batch of generated subtasks.
func (e *Executor) CreateTaskWithSubtasks(ctx context.Context, in domain.CreateTaskWithSubtasksIntent, sessionID string) (res Result) {
	ctx, r := e.start(ctx, ProcCreateTaskWithSubtasks,
		attribute.String("workflow.task", in.TaskName),
		attribute.Int("workflow.subtasks", in.SubtaskCount),
	)
	defer func() { r.end(&res) }()

	e.publish(sessionID, domain.ProgressInfo, "Creating task %q with %d subtasks", in.TaskName, in.SubtaskCount)
	item, err := e.createParent(ctx, r, in.BoardName, in.GroupName, in.TaskName)
	if err != nil {
		e.publish(sessionID, domain.ProgressComplete, "Could not create task: %v", err)
		return Result{Error: err.Error()}
	}

	text := e.updateText(ctx, r, "", in.UpdateTopic)
	e.update(ctx, r, item.ID, text)
	e.deadline(ctx, r, item.BoardID, item.ID, in.Deadline)

	source := in.SubtaskTopic
	if source == "" {
		source = text
	}
	if source == "" {
		source = in.TaskName
	}
	item.Subitems = e.subitems(ctx, r, item.ID, source, in.SubtaskCount)

	e.publish(sessionID, domain.ProgressComplete, "Task %q created with %d subtasks", item.Name, len(item.Subitems))
	return Result{
		Success: true,
		Item:    &item,
		Summary: summarize(fmt.Sprintf("Created task %q with %d subtasks.", item.Name, len(item.Subitems)), r.steps),
	}
}
