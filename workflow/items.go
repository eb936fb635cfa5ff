package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

const (
	stepListBoards  = "list boards"
	stepSearchItems = "search items"
	stepResolveItem = "resolve item"

	// boardSample is how many board names a long board list mentions.
	boardSample = 3
	// searchListed is how many matches a search summary lists.
	searchListed = 10
)

var (
	errNoItem       = errors.New("item id or name is required")
	errNoUpdateText = errors.New("update text or topic is required")
	errNoStatusText = errors.New("status is required")
)

// ListBoards reports the boards requests can target.
func (e *Executor) ListBoards(ctx context.Context) (res Result) {
	ctx, r := e.start(ctx, ProcListBoards)
	defer func() { r.end(&res) }()

	boards, err := e.resolver.ListBoards(ctx)
	if err != nil {
		r.fail(stepListBoards, "boards not listed", err)
		return Result{Error: err.Error()}
	}
	r.ok(stepListBoards, "%d boards", len(boards))
	return Result{Success: true, Boards: boards, Summary: boardsSummary(boards)}
}

func boardsSummary(boards []domain.Board) string {
	names := make([]string, 0, boardSample)
	for i := 0; i < len(boards) && i < boardSample; i++ {
		names = append(names, boards[i].Name)
	}
	switch {
	case len(boards) == 0:
		return "No boards are accessible."
	case len(boards) <= boardSample:
		return fmt.Sprintf("You have %d boards: %s.", len(boards), strings.Join(names, ", "))
	}
	return fmt.Sprintf("You have %d boards, including %s and %d others.", len(boards), strings.Join(names, ", "), len(boards)-boardSample)
}

// SearchTasks lists the items of a board whose name contains the query,
// ignoring case.
func (e *Executor) SearchTasks(ctx context.Context, in domain.SearchTasksIntent) (res Result) {
	ctx, r := e.start(ctx, ProcSearchTasks, attribute.String("workflow.query", in.Query))
	defer func() { r.end(&res) }()

	board, err := e.resolver.ResolveBoard(ctx, in.BoardName)
	if err != nil {
		r.fail(stepResolveBoard, in.BoardName, err)
		return Result{Error: err.Error()}
	}
	items, err := e.resolver.SearchItems(ctx, board.ID, in.Query)
	if err != nil {
		r.fail(stepSearchItems, in.Query, err)
		return Result{Error: err.Error()}
	}
	r.ok(stepSearchItems, "%d matches", len(items))
	r.span.SetAttributes(attribute.Int("workflow.items", len(items)))
	return Result{Success: true, Items: items, Summary: searchSummary(in.Query, items)}
}

func searchSummary(query string, items []domain.ItemSnapshot) string {
	if len(items) == 0 {
		if query == "" {
			return "The board has no tasks."
		}
		return fmt.Sprintf("No tasks match %q.", query)
	}
	var b strings.Builder
	if query == "" {
		fmt.Fprintf(&b, "The board has %d tasks:", len(items))
	} else {
		fmt.Fprintf(&b, "Found %d tasks matching %q:", len(items), query)
	}
	for i, it := range items {
		if i == searchListed {
			fmt.Fprintf(&b, "\n... and %d more", len(items)-searchListed)
			break
		}
		fmt.Fprintf(&b, "\n- %s (ID: %s)", it.Name, it.ID)
	}
	return b.String()
}

// target finds the existing item an edit applies to. An explicit id is used
// as is; otherwise the name is looked up on the resolved board.
func (e *Executor) target(ctx context.Context, r *run, boardName, itemID, itemName string) (domain.Item, error) {
	itemID, itemName = strings.TrimSpace(itemID), strings.TrimSpace(itemName)
	if itemID == "" && itemName == "" {
		r.fail(stepResolveItem, "no item given", errNoItem)
		return domain.Item{}, errNoItem
	}
	board, err := e.resolver.ResolveBoard(ctx, boardName)
	if err != nil {
		if itemID != "" && boardName == "" {
			r.skip(stepResolveBoard, "no board; using item id only")
			return domain.Item{ID: itemID, Name: itemName}, nil
		}
		r.fail(stepResolveBoard, boardName, err)
		return domain.Item{}, err
	}
	if itemID != "" {
		r.ok(stepResolveItem, "item %s", itemID)
		return domain.Item{ID: itemID, Name: itemName, BoardID: board.ID}, nil
	}
	snap, err := e.resolver.ResolveItem(ctx, board.ID, itemName)
	if err != nil {
		r.fail(stepResolveItem, itemName, err)
		return domain.Item{}, err
	}
	r.ok(stepResolveItem, "item %q (%s)", snap.Name, snap.ID)
	r.span.SetAttributes(attribute.String("workflow.item_id", snap.ID))
	return domain.Item{ID: snap.ID, Name: snap.Name, BoardID: board.ID}, nil
}

func itemLabel(it domain.Item) string {
	if it.Name != "" {
		return fmt.Sprintf("%q", it.Name)
	}
	return it.ID
}

// AddUpdate posts an update on an existing item.
func (e *Executor) AddUpdate(ctx context.Context, in domain.AddUpdateIntent, sessionID string) (res Result) {
	ctx, r := e.start(ctx, ProcAddUpdate, attribute.String("workflow.item", in.ItemID+in.ItemName))
	defer func() { r.end(&res) }()

	if strings.TrimSpace(in.Update) == "" && strings.TrimSpace(in.UpdateTopic) == "" {
		r.fail(stepUpdate, "nothing to post", errNoUpdateText)
		return Result{Error: errNoUpdateText.Error()}
	}
	item, err := e.target(ctx, r, in.BoardName, in.ItemID, in.ItemName)
	if err != nil {
		return Result{Error: err.Error()}
	}
	e.publish(sessionID, domain.ProgressInfo, "Adding an update to %s", itemLabel(item))
	text := e.updateText(ctx, r, strings.TrimSpace(in.Update), in.UpdateTopic)
	if !e.update(ctx, r, item.ID, text) {
		e.publish(sessionID, domain.ProgressComplete, "Update not posted")
		return Result{Error: "update not posted", Summary: summarize("Could not add the update.", r.steps)}
	}
	e.publish(sessionID, domain.ProgressComplete, "Update posted")
	return Result{
		Success: true,
		Item:    &item,
		Summary: summarize(fmt.Sprintf("Added an update to %s.", itemLabel(item)), r.steps),
	}
}

// SetStatus moves an existing item to the status label matching the text.
func (e *Executor) SetStatus(ctx context.Context, in domain.SetStatusIntent, sessionID string) (res Result) {
	ctx, r := e.start(ctx, ProcSetStatus, attribute.String("workflow.status", in.Status))
	defer func() { r.end(&res) }()

	status := strings.TrimSpace(in.Status)
	if status == "" {
		r.fail(stepStatus, "no status given", errNoStatusText)
		return Result{Error: errNoStatusText.Error()}
	}
	item, err := e.target(ctx, r, in.BoardName, in.ItemID, in.ItemName)
	if err != nil {
		return Result{Error: err.Error()}
	}
	e.publish(sessionID, domain.ProgressInfo, "Setting %s to %s", itemLabel(item), status)
	if !e.status(ctx, r, item.BoardID, item.ID, status) {
		e.publish(sessionID, domain.ProgressComplete, "Status not changed")
		return Result{Error: "status not set", Summary: summarize("Could not change the status.", r.steps)}
	}
	e.publish(sessionID, domain.ProgressComplete, "Status changed")
	return Result{
		Success: true,
		Item:    &item,
		Summary: summarize(fmt.Sprintf("Set %s to %s.", itemLabel(item), status), r.steps),
	}
}
