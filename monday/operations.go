package monday

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// Operation names accepted by Execute.
const (
	OpBoards            = "boards"
	OpBoardColumns      = "board_columns"
	OpBoardGroups       = "board_groups"
	OpUsersByName       = "users_by_name"
	OpUsers             = "users"
	OpCreateItem        = "create_item"
	OpCreateSubitem     = "create_subitem"
	OpChangeColumnValue = "change_column_value"
	OpCreateUpdate      = "create_update"
	OpGroupItems        = "group_items"
	OpBoardItems        = "board_items"
)

// MaxUsers bounds the full user list fetched as a fallback.
const MaxUsers = 1000

var operations = map[string]string{
	OpBoards: `query ($limit: Int!) {
  boards(limit: $limit, state: active) { id name }
}`,
	OpBoardColumns: `query ($boardId: [ID!]) {
  boards(ids: $boardId) { id columns { id title type settings_str } }
}`,
	OpBoardGroups: `query ($boardId: [ID!]) {
  boards(ids: $boardId) { id groups { id title } }
}`,
	OpUsersByName: `query ($name: String!) {
  users(name: $name) { id name }
}`,
	OpUsers: `query ($limit: Int!) {
  users(limit: $limit) { id name }
}`,
	OpCreateItem: `mutation ($boardId: ID!, $groupId: String, $name: String!) {
  create_item(board_id: $boardId, group_id: $groupId, item_name: $name) { id name url board { id } group { id } }
}`,
	OpCreateSubitem: `mutation ($parentId: ID!, $name: String!) {
  create_subitem(parent_item_id: $parentId, item_name: $name) { id name url board { id } }
}`,
	OpChangeColumnValue: `mutation ($boardId: ID!, $itemId: ID!, $columnId: String!, $value: JSON!) {
  change_column_value(board_id: $boardId, item_id: $itemId, column_id: $columnId, value: $value) { id }
}`,
	OpCreateUpdate: `mutation ($itemId: ID!, $body: String!) {
  create_update(item_id: $itemId, body: $body) { id }
}`,
	OpGroupItems: `query ($boardId: [ID!], $groupId: [String]) {
  boards(ids: $boardId) { groups(ids: $groupId) { items_page(limit: 500) { items { id name column_values { id type text } } } } }
}`,
	OpBoardItems: `query ($boardId: [ID!]) {
  boards(ids: $boardId) { items_page(limit: 500) { items { id name column_values { id type text } } } }
}`,
}

type idRef struct {
	ID string `json:"id"`
}

type remoteColumn struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	SettingsStr string `json:"settings_str"`
}

type remoteBoard struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Columns []remoteColumn `json:"columns"`
	Groups  []domain.Group `json:"groups"`
}

type boardsData struct {
	Boards []remoteBoard `json:"boards"`
}

type remoteItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Board idRef  `json:"board"`
	Group idRef  `json:"group"`
}

func (r remoteItem) toDomain() domain.Item {
	return domain.Item{ID: r.ID, Name: r.Name, URL: r.URL, BoardID: r.Board.ID, GroupID: r.Group.ID}
}

// Boards lists active boards visible to the token.
func (c *Client) Boards(ctx context.Context) ([]domain.Board, error) {
	var out boardsData
	if err := c.Execute(ctx, OpBoards, map[string]any{"limit": 500}, &out); err != nil {
		return nil, err
	}
	boards := make([]domain.Board, 0, len(out.Boards))
	for _, b := range out.Boards {
		boards = append(boards, domain.Board{ID: b.ID, Name: b.Name})
	}
	return boards, nil
}

// BoardColumns fetches the column definitions of a board.
func (c *Client) BoardColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	var out boardsData
	if err := c.Execute(ctx, OpBoardColumns, map[string]any{"boardId": []string{boardID}}, &out); err != nil {
		return nil, err
	}
	if len(out.Boards) == 0 {
		return nil, domain.NewNotFound("board", boardID)
	}
	cols := make([]domain.Column, 0, len(out.Boards[0].Columns))
	for _, col := range out.Boards[0].Columns {
		cols = append(cols, domain.Column{
			ID:       col.ID,
			Title:    col.Title,
			Type:     domain.ColumnType(col.Type),
			Settings: col.SettingsStr,
		})
	}
	return cols, nil
}

// BoardGroups fetches the groups of a board.
func (c *Client) BoardGroups(ctx context.Context, boardID string) ([]domain.Group, error) {
	var out boardsData
	if err := c.Execute(ctx, OpBoardGroups, map[string]any{"boardId": []string{boardID}}, &out); err != nil {
		return nil, err
	}
	if len(out.Boards) == 0 {
		return nil, domain.NewNotFound("board", boardID)
	}
	return out.Boards[0].Groups, nil
}

type usersData struct {
	Users []domain.User `json:"users"`
}

// UsersByName runs the server-side name filtered user lookup.
func (c *Client) UsersByName(ctx context.Context, name string) ([]domain.User, error) {
	var out usersData
	if err := c.Execute(ctx, OpUsersByName, map[string]any{"name": name}, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// Users fetches up to limit users.
func (c *Client) Users(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > MaxUsers {
		limit = MaxUsers
	}
	var out usersData
	if err := c.Execute(ctx, OpUsers, map[string]any{"limit": limit}, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// CreateItem creates an item in the given board and group.
func (c *Client) CreateItem(ctx context.Context, boardID, groupID, name string) (domain.Item, error) {
	vars := map[string]any{"boardId": boardID, "name": name}
	if groupID != "" {
		vars["groupId"] = groupID
	}
	var out struct {
		CreateItem remoteItem `json:"create_item"`
	}
	if err := c.Execute(ctx, OpCreateItem, vars, &out); err != nil {
		return domain.Item{}, err
	}
	item := out.CreateItem.toDomain()
	if item.BoardID == "" {
		item.BoardID = boardID
	}
	if item.GroupID == "" {
		item.GroupID = groupID
	}
	return item, nil
}

// CreateSubitem creates a subitem under parentID. The returned item carries
// the subitem's own board id.
func (c *Client) CreateSubitem(ctx context.Context, parentID, name string) (domain.Item, error) {
	var out struct {
		CreateSubitem remoteItem `json:"create_subitem"`
	}
	if err := c.Execute(ctx, OpCreateSubitem, map[string]any{"parentId": parentID, "name": name}, &out); err != nil {
		return domain.Item{}, err
	}
	if out.CreateSubitem.ID == "" {
		return domain.Item{}, &domain.RemoteError{Operation: OpCreateSubitem, Messages: []string{"empty response"}}
	}
	return out.CreateSubitem.toDomain(), nil
}

// ChangeColumnValue sets a column of an item. value is JSON encoded as the
// API expects a JSON string.
func (c *Client) ChangeColumnValue(ctx context.Context, boardID, itemID, columnID string, value any) error {
	encoded, err := sonic.MarshalString(value)
	if err != nil {
		return fmt.Errorf("encode column value: %w", err)
	}
	vars := map[string]any{
		"boardId":  boardID,
		"itemId":   itemID,
		"columnId": columnID,
		"value":    encoded,
	}
	return c.Execute(ctx, OpChangeColumnValue, vars, nil)
}

// CreateUpdate posts an update (comment) on an item.
func (c *Client) CreateUpdate(ctx context.Context, itemID, body string) error {
	return c.Execute(ctx, OpCreateUpdate, map[string]any{"itemId": itemID, "body": body}, nil)
}

type columnValue struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type remoteSnapshot struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ColumnValues []columnValue `json:"column_values"`
}

type itemsPage struct {
	Items []remoteSnapshot `json:"items"`
}

// toDomain keeps the first status and people column texts.
func (r remoteSnapshot) toDomain() domain.ItemSnapshot {
	snap := domain.ItemSnapshot{ID: r.ID, Name: r.Name}
	for _, cv := range r.ColumnValues {
		switch domain.ColumnType(cv.Type) {
		case domain.ColumnStatus:
			if snap.Status == "" {
				snap.Status = cv.Text
			}
		case domain.ColumnPeople:
			if snap.People == "" {
				snap.People = cv.Text
			}
		}
	}
	return snap
}

type groupItemsData struct {
	Boards []struct {
		Groups []struct {
			ItemsPage itemsPage `json:"items_page"`
		} `json:"groups"`
	} `json:"boards"`
}

// GroupItems lists the items of a group with the text of their status and
// people columns.
func (c *Client) GroupItems(ctx context.Context, boardID, groupID string) ([]domain.ItemSnapshot, error) {
	var out groupItemsData
	vars := map[string]any{"boardId": []string{boardID}, "groupId": []string{groupID}}
	if err := c.Execute(ctx, OpGroupItems, vars, &out); err != nil {
		return nil, err
	}
	var items []domain.ItemSnapshot
	for _, b := range out.Boards {
		for _, g := range b.Groups {
			for _, it := range g.ItemsPage.Items {
				items = append(items, it.toDomain())
			}
		}
	}
	return items, nil
}

// BoardItems lists the first page of items across all groups of a board.
func (c *Client) BoardItems(ctx context.Context, boardID string) ([]domain.ItemSnapshot, error) {
	var out struct {
		Boards []struct {
			ItemsPage itemsPage `json:"items_page"`
		} `json:"boards"`
	}
	if err := c.Execute(ctx, OpBoardItems, map[string]any{"boardId": []string{boardID}}, &out); err != nil {
		return nil, err
	}
	if len(out.Boards) == 0 {
		return nil, domain.NewNotFound("board", boardID)
	}
	items := make([]domain.ItemSnapshot, 0, len(out.Boards[0].ItemsPage.Items))
	for _, it := range out.Boards[0].ItemsPage.Items {
		items = append(items, it.toDomain())
	}
	return items, nil
}
