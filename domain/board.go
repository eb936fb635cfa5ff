package domain

import (
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// ColumnType is the remote type tag of a board column.
type ColumnType string

const (
	ColumnStatus   ColumnType = "status"
	ColumnDate     ColumnType = "date"
	ColumnPeople   ColumnType = "people"
	ColumnText     ColumnType = "text"
	ColumnLongText ColumnType = "long_text"
	ColumnNumbers  ColumnType = "numbers"
)

// Board is a read-only projection of a remote board.
type Board struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns,omitempty"`
	Groups  []Group  `json:"groups,omitempty"`
}

// Column is a typed field definition on a board. Settings carries the raw
// type-specific settings blob as returned by the remote API.
type Column struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Type     ColumnType `json:"type"`
	Settings string     `json:"settings,omitempty"`
}

// Group is a named subdivision of a board's items.
type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// User is a remote account that items can be assigned to.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StatusLabel is one value of a status column.
type StatusLabel struct {
	ColumnID string `json:"columnId"`
	LabelID  string `json:"labelId"`
	Text     string `json:"text"`
}

type statusSettings struct {
	Labels map[string]string `json:"labels"`
}

// Labels decodes the label set of a status column. Non-status columns and
// malformed settings yield no labels.
func (c Column) Labels() []StatusLabel {
	if c.Type != ColumnStatus || strings.TrimSpace(c.Settings) == "" {
		return nil
	}
	var s statusSettings
	if err := sonic.UnmarshalString(c.Settings, &s); err != nil {
		return nil
	}
	labels := make([]StatusLabel, 0, len(s.Labels))
	for id, text := range s.Labels {
		labels = append(labels, StatusLabel{ColumnID: c.ID, LabelID: id, Text: text})
	}
	// label ids are numeric strings
	sort.Slice(labels, func(i, j int) bool {
		a, b := labels[i].LabelID, labels[j].LabelID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return labels
}
