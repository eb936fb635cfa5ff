package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// ErrNoIntent is returned when the message does not ask for any supported
// procedure.
var ErrNoIntent = errors.New("no supported intent in message")

const extractSystem = `You convert requests about a monday.com workspace into JSON.
Reply with a single object {"intent": <intent>, "entities": {...}} where intent is one of:
- "create_task": taskName, groupName, assigneeName, updateTopic, update, subtaskCount, deadline, boardName
- "create_task_with_subtasks": taskName, groupName, updateTopic, deadline, subtaskTopic, subtaskCount, boardName
- "create_project": taskName, groupName, deadline, projectLead, mainTaskBrief, status, boardName,
  subtasks: [{subtaskName, brief, assigneeName, status, deadline}]
- "status_report": groupName, boardName
- "workload_report": groupName, boardName
- "list_boards": no entities
- "search_tasks": query, boardName
- "add_update": itemName or itemId, update, updateTopic, boardName
- "set_status": itemName or itemId, status, boardName
- "none" when the request matches nothing above.
Leave out entities the user did not mention. Keep dates as the user said them.`

// Extractor maps natural language to a typed intent.
type Extractor struct {
	llm Completer
}

// NewExtractor creates an Extractor.
func NewExtractor(llm Completer) *Extractor {
	return &Extractor{llm: llm}
}

// ExtractIntent asks the model for an intent and decodes its entities.
func (e *Extractor) ExtractIntent(ctx context.Context, text string) (domain.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoIntent
	}
	out, err := e.llm.Complete(ctx, extractSystem, text, true)
	if err != nil {
		return nil, err
	}
	return ParseIntent(out)
}

type extraction struct {
	Intent   string                 `json:"intent"`
	Entities sonic.NoCopyRawMessage `json:"entities"`
}

// ParseIntent decodes a model reply, tolerating a surrounding code fence.
func ParseIntent(reply string) (domain.Intent, error) {
	reply = stripFence(reply)
	var ex extraction
	if err := sonic.UnmarshalString(reply, &ex); err != nil {
		return nil, fmt.Errorf("%w: intent reply: %v", domain.ErrParse, err)
	}
	kind := domain.IntentKind(strings.ToLower(strings.TrimSpace(ex.Intent)))
	if kind == "" || kind == "none" {
		return nil, ErrNoIntent
	}
	return domain.DecodeIntent(kind, ex.Entities)
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
