package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	updateSystem = `You write concise project briefs for a paid media agency. ` +
		`Write a short, actionable update (3-6 sentences, no greeting, no sign-off) for the given topic.`
	subtasksSystem = `You break work down into subtasks. Reply with one subtask name per line, ` +
		`each under eight words, with no numbering and no commentary.`
)

// maxSubtasks bounds how many subtask names are requested at once.
const maxSubtasks = 20

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\[[ xX]?\])\s*`)

// Generator authors update text and subtask names.
type Generator struct {
	llm Completer
}

// NewGenerator creates a Generator.
func NewGenerator(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// GenerateUpdate writes update text about topic.
func (g *Generator) GenerateUpdate(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", errors.New("empty update topic")
	}
	return g.llm.Complete(ctx, updateSystem, "Topic: "+topic, false)
}

// GenerateSubtaskNames derives count subtask names from source.
func (g *Generator) GenerateSubtaskNames(ctx context.Context, source string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	if count > maxSubtasks {
		count = maxSubtasks
	}
	prompt := fmt.Sprintf("List exactly %d subtasks for the following work:\n\n%s", count, strings.TrimSpace(source))
	out, err := g.llm.Complete(ctx, subtasksSystem, prompt, false)
	if err != nil {
		return nil, err
	}
	names := ParseSubtaskNames(out, count)
	if len(names) == 0 {
		return nil, errors.New("no subtask names in completion")
	}
	return names, nil
}

// ParseSubtaskNames reads one name per line, dropping bullets, numbering,
// surrounding quotes and blank lines, and keeps at most count names.
func ParseSubtaskNames(text string, count int) []string {
	var names []string
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'*`)
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		names = append(names, line)
		if count > 0 && len(names) == count {
			break
		}
	}
	return names
}
