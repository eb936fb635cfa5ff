package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

const (
	noStatus   = "No Status"
	unassigned = "Unassigned"

	// maxNotStarted is how many not started items an assignee may hold
	// before being flagged.
	maxNotStarted = 3
)

const stepFetchItems = "fetch items"

// StatusCount is the number and share of items with one status.
type StatusCount struct {
	Status  string  `json:"status"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// StatusReport tallies the items of a group by status.
type StatusReport struct {
	BoardID  string        `json:"boardId"`
	GroupID  string        `json:"groupId"`
	Group    string        `json:"group"`
	Total    int           `json:"total"`
	Statuses []StatusCount `json:"statuses"`
}

// AssigneeLoad is the items of one person by status.
type AssigneeLoad struct {
	Name     string         `json:"name"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

// WorkloadReport groups the items of a group by assignee and status.
type WorkloadReport struct {
	BoardID     string         `json:"boardId"`
	GroupID     string         `json:"groupId"`
	Group       string         `json:"group"`
	Total       int            `json:"total"`
	Assignees   []AssigneeLoad `json:"assignees"`
	Bottlenecks []string       `json:"bottlenecks,omitempty"`
}

func (e *Executor) groupItems(ctx context.Context, r *run, boardName, groupName string) (domain.Group, string, []domain.ItemSnapshot, error) {
	board, err := e.resolver.ResolveBoard(ctx, boardName)
	if err != nil {
		r.fail(stepResolveBoard, boardName, err)
		return domain.Group{}, "", nil, err
	}
	if groupName == "" {
		groupName = DefaultGroup
	}
	group, err := e.resolver.ResolveGroup(ctx, board.ID, groupName)
	if err != nil {
		r.fail(stepResolveGroup, groupName, err)
		return domain.Group{}, "", nil, err
	}
	r.ok(stepResolveGroup, "group %s", group.Title)
	items, err := e.remote.GroupItems(ctx, board.ID, group.ID)
	if err != nil {
		r.fail(stepFetchItems, group.Title, err)
		return domain.Group{}, "", nil, err
	}
	r.ok(stepFetchItems, "%d items", len(items))
	r.span.SetAttributes(attribute.Int("workflow.items", len(items)))
	return group, board.ID, items, nil
}

// StatusReport counts the items of a group per status.
func (e *Executor) StatusReport(ctx context.Context, in domain.StatusReportIntent) (res Result) {
	ctx, r := e.start(ctx, ProcStatusReport, attribute.String("workflow.group", in.GroupName))
	defer func() { r.end(&res) }()

	group, boardID, items, err := e.groupItems(ctx, r, in.BoardName, in.GroupName)
	if err != nil {
		return Result{Error: err.Error()}
	}
	report := BuildStatusReport(items)
	report.BoardID, report.GroupID, report.Group = boardID, group.ID, group.Title
	return Result{Success: true, Status: &report, Summary: report.String()}
}

// WorkloadReport groups the items of a group per assignee and status.
func (e *Executor) WorkloadReport(ctx context.Context, in domain.WorkloadReportIntent) (res Result) {
	ctx, r := e.start(ctx, ProcWorkloadReport, attribute.String("workflow.group", in.GroupName))
	defer func() { r.end(&res) }()

	group, boardID, items, err := e.groupItems(ctx, r, in.BoardName, in.GroupName)
	if err != nil {
		return Result{Error: err.Error()}
	}
	report := BuildWorkloadReport(items)
	report.BoardID, report.GroupID, report.Group = boardID, group.ID, group.Title
	return Result{Success: true, Workload: &report, Summary: report.String()}
}

func statusOf(it domain.ItemSnapshot) string {
	if s := strings.TrimSpace(it.Status); s != "" {
		return s
	}
	return noStatus
}

// BuildStatusReport tallies items by status text, most common first.
func BuildStatusReport(items []domain.ItemSnapshot) StatusReport {
	counts := map[string]int{}
	for _, it := range items {
		counts[statusOf(it)]++
	}
	report := StatusReport{Total: len(items)}
	for status, n := range counts {
		report.Statuses = append(report.Statuses, StatusCount{
			Status:  status,
			Count:   n,
			Percent: float64(n) * 100 / float64(len(items)),
		})
	}
	sort.Slice(report.Statuses, func(i, j int) bool {
		a, b := report.Statuses[i], report.Statuses[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Status < b.Status
	})
	return report
}

// Assignees splits comma joined people text into distinct names.
func Assignees(people string) []string {
	var names []string
	seen := map[string]bool{}
	for _, part := range strings.Split(people, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return []string{unassigned}
	}
	return names
}

// BuildWorkloadReport counts items per assignee and status. An item with
// several assignees counts once for each of them. Assignees with more than
// three not started items or any stuck item are listed as bottlenecks.
func BuildWorkloadReport(items []domain.ItemSnapshot) WorkloadReport {
	loads := map[string]*AssigneeLoad{}
	for _, it := range items {
		status := statusOf(it)
		for _, name := range Assignees(it.People) {
			l, ok := loads[name]
			if !ok {
				l = &AssigneeLoad{Name: name, ByStatus: map[string]int{}}
				loads[name] = l
			}
			l.Total++
			l.ByStatus[status]++
		}
	}
	report := WorkloadReport{Total: len(items)}
	for _, l := range loads {
		report.Assignees = append(report.Assignees, *l)
	}
	sort.Slice(report.Assignees, func(i, j int) bool {
		return report.Assignees[i].Name < report.Assignees[j].Name
	})
	for _, l := range report.Assignees {
		if l.Name == unassigned {
			continue
		}
		notStarted, stuck := 0, 0
		for status, n := range l.ByStatus {
			switch strings.ToLower(status) {
			case strings.ToLower(noStatus), "not started":
				notStarted += n
			case "stuck":
				stuck += n
			}
		}
		if notStarted > maxNotStarted {
			report.Bottlenecks = append(report.Bottlenecks, fmt.Sprintf("%s has %d items not started", l.Name, notStarted))
		}
		if stuck > 0 {
			report.Bottlenecks = append(report.Bottlenecks, fmt.Sprintf("%s has %d stuck items", l.Name, stuck))
		}
	}
	return report
}

func (s StatusReport) String() string {
	if s.Total == 0 {
		return fmt.Sprintf("Group %q has no items.", s.Group)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Group %q has %d items:", s.Group, s.Total)
	for _, c := range s.Statuses {
		fmt.Fprintf(&b, "\n- %s: %d (%.0f%%)", c.Status, c.Count, c.Percent)
	}
	return b.String()
}

func (w WorkloadReport) String() string {
	if w.Total == 0 {
		return fmt.Sprintf("Group %q has no items.", w.Group)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Workload for group %q (%d items):", w.Group, w.Total)
	for _, a := range w.Assignees {
		statuses := make([]string, 0, len(a.ByStatus))
		for s := range a.ByStatus {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		parts := make([]string, len(statuses))
		for i, s := range statuses {
			parts[i] = fmt.Sprintf("%s %d", s, a.ByStatus[s])
		}
		fmt.Fprintf(&b, "\n- %s: %d (%s)", a.Name, a.Total, strings.Join(parts, ", "))
	}
	if len(w.Bottlenecks) > 0 {
		b.WriteString("\nBottlenecks:")
		for _, line := range w.Bottlenecks {
			b.WriteString("\n- " + line)
		}
	}
	return b.String()
}
