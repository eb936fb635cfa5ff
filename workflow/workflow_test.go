package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

func TestProjectWithBareSubtaskStillCreatesSubitem(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateAutonomousProject(context.Background(), domain.CreateProjectIntent{
		TaskName: "Fall launch",
		Subtasks: []domain.SubtaskSpec{{Name: "Copy"}},
	}, "")

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.Subtasks) != 1 || !res.Subtasks[0].Created || res.Subtasks[0].Item == nil {
		t.Fatalf("expected created subtask, got %+v", res.Subtasks)
	}
	for _, name := range []string{stepUpdate, stepAssign, stepDeadline, stepStatus} {
		if got, _ := stepOutcome(res.Subtasks[0].Steps, name); got != domain.StepSkipped {
			t.Fatalf("subtask step %q: expected skipped, got %q", name, got)
		}
	}
	if len(f.remote.subitems) != 1 || f.remote.subitems[0] != "Copy" {
		t.Fatalf("unexpected subitems %v", f.remote.subitems)
	}
}

func TestParentAssignFailureDoesNotStopLaterSteps(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateAutonomousProject(context.Background(), domain.CreateProjectIntent{
		TaskName:    "Fall launch",
		ProjectLead: "Ghost",
		Deadline:    "September 24",
	}, "")

	if !res.Success {
		t.Fatalf("expected success despite assign failure: %+v", res)
	}
	if got, _ := stepOutcome(res.Steps, stepAssign); got != domain.StepFailed {
		t.Fatalf("expected assign failure, got %q", got)
	}
	changes := f.remote.changesFor(res.Item.ID)
	if len(changes) != 2 {
		t.Fatalf("expected deadline and status changes, got %+v", changes)
	}
	date := changes[0].value.(map[string]string)
	if changes[0].columnID != "date4" || date["date"] != "2025-09-24" {
		t.Fatalf("unexpected deadline change %+v", changes[0])
	}
	status := changes[1].value.(map[string]any)
	if changes[1].columnID != "status" || status["index"] != 5 {
		t.Fatalf("expected default status label, got %+v", changes[1])
	}
	if len(res.FailedSteps()) != 1 {
		t.Fatalf("expected one failed step, got %+v", res.FailedSteps())
	}
}

func TestSubtaskColumnsUseSubitemBoard(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateAutonomousProject(context.Background(), domain.CreateProjectIntent{
		TaskName: "Fall launch",
		Subtasks: []domain.SubtaskSpec{{
			Name:         "Copy",
			Brief:        "Write three headlines",
			AssigneeName: "bob",
			Status:       "working on it",
			Deadline:     "2025-07-01",
		}},
	}, "")

	sub := res.Subtasks[0]
	if !sub.Created {
		t.Fatalf("subtask not created: %+v", sub)
	}
	changes := f.remote.changesFor(sub.Item.ID)
	if len(changes) != 3 {
		t.Fatalf("expected assign, deadline and status changes, got %+v", changes)
	}
	for _, c := range changes {
		if c.boardID != "sub-board" {
			t.Fatalf("subtask change used board %q", c.boardID)
		}
	}
	people := changes[0].value.(map[string]any)["personsAndTeams"].([]map[string]any)
	if people[0]["id"] != int64(102) || people[0]["kind"] != "person" {
		t.Fatalf("unexpected people value %+v", people)
	}
	if got := f.remote.updates[sub.Item.ID]; len(got) != 1 || got[0] != "Write three headlines" {
		t.Fatalf("unexpected subtask updates %v", got)
	}
}

func TestProjectLeadFallsBackToFirstSubtaskAssignee(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateAutonomousProject(context.Background(), domain.CreateProjectIntent{
		TaskName: "Fall launch",
		Subtasks: []domain.SubtaskSpec{{Name: "Copy", AssigneeName: "Alice"}},
	}, "")

	parent := f.remote.changesFor(res.Item.ID)
	if len(parent) == 0 || parent[0].columnID != "person" {
		t.Fatalf("expected parent to be assigned, got %+v", parent)
	}
	if !strings.Contains(res.Summary, "assigned to Alice Smith") {
		t.Fatalf("summary does not mention assignment: %s", res.Summary)
	}
}

func TestSubtaskFailureDoesNotAbortRemaining(t *testing.T) {
	f := newFixture()
	f.remote.subitemErr = map[string]error{"Broken": errors.New("rejected")}
	res := f.exec.CreateAutonomousProject(context.Background(), domain.CreateProjectIntent{
		TaskName: "Fall launch",
		Subtasks: []domain.SubtaskSpec{{Name: "Broken"}, {Name: ""}, {Name: "Copy"}},
	}, "")

	if !res.Success || len(res.Subtasks) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Subtasks[0].Created || res.Subtasks[1].Created || !res.Subtasks[2].Created {
		t.Fatalf("unexpected outcomes %+v", res.Subtasks)
	}
	if len(res.Item.Subitems) != 1 {
		t.Fatalf("expected one subitem on the parent, got %d", len(res.Item.Subitems))
	}
}

func TestProjectProgressEvents(t *testing.T) {
	f := newFixture()
	f.exec.CreateAutonomousProject(context.Background(), domain.CreateProjectIntent{
		TaskName:  "Fall launch",
		SessionID: "s1",
		Subtasks:  []domain.SubtaskSpec{{Name: "Copy"}, {Name: "Design"}},
	}, "")

	want := []recordedEvent{
		{"s1", domain.ProgressInfo, `Starting project "Fall launch" with 2 subtasks`},
		{"s1", domain.ProgressStep, "creating subtask 1/2: Copy"},
		{"s1", domain.ProgressStep, "creating subtask 2/2: Design"},
		{"s1", domain.ProgressComplete, `Project "Fall launch" created with 2/2 subtasks`},
	}
	if len(f.publisher.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), f.publisher.events)
	}
	for i, ev := range want {
		if f.publisher.events[i] != ev {
			t.Fatalf("event %d: expected %+v, got %+v", i, ev, f.publisher.events[i])
		}
	}
}

func TestRequiredStepFailures(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateTask(context.Background(), domain.CreateTaskIntent{TaskName: "X", GroupName: "finance"}, "")
	if res.Success || !strings.Contains(res.Error, "finance") {
		t.Fatalf("expected group failure, got %+v", res)
	}

	f.remote.createItemErr = &domain.RemoteError{Operation: "create_item", Messages: []string{"board is archived"}}
	res = f.exec.CreateAutonomousProject(context.Background(), domain.CreateProjectIntent{TaskName: "X", SessionID: "s"}, "")
	if res.Success || !strings.Contains(res.Error, "board is archived") {
		t.Fatalf("expected create failure, got %+v", res)
	}
	last := f.publisher.events[len(f.publisher.events)-1]
	if last.kind != domain.ProgressComplete {
		t.Fatalf("expected a final complete event, got %+v", last)
	}

	res = f.exec.CreateTask(context.Background(), domain.CreateTaskIntent{}, "")
	if res.Success || res.Error == "" {
		t.Fatalf("expected missing name failure, got %+v", res)
	}
}

func TestCreateTaskDerivesSubtasksFromUpdate(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateTask(context.Background(), domain.CreateTaskIntent{
		TaskName:     "Launch",
		AssigneeName: "alice",
		UpdateTopic:  "fall campaign",
		SubtaskCount: 2,
		Deadline:     "not a date",
	}, "")

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.Item.Subitems) != 2 || f.gen.sources[0] != "Update about fall campaign" {
		t.Fatalf("unexpected subitems %+v from %v", res.Item.Subitems, f.gen.sources)
	}
	if got := f.remote.updates[res.Item.ID]; len(got) != 1 || got[0] != "Update about fall campaign" {
		t.Fatalf("unexpected updates %v", got)
	}
	if got, _ := stepOutcome(res.Steps, stepDeadline); got != domain.StepFailed {
		t.Fatalf("expected deadline parse failure, got %q", got)
	}
}

func TestCreateTaskWithoutUpdateSkipsSubtasks(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateTask(context.Background(), domain.CreateTaskIntent{TaskName: "Launch", SubtaskCount: 3}, "")
	if !res.Success || len(res.Item.Subitems) != 0 || len(f.gen.sources) != 0 {
		t.Fatalf("expected no subtasks, got %+v", res)
	}

	f.gen.updateErr = errors.New("model offline")
	res = f.exec.CreateTask(context.Background(), domain.CreateTaskIntent{TaskName: "Launch", UpdateTopic: "x", SubtaskCount: 3}, "")
	if !res.Success || len(res.Item.Subitems) != 0 {
		t.Fatalf("expected generation failure to skip subtasks, got %+v", res)
	}
	if got, _ := stepOutcome(res.Steps, stepGenerate); got != domain.StepFailed {
		t.Fatalf("expected generate failure, got %q", got)
	}
}

func TestCreateTaskWithSubtasks(t *testing.T) {
	f := newFixture()
	res := f.exec.CreateTaskWithSubtasks(context.Background(), domain.CreateTaskWithSubtasksIntent{
		TaskName:     "Launch",
		SubtaskTopic: "media plan",
		SubtaskCount: 3,
	}, "")
	if !res.Success || len(res.Item.Subitems) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.gen.sources[0] != "media plan" {
		t.Fatalf("expected subtask topic as source, got %v", f.gen.sources)
	}
}

func TestCreateTaskWithoutGenerator(t *testing.T) {
	f := newFixture(func(d *Deps) { d.Generator = nil })
	res := f.exec.CreateTaskWithSubtasks(context.Background(), domain.CreateTaskWithSubtasksIntent{
		TaskName:     "Launch",
		UpdateTopic:  "x",
		SubtaskCount: 2,
	}, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.FailedSteps()) != 2 {
		t.Fatalf("expected generate and subtask steps to fail, got %+v", res.FailedSteps())
	}
}

func TestExecuteDispatch(t *testing.T) {
	f := newFixture()
	f.remote.items = []domain.ItemSnapshot{{ID: "1", Status: "Done"}}
	res := f.exec.Execute(context.Background(), domain.StatusReportIntent{}, "")
	if res.Procedure != ProcStatusReport || res.Status == nil || res.Status.Total != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	res = f.exec.Execute(context.Background(), nil, "")
	if res.Success || res.Error == "" {
		t.Fatalf("expected unsupported intent error, got %+v", res)
	}
}

func TestStepMetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := newFixture(func(d *Deps) {
		d.Metrics = metrics
		d.Tracer = tp.Tracer("test")
	})
	f.exec.CreateTask(context.Background(), domain.CreateTaskIntent{TaskName: "Launch", AssigneeName: "nobody"}, "")

	if got := testutil.ToFloat64(metrics.steps.WithLabelValues(ProcCreateTask, stepAssign, string(domain.StepFailed))); got != 1 {
		t.Fatalf("expected one failed assign step, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues(ProcCreateTask, "true")); got != 1 {
		t.Fatalf("expected one successful run, got %v", got)
	}
	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "workflow."+ProcCreateTask {
		t.Fatalf("unexpected spans %+v", spans)
	}
}
