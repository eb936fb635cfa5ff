// Package workflow composes name resolution, schema discovery and remote
// mutations into the user-facing procedures. Only group resolution and the
// creation of the parent item are required; every later step is recorded and
// never aborts the procedure.
package workflow

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/progress"
	"github.com/KarmaFounder/friday-jarvis/schema"
)

const tracerName = "github.com/KarmaFounder/friday-jarvis/workflow"

// Defaults applied when a request leaves them out.
const (
	DefaultGroup        = "operations"
	DefaultParentStatus = "Briefed In"
)

// Remote performs mutations and reads on the project-management API.
type Remote interface {
	CreateItem(ctx context.Context, boardID, groupID, name string) (domain.Item, error)
	CreateSubitem(ctx context.Context, parentID, name string) (domain.Item, error)
	ChangeColumnValue(ctx context.Context, boardID, itemID, columnID string, value any) error
	CreateUpdate(ctx context.Context, itemID, body string) error
	GroupItems(ctx context.Context, boardID, groupID string) ([]domain.ItemSnapshot, error)
}

// Resolver turns names into remote entities.
type Resolver interface {
	ResolveBoard(ctx context.Context, name string) (domain.Board, error)
	ResolveGroup(ctx context.Context, boardID, name string) (domain.Group, error)
	ResolveUser(ctx context.Context, name string) (domain.User, error)
	ResolveStatus(ctx context.Context, boardID, text string) (domain.StatusLabel, error)
	ResolveItem(ctx context.Context, boardID, name string) (domain.ItemSnapshot, error)
	ListBoards(ctx context.Context) ([]domain.Board, error)
	SearchItems(ctx context.Context, boardID, query string) ([]domain.ItemSnapshot, error)
}

// Schemas provides board column definitions.
type Schemas interface {
	Get(ctx context.Context, boardID string) (schema.Schema, error)
}

// Generator authors text for updates and subtask names.
type Generator interface {
	GenerateUpdate(ctx context.Context, topic string) (string, error)
	GenerateSubtaskNames(ctx context.Context, source string, count int) ([]string, error)
}

// DateNormalizer converts deadline text to YYYY-MM-DD.
type DateNormalizer interface {
	Normalize(text string) (string, bool)
}

// Deps are the collaborators of an Executor. Generator and Progress may be
// nil: steps needing generated text then fail, and progress is not reported.
type Deps struct {
	Remote    Remote
	Resolver  Resolver
	Schemas   Schemas
	Generator Generator
	Dates     DateNormalizer
	Progress  progress.Publisher
	Metrics   *Metrics
	Logger    *log.Logger
	Tracer    trace.Tracer
}

// Executor runs workflows.
type Executor struct {
	remote   Remote
	resolver Resolver
	schemas  Schemas
	gen      Generator
	dates    DateNormalizer
	progress progress.Publisher
	metrics  *Metrics
	log      *log.Logger
	tracer   trace.Tracer
}

// New creates an Executor. Remote, Resolver, Schemas and Dates are required.
func New(d Deps) *Executor {
	if d.Remote == nil || d.Resolver == nil || d.Schemas == nil || d.Dates == nil {
		panic("workflow.New: missing required dependency")
	}
	e := &Executor{
		remote:   d.Remote,
		resolver: d.Resolver,
		schemas:  d.Schemas,
		gen:      d.Generator,
		dates:    d.Dates,
		progress: d.Progress,
		metrics:  d.Metrics,
		log:      d.Logger,
		tracer:   d.Tracer,
	}
	if e.log == nil {
		e.log = log.StandardLogger()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Execute dispatches intent to its procedure.
func (e *Executor) Execute(ctx context.Context, intent domain.Intent, sessionID string) Result {
	switch in := intent.(type) {
	case domain.CreateTaskIntent:
		return e.CreateTask(ctx, in, sessionID)
	case domain.CreateTaskWithSubtasksIntent:
		return e.CreateTaskWithSubtasks(ctx, in, sessionID)
	case domain.CreateProjectIntent:
		return e.CreateAutonomousProject(ctx, in, sessionID)
	case domain.StatusReportIntent:
		return e.StatusReport(ctx, in)
	case domain.WorkloadReportIntent:
		return e.WorkloadReport(ctx, in)
	case domain.ListBoardsIntent:
		return e.ListBoards(ctx)
	case domain.SearchTasksIntent:
		return e.SearchTasks(ctx, in)
	case domain.AddUpdateIntent:
		return e.AddUpdate(ctx, in, sessionID)
	case domain.SetStatusIntent:
		return e.SetStatus(ctx, in, sessionID)
	default:
		return Result{Error: fmt.Sprintf("unsupported intent %T", intent)}
	}
}

func (e *Executor) publish(sessionID string, kind domain.ProgressKind, format string, args ...any) {
	if e.progress == nil || sessionID == "" {
		return
	}
	e.progress.Publish(sessionID, kind, fmt.Sprintf(format, args...))
}

// start opens the span and step log of one procedure run.
func (e *Executor) start(ctx context.Context, procedure string, attrs ...attribute.KeyValue) (context.Context, *run) {
	ctx, span := e.tracer.Start(ctx, "workflow."+procedure, trace.WithAttributes(attrs...))
	r := &run{
		procedure: procedure,
		span:      span,
		metrics:   e.metrics,
		log:       e.log.WithField("procedure", procedure),
	}
	return ctx, r
}

// end closes the span of r and fills the common result fields.
func (r *run) end(res *Result) {
	res.Procedure = r.procedure
	res.Steps = r.steps
	if res.Error != "" {
		r.span.SetStatus(codes.Error, res.Error)
	}
	r.span.SetAttributes(
		attribute.Bool("workflow.success", res.Success),
		attribute.Int("workflow.steps.failed", r.failed()),
	)
	r.span.End()
	r.metrics.observeRun(r.procedure, res.Success)
	fields := log.Fields{"success": res.Success, "steps": len(r.steps), "failed_steps": r.failed()}
	if res.Item != nil {
		fields["item"] = res.Item.ID
	}
	if res.Error != "" {
		fields["error"] = res.Error
	}
	r.log.WithFields(fields).Info("workflow finished")
}
