package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/content"
	"github.com/KarmaFounder/friday-jarvis/domain"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerSessionID      = "X-Session-ID"

	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// Deps are the collaborators of the HTTP handlers. Executor and Auth are
// required; the rest switch features off when nil.
type Deps struct {
	Executor    Executor
	Auth        Authenticator
	Extractor   IntentExtractor
	Idempotency IdempotencyKeys
	Runs        RunStore
	Recorder    RunRecorder
	Queue       JobQueue
	Dispatcher  *Dispatcher
	Progress    ProgressHub
	Sessions    SessionOwners
	Health      func(ctx context.Context) error
	Logger      *log.Logger
}

type handlers struct {
	Deps
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Executor == nil || d.Auth == nil {
		panic("api: executor and auth are required")
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.Sessions == nil {
		d.Sessions = newMemorySessionOwners(sessionOwnerTTL)
	}
	h := &handlers{Deps: d}

	e.GET("/healthz", h.healthz)
	e.POST("/api/tasks", h.intentRoute("/api/tasks", bodyIntent[domain.CreateTaskIntent]))
	e.POST("/api/tasks/subtasks", h.intentRoute("/api/tasks/subtasks", bodyIntent[domain.CreateTaskWithSubtasksIntent]))
	e.POST("/api/projects", h.intentRoute("/api/projects", bodyIntent[domain.CreateProjectIntent]))
	e.GET("/api/reports/status", h.intentRoute("/api/reports/status", func(c echo.Context) (domain.Intent, error) {
		return domain.StatusReportIntent{BoardName: c.QueryParam("board"), GroupName: c.QueryParam("group")}, nil
	}))
	e.GET("/api/reports/workload", h.intentRoute("/api/reports/workload", func(c echo.Context) (domain.Intent, error) {
		return domain.WorkloadReportIntent{BoardName: c.QueryParam("board"), GroupName: c.QueryParam("group")}, nil
	}))
	e.GET("/api/boards", h.intentRoute("/api/boards", func(echo.Context) (domain.Intent, error) {
		return domain.ListBoardsIntent{}, nil
	}))
	e.GET("/api/tasks/search", h.intentRoute("/api/tasks/search", func(c echo.Context) (domain.Intent, error) {
		return domain.SearchTasksIntent{BoardName: c.QueryParam("board"), Query: c.QueryParam("q")}, nil
	}))
	e.POST("/api/tasks/update", h.intentRoute("/api/tasks/update", bodyIntent[domain.AddUpdateIntent]))
	e.POST("/api/tasks/status", h.intentRoute("/api/tasks/status", bodyIntent[domain.SetStatusIntent]))
	e.POST("/api/chat", h.chat)
	e.GET("/api/progress/:session", h.streamProgress)
	e.GET("/api/runs", h.listRuns)
	e.GET("/api/runs/:id", h.getRun)
}

type intentDecoder func(c echo.Context) (domain.Intent, error)

func bodyIntent[T domain.Intent](c echo.Context) (domain.Intent, error) {
	var in T
	if err := decodeBody(c, &in); err != nil {
		return nil, err
	}
	return in, nil
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *handlers) healthz(c echo.Context) error {
	if h.Health != nil {
		if err := h.Health(c.Request().Context()); err != nil {
			h.Logger.WithError(err).Warn("health check failed")
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) intentRoute(route string, decode intentDecoder) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), h.Logger, route)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := authorize(c, h.Auth, false)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
		}
		intent, decErr := decode(c)
		if decErr != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return h.dispatch(c, ctx, metrics, userID, intent, "")
	}
}

func (h *handlers) chat(c echo.Context) (err error) {
	metrics, ctx := newRequestMetrics(c.Request().Context(), h.Logger, "/api/chat")
	c.SetRequest(c.Request().WithContext(ctx))
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	userID, authErr := authorize(c, h.Auth, false)
	if authErr != nil {
		metrics.SetErrorStage("auth")
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
	}
	if h.Extractor == nil {
		metrics.SetErrorStage("extractor")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "intent extraction is not configured"})
	}
	var req chatRequest
	if decErr := decodeBody(c, &req); decErr != nil || strings.TrimSpace(req.Text) == "" {
		metrics.SetErrorStage("decode")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	intent, exErr := h.Extractor.ExtractIntent(ctx, req.Text)
	switch {
	case errors.Is(exErr, content.ErrNoIntent):
		metrics.SetErrorStage("no_intent")
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: exErr.Error()})
	case exErr != nil:
		metrics.SetErrorStage("extract")
		h.Logger.WithError(exErr).Warn("intent extraction failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "could not understand the request"})
	}
	return h.dispatch(c, ctx, metrics, userID, intent, req.SessionID)
}

// dispatch runs intent inline or hands it to the async path.
func (h *handlers) dispatch(c echo.Context, ctx context.Context, m *requestMetrics, userID string, intent domain.Intent, sessionID string) error {
	async := wantsAsync(c)
	m.SetAsync(async)
	sessionID = sessionFor(c, intent, sessionID)
	if async && sessionID == "" {
		sessionID = uuid.NewString()
	}
	if sessionID != "" && h.Sessions != nil {
		owned, serr := h.Sessions.Bind(ctx, sessionID, userID)
		switch {
		case serr != nil:
			h.Logger.WithError(serr).WithField("session", sessionID).Warn("session ownership check failed")
		case !owned:
			m.SetErrorStage("session")
			return c.JSON(http.StatusForbidden, errorResponse{Error: "session belongs to another user"})
		}
	}

	job, err := newJob(userID, sessionID, intent)
	if err != nil {
		m.SetErrorStage("encode_job")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not encode request"})
	}

	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
	m.SetIdempotent(key != "")
	if key != "" && h.Idempotency != nil {
		holder, claimed, cerr := h.Idempotency.Claim(ctx, userID, key, job.ID)
		switch {
		case cerr != nil:
			h.Logger.WithError(cerr).Warn("idempotency claim failed; continuing without it")
			key = ""
		case !claimed:
			m.SetErrorStage("duplicate")
			return c.JSON(http.StatusConflict, duplicateResponse{Error: "duplicate request", JobID: holder})
		}
	} else {
		key = ""
	}

	if async {
		if h.handOff(ctx, job, key) {
			return c.JSON(http.StatusAccepted, acceptedResponse{Success: true, JobID: job.ID, SessionID: sessionID})
		}
		h.Logger.Warn("async dispatch unavailable; processing inline")
	}

	started := time.Now()
	res := h.Executor.Execute(ctx, intent, sessionID)
	m.ObserveExecute(time.Since(started))
	m.SetOutcome(res.Procedure, res.Success)

	resp := workflowResponse{Result: res}
	if h.Recorder != nil {
		h.Recorder.Record(ctx, job, res, started)
		resp.RunID = job.ID
	}
	if key != "" && createdNothing(res, nil) {
		h.release(job, key)
	}
	status := http.StatusOK
	if !res.Success {
		m.SetErrorStage("workflow")
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, resp)
}

// handOff passes job to the queue when configured, else to the dispatcher.
func (h *handlers) handOff(ctx context.Context, job domain.Job, key string) bool {
	if h.Queue != nil {
		err := h.Queue.EnqueueJob(ctx, job)
		if err == nil {
			return true
		}
		h.Logger.WithError(err).WithField("job", job.ID).Error("enqueue job failed")
	}
	if h.Dispatcher != nil {
		return h.Dispatcher.Submit(job, key)
	}
	return false
}

func (h *handlers) release(job domain.Job, key string) {
	if err := h.Idempotency.Release(context.Background(), job.UserID, key, job.ID); err != nil {
		h.Logger.WithError(err).WithFields(log.Fields{"user": job.UserID, "job": job.ID}).Error("releasing idempotency key failed")
	}
}

func (h *handlers) listRuns(c echo.Context) error {
	userID, err := authorize(c, h.Auth, false)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	}
	if h.Runs == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "run history is not configured"})
	}
	limit := defaultRunsLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit"})
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := h.Runs.ListRuns(c.Request().Context(), userID, limit)
	if err != nil {
		h.Logger.WithError(err).Error("list runs")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not load runs"})
	}
	return c.JSON(http.StatusOK, runsResponse{Runs: runs})
}

func (h *handlers) getRun(c echo.Context) error {
	userID, err := authorize(c, h.Auth, false)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	}
	if h.Runs == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "run history is not configured"})
	}
	run, err := h.Runs.GetRun(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		if domain.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		}
		h.Logger.WithError(err).Error("get run")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not load run"})
	}
	return c.JSON(http.StatusOK, run)
}

func newJob(userID, sessionID string, intent domain.Intent) (domain.Job, error) {
	entities, err := sonic.Marshal(intent)
	if err != nil {
		return domain.Job{}, err
	}
	return domain.Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Kind:      intent.Kind(),
		Entities:  entities,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

func wantsAsync(c echo.Context) bool {
	async, err := strconv.ParseBool(c.QueryParam("async"))
	return err == nil && async
}

// sessionFor picks the progress session: explicit value, then header, then
// query, then the session named inside a project intent.
func sessionFor(c echo.Context, intent domain.Intent, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if s := c.Request().Header.Get(headerSessionID); s != "" {
		return s
	}
	if s := c.QueryParam("session"); s != "" {
		return s
	}
	if p, ok := intent.(domain.CreateProjectIntent); ok {
		return p.SessionID
	}
	return ""
}
