package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/storage"
	"github.com/KarmaFounder/friday-jarvis/workflow"
)

const (
	goodAuth  = "Bearer good.token.sig"
	otherAuth = "Bearer other.token.sig"
)

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	switch h {
	case goodAuth:
		return "user-1", nil
	case otherAuth:
		return "user-2", nil
	}
	return "", errors.New("bad auth header")
}

type fakeExecutor struct {
	mu       sync.Mutex
	intents  []domain.Intent
	sessions []string
	result   workflow.Result
}

func (f *fakeExecutor) Execute(_ context.Context, intent domain.Intent, sessionID string) workflow.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
	f.sessions = append(f.sessions, sessionID)
	res := f.result
	if res.Procedure == "" {
		res.Procedure = string(intent.Kind())
	}
	return res
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

type fakeExtractor struct {
	intent domain.Intent
	err    error
}

func (f fakeExtractor) ExtractIntent(context.Context, string) (domain.Intent, error) {
	return f.intent, f.err
}

type fakeRunStore struct {
	runs      []storage.Run
	lastLimit int
}

func (f *fakeRunStore) GetRun(_ context.Context, userID, runID string) (storage.Run, error) {
	for _, r := range f.runs {
		if r.UserID == userID && r.ID == runID {
			return r, nil
		}
	}
	return storage.Run{}, domain.NewNotFound("run", runID)
}

func (f *fakeRunStore) ListRuns(_ context.Context, userID string, limit int) ([]storage.Run, error) {
	f.lastLimit = limit
	var out []storage.Run
	for _, r := range f.runs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeRecorder struct {
	jobs []domain.Job
}

func (f *fakeRecorder) Record(_ context.Context, job domain.Job, _ workflow.Result, _ time.Time) {
	f.jobs = append(f.jobs, job)
}

type fakeQueue struct {
	jobs []domain.Job
	err  error
}

func (f *fakeQueue) EnqueueJob(_ context.Context, job domain.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeRunner struct {
	jobs    chan domain.Job
	release chan struct{}
	result  workflow.Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, job domain.Job) (workflow.Result, error) {
	if f.jobs != nil {
		f.jobs <- job
	}
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

type fakeKeys struct {
	mu       sync.Mutex
	holders  map[string]string
	released chan string
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{holders: map[string]string{}, released: make(chan string, 8)}
}

func (f *fakeKeys) Claim(_ context.Context, userID, key, jobID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := userID + "/" + key
	if holder, ok := f.holders[k]; ok {
		return holder, false, nil
	}
	f.holders[k] = jobID
	return jobID, true, nil
}

func (f *fakeKeys) Release(_ context.Context, userID, key, jobID string) error {
	f.mu.Lock()
	k := userID + "/" + key
	if f.holders[k] == jobID {
		delete(f.holders, k)
	}
	f.mu.Unlock()
	f.released <- key
	return nil
}

func newTestServer(d Deps) *echo.Echo {
	if d.Auth == nil {
		d.Auth = mockAuth{}
	}
	e := echo.New()
	Register(e, d)
	return e
}

func doRequest(e *echo.Echo, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, goodAuth)
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i+1] == "" {
			req.Header.Del(headers[i])
			continue
		}
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}
