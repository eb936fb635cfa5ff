package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/KarmaFounder/friday-jarvis/dates"
	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/schema"
)

type change struct {
	boardID  string
	itemID   string
	columnID string
	value    any
}

type fakeRemote struct {
	mu            sync.Mutex
	nextID        int
	subBoard      string
	createItemErr error
	subitemErr    map[string]error
	changeErr     map[string]error
	changes       []change
	updates       map[string][]string
	subitems      []string
	items         []domain.ItemSnapshot
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{subBoard: "sub-board", updates: map[string][]string{}}
}

func (f *fakeRemote) CreateItem(_ context.Context, boardID, groupID, name string) (domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createItemErr != nil {
		return domain.Item{}, f.createItemErr
	}
	f.nextID++
	return domain.Item{ID: fmt.Sprintf("item-%d", f.nextID), Name: name, BoardID: boardID, GroupID: groupID}, nil
}

func (f *fakeRemote) CreateSubitem(_ context.Context, parentID, name string) (domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subitemErr[name]; err != nil {
		return domain.Item{}, err
	}
	f.nextID++
	f.subitems = append(f.subitems, name)
	return domain.Item{ID: fmt.Sprintf("sub-%d", f.nextID), Name: name, BoardID: f.subBoard}, nil
}

func (f *fakeRemote) ChangeColumnValue(_ context.Context, boardID, itemID, columnID string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.changeErr[columnID]; err != nil {
		return err
	}
	f.changes = append(f.changes, change{boardID: boardID, itemID: itemID, columnID: columnID, value: value})
	return nil
}

func (f *fakeRemote) CreateUpdate(_ context.Context, itemID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[itemID] = append(f.updates[itemID], body)
	return nil
}

func (f *fakeRemote) GroupItems(context.Context, string, string) ([]domain.ItemSnapshot, error) {
	return f.items, nil
}

func (f *fakeRemote) changesFor(itemID string) []change {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []change
	for _, c := range f.changes {
		if c.itemID == itemID {
			out = append(out, c)
		}
	}
	return out
}

var boardColumns = []domain.Column{
	{ID: "name", Type: domain.ColumnText},
	{ID: "status", Type: domain.ColumnStatus, Settings: `{"labels":{"0":"Working on it","1":"Done","2":"Stuck","5":"Briefed In"}}`},
	{ID: "person", Type: domain.ColumnPeople},
	{ID: "date4", Type: domain.ColumnDate},
}

type fakeSchemas struct {
	mu        sync.Mutex
	requested []string
}

func (f *fakeSchemas) Get(_ context.Context, boardID string) (schema.Schema, error) {
	f.mu.Lock()
	f.requested = append(f.requested, boardID)
	f.mu.Unlock()
	return schema.Schema{BoardID: boardID, Columns: boardColumns}, nil
}

type fakeResolver struct {
	schemas *fakeSchemas
	groups  map[string]domain.Group
	users   map[string]domain.User
	boards  []domain.Board
	items   []domain.ItemSnapshot
}

func newFakeResolver(s *fakeSchemas) *fakeResolver {
	return &fakeResolver{
		schemas: s,
		groups:  map[string]domain.Group{"operations": {ID: "g-ops", Title: "AI Agent Operations"}},
		users: map[string]domain.User{
			"alice": {ID: "101", Name: "Alice Smith"},
			"bob":   {ID: "102", Name: "Bob Jones"},
		},
	}
}

func (f *fakeResolver) ResolveBoard(_ context.Context, name string) (domain.Board, error) {
	return domain.Board{ID: "board-1", Name: "Paid Media CRM"}, nil
}

func (f *fakeResolver) ResolveGroup(_ context.Context, _ string, name string) (domain.Group, error) {
	if g, ok := f.groups[strings.ToLower(name)]; ok {
		return g, nil
	}
	return domain.Group{}, domain.NewNotFound("group", name)
}

func (f *fakeResolver) ResolveUser(_ context.Context, name string) (domain.User, error) {
	if u, ok := f.users[strings.ToLower(name)]; ok {
		return u, nil
	}
	return domain.User{}, domain.NewNotFound("user", name)
}

func (f *fakeResolver) ResolveStatus(ctx context.Context, boardID, text string) (domain.StatusLabel, error) {
	s, _ := f.schemas.Get(ctx, boardID)
	if label, ok := schema.StatusLabelID(s, text); ok {
		return label, nil
	}
	return domain.StatusLabel{}, domain.NewNotFound("status", text)
}

func (f *fakeResolver) ListBoards(context.Context) ([]domain.Board, error) {
	return f.boards, nil
}

func (f *fakeResolver) SearchItems(_ context.Context, _ string, query string) ([]domain.ItemSnapshot, error) {
	var out []domain.ItemSnapshot
	for _, it := range f.items {
		if strings.Contains(strings.ToLower(it.Name), strings.ToLower(query)) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeResolver) ResolveItem(_ context.Context, _ string, name string) (domain.ItemSnapshot, error) {
	for _, it := range f.items {
		if strings.EqualFold(it.Name, name) {
			return it, nil
		}
	}
	return domain.ItemSnapshot{}, domain.NewNotFound("item", name)
}

type fakeGenerator struct {
	updateErr error
	names     []string
	sources   []string
}

func (f *fakeGenerator) GenerateUpdate(_ context.Context, topic string) (string, error) {
	if f.updateErr != nil {
		return "", f.updateErr
	}
	return "Update about " + topic, nil
}

func (f *fakeGenerator) GenerateSubtaskNames(_ context.Context, source string, count int) ([]string, error) {
	f.sources = append(f.sources, source)
	if len(f.names) == 0 {
		return nil, errors.New("no names")
	}
	if count < len(f.names) {
		return f.names[:count], nil
	}
	return f.names, nil
}

type recordedEvent struct {
	session string
	kind    domain.ProgressKind
	message string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(sessionID string, kind domain.ProgressKind, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{session: sessionID, kind: kind, message: message})
}

type fixture struct {
	remote    *fakeRemote
	schemas   *fakeSchemas
	resolver  *fakeResolver
	gen       *fakeGenerator
	publisher *recordingPublisher
	exec      *Executor
}

func newFixture(opts ...func(*Deps)) *fixture {
	logger, _ := test.NewNullLogger()
	f := &fixture{
		remote:    newFakeRemote(),
		schemas:   &fakeSchemas{},
		gen:       &fakeGenerator{names: []string{"Draft copy", "Design banners", "Book media"}},
		publisher: &recordingPublisher{},
	}
	f.resolver = newFakeResolver(f.schemas)
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	d := Deps{
		Remote:    f.remote,
		Resolver:  f.resolver,
		Schemas:   f.schemas,
		Generator: f.gen,
		Dates:     dates.New(dates.WithClock(func() time.Time { return now }), dates.WithLocation(time.UTC)),
		Progress:  f.publisher,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&d)
	}
	f.exec = New(d)
	return f
}

func stepOutcome(steps []domain.WorkflowStep, name string) (domain.StepOutcome, bool) {
	for _, s := range steps {
		if s.Name == name {
			return s.Outcome, true
		}
	}
	return "", false
}
