package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/schema"
)

func boards(names ...string) []domain.Board {
	out := make([]domain.Board, len(names))
	for i, n := range names {
		out[i] = domain.Board{ID: string(rune('a' + i)), Name: n}
	}
	return out
}

func TestMatchBoardExactWinsOverScoring(t *testing.T) {
	r := DefaultRules()
	b, ok := r.MatchBoard("crm", boards("Paid Media CRM", "CRM"))
	require.True(t, ok)
	assert.Equal(t, "CRM", b.Name)
}

func TestMatchBoardAllTokens(t *testing.T) {
	b, ok := DefaultRules().MatchBoard("september content", boards("AOP Pizza Hut", "September Content Board"))
	require.True(t, ok)
	assert.Equal(t, "September Content Board", b.Name)
}

func TestMatchBoardBonusFavoursHomeBoard(t *testing.T) {
	b, ok := DefaultRules().MatchBoard("paid campaigns board", boards("Campaigns Board", "Paid Media CRM"))
	require.True(t, ok)
	assert.Equal(t, "Paid Media CRM", b.Name)

	// without the bonus table the token overlap decides
	b, ok = Rules{}.MatchBoard("paid campaigns board", boards("Campaigns Board", "Paid Media CRM"))
	require.True(t, ok)
	assert.Equal(t, "Campaigns Board", b.Name)
}

func TestMatchBoardTiesGoToFirstCandidate(t *testing.T) {
	b, ok := Rules{}.MatchBoard("alpha beta gamma", boards("Alpha Team", "Beta Team"))
	require.True(t, ok)
	assert.Equal(t, "Alpha Team", b.Name)
}

func TestMatchBoardNoMatch(t *testing.T) {
	_, ok := DefaultRules().MatchBoard("zebra", boards("Paid Media CRM", "AOP Pizza Hut"))
	assert.False(t, ok)
	_, ok = DefaultRules().MatchBoard("  ", boards("Paid Media CRM"))
	assert.False(t, ok)
}

func TestMatchBoardIsDeterministic(t *testing.T) {
	candidates := boards("Beauty Fair", "Paid Media CRM", "Media Planning", "AOP MR DIY")
	first, ok := DefaultRules().MatchBoard("media plan for beauty", candidates)
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		b, _ := DefaultRules().MatchBoard("media plan for beauty", candidates)
		assert.Equal(t, first.ID, b.ID)
	}
}

func TestFilterBoards(t *testing.T) {
	r := DefaultRules()
	r.Denylist = []string{"old reports"}
	got := r.FilterBoards(boards("Paid Media CRM", "Subitems of Paid Media CRM", "Brief intake (form)", "Old Reports"))
	require.Len(t, got, 1)
	assert.Equal(t, "Paid Media CRM", got[0].Name)
}

func TestMatchGroup(t *testing.T) {
	groups := []domain.Group{{ID: "g1", Title: "Backlog"}, {ID: "g2", Title: "AI Agent Operations"}}
	g, ok := MatchGroup("OPERATIONS", groups)
	require.True(t, ok)
	assert.Equal(t, "g2", g.ID)
	_, ok = MatchGroup("finance", groups)
	assert.False(t, ok)
}

func TestMatchUserTiers(t *testing.T) {
	users := []domain.User{{ID: "1", Name: "Alice Smith"}, {ID: "2", Name: "Alice"}, {ID: "3", Name: "Bob"}}

	u, ok := MatchUser("alice", users, true)
	require.True(t, ok)
	assert.Equal(t, "2", u.ID, "exact match wins")

	u, ok = MatchUser("smith", users, true)
	require.True(t, ok)
	assert.Equal(t, "1", u.ID)

	u, ok = MatchUser("Alice Smith-Jones", users[:1], true)
	require.True(t, ok)
	assert.Equal(t, "1", u.ID, "query containing the name")
}

func TestMatchUserReverseGate(t *testing.T) {
	users := []domain.User{{ID: "9", Name: "Al"}}
	_, ok := MatchUser("Alan", users, true)
	assert.False(t, ok)
	u, ok := MatchUser("Alan", users, false)
	require.True(t, ok)
	assert.Equal(t, "9", u.ID)
}

func TestParseRulesKeepsDefaultsForMissingSections(t *testing.T) {
	r, err := ParseRules([]byte("bonuses:\n  - keywords: [Beauty, Fair]\n    bonus: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules().ExcludeSubstrings, r.ExcludeSubstrings)
	require.Len(t, r.Bonuses, 1)
	assert.Equal(t, []string{"beauty", "fair"}, r.Bonuses[0].Keywords)

	_, err = ParseRules([]byte("bonuses:\n  - bonus: 1\n"))
	assert.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("denylist: [Archive]\n"), 0o600))
	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive"}, r.Denylist)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type fakeRemote struct {
	boards    []domain.Board
	groups    []domain.Group
	filtered  []domain.User
	all       []domain.User
	items     []domain.ItemSnapshot
	filterErr error
	fullCalls int
}

func (f *fakeRemote) BoardItems(context.Context, string) ([]domain.ItemSnapshot, error) {
	return f.items, nil
}

func (f *fakeRemote) Boards(context.Context) ([]domain.Board, error) { return f.boards, nil }

func (f *fakeRemote) BoardGroups(context.Context, string) ([]domain.Group, error) {
	return f.groups, nil
}

func (f *fakeRemote) UsersByName(context.Context, string) ([]domain.User, error) {
	return f.filtered, f.filterErr
}

func (f *fakeRemote) Users(context.Context, int) ([]domain.User, error) {
	f.fullCalls++
	return f.all, nil
}

type fakeSchemas struct {
	s schema.Schema
}

func (f fakeSchemas) Get(context.Context, string) (schema.Schema, error) { return f.s, nil }

func newTestResolver(remote Remote, opts ...Option) *Resolver {
	logger, _ := test.NewNullLogger()
	s := fakeSchemas{s: schema.Schema{BoardID: "1", Columns: []domain.Column{
		{ID: "status", Type: domain.ColumnStatus, Settings: `{"labels":{"0":"Working on it","1":"Done"}}`},
	}}}
	return New(remote, s, append([]Option{WithLogger(logger)}, opts...)...)
}

func TestResolveBoard(t *testing.T) {
	remote := &fakeRemote{boards: boards("Subitems of Paid Media CRM", "Paid Media CRM", "Beauty Fair")}
	r := newTestResolver(remote)

	b, err := r.ResolveBoard(context.Background(), "paid media")
	require.NoError(t, err)
	assert.Equal(t, "Paid Media CRM", b.Name)

	_, err = r.ResolveBoard(context.Background(), "zebra")
	assert.True(t, domain.IsNotFound(err))
}

func TestResolveBoardEmptyNameUsesHomeBoard(t *testing.T) {
	r := newTestResolver(&fakeRemote{}, WithHomeBoard("2034046752"))
	b, err := r.ResolveBoard(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2034046752", b.ID)

	_, err = newTestResolver(&fakeRemote{}).ResolveBoard(context.Background(), "")
	assert.True(t, domain.IsNotFound(err))
}

func TestResolveGroupNotFound(t *testing.T) {
	r := newTestResolver(&fakeRemote{groups: []domain.Group{{ID: "g1", Title: "Operations"}}})
	g, err := r.ResolveGroup(context.Background(), "1", "operations")
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)

	_, err = r.ResolveGroup(context.Background(), "1", "finance")
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "group", nf.Kind)
}

func TestResolveUserPhases(t *testing.T) {
	remote := &fakeRemote{filtered: []domain.User{{ID: "5", Name: "Alice Smith"}}}
	u, err := newTestResolver(remote).ResolveUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "5", u.ID)
	assert.Equal(t, 0, remote.fullCalls)

	remote = &fakeRemote{filterErr: errors.New("boom"), all: []domain.User{{ID: "7", Name: "Bob Jones"}}}
	u, err = newTestResolver(remote).ResolveUser(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "7", u.ID)
	assert.Equal(t, 1, remote.fullCalls)

	remote = &fakeRemote{all: []domain.User{{ID: "8", Name: "Al"}}}
	_, err = newTestResolver(remote).ResolveUser(context.Background(), "Alan")
	assert.True(t, domain.IsNotFound(err))
}

func TestResolveStatus(t *testing.T) {
	r := newTestResolver(&fakeRemote{})
	label, err := r.ResolveStatus(context.Background(), "1", "working ON it")
	require.NoError(t, err)
	assert.Equal(t, "0", label.LabelID)

	_, err = r.ResolveStatus(context.Background(), "1", "Archived")
	assert.True(t, domain.IsNotFound(err))
}

func TestMatchItemsIgnoresCase(t *testing.T) {
	items := []domain.ItemSnapshot{{ID: "1", Name: "Summer Campaign Brief"}, {ID: "2", Name: "Book studio"}, {ID: "3", Name: "campaign wrap-up"}}

	found := MatchItems("CAMPAIGN", items)
	require.Len(t, found, 2)
	assert.Equal(t, "1", found[0].ID)
	assert.Equal(t, "3", found[1].ID)

	assert.Len(t, MatchItems("  ", items), 3, "empty query lists everything")
	assert.Empty(t, MatchItems("zebra", items))
}

func TestMatchItemPrefersExactName(t *testing.T) {
	items := []domain.ItemSnapshot{{ID: "1", Name: "Launch video"}, {ID: "2", Name: "launch"}}
	it, ok := MatchItem("Launch", items)
	require.True(t, ok)
	assert.Equal(t, "2", it.ID)

	it, ok = MatchItem("video", items)
	require.True(t, ok)
	assert.Equal(t, "1", it.ID)

	_, ok = MatchItem("", items)
	assert.False(t, ok)
}

func TestListBoardsFiltersGenerated(t *testing.T) {
	r := newTestResolver(&fakeRemote{boards: boards("Subitems of Paid Media CRM", "Paid Media CRM", "Beauty Fair")})
	list, err := r.ListBoards(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Paid Media CRM", list[0].Name)
}

func TestSearchAndResolveItem(t *testing.T) {
	remote := &fakeRemote{items: []domain.ItemSnapshot{
		{ID: "10", Name: "Q3 Media Plan", Status: "Done"},
		{ID: "11", Name: "Media buying review"},
	}}
	r := newTestResolver(remote)

	found, err := r.SearchItems(context.Background(), "1", "media")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	it, err := r.ResolveItem(context.Background(), "1", "q3 media plan")
	require.NoError(t, err)
	assert.Equal(t, "10", it.ID)

	_, err = r.ResolveItem(context.Background(), "1", "Media plnn")
	require.True(t, domain.IsNotFound(err))

	_, err = r.ResolveItem(context.Background(), "1", "")
	assert.True(t, domain.IsNotFound(err))
}
