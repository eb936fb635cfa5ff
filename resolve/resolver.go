package resolve

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/monday"
	"github.com/KarmaFounder/friday-jarvis/schema"
)

// Remote is the subset of the remote API the resolver reads from.
type Remote interface {
	Boards(ctx context.Context) ([]domain.Board, error)
	BoardGroups(ctx context.Context, boardID string) ([]domain.Group, error)
	UsersByName(ctx context.Context, name string) ([]domain.User, error)
	Users(ctx context.Context, limit int) ([]domain.User, error)
	BoardItems(ctx context.Context, boardID string) ([]domain.ItemSnapshot, error)
}

// Schemas provides board schemas, normally a *schema.Cache.
type Schemas interface {
	Get(ctx context.Context, boardID string) (schema.Schema, error)
}

const maxSuggestions = 3

// Option customises a Resolver.
type Option func(*Resolver)

// WithRules replaces the default board matching rules.
func WithRules(r Rules) Option {
	return func(res *Resolver) {
		if n, err := r.normalized(); err == nil {
			res.rules = n
		}
	}
}

// WithHomeBoard sets the board used when a request names none.
func WithHomeBoard(boardID string) Option {
	return func(res *Resolver) { res.homeBoard = strings.TrimSpace(boardID) }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(res *Resolver) { res.log = logger }
}

// Resolver resolves boards, groups, users and status labels by name.
type Resolver struct {
	remote    Remote
	schemas   Schemas
	rules     Rules
	homeBoard string
	log       *log.Logger
}

// New creates a Resolver.
func New(remote Remote, schemas Schemas, opts ...Option) *Resolver {
	r := &Resolver{
		remote:  remote,
		schemas: schemas,
		rules:   DefaultRules(),
		log:     log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rules returns the active matching rules.
func (r *Resolver) Rules() Rules { return r.rules }

// ResolveBoard finds the board named name among the active, non-generated
// boards. An empty name selects the home board when one is configured.
func (r *Resolver) ResolveBoard(ctx context.Context, name string) (domain.Board, error) {
	if strings.TrimSpace(name) == "" {
		if r.homeBoard != "" {
			return domain.Board{ID: r.homeBoard}, nil
		}
		return domain.Board{}, domain.NewNotFound("board", name)
	}
	boards, err := r.remote.Boards(ctx)
	if err != nil {
		return domain.Board{}, err
	}
	candidates := r.rules.FilterBoards(boards)
	if b, ok := r.rules.MatchBoard(name, candidates); ok {
		r.log.WithFields(log.Fields{"query": name, "board": b.ID, "name": b.Name}).Debug("board resolved")
		return b, nil
	}
	names := make([]string, len(candidates))
	for i, b := range candidates {
		names[i] = b.Name
	}
	return domain.Board{}, domain.NewNotFound("board", name, suggest(name, names, maxSuggestions)...)
}

// ListBoards returns the active boards left after filtering generated and
// denylisted ones.
func (r *Resolver) ListBoards(ctx context.Context) ([]domain.Board, error) {
	boards, err := r.remote.Boards(ctx)
	if err != nil {
		return nil, err
	}
	return r.rules.FilterBoards(boards), nil
}

// SearchItems returns the items of boardID whose name contains query,
// ignoring case.
func (r *Resolver) SearchItems(ctx context.Context, boardID, query string) ([]domain.ItemSnapshot, error) {
	items, err := r.remote.BoardItems(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return MatchItems(query, items), nil
}

// ResolveItem finds an item of boardID by name.
func (r *Resolver) ResolveItem(ctx context.Context, boardID, name string) (domain.ItemSnapshot, error) {
	if strings.TrimSpace(name) == "" {
		return domain.ItemSnapshot{}, domain.NewNotFound("item", name)
	}
	items, err := r.remote.BoardItems(ctx, boardID)
	if err != nil {
		return domain.ItemSnapshot{}, err
	}
	if it, ok := MatchItem(name, items); ok {
		r.log.WithFields(log.Fields{"query": name, "item": it.ID}).Debug("item resolved")
		return it, nil
	}
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return domain.ItemSnapshot{}, domain.NewNotFound("item", name, suggest(name, names, maxSuggestions)...)
}

// ResolveGroup finds a group of boardID whose title contains name.
func (r *Resolver) ResolveGroup(ctx context.Context, boardID, name string) (domain.Group, error) {
	groups, err := r.remote.BoardGroups(ctx, boardID)
	if err != nil {
		return domain.Group{}, err
	}
	if g, ok := MatchGroup(name, groups); ok {
		return g, nil
	}
	titles := make([]string, len(groups))
	for i, g := range groups {
		titles[i] = g.Title
	}
	return domain.Group{}, domain.NewNotFound("group", name, suggest(name, titles, maxSuggestions)...)
}

// ResolveUser looks name up with the server-side filter first and falls back
// to the bounded full user list.
func (r *Resolver) ResolveUser(ctx context.Context, name string) (domain.User, error) {
	if strings.TrimSpace(name) == "" {
		return domain.User{}, domain.NewNotFound("user", name)
	}
	filtered, err := r.remote.UsersByName(ctx, name)
	if err != nil {
		r.log.WithError(err).WithField("query", name).Warn("filtered user lookup failed")
	} else if u, ok := MatchUser(name, filtered, false); ok {
		return u, nil
	}

	all, err := r.remote.Users(ctx, monday.MaxUsers)
	if err != nil {
		return domain.User{}, err
	}
	if u, ok := MatchUser(name, all, true); ok {
		return u, nil
	}
	names := make([]string, len(all))
	for i, u := range all {
		names[i] = u.Name
	}
	return domain.User{}, domain.NewNotFound("user", name, suggest(name, names, maxSuggestions)...)
}

// ResolveStatus maps status text to a label of boardID's status column.
func (r *Resolver) ResolveStatus(ctx context.Context, boardID, text string) (domain.StatusLabel, error) {
	s, err := r.schemas.Get(ctx, boardID)
	if err != nil {
		return domain.StatusLabel{}, err
	}
	if label, ok := schema.StatusLabelID(s, text); ok {
		return label, nil
	}
	var labels []string
	for _, col := range s.Columns {
		for _, l := range col.Labels() {
			labels = append(labels, l.Text)
		}
	}
	return domain.StatusLabel{}, domain.NewNotFound("status", text, suggest(text, labels, maxSuggestions)...)
}
