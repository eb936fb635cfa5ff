// Package resolve turns loosely specified human names into remote ids.
//
// Every matcher is a pure function of the query and the candidate list, so
// the same inputs always produce the same result.
package resolve

import (
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// minReverseLen gates the reverse-contains user match so that very short
// names do not match everything.
const minReverseLen = 3

// tokens splits a query into lower-cased words longer than two characters.
func tokens(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// FilterBoards drops generated, form and denylisted boards.
func (r Rules) FilterBoards(boards []domain.Board) []domain.Board {
	out := make([]domain.Board, 0, len(boards))
next:
	for _, b := range boards {
		name := strings.ToLower(strings.TrimSpace(b.Name))
		for _, sub := range r.ExcludeSubstrings {
			if strings.Contains(name, sub) {
				continue next
			}
		}
		for _, deny := range r.Denylist {
			if name == deny {
				continue next
			}
		}
		out = append(out, b)
	}
	return out
}

// MatchBoard picks the best candidate for query:
//
//  1. exact name, ignoring case
//  2. every query token is a substring of the name
//  3. highest weighted score above zero, ties going to the earlier candidate
//  4. any query token is a substring of the name
func (r Rules) MatchBoard(query string, candidates []domain.Board) (domain.Board, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.Board{}, false
	}
	for _, c := range candidates {
		if strings.ToLower(strings.TrimSpace(c.Name)) == q {
			return c, true
		}
	}

	toks := tokens(q)
	if len(toks) > 0 {
		for _, c := range candidates {
			if containsAll(strings.ToLower(c.Name), toks) {
				return c, true
			}
		}
	}

	best, bestScore := -1, 0
	for i, c := range candidates {
		if s := r.score(q, toks, strings.ToLower(c.Name)); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 {
		return candidates[best], true
	}

	for _, c := range candidates {
		name := strings.ToLower(c.Name)
		for _, t := range toks {
			if strings.Contains(name, t) {
				return c, true
			}
		}
	}
	return domain.Board{}, false
}

func (r Rules) score(query string, toks []string, name string) int {
	score := 0
	for _, t := range toks {
		if strings.Contains(name, t) {
			score++
		}
	}
	if strings.Contains(name, query) {
		score += 2
	}
	for _, rule := range r.Bonuses {
		if containsAll(name, rule.Keywords) && containsAny(query, rule.Keywords) {
			score += rule.Bonus
		}
	}
	return score
}

// MatchGroup returns the first group whose title contains query, ignoring
// case.
func MatchGroup(query string, groups []domain.Group) (domain.Group, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.Group{}, false
	}
	for _, g := range groups {
		if containsFold(g.Title, q) {
			return g, true
		}
	}
	return domain.Group{}, false
}

// MatchItems keeps the items whose name contains query, ignoring case, in
// board order. An empty query keeps every item.
func MatchItems(query string, items []domain.ItemSnapshot) []domain.ItemSnapshot {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.ItemSnapshot, 0, len(items))
	for _, it := range items {
		if q == "" || containsFold(it.Name, q) {
			out = append(out, it)
		}
	}
	return out
}

// MatchItem prefers an exact name, ignoring case, over the first item whose
// name contains query.
func MatchItem(query string, items []domain.ItemSnapshot) (domain.ItemSnapshot, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.ItemSnapshot{}, false
	}
	for _, it := range items {
		if strings.ToLower(strings.TrimSpace(it.Name)) == q {
			return it, true
		}
	}
	if found := MatchItems(q, items); len(found) > 0 {
		return found[0], true
	}
	return domain.ItemSnapshot{}, false
}

// MatchUser tries an exact name match, then a name containing the query, then
// a query containing the name. With gated set the last tier only considers
// names longer than three characters.
func MatchUser(query string, users []domain.User, gated bool) (domain.User, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.User{}, false
	}
	for _, u := range users {
		if strings.ToLower(strings.TrimSpace(u.Name)) == q {
			return u, true
		}
	}
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) {
			return u, true
		}
	}
	for _, u := range users {
		name := strings.ToLower(strings.TrimSpace(u.Name))
		if name == "" || (gated && len([]rune(name)) <= minReverseLen) {
			continue
		}
		if strings.Contains(q, name) {
			return u, true
		}
	}
	return domain.User{}, false
}

// suggest returns up to n names closest to query for error messages.
func suggest(query string, names []string, n int) []string {
	matches := fuzzy.Find(strings.ToLower(query), lowerCopy(names))
	var out []string
	for _, m := range matches {
		if len(out) == n {
			break
		}
		out = append(out, names[m.Index])
	}
	return out
}

func lowerCopy(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// containsFold reports whether s contains the lower-cased lowerSub.
func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
