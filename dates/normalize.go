// Package dates turns loosely formatted deadline text into YYYY-MM-DD.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layout is the canonical calendar date format.
const Layout = "2006-01-02"

var (
	canonical = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	ordinal   = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	yearToken = regexp.MustCompile(`\b\d{4}\b`)
	digit     = regexp.MustCompile(`\d`)
)

var layouts = []string{
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"1/2/2006",
	"1/2 2006",
	"1-2 2006",
	"2006/1/2",
	Layout,
}

// leapSpan is the longest gap between two leap years.
const leapSpan = 8

var months = []string{
	"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec",
}

// Normalizer converts human date text relative to an injected clock.
type Normalizer struct {
	now func() time.Time
	loc *time.Location
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLocation sets the zone dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// New creates a Normalizer using the local clock and zone.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns text as YYYY-MM-DD. Text without a year resolves to the
// first day on or after today that it names, so "Feb 29" waits for the next
// leap year. It reports false when text is not a date or would land in the
// past without an explicit year.
func (n *Normalizer) Normalize(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if canonical.MatchString(text) {
		return text, true
	}

	clean := clean(text)
	switch clean {
	case "today":
		return n.today().Format(Layout), true
	case "tomorrow":
		return n.today().AddDate(0, 0, 1).Format(Layout), true
	}
	if !looksLikeDate(clean) {
		return "", false
	}

	today := n.today()
	explicitYear := yearToken.MatchString(clean)
	if !explicitYear {
		year := today.Year()
		for y := year; y <= year+leapSpan; y++ {
			if t, ok := n.parse(clean + " " + strconv.Itoa(y)); ok && !t.Before(today) {
				return t.Format(Layout), true
			}
		}
	}
	t, ok := n.parse(clean)
	if !ok || t.Year() == 0 || (!explicitYear && t.Before(today)) {
		return "", false
	}
	return t.Format(Layout), true
}

func (n *Normalizer) today() time.Time {
	y, m, d := n.now().In(n.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, n.loc)
}

func (n *Normalizer) parse(s string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseIn(s, n.loc)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, n.loc), true
}

func clean(text string) string {
	s := strings.ToLower(text)
	s = ordinal.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",", " ")
	s = strings.ReplaceAll(s, "sept ", "sep ")
	return strings.Join(strings.Fields(s), " ")
}

func looksLikeDate(s string) bool {
	if digit.MatchString(s) {
		return true
	}
	for _, f := range strings.Fields(s) {
		for _, m := range months {
			if strings.HasPrefix(f, m) {
				return true
			}
		}
	}
	return false
}
