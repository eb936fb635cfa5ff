package resolve

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BonusRule adds Bonus to a candidate board whose name contains every
// keyword, provided the query mentions at least one of them.
type BonusRule struct {
	Keywords []string `yaml:"keywords"`
	Bonus    int      `yaml:"bonus"`
}

// Rules is the board matching policy.
type Rules struct {
	// ExcludeSubstrings drops boards whose name contains any of these.
	ExcludeSubstrings []string `yaml:"exclude"`
	// Denylist drops boards whose name equals one of these, ignoring case.
	Denylist []string    `yaml:"denylist"`
	Bonuses  []BonusRule `yaml:"bonuses"`
}

// DefaultRules favours the home "Paid Media CRM" board and hides generated
// subitem and form boards.
func DefaultRules() Rules {
	return Rules{
		ExcludeSubstrings: []string{"subitems of", "(form)", "form responses"},
		Bonuses: []BonusRule{
			{Keywords: []string{"paid", "media"}, Bonus: 3},
			{Keywords: []string{"crm"}, Bonus: 2},
		},
	}
}

// ParseRules decodes a YAML rules document. Sections left out of the document
// keep their defaults.
func ParseRules(data []byte) (Rules, error) {
	r := DefaultRules()
	var doc struct {
		ExcludeSubstrings *[]string    `yaml:"exclude"`
		Denylist          *[]string    `yaml:"denylist"`
		Bonuses           *[]BonusRule `yaml:"bonuses"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Rules{}, fmt.Errorf("parse resolver rules: %w", err)
	}
	if doc.ExcludeSubstrings != nil {
		r.ExcludeSubstrings = *doc.ExcludeSubstrings
	}
	if doc.Denylist != nil {
		r.Denylist = *doc.Denylist
	}
	if doc.Bonuses != nil {
		r.Bonuses = *doc.Bonuses
	}
	return r.normalized()
}

// LoadRules reads rules from a YAML file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read resolver rules: %w", err)
	}
	return ParseRules(data)
}

func (r Rules) normalized() (Rules, error) {
	out := Rules{
		ExcludeSubstrings: lowerAll(r.ExcludeSubstrings),
		Denylist:          lowerAll(r.Denylist),
	}
	for i, b := range r.Bonuses {
		kws := lowerAll(b.Keywords)
		if len(kws) == 0 {
			return Rules{}, fmt.Errorf("bonus rule %d has no keywords", i)
		}
		out.Bonuses = append(out.Bonuses, BonusRule{Keywords: kws, Bonus: b.Bonus})
	}
	return out, nil
}

func lowerAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
