package metadata

import (
	"fmt"
	"regexp"
)

// Rule is one substitution applied to a sample identifier.
type Rule struct {
	Pattern *regexp.Regexp
	Replace string
}

// RuleSet derives one field from a sample identifier: its rules are applied
// in order, and the result must be one of Levels. A RuleSet without Levels
// derives a free-form (unordered) value that only has to be non-empty.
type RuleSet struct {
	Name   string
	Rules  []Rule
	Levels Levels
}

var (
	// AnimalRules keep everything before the first underscore.
	AnimalRules = RuleSet{
		Name: "animal",
		Rules: []Rule{
			{regexp.MustCompile(`_.*$`), ""},
		},
	}

	// TimePointRules drop the animal id, then prefix week numbers with W.
	TimePointRules = RuleSet{
		Name: "time point",
		Rules: []Rule{
			{regexp.MustCompile(`^[^_]*_`), ""},
			{regexp.MustCompile(`^([0-9])`), "W$1"},
		},
		Levels: TimePointLevels,
	}

	// GroupRules are TimePointRules with both pre-challenge samplings
	// collapsed into Control.
	GroupRules = RuleSet{
		Name: "group",
		Rules: []Rule{
			{regexp.MustCompile(`^[^_]*_`), ""},
			{regexp.MustCompile(`^pre[12]$`), "Control"},
			{regexp.MustCompile(`^([0-9])`), "W$1"},
		},
		Levels: GroupLevels,
	}
)

// Substitute applies the rules to id.
func (rs RuleSet) Substitute(id string) string {
	out := id
	for _, rule := range rs.Rules {
		out = rule.Pattern.ReplaceAllString(out, rule.Replace)
	}
	return out
}

// Apply derives the field and validates it against Levels.
func (rs RuleSet) Apply(id string) (Factor, string, error) {
	value := rs.Substitute(id)

	if rs.Levels == nil {
		if value == "" {
			return Factor{}, "", fmt.Errorf("%s of %q is empty", rs.Name, id)
		}
		return Factor{}, value, nil
	}

	f, ok := rs.Levels.Factor(value)
	if !ok {
		return Factor{}, value, fmt.Errorf("%s %q derived from %q is not one of %v", rs.Name, value, id, rs.Levels)
	}

	return f, value, nil
}
