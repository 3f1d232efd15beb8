package persona

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// candidate pairs a trigger with the persona it routes to.
type candidate struct {
	trigger Trigger
	target  string
}

// collectTriggers flattens the enabled triggers of all personas into
// priority order. Lower priority values win; ties break on persona id
// so evaluation order is stable.
func collectTriggers(personas []Persona) []candidate {
	var out []candidate
	for _, p := range personas {
		for _, t := range p.Triggers {
			if !t.Enabled {
				continue
			}
			out = append(out, candidate{trigger: t, target: p.ID})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].trigger.Priority != out[j].trigger.Priority {
			return out[i].trigger.Priority < out[j].trigger.Priority
		}
		return out[i].target < out[j].target
	})
	return out
}

// matchesPatterns reports whether any of the trigger's glob patterns
// matches a token of the message. Patterns are matched case-insensitive
// against whole tokens, so "pric*" catches "price", "pricing" and
// "priced" but not "caprice".
func matchesPatterns(t Trigger, message string) bool {
	if len(t.Patterns) == 0 {
		return false
	}
	tokens := tokenize(message)
	for _, pattern := range t.Patterns {
		pattern = strings.ToLower(pattern)
		// Multi-word patterns match against the whole message.
		if strings.ContainsAny(pattern, " ") {
			if matched, err := doublestar.Match(pattern, strings.ToLower(message)); err == nil && matched {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if matched, err := doublestar.Match(pattern, tok); err == nil && matched {
				return true
			}
		}
	}
	return false
}

func tokenize(message string) []string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}
