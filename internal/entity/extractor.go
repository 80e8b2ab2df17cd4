// Package entity extracts named entities (person, company, project) from
// free text using an ordered rule table plus a small given-name gazetteer.
// Full NER is deliberately out of scope: pattern plus gazetteer is cheap,
// deterministic, and covers the narrow assistant domain.
package entity

import (
	"regexp"
	"strings"

	"nudge/internal/types"
)

// Rule maps a compiled pattern to the entity type its first capture group
// yields. Rules are applied in order; the first match per rule wins.
type Rule struct {
	Pattern *regexp.Regexp
	Type    types.EntityType
}

// Extractor applies a rule table and a gazetteer to free text. Zero-value
// construction is not supported; use New or NewWithRules.
type Extractor struct {
	rules     []Rule
	gazetteer map[string]bool
}

// DefaultRules returns the built-in English rule table. Locale variants are
// data, not code: callers can supply their own table via NewWithRules.
func DefaultRules() []Rule {
	return []Rule{
		// Preposition followed by capitalized word(s): "email to Kamil Nowak".
		{
			Pattern: regexp.MustCompile(`(?:^|\s)(?:to|with|for|from|about)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
			Type:    types.EntityPerson,
		},
		// "project Apollo" / "the launch project" style references.
		{
			Pattern: regexp.MustCompile(`(?i)project\s+([A-Za-z][\w-]+)`),
			Type:    types.EntityProject,
		},
		{
			Pattern: regexp.MustCompile(`(?i)(?:the\s+)?([A-Za-z][\w-]+)\s+project`),
			Type:    types.EntityProject,
		},
		// "company Acme" / "firm Smith & Co".
		{
			Pattern: regexp.MustCompile(`(?i)(?:company|firm)\s+([A-Z][\w&]+(?:\s+[A-Z][\w&]+)?)`),
			Type:    types.EntityCompany,
		},
	}
}

// DefaultGazetteer is a small fixed list of given names used to catch people
// the patterns miss, including in lowercased text.
func DefaultGazetteer() []string {
	return []string{
		"adam", "anna", "david", "emma", "james", "john", "kamil", "kasia",
		"laura", "lukas", "maria", "marek", "michael", "olga", "peter",
		"piotr", "sarah", "tomas", "tomasz",
	}
}

// determiners are never entity values, whatever the pattern captured.
var determiners = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"our": true, "my": true, "your": true, "their": true, "his": true,
	"her": true, "its": true, "new": true, "same": true,
}

// New creates an extractor with the default rules and gazetteer.
func New() *Extractor {
	return NewWithRules(DefaultRules(), DefaultGazetteer())
}

// NewWithRules creates an extractor with a custom rule table and gazetteer.
func NewWithRules(rules []Rule, gazetteer []string) *Extractor {
	gaz := make(map[string]bool, len(gazetteer))
	for _, name := range gazetteer {
		gaz[strings.ToLower(name)] = true
	}
	return &Extractor{rules: rules, gazetteer: gaz}
}

// Extract returns the entities found in text. Purely functional: no side
// effects, no failure modes, empty slice on no match. Values are
// deduplicated case-insensitively, first occurrence wins.
func (e *Extractor) Extract(text string) []types.Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []types.Entity
	seen := make(map[string]bool)

	add := func(t types.EntityType, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		key := strings.ToLower(value)
		// RE2 has no lookahead, so "the project" style captures are
		// filtered here instead of in the patterns.
		if determiners[key] || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, types.Entity{Type: t, Value: value})
	}

	// Ordered rules, first match per pattern wins.
	for _, rule := range e.rules {
		if m := rule.Pattern.FindStringSubmatch(text); len(m) > 1 {
			add(rule.Type, m[1])
		}
	}

	// Gazetteer cross-check over capitalized tokens catches people the
	// preposition rule missed ("Kamil said yes").
	for _, tok := range strings.Fields(text) {
		word := strings.Trim(tok, ".,:;!?\"'()[]")
		if word == "" {
			continue
		}
		if word[0] >= 'A' && word[0] <= 'Z' && e.gazetteer[strings.ToLower(word)] {
			add(types.EntityPerson, word)
		}
	}

	// Lowercase re-scan tolerates case errors in OCR'd and typed text.
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(tok, ".,:;!?\"'()[]")
		if e.gazetteer[word] {
			add(types.EntityPerson, strings.ToUpper(word[:1])+word[1:])
		}
	}

	return out
}
