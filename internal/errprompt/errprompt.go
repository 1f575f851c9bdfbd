// Package errprompt appends operator-supplied guidance to execution
// failure messages so the calling agent can correct its next query.
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps an error message pattern to a guidance message.
type Rule struct {
	Pattern string
	Message string
}

// DefaultRules cover the failures the gateway itself provokes: the
// statement timeout and the read-only transaction.
var DefaultRules = []Rule{
	{
		Pattern: `(?i)canceling statement due to statement timeout`,
		Message: "The query exceeded the statement timeout. Narrow it with WHERE or an explicit LIMIT.",
	},
	{
		Pattern: `(?i)read-only transaction`,
		Message: "Only read-only queries can run here. Rewrite the statement as a SELECT.",
	},
	{
		Pattern: `(?i)relation .* does not exist`,
		Message: "The table does not exist. Call list-tables to see available tables.",
	},
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher evaluates error messages against rules, top to bottom.
// Safe for concurrent use.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles rules. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{pattern: re, message: r.Message})
	}
	return &Matcher{rules: compiled}, nil
}

// Match returns every matching guidance message joined by newlines,
// or "" when nothing matches. Unlike the gate catalog, all rules apply.
func (m *Matcher) Match(errMsg string) string {
	var matches []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			matches = append(matches, rule.message)
		}
	}
	return strings.Join(matches, "\n")
}

// MatchedPatterns returns the patterns that matched errMsg, for logging.
func (m *Matcher) MatchedPatterns(errMsg string) []string {
	var patterns []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}

// Decorate appends matching guidance to errMsg, separated by a blank line.
func (m *Matcher) Decorate(errMsg string) string {
	if prompt := m.Match(errMsg); prompt != "" {
		return errMsg + "\n\n" + prompt
	}
	return errMsg
}
