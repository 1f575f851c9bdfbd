// Package sanitize redacts sensitive values in query results before they
// are returned to the caller.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule replaces matches of Pattern with Replacement. When Column is set,
// the rule only applies to top-level columns whose name matches it.
type Rule struct {
	Pattern     string
	Replacement string
	Column      string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
	column      *regexp.Regexp // nil means every column
}

// Sanitizer applies redaction rules to result rows. Safe for concurrent use.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer compiles rules. Returns an error on invalid regex patterns.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		cr := compiledRule{pattern: re, replacement: r.Replacement}
		if r.Column != "" {
			col, err := regexp.Compile(r.Column)
			if err != nil {
				return nil, fmt.Errorf("sanitize: invalid column pattern %q: %v", r.Column, err)
			}
			cr.column = col
		}
		compiled = append(compiled, cr)
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules reports whether any rule is configured.
func (s *Sanitizer) HasRules() bool {
	return s != nil && len(s.rules) > 0
}

// SanitizeRows redacts every string value in rows in place, recursing into
// JSON objects and arrays, and returns rows.
func (s *Sanitizer) SanitizeRows(rows []map[string]any) []map[string]any {
	if !s.HasRules() {
		return rows
	}
	for _, row := range rows {
		for col, v := range row {
			row[col] = s.sanitizeValue(col, v)
		}
	}
	return rows
}

func (s *Sanitizer) sanitizeValue(col string, v any) any {
	switch val := v.(type) {
	case string:
		for _, rule := range s.rules {
			if rule.column != nil && !rule.column.MatchString(col) {
				continue
			}
			val = rule.pattern.ReplaceAllString(val, rule.replacement)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = s.sanitizeValue(col, item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = s.sanitizeValue(col, item)
		}
		return val
	default:
		// Numbers, booleans and nil pass through. json.Number is a
		// distinct named type and does not match the string case.
		return v
	}
}
