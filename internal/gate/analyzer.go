// Package gate decides whether an untrusted SQL string may run and, if so,
// whether a row limit must be forced onto it.
//
// The gate is a lexical filter over the raw query text. It does not parse
// SQL and cannot see through comments, string literals or multi-statement
// batches; the read-only transaction around execution is the second line
// of defense.
package gate

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/Antonhansel/my-pg-mcp/internal/limits"
)

var (
	limitClause   = regexp.MustCompile(`(?i)LIMIT\s+(\d+)`)
	selectKeyword = regexp.MustCompile(`(?i)SELECT`)
)

// ReasonTooLong is the rejection reason for queries over the length limit.
const ReasonTooLong = "Query too long"

// NoteForcedLimit is attached to verdicts produced by an
// AllowWithForcedLimit rule.
const NoteForcedLimit = "SELECT * detected - will add LIMIT"

// Verdict is the outcome of analyzing one query.
// Exactly one of Rejected/Allowed holds; use the constructors.
type Verdict struct {
	Allowed    bool
	NeedsLimit bool
	Reason     string // set when rejected
	Note       string // optional, set when allowed
	Rule       string // name of the catalog rule that decided, if any
}

// Reject returns a rejected verdict.
func Reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Allow returns an allowed verdict.
func Allow(needsLimit bool, note string) Verdict {
	return Verdict{Allowed: true, NeedsLimit: needsLimit, Note: note}
}

// Rejected reports whether the verdict blocks the query.
func (v Verdict) Rejected() bool {
	return !v.Allowed
}

// Analyzer evaluates queries against a Catalog. Safe for concurrent use.
type Analyzer struct {
	catalog Catalog
}

// NewAnalyzer creates an Analyzer over catalog.
func NewAnalyzer(catalog Catalog) *Analyzer {
	return &Analyzer{catalog: catalog}
}

// Analyze runs sql through the default catalog.
func Analyze(sql string, l limits.Limits) Verdict {
	return (&Analyzer{catalog: defaultCatalog}).Analyze(sql, l)
}

// Analyze decides whether sql may run under l.
//
// Unrecognized shapes are allowed through unmodified: the gate only
// constrains what it recognizes.
func (a *Analyzer) Analyze(sql string, l limits.Limits) Verdict {
	if utf8.RuneCountInString(sql) > l.MaxQueryLength {
		return Reject(ReasonTooLong)
	}

	if rule, ok := a.catalog.Match(sql); ok {
		var v Verdict
		switch rule.Disposition {
		case AllowWithForcedLimit:
			v = Allow(true, NoteForcedLimit)
		default:
			v = Reject(fmt.Sprintf("Dangerous pattern detected: %s", rule.Source()))
		}
		v.Rule = rule.Name
		return v
	}

	hasLimit := limitClause.MatchString(sql)
	looksLikeSelect := selectKeyword.MatchString(sql)
	return Allow(looksLikeSelect && !hasLimit, "")
}
