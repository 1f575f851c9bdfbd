package gate

import (
	"fmt"
	"regexp"
	"strings"
)

// Disposition is what a matching rule does with a query.
type Disposition int

const (
	// Block rejects the query.
	Block Disposition = iota
	// AllowWithForcedLimit lets the query through but forces a row limit.
	AllowWithForcedLimit
)

func (d Disposition) String() string {
	switch d {
	case Block:
		return "block"
	case AllowWithForcedLimit:
		return "allow_with_forced_limit"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Rule is a single entry of the pattern catalog.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Disposition Disposition
}

// Source returns the rule's pattern without the case-insensitivity flag.
func (r Rule) Source() string {
	return strings.TrimPrefix(r.Pattern.String(), "(?i)")
}

// Catalog is an ordered rule table. The first matching rule wins.
type Catalog []Rule

// RuleSpec is the uncompiled form of a Rule.
type RuleSpec struct {
	Name        string
	Pattern     string
	Disposition Disposition
}

// NewCatalog compiles specs in order. Patterns are matched
// case-insensitively. Returns an error on invalid regex patterns.
func NewCatalog(specs []RuleSpec) (Catalog, error) {
	catalog := make(Catalog, len(specs))
	for i, s := range specs {
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("gate: invalid regex pattern %q: %v", s.Pattern, err)
		}
		catalog[i] = Rule{Name: s.Name, Pattern: re, Disposition: s.Disposition}
	}
	return catalog, nil
}

// DefaultRuleSpecs is the built-in catalog. SELECT * without a trailing
// clause is listed first so it is allowed (with a forced limit) before
// any block rule is consulted.
var DefaultRuleSpecs = []RuleSpec{
	{Name: "select_star", Pattern: `SELECT\s+\*\s+FROM\s+\w+\s*(?:;|\s*$)`, Disposition: AllowWithForcedLimit},
	{Name: "delete", Pattern: `DELETE\s+FROM`, Disposition: Block},
	{Name: "drop", Pattern: `DROP\s+`, Disposition: Block},
	{Name: "create", Pattern: `CREATE\s+`, Disposition: Block},
	{Name: "alter", Pattern: `ALTER\s+`, Disposition: Block},
	{Name: "insert", Pattern: `INSERT\s+`, Disposition: Block},
	{Name: "update", Pattern: `UPDATE\s+`, Disposition: Block},
	{Name: "truncate", Pattern: `TRUNCATE\s+`, Disposition: Block},
}

var defaultCatalog = mustCatalog(DefaultRuleSpecs)

// DefaultCatalog returns a copy of the built-in catalog.
func DefaultCatalog() Catalog {
	c := make(Catalog, len(defaultCatalog))
	copy(c, defaultCatalog)
	return c
}

// Match returns the first rule whose pattern matches sql.
func (c Catalog) Match(sql string) (Rule, bool) {
	for _, rule := range c {
		if rule.Pattern.MatchString(sql) {
			return rule, true
		}
	}
	return Rule{}, false
}

func mustCatalog(specs []RuleSpec) Catalog {
	c, err := NewCatalog(specs)
	if err != nil {
		panic(err)
	}
	return c
}
