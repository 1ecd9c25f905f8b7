package rules

import (
	"fmt"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Kind classifies a rule by the shape of its predicate and action.
type Kind int

const (
	KindExact    Kind = iota // field equals a literal
	KindContains             // field contains a substring
	KindRegex                // field matches a regular expression
	KindCompound             // conjunction of tests, possibly across fields
	KindDerived              // value computed from another field
	KindSwap                 // row-level swap of the acting and affected user
	KindScript               // Starlark predicate
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindContains:
		return "contains"
	case KindRegex:
		return "regex"
	case KindCompound:
		return "compound"
	case KindDerived:
		return "derived"
	case KindSwap:
		return "swap"
	case KindScript:
		return "script"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rule is one entry of the reclassification table. Rules are immutable once
// built.
type Rule struct {
	ID     string
	Kind   Kind
	Target record.Field // field written by Then; informational for swaps
	When   Cond
	Then   Action
}

// Stats counts, per rule ID, how many records a RuleSet.Apply call matched.
type Stats struct {
	Records int
	Matches map[string]int
}

// RuleSet holds an ordered list of reclassification rules. Builtin rules run
// first. Config rules are appended after.
type RuleSet struct {
	builtin []Rule
	config  []Rule
}

// NewRuleSet creates a RuleSet with the given builtin rules.
func NewRuleSet(builtin ...Rule) *RuleSet {
	return &RuleSet{builtin: builtin}
}

// AddConfig appends a config-driven rule.
func (rs *RuleSet) AddConfig(r Rule) {
	rs.config = append(rs.config, r)
}

// Rules returns every rule in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, 0, len(rs.builtin)+len(rs.config))
	out = append(out, rs.builtin...)
	return append(out, rs.config...)
}

// Apply folds the rules over each record in order. Each rule sees the effect
// of the rules before it on the same record, and every match overwrites, so
// when several rules write the same field the last matching one decides.
func (rs *RuleSet) Apply(records []*record.LogRecord) Stats {
	st := Stats{Records: len(records), Matches: make(map[string]int)}
	all := rs.Rules()
	for _, r := range records {
		for _, rule := range all {
			if rule.When.Holds(r) {
				rule.Then.Apply(r, rule.Target)
				st.Matches[rule.ID]++
			}
		}
	}
	return st
}
