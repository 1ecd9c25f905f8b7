package rules

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Script is a condition written as a Starlark boolean expression. Every
// rule-addressable field is bound by its snake_case name, e.g.
//
//	event_name.startswith("Quiz") and username != affected_user
//
// The expression may span several lines. An expression that fails at
// evaluation time does not hold. Failures are counted and reported through
// Errors.
type Script struct {
	Expr   string
	opts   *syntax.FileOptions
	expr   syntax.Expr
	thread *starlark.Thread
	errs   atomic.Int64
}

// CompileScript parses expr into a Script condition. The id names the rule
// in syntax errors. Anything other than a single expression over the record
// fields and the Starlark builtins is rejected.
func CompileScript(id, expr string) (*Script, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%s: empty script", id)
	}

	opts := &syntax.FileOptions{}
	// Parenthesised so that line breaks inside the expression are allowed.
	e, err := opts.ParseExpr(id+".star", "("+expr+"\n)", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: compile script: %w", id, err)
	}
	if _, err := resolve.Expr(e, isField, starlark.Universe.Has); err != nil {
		return nil, fmt.Errorf("%s: compile script: %w", id, err)
	}
	return &Script{Expr: expr, opts: opts, expr: e, thread: &starlark.Thread{Name: id}}, nil
}

func isField(name string) bool {
	_, err := record.ParseField(name)
	return err == nil
}

func (s *Script) Holds(r *record.LogRecord) bool {
	env := make(starlark.StringDict, len(record.Fields()))
	for _, f := range record.Fields() {
		env[f.String()] = starlark.String(r.Get(f))
	}
	v, err := starlark.EvalExprOptions(s.opts, s.thread, s.expr, env)
	if err != nil {
		s.errs.Add(1)
		return false
	}
	return bool(v.Truth())
}

func (s *Script) String() string { return "script: " + s.Expr }

// Errors returns how many evaluations failed.
func (s *Script) Errors() int64 { return s.errs.Load() }

// ScriptErrors returns the failed script evaluations across the set.
func (rs *RuleSet) ScriptErrors() int64 {
	var n int64
	var walk func(c Cond)
	walk = func(c Cond) {
		switch c := c.(type) {
		case *Script:
			n += c.Errors()
		case All:
			for _, sub := range c {
				walk(sub)
			}
		}
	}
	for _, r := range rs.Rules() {
		walk(r.When)
	}
	return n
}
