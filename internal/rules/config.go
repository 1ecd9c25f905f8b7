package rules

import (
	"fmt"
	"regexp"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// RuleConfig is one rule from a YAML rules file.
//
//	- id: forum-digest
//	  target: component
//	  contains: "digest"
//	  field: event_name
//	  set: Forum
type RuleConfig struct {
	ID     string `yaml:"id"`
	Target string `yaml:"target"`

	// Condition. Exactly one of Equals, Contains, Matches and Script.
	Field          string `yaml:"field,omitempty"` // defaults to event_name
	Equals         string `yaml:"equals,omitempty"`
	Contains       string `yaml:"contains,omitempty"`
	Matches        string `yaml:"matches,omitempty"`
	Script         string `yaml:"script,omitempty"`
	Self           *bool  `yaml:"self,omitempty"`
	ComponentIs    string `yaml:"component_is,omitempty"`
	ComponentIsNot string `yaml:"component_is_not,omitempty"`

	// Action. Exactly one of Set, PrefixOf and Swap.
	Set       string `yaml:"set,omitempty"`
	PrefixOf  string `yaml:"prefix_of,omitempty"`
	Delimiter string `yaml:"delimiter,omitempty"` // defaults to ":"
	Swap      bool   `yaml:"swap,omitempty"`
}

// File is the top-level structure of a rules file.
type File struct {
	ReplaceBuiltin bool         `yaml:"replace_builtin"`
	Rules          []RuleConfig `yaml:"rules"`
}

// LoadFile reads a rules file. The path is always named explicitly, so a
// missing file is an error.
func LoadFile(fsys afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	seen := make(map[string]bool)
	for i, rc := range f.Rules {
		if rc.ID == "" {
			return nil, fmt.Errorf("rules %s: entry %d: missing id", path, i)
		}
		if seen[rc.ID] {
			return nil, fmt.Errorf("rules %s: duplicate id %q", path, rc.ID)
		}
		seen[rc.ID] = true
	}
	return &f, nil
}

// Build assembles the rule set for a run: the builtin table unless the file
// replaces it, followed by the file's rules in order.
func (f *File) Build() (*RuleSet, error) {
	var rs *RuleSet
	if f.ReplaceBuiltin {
		rs = NewRuleSet()
	} else {
		rs = NewRuleSet(Builtin()...)
	}
	for _, rc := range f.Rules {
		r, err := CompileRule(rc)
		if err != nil {
			return nil, err
		}
		rs.AddConfig(r)
	}
	return rs, nil
}

// CompileRule turns a rule config into a Rule.
func CompileRule(rc RuleConfig) (Rule, error) {
	r := Rule{ID: rc.ID}

	if rc.Swap {
		if rc.Set != "" || rc.PrefixOf != "" {
			return Rule{}, fmt.Errorf("rule %q: swap cannot be combined with set or prefix_of", rc.ID)
		}
		r.Target = record.FieldUsername
	} else {
		switch rc.Target {
		case "course_area":
			r.Target = record.FieldCourseArea
		case "component":
			r.Target = record.FieldComponent
		default:
			return Rule{}, fmt.Errorf("rule %q: invalid target %q (want course_area or component)", rc.ID, rc.Target)
		}
	}

	field := record.FieldEventName
	if rc.Field != "" {
		f, err := record.ParseField(rc.Field)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", rc.ID, err)
		}
		field = f
	}

	var conds All
	var n int
	if rc.Equals != "" {
		n++
		r.Kind = KindExact
		conds = append(conds, Equals{field, rc.Equals})
	}
	if rc.Contains != "" {
		n++
		r.Kind = KindContains
		conds = append(conds, Contains{field, rc.Contains})
	}
	if rc.Matches != "" {
		n++
		re, err := regexp.Compile(rc.Matches)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", rc.ID, err)
		}
		r.Kind = KindRegex
		conds = append(conds, Matches{field, re})
	}
	if rc.Script != "" {
		n++
		s, err := CompileScript(rc.ID, rc.Script)
		if err != nil {
			return Rule{}, err
		}
		r.Kind = KindScript
		conds = append(conds, s)
	}
	if n != 1 {
		return Rule{}, fmt.Errorf("rule %q: want exactly one of equals, contains, matches or script", rc.ID)
	}

	if rc.Self != nil {
		if *rc.Self {
			conds = append(conds, SameUser{})
		} else {
			conds = append(conds, OtherUser{})
		}
	}
	if rc.ComponentIs != "" {
		conds = append(conds, Equals{record.FieldComponent, rc.ComponentIs})
	}
	if rc.ComponentIsNot != "" {
		conds = append(conds, NotEquals{record.FieldComponent, rc.ComponentIsNot})
	}
	if len(conds) > 1 && r.Kind != KindScript {
		r.Kind = KindCompound
	}
	if len(conds) == 1 {
		r.When = conds[0]
	} else {
		r.When = conds
	}

	switch {
	case rc.Swap:
		r.Kind = KindSwap
		r.Then = Swap{}
	case rc.Set != "" && rc.PrefixOf != "":
		return Rule{}, fmt.Errorf("rule %q: set and prefix_of are mutually exclusive", rc.ID)
	case rc.Set != "":
		r.Then = SetValue(rc.Set)
	case rc.PrefixOf != "":
		src, err := record.ParseField(rc.PrefixOf)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: prefix_of: %w", rc.ID, err)
		}
		delim := rc.Delimiter
		if delim == "" {
			delim = ":"
		}
		if r.Kind != KindScript {
			r.Kind = KindDerived
		}
		r.Then = PrefixOf{src, delim}
	default:
		return Rule{}, fmt.Errorf("rule %q: missing action (set, prefix_of or swap)", rc.ID)
	}
	return r, nil
}

// Load builds the rule set for a rules file path. An empty path yields the
// builtin table.
func Load(fsys afero.Fs, path string) (*RuleSet, error) {
	if path == "" {
		return NewRuleSet(Builtin()...), nil
	}
	f, err := LoadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return f.Build()
}
