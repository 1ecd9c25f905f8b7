package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Cond is a predicate over the current field values of a record.
type Cond interface {
	Holds(r *record.LogRecord) bool
	String() string
}

// Action mutates a record that matched a rule.
type Action interface {
	Apply(r *record.LogRecord, target record.Field)
	String() string
}

// Equals holds when Field is exactly Value.
type Equals struct {
	Field record.Field
	Value string
}

func (c Equals) Holds(r *record.LogRecord) bool { return r.Get(c.Field) == c.Value }
func (c Equals) String() string                  { return fmt.Sprintf("%s == %q", c.Field, c.Value) }

// NotEquals holds when Field differs from Value.
type NotEquals struct {
	Field record.Field
	Value string
}

func (c NotEquals) Holds(r *record.LogRecord) bool { return r.Get(c.Field) != c.Value }
func (c NotEquals) String() string                  { return fmt.Sprintf("%s != %q", c.Field, c.Value) }

// OneOf holds when Field equals any of Values.
type OneOf struct {
	Field  record.Field
	Values []string
}

func (c OneOf) Holds(r *record.LogRecord) bool {
	v := r.Get(c.Field)
	for _, want := range c.Values {
		if v == want {
			return true
		}
	}
	return false
}

func (c OneOf) String() string { return fmt.Sprintf("%s in %q", c.Field, c.Values) }

// Contains holds when Field contains Sub (case-sensitive).
type Contains struct {
	Field record.Field
	Sub   string
}

func (c Contains) Holds(r *record.LogRecord) bool { return strings.Contains(r.Get(c.Field), c.Sub) }
func (c Contains) String() string                  { return fmt.Sprintf("%s contains %q", c.Field, c.Sub) }

// Matches holds when Field matches Re anywhere. Case-insensitive matching is
// expressed in the pattern with (?i).
type Matches struct {
	Field record.Field
	Re    *regexp.Regexp
}

// Match compiles pattern into a Matches condition. It panics on an invalid
// pattern and is meant for the builtin table.
func Match(f record.Field, pattern string) Matches {
	return Matches{Field: f, Re: regexp.MustCompile(pattern)}
}

func (c Matches) Holds(r *record.LogRecord) bool { return c.Re.MatchString(r.Get(c.Field)) }
func (c Matches) String() string                  { return fmt.Sprintf("%s =~ /%s/", c.Field, c.Re) }

// SameUser holds when the acting user is also the affected user.
type SameUser struct{}

func (SameUser) Holds(r *record.LogRecord) bool { return r.Username == r.AffectedUser }
func (SameUser) String() string                  { return "username == affected_user" }

// OtherUser holds when the acting user differs from the affected user.
type OtherUser struct{}

func (OtherUser) Holds(r *record.LogRecord) bool { return r.Username != r.AffectedUser }
func (OtherUser) String() string                  { return "username != affected_user" }

// All holds when every condition holds.
type All []Cond

func (c All) Holds(r *record.LogRecord) bool {
	for _, cond := range c {
		if !cond.Holds(r) {
			return false
		}
	}
	return true
}

func (c All) String() string {
	parts := make([]string, len(c))
	for i, cond := range c {
		parts[i] = cond.String()
	}
	return strings.Join(parts, " && ")
}

// SetValue writes a literal label to the rule's target field.
type SetValue string

func (a SetValue) Apply(r *record.LogRecord, target record.Field) { r.Set(target, string(a)) }
func (a SetValue) String() string                                   { return fmt.Sprintf("= %q", string(a)) }

// PrefixOf writes the part of Field before the first Delimiter to the rule's
// target field. A value without the delimiter is copied whole.
type PrefixOf struct {
	Field     record.Field
	Delimiter string
}

func (a PrefixOf) Apply(r *record.LogRecord, target record.Field) {
	v, _, _ := strings.Cut(r.Get(a.Field), a.Delimiter)
	r.Set(target, v)
}

func (a PrefixOf) String() string { return fmt.Sprintf("= %s before %q", a.Field, a.Delimiter) }

// Swap exchanges the acting and affected user of the record.
type Swap struct{}

func (Swap) Apply(r *record.LogRecord, _ record.Field) { r.SwapUsers() }
func (Swap) String() string                            { return "swap username <-> affected_user" }
