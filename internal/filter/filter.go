// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"fmt"
	"strings"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Filter removes records that are not learning activity.
type Filter struct {
	predicates []Predicate
}

// Predicate is a named exclusion test. A record is removed when any
// predicate matches it.
type Predicate struct {
	ID          string
	Description string
	Match       func(r *record.LogRecord) bool
}

// Stats reports what a Filter.Apply call removed. A record matched by several
// predicates counts under each of them but only once in Removed.
type Stats struct {
	Matches map[string]int
	Removed int
	Kept    int
}

// Options selects predicates beyond the builtin set.
type Options struct {
	Extra        []string     // optional predicate IDs to enable
	Disable      []string     // builtin predicate IDs to drop
	DeletedUsers record.IDSet // ids for the deleted-user predicate; nil disables it
}

// New creates a Filter with the builtin predicates adjusted by opts.
func New(opts Options) (*Filter, error) {
	disabled := make(map[string]bool)
	for _, id := range opts.Disable {
		if !isBuiltin(id) {
			return nil, fmt.Errorf("disable: unknown filter %q", id)
		}
		disabled[id] = true
	}

	f := &Filter{}
	for _, p := range Builtin(opts.DeletedUsers) {
		if !disabled[p.ID] {
			f.predicates = append(f.predicates, p)
		}
	}
	for _, id := range opts.Extra {
		p, ok := Optional(id)
		if !ok {
			return nil, fmt.Errorf("extra: unknown filter %q", id)
		}
		f.predicates = append(f.predicates, p)
	}
	return f, nil
}

// Predicates returns the active predicates in evaluation order.
func (f *Filter) Predicates() []Predicate {
	return f.predicates
}

// Apply evaluates every predicate against every record and removes the union
// of matches in one pass. Survivors keep their relative order.
func (f *Filter) Apply(records []*record.LogRecord) ([]*record.LogRecord, Stats) {
	st := Stats{Matches: make(map[string]int)}
	out := make([]*record.LogRecord, 0, len(records))
	for _, r := range records {
		drop := false
		for _, p := range f.predicates {
			if p.Match(r) {
				st.Matches[p.ID]++
				drop = true
			}
		}
		if drop {
			st.Removed++
			continue
		}
		out = append(out, r)
	}
	st.Kept = len(out)
	return out, st
}

// Builtin returns the default exclusion predicates. deleted-user is present
// only when a deleted-users table is supplied.
func Builtin(deletedUsers record.IDSet) []Predicate {
	ps := []Predicate{
		{
			ID:          "admin-role",
			Description: "Activity of site administrators",
			Match:       roleIs(record.RoleAdmin),
		},
		{
			ID:          "cron-user",
			Description: "Events performed by no user (scheduled tasks)",
			Match:       func(r *record.LogRecord) bool { return r.Username == record.NoUser },
		},
		{
			ID:          "origin-cli",
			Description: "Events triggered by a CLI script",
			Match:       func(r *record.LogRecord) bool { return r.Origin == "cli" },
		},
		{
			ID:          "origin-restore",
			Description: "Events replayed by a course restore",
			Match:       func(r *record.LogRecord) bool { return r.Origin == "restore" },
		},
		{
			ID:          "guest-role",
			Description: "Activity of guests",
			Match:       roleIs(record.RoleGuest),
		},
		{
			ID:          "internal-component",
			Description: "Components unrelated to learning (logs, recycle bin, reports, system)",
			Match:       componentIn("Logs", "Recycle bin", "Report", "Other", "System"),
		},
		{
			ID:          "failed-login",
			Description: "Events before the user reached the platform",
			Match:       eventIn("User login failed"),
		},
		{
			ID:          "insights",
			Description: "Analytics housekeeping",
			Match:       eventIn("Insights viewed", "Prediction process started"),
		},
		{
			ID:          "student-grading",
			Description: "Grading events attributed to students by automatic grading",
			Match: func(r *record.LogRecord) bool {
				if r.Role != record.RoleStudent {
					return false
				}
				switch r.EventName {
				case "Grade item created", "Grade item updated", "User graded":
					return true
				}
				return false
			},
		},
		{
			ID:          "impersonation",
			Description: `Actions performed while logged in as another user ("X as Y")`,
			Match:       func(r *record.LogRecord) bool { return strings.Contains(r.Username, " as ") },
		},
	}
	if deletedUsers != nil {
		ps = append(ps, Predicate{
			ID:          "deleted-user",
			Description: "Activity of users deleted since",
			Match:       func(r *record.LogRecord) bool { return deletedUsers.Has(r.UserID) },
		})
	}
	return ps
}

// BuiltinIDs lists the IDs accepted by Options.Disable.
func BuiltinIDs() []string {
	ps := Builtin(record.NewIDSet())
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

// OptionalIDs lists the IDs accepted by Options.Extra.
func OptionalIDs() []string {
	return []string{"deleted-module", "unlabelled-area"}
}

// Optional returns the optional predicate with the given ID.
func Optional(id string) (Predicate, bool) {
	switch id {
	case "deleted-module":
		return Predicate{
			ID:          id,
			Description: "Actions on modules, activities or courses deleted since",
			Match:       func(r *record.LogRecord) bool { return r.Status == record.StatusDeleted },
		}, true
	case "unlabelled-area":
		return Predicate{
			ID:          id,
			Description: "Records with no course and no platform area",
			Match:       func(r *record.LogRecord) bool { return r.CourseArea == "" },
		}, true
	}
	return Predicate{}, false
}

func isBuiltin(id string) bool {
	for _, b := range BuiltinIDs() {
		if b == id {
			return true
		}
	}
	return false
}

func roleIs(role record.Role) func(*record.LogRecord) bool {
	return func(r *record.LogRecord) bool { return r.Role == role }
}

func componentIn(names ...string) func(*record.LogRecord) bool {
	return func(r *record.LogRecord) bool {
		for _, n := range names {
			if r.Component == n {
				return true
			}
		}
		return false
	}
}

func eventIn(names ...string) func(*record.LogRecord) bool {
	return func(r *record.LogRecord) bool {
		for _, n := range names {
			if r.EventName == n {
				return true
			}
		}
		return false
	}
}
