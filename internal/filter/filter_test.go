// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

func defaultFilter(t *testing.T) *Filter {
	t.Helper()
	f, err := New(Options{DeletedUsers: record.NewIDSet(66)})
	require.NoError(t, err)
	return f
}

func TestBuiltinPredicates(t *testing.T) {
	f := defaultFilter(t)
	tests := []struct {
		name     string
		rec      record.LogRecord
		wantDrop []string
	}{
		{"admin", record.LogRecord{Role: record.RoleAdmin, Username: "root"}, []string{"admin-role"}},
		{"cron", record.LogRecord{Username: "-"}, []string{"cron-user"}},
		{"cli", record.LogRecord{Username: "a", Origin: "cli"}, []string{"origin-cli"}},
		{"restore", record.LogRecord{Username: "a", Origin: "restore"}, []string{"origin-restore"}},
		{"guest", record.LogRecord{Username: "a", Role: record.RoleGuest}, []string{"guest-role"}},
		{"recycle bin", record.LogRecord{Username: "a", Component: "Recycle bin"}, []string{"internal-component"}},
		{"system", record.LogRecord{Username: "a", Component: "System"}, []string{"internal-component"}},
		{"failed login", record.LogRecord{Username: "a", EventName: "User login failed"}, []string{"failed-login"}},
		{"prediction", record.LogRecord{Username: "a", EventName: "Prediction process started"}, []string{"insights"}},
		{"student graded", record.LogRecord{Username: "a", Role: record.RoleStudent, EventName: "User graded"}, []string{"student-grading"}},
		{"login as", record.LogRecord{Username: "Admin User as Jane Doe"}, []string{"impersonation"}},
		{"deleted user", record.LogRecord{Username: "a", UserID: 66}, []string{"deleted-user"}},
		{
			"several predicates",
			record.LogRecord{Username: "-", Role: record.RoleAdmin, Component: "Logs"},
			[]string{"admin-role", "cron-user", "internal-component"},
		},
		{"teacher grading kept", record.LogRecord{Username: "a", Role: record.RoleTeacher, EventName: "User graded"}, nil},
		{"quiz kept", record.LogRecord{Username: "a", Role: record.RoleStudent, Component: "Quiz"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rec
			out, st := f.Apply([]*record.LogRecord{&r})

			if len(tt.wantDrop) == 0 {
				assert.Len(t, out, 1)
				assert.Zero(t, st.Removed)
				return
			}
			assert.Empty(t, out)
			assert.Equal(t, 1, st.Removed)
			for _, id := range tt.wantDrop {
				assert.Equal(t, 1, st.Matches[id], id)
			}
			assert.Len(t, st.Matches, len(tt.wantDrop))
		})
	}
}

func TestApplyPreservesOrderAndRemovesUnion(t *testing.T) {
	records := []*record.LogRecord{
		{ID: 1, Username: "a", Component: "Quiz"},
		{ID: 2, Username: "-"},
		{ID: 3, Username: "b", Component: "Forum"},
		{ID: 4, Username: "c", Role: record.RoleGuest},
		{ID: 5, Username: "d", Component: "Assignment"},
	}

	out, st := defaultFilter(t).Apply(records)

	var ids []int64
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 3, 5}, ids)
	assert.Equal(t, 2, st.Removed)
	assert.Equal(t, 3, st.Kept)

	// No survivor is matched by any active predicate.
	for _, r := range out {
		for _, p := range defaultFilter(t).Predicates() {
			assert.False(t, p.Match(r), "%s matches survivor %d", p.ID, r.ID)
		}
	}
}

func TestOptions(t *testing.T) {
	f, err := New(Options{Extra: []string{"deleted-module", "unlabelled-area"}, Disable: []string{"guest-role"}})
	require.NoError(t, err)

	records := []*record.LogRecord{
		{ID: 1, Username: "a", Role: record.RoleGuest, CourseArea: "ART"},
		{ID: 2, Username: "a", Status: record.StatusDeleted, CourseArea: "ART"},
		{ID: 3, Username: "a"},
	}
	out, st := f.Apply(records)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, 1, st.Matches["deleted-module"])
	assert.Equal(t, 1, st.Matches["unlabelled-area"])

	for _, p := range f.Predicates() {
		assert.NotEqual(t, "deleted-user", p.ID, "deleted-user needs a table")
	}
}

func TestOptionsUnknownIDs(t *testing.T) {
	_, err := New(Options{Extra: []string{"nope"}})
	assert.Error(t, err)

	_, err = New(Options{Disable: []string{"deleted-module"}})
	assert.Error(t, err, "optional predicates cannot be disabled")
}

func TestBuiltinIDs(t *testing.T) {
	assert.Equal(t, []string{
		"admin-role", "cron-user", "origin-cli", "origin-restore", "guest-role",
		"internal-component", "failed-login", "insights", "student-grading",
		"impersonation", "deleted-user",
	}, BuiltinIDs())
}
