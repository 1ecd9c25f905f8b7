package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

func apply(t *testing.T, r *record.LogRecord) Stats {
	t.Helper()
	return NewRuleSet(Builtin()...).Apply([]*record.LogRecord{r})
}

func TestBuiltinClassification(t *testing.T) {
	tests := []struct {
		name      string
		rec       record.LogRecord
		area      string
		component string
	}{
		{
			name:      "module created derives component from context",
			rec:       record.LogRecord{EventName: "Course module created", EventContext: "Forum: General news", Component: "System"},
			component: "Forum",
		},
		{
			name:      "activity completion without delimiter copies context",
			rec:       record.LogRecord{EventName: "Course activity completion updated", EventContext: "Quiz", Component: "System"},
			component: "Quiz",
		},
		{
			name:      "login",
			rec:       record.LogRecord{EventName: "User has logged in", Component: "System"},
			area:      AreaAuthentication,
			component: "Login",
		},
		{
			name:      "logout",
			rec:       record.LogRecord{EventName: "User logged out", Component: "System"},
			area:      AreaAuthentication,
			component: "Logout",
		},
		{
			name:      "web service sets mobile area then component",
			rec:       record.LogRecord{EventName: "Web service function called", Component: "System"},
			area:      AreaMobile,
			component: "Web service",
		},
		{
			name:      "own profile",
			rec:       record.LogRecord{EventName: "User profile viewed", Username: "ana", AffectedUser: "ana", Component: "System"},
			area:      AreaProfile,
			component: "User profile",
		},
		{
			name:      "someone else's profile",
			rec:       record.LogRecord{EventName: "User profile viewed", Username: "ana", AffectedUser: "ben", Component: "System"},
			area:      AreaSocialInteraction,
			component: "Participant profile",
		},
		{
			name:      "group message is messaging not groups",
			rec:       record.LogRecord{EventName: "Group message sent", Component: "System"},
			area:      AreaSocialInteraction,
			component: "Messaging",
		},
		{
			name:      "grouping created",
			rec:       record.LogRecord{EventName: "Grouping created", Component: "System", CourseArea: "MATH101"},
			area:      "MATH101",
			component: "Groups",
		},
		{
			name:      "chat message keeps course area",
			rec:       record.LogRecord{EventName: "Message sent", Component: "Chat", CourseArea: "BIO"},
			area:      "BIO",
			component: "Chat",
		},
		{
			name:      "grader report",
			rec:       record.LogRecord{EventName: "Grader report viewed", Component: "Grader report", CourseArea: "BIO"},
			area:      "BIO",
			component: "Gradebook",
		},
		{
			name:      "front page course view",
			rec:       record.LogRecord{EventName: "Course viewed", EventContext: "Front page", Component: "System"},
			area:      AreaOverallSite,
			component: "Site home",
		},
		{
			name:      "no rule matches",
			rec:       record.LogRecord{EventName: "Quiz attempt viewed", Component: "Quiz", CourseArea: "PHYS"},
			area:      "PHYS",
			component: "Quiz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rec
			apply(t, &r)
			assert.Equal(t, tt.area, r.CourseArea)
			assert.Equal(t, tt.component, r.Component)
		})
	}
}

func TestLastMatchingRuleWins(t *testing.T) {
	// Two component rules match a notification sent to someone else. The
	// Messaging rule comes first, so Notification remains.
	r := &record.LogRecord{EventName: "Notification sent", Username: "ana", AffectedUser: "ben", Component: "System"}
	st := apply(t, r)

	assert.Equal(t, "Notification", r.Component)
	assert.Equal(t, AreaSocialInteraction, r.CourseArea)
	assert.Equal(t, 1, st.Matches["component-notification-sent-other"])
	assert.Equal(t, 1, st.Matches["component-notification-sent"])
}

func TestLaterRuleSeesEarlierWrite(t *testing.T) {
	rs := NewRuleSet(
		Rule{ID: "a", Kind: KindExact, Target: record.FieldComponent, When: Equals{record.FieldEventName, "E"}, Then: SetValue("X")},
		Rule{ID: "b", Kind: KindExact, Target: record.FieldComponent, When: Equals{record.FieldComponent, "X"}, Then: SetValue("Y")},
	)
	r := &record.LogRecord{EventName: "E"}
	rs.Apply([]*record.LogRecord{r})
	assert.Equal(t, "Y", r.Component)
}

func TestSwapAppliedOnce(t *testing.T) {
	r := &record.LogRecord{
		EventName:     "Message contact added",
		Username:      "ana",
		AffectedUser:  "ben",
		UserID:        3,
		RelatedUserID: 4,
		Component:     "System",
	}
	st := apply(t, r)

	assert.Equal(t, "ben", r.Username)
	assert.Equal(t, "ana", r.AffectedUser)
	assert.Equal(t, int64(4), r.UserID)
	assert.Equal(t, int64(3), r.RelatedUserID)
	assert.Equal(t, 1, st.Matches["swap-message-contact-added"])
	assert.Equal(t, "Messaging", r.Component)
}

func TestBuiltinTableShape(t *testing.T) {
	areas, components := CourseAreaRules(), ComponentRules()
	all := Builtin()
	require.Len(t, all, len(areas)+len(components))

	for i, r := range all {
		want := record.FieldCourseArea
		if i >= len(areas) {
			want = record.FieldComponent
		}
		if r.Kind == KindSwap {
			continue
		}
		assert.Equal(t, want, r.Target, "rule %s at %d", r.ID, i)
	}

	seen := make(map[string]bool)
	for _, r := range all {
		assert.False(t, seen[r.ID], "duplicate rule id %s", r.ID)
		seen[r.ID] = true
		assert.NotNil(t, r.When, r.ID)
		assert.NotNil(t, r.Then, r.ID)
	}

	// The mobile component rule depends on area labels and must come last.
	assert.Equal(t, "component-web-service", all[len(all)-1].ID)
}

func TestRuleSetConfigAfterBuiltin(t *testing.T) {
	rs := NewRuleSet(Builtin()...)
	rs.AddConfig(Rule{
		ID:     "override-login",
		Kind:   KindExact,
		Target: record.FieldComponent,
		When:   Equals{record.FieldComponent, "Login"},
		Then:   SetValue("Access"),
	})

	rules := rs.Rules()
	assert.Equal(t, "override-login", rules[len(rules)-1].ID)

	r := &record.LogRecord{EventName: "User has logged in"}
	rs.Apply([]*record.LogRecord{r})
	assert.Equal(t, "Access", r.Component)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "derived", KindDerived.String())
	assert.Equal(t, "script", KindScript.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
