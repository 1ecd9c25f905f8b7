package rules

import "github.com/marcelocantos/moodlelogs/internal/record"

// Labels written by the builtin table.
const (
	AreaAuthentication    = "Authentication"
	AreaMobile            = "Mobile"
	AreaOverallSite       = "Overall Site"
	AreaProfile           = "Profile"
	AreaSocialInteraction = "Social interaction"
)

const (
	eventName    = record.FieldEventName
	eventContext = record.FieldEventContext
	component    = record.FieldComponent
	courseArea   = record.FieldCourseArea
)

// Builtin returns the reclassification table: every course area rule, then
// every component rule. The order is significant. Rules are evaluated in
// sequence against the record as the previous rules left it and a later
// match overwrites an earlier one, so moving a rule changes results.
func Builtin() []Rule {
	return append(CourseAreaRules(), ComponentRules()...)
}

// CourseAreaRules returns the rules that label records with no course (or a
// misleading one) with a platform area.
func CourseAreaRules() []Rule {
	return []Rule{
		// authentication
		exact("area-logged-in", courseArea, "User has logged in", AreaAuthentication),
		exact("area-login-failed", courseArea, "User login failed", AreaAuthentication),
		exact("area-logged-out", courseArea, "User logged out", AreaAuthentication),

		// mobile
		contains("area-web-service", courseArea, eventName, "Web service", AreaMobile),

		// overall site
		contains("area-dashboard", courseArea, eventName, "Dashboard", AreaOverallSite),
		regex("area-category-context", courseArea, eventContext, "(?i)Category", AreaOverallSite),
		regex("area-category-event", courseArea, eventName, "(?i)Category", AreaOverallSite),
		contains("area-calendar", courseArea, eventName, "Calendar", AreaOverallSite),
		exact("area-courses-searched", courseArea, "Courses searched", AreaOverallSite),
		set("area-front-page", courseArea, Equals{eventContext, "Front page"}, AreaOverallSite),
		set("area-site-announcements", courseArea, Equals{eventContext, "Forum: Site announcements"}, AreaOverallSite),
		exact("area-notification-viewed", courseArea, "Notification viewed", AreaOverallSite),
		compound("area-notification-sent-self", courseArea, AreaOverallSite,
			Equals{eventName, "Notification sent"}, SameUser{}),
		compound("area-blog-viewed-self", courseArea, AreaOverallSite,
			Equals{eventName, "Blog entries viewed"}, SameUser{}),
		compound("area-forum-user-report-self", courseArea, AreaOverallSite,
			Equals{eventName, "User report viewed"}, SameUser{}, Equals{component, "Forum"}),

		// profile
		contains("area-password", courseArea, eventName, "User password", AreaProfile),
		exact("area-user-updated", courseArea, "User updated", AreaProfile),
		compound("area-profile-viewed-self", courseArea, AreaProfile,
			Equals{eventName, "User profile viewed"}, SameUser{}),
		compound("area-badge-viewed-system", courseArea, AreaProfile,
			Equals{eventName, "Badge viewed"}, Equals{eventContext, "System"}),
		compound("area-user-tag-added", courseArea, AreaProfile,
			Equals{eventName, "Tag added to an item"}, Contains{eventContext, "User:"}),
		compound("area-user-tag-removed", courseArea, AreaProfile,
			Equals{eventName, "Tag removed from an item"}, Contains{eventContext, "User:"}),
		exact("area-tag-created", courseArea, "Tag created", AreaProfile),
		exact("area-tag-deleted", courseArea, "Tag deleted", AreaProfile),
		compound("area-course-user-report-self", courseArea, AreaProfile,
			Equals{eventName, "Course user report viewed"}, SameUser{}),
		compound("area-notes-viewed-self", courseArea, AreaProfile,
			Equals{eventName, "Notes viewed"}, SameUser{}),

		// social interaction
		compound("area-message", courseArea, AreaSocialInteraction,
			Match(eventName, "(?i)message"), NotEquals{component, "Chat"}),
		compound("area-notification-sent-other", courseArea, AreaSocialInteraction,
			Equals{eventName, "Notification sent"}, OtherUser{}),
		compound("area-profile-viewed-other", courseArea, AreaSocialInteraction,
			Equals{eventName, "User profile viewed"}, OtherUser{}),
		compound("area-blog-viewed-other", courseArea, AreaSocialInteraction,
			Equals{eventName, "Blog entries viewed"}, OtherUser{}),
	}
}

// ComponentRules returns the rules that reattribute records to the platform
// subsystem the user was actually working in. The export often reports
// "System" or a report plugin for actions on a specific module.
func ComponentRules() []Rule {
	return []Rule{
		// assignment
		regex("component-submission", component, component, "(?i)submission", "Assignment"),

		// authentication
		exact("component-logged-in", component, "User has logged in", "Login"),
		exact("component-login-failed", component, "User login failed", "Login"),
		exact("component-logged-out", component, "User logged out", "Logout"),

		// backup
		contains("component-backup", component, component, "backup", "Backup"),

		contains("component-badge", component, eventName, "Badge", "Badge"),
		contains("component-blog", component, eventName, "Blog", "Blog"),
		set("component-book-printing", component, Equals{component, "Book printing"}, "Book"),
		contains("component-calendar", component, eventName, "Calendar", "Calendar"),
		contains("component-capability", component, eventName, "Capability", "Capability"),

		derived("component-activity-completion", "Course activity completion updated"),

		// course home
		contains("component-course-section", component, eventName, "Course section", "Course home"),
		compound("component-course-viewed", component, "Course home",
			Contains{eventContext, "Course"}, Equals{eventName, "Course viewed"}),

		derived("component-module-created", "Course module created"),
		derived("component-module-updated", "Course module updated"),

		// courses list
		exact("component-category-viewed", component, "Category viewed", "Courses list"),
		exact("component-courses-searched", component, "Courses searched", "Courses list"),

		contains("component-dashboard", component, eventName, "Dashboard", "Dashboard"),

		// enrolment
		exact("component-enrolled", component, "User enrolled in course", "Enrollment"),
		exact("component-unenrolled", component, "User unenrolled from course", "Enrollment"),

		// gradebook
		{
			ID:     "component-gradebook-plugins",
			Kind:   KindExact,
			Target: component,
			When: OneOf{component, []string{
				"Single view", "Excel spreadsheet", "OpenDocument spreadsheet",
				"Grader report", "Outcomes report",
			}},
			Then: SetValue("Gradebook"),
		},
		{
			ID:     "component-gradebook-events",
			Kind:   KindExact,
			Target: component,
			When: OneOf{eventName, []string{
				"User graded", "Grade item updated", "Grade deleted",
				"Grade item created", "Scale created", "Scale deleted",
			}},
			Then: SetValue("Gradebook"),
		},

		// grades
		exact("component-grade-overview", component, "Grade overview report viewed", "Grades"),
		exact("component-course-user-report", component, "Course user report viewed", "Grades"),
		set("component-user-report", component, Equals{component, "User report"}, "Grades"),

		// groups
		compound("component-groups", component, "Groups",
			Match(eventName, "Group|Grouping"), NotEquals{eventName, "Group message sent"}),

		// h5p
		set("component-h5p-package", component, Equals{component, "H5P Package"}, "H5P"),
		compound("component-h5p-content", component, "H5P",
			Contains{eventName, "Content"}, Equals{component, "System"}),

		// messaging
		compound("component-message-system", component, "Messaging",
			Match(eventName, "(?i)Message"), Equals{component, "System"}),
		compound("component-notification-sent-other", component, "Messaging",
			Equals{eventName, "Notification sent"}, OtherUser{}),
		{
			// The platform records this event from the contact's side.
			ID:     "swap-message-contact-added",
			Kind:   KindSwap,
			Target: record.FieldUsername,
			When:   Equals{eventName, "Message contact added"},
			Then:   Swap{},
		},

		compound("component-notes", component, "Notes",
			Match(eventName, "(?i)Notes"), Equals{component, "System"}),

		// notification
		exact("component-notification-viewed", component, "Notification viewed", "Notification"),
		exact("component-notification-sent", component, "Notification sent", "Notification"),

		// participant profile
		exact("component-user-list", component, "User list viewed", "Participant profile"),
		compound("component-profile-viewed-other", component, "Participant profile",
			Equals{eventName, "User profile viewed"}, OtherUser{}),

		// user profile
		exact("component-password-updated", component, "User password updated", "User profile"),
		exact("component-user-updated", component, "User updated", "User profile"),
		compound("component-profile-viewed-self", component, "User profile",
			Equals{eventName, "User profile viewed"}, SameUser{}),

		compound("component-question", component, "Quiz",
			Contains{eventName, "Question"}, Equals{component, "System"}),

		// report
		{
			ID:     "component-report-plugins",
			Kind:   KindExact,
			Target: component,
			When:   OneOf{component, []string{"Course participation", "Activity report", "Statistics"}},
			Then:   SetValue("Report"),
		},

		contains("component-role", component, eventName, "Role", "Role"),
		contains("component-tag", component, eventName, "Tag", "Tag"),

		compound("component-site-home", component, "Site home",
			Equals{eventContext, "Front page"}, Equals{eventName, "Course viewed"}),

		set("component-web-service", component, Equals{courseArea, AreaMobile}, "Web service"),
	}
}

// exact matches the event name literally.
func exact(id string, target record.Field, event, label string) Rule {
	return Rule{ID: id, Kind: KindExact, Target: target, When: Equals{eventName, event}, Then: SetValue(label)}
}

// set is an exact match on a field other than the event name.
func set(id string, target record.Field, when Equals, label string) Rule {
	return Rule{ID: id, Kind: KindExact, Target: target, When: when, Then: SetValue(label)}
}

func contains(id string, target, field record.Field, sub, label string) Rule {
	return Rule{ID: id, Kind: KindContains, Target: target, When: Contains{field, sub}, Then: SetValue(label)}
}

func regex(id string, target, field record.Field, pattern, label string) Rule {
	return Rule{ID: id, Kind: KindRegex, Target: target, When: Match(field, pattern), Then: SetValue(label)}
}

func compound(id string, target record.Field, label string, conds ...Cond) Rule {
	return Rule{ID: id, Kind: KindCompound, Target: target, When: All(conds), Then: SetValue(label)}
}

// derived sets the component to the module name that prefixes the event
// context ("Forum: General news" -> "Forum").
func derived(id, event string) Rule {
	return Rule{
		ID:     id,
		Kind:   KindDerived,
		Target: component,
		When:   Equals{eventName, event},
		Then:   PrefixOf{eventContext, ":"},
	}
}
