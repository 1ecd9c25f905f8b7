package enrich

import "github.com/marcelocantos/moodlelogs/internal/record"

// Mode says whether a role pass may replace a role set by an earlier pass.
type Mode int

const (
	Overwrite   Mode = iota // the pass wins over earlier passes
	FillIfUnset             // the pass only labels records still without a role
)

func (m Mode) String() string {
	if m == FillIfUnset {
		return "fill-if-unset"
	}
	return "overwrite"
}

// GuestUserID is the id of Moodle's built-in guest account.
const GuestUserID = 1

// DefaultAdmins is the admin set used when no admin table or siteadmins
// list is configured: the account created at installation.
func DefaultAdmins() record.IDSet { return record.NewIDSet(2) }

// Pass is one step of the role cascade. A Fallback pass labels users that
// no role table knows.
type Pass struct {
	Role     record.Role
	Mode     Mode
	Match    func(r *record.LogRecord) bool
	Fallback bool
}

// Cascade returns the role passes in application order. The student table
// is mandatory.
func Cascade(t record.Tables) ([]Pass, error) {
	if t.Student == nil {
		return nil, &record.MissingReferenceError{Table: "student"}
	}

	enrolled := func(s record.PairSet) func(*record.LogRecord) bool {
		return func(r *record.LogRecord) bool { return s.Has(r.CourseID, r.UserID) }
	}
	member := func(s record.IDSet) func(*record.LogRecord) bool {
		return func(r *record.LogRecord) bool { return s.Has(r.UserID) }
	}

	passes := []Pass{{Role: record.RoleStudent, Mode: Overwrite, Match: enrolled(t.Student)}}
	if t.Teacher != nil {
		passes = append(passes, Pass{Role: record.RoleTeacher, Mode: Overwrite, Match: enrolled(t.Teacher)})
	}
	if t.NonEditingTeacher != nil {
		passes = append(passes, Pass{Role: record.RoleNonEditingTeacher, Mode: Overwrite, Match: enrolled(t.NonEditingTeacher)})
	}
	if t.CourseCreator != nil {
		passes = append(passes, Pass{Role: record.RoleCourseCreator, Mode: FillIfUnset, Match: member(t.CourseCreator)})
	}
	if t.Manager != nil {
		passes = append(passes, Pass{Role: record.RoleManager, Mode: FillIfUnset, Match: member(t.Manager)})
	}
	admins := t.Admin
	if admins == nil {
		admins = DefaultAdmins()
	}
	passes = append(passes,
		Pass{Role: record.RoleAdmin, Mode: FillIfUnset, Match: member(admins)},
		Pass{Role: record.RoleGuest, Mode: Overwrite, Match: func(r *record.LogRecord) bool { return r.UserID == GuestUserID }},
		// Enrolled as nothing but visited a labelled course: someone who had a
		// look and left.
		Pass{Role: record.RoleGuest, Mode: FillIfUnset, Fallback: true, Match: func(r *record.LogRecord) bool {
			return r.CourseArea != "" && r.Username != record.NoUser
		}},
		Pass{Role: record.RoleAuthenticatedUser, Mode: FillIfUnset, Fallback: true, Match: func(r *record.LogRecord) bool {
			return r.Username != record.NoUser
		}},
	)
	return passes, nil
}

// AssignRoles runs the role cascade over records. Records performed by no
// user ("-") outside any role table end with no role.
//
// A record inside a course whose user is in none of the role tables is
// labelled by a fallback pass and reported as an unmapped "role" warning,
// one per user id.
func AssignRoles(records []*record.LogRecord, t record.Tables) (Warnings, error) {
	passes, err := Cascade(t)
	if err != nil {
		return nil, err
	}
	fallback := make([]bool, len(records))
	for _, p := range passes {
		for i, r := range records {
			if p.Mode == FillIfUnset && r.Role != record.RoleUnset {
				continue
			}
			if p.Match(r) {
				r.Role = p.Role
				fallback[i] = p.Fallback
			}
		}
	}

	missing := make(map[int64]int)
	for i, r := range records {
		if fallback[i] && r.CourseID != 0 {
			missing[r.UserID]++
		}
	}
	return unmapped("role", missing), nil
}
