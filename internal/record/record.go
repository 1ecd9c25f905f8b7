package record

import "fmt"

// Role is the platform role attributed to the acting user of a record.
// The zero value means the role has not been assigned.
type Role string

const (
	RoleUnset             Role = ""
	RoleStudent           Role = "Student"
	RoleTeacher           Role = "Teacher"
	RoleNonEditingTeacher Role = "Non-editing Teacher"
	RoleCourseCreator     Role = "Course creator"
	RoleManager           Role = "Manager"
	RoleAdmin             Role = "Admin"
	RoleGuest             Role = "Guest"
	RoleAuthenticatedUser Role = "Authenticated user"
)

// NoUser is the username the platform export uses for records that no
// person performed (cron tasks, CLI scripts).
const NoUser = "-"

// StatusDeleted marks a record whose module, activity or course no longer exists.
const StatusDeleted = "DELETED"

// PlatformRow is one row of the platform log export.
type PlatformRow struct {
	Time         string
	Username     string
	AffectedUser string
	EventContext string
	Component    string
	EventName    string
	Description  string
	Origin       string
	IPAddress    string
}

// DatabaseRow is one row of mdl_logstore_standard_log.
type DatabaseRow struct {
	ID            int64
	UserID        int64
	CourseID      int64
	RelatedUserID int64
	TimeCreated   int64
}

// LogRecord is a single joined activity event.
//
// CourseArea, Year, Role and Status are null when they hold their zero value.
type LogRecord struct {
	ID            int64
	UnixTime      int64
	TimeText      string
	PlatformTime  string
	Username      string
	AffectedUser  string
	EventContext  string
	Component     string
	EventName     string
	Description   string
	Origin        string
	IPAddress     string
	CourseID      int64
	UserID        int64
	RelatedUserID int64
	CourseArea    string
	Year          int
	Role          Role
	Status        string
}

// Join builds a record from a platform row and the database row that
// occupies the same position.
func Join(p PlatformRow, d DatabaseRow) *LogRecord {
	return &LogRecord{
		ID:            d.ID,
		UnixTime:      d.TimeCreated,
		PlatformTime:  p.Time,
		Username:      p.Username,
		AffectedUser:  p.AffectedUser,
		EventContext:  p.EventContext,
		Component:     p.Component,
		EventName:     p.EventName,
		Description:   p.Description,
		Origin:        p.Origin,
		IPAddress:     p.IPAddress,
		CourseID:      d.CourseID,
		UserID:        d.UserID,
		RelatedUserID: d.RelatedUserID,
	}
}

// Field names a string attribute of a LogRecord that rules can read or write.
type Field int

const (
	FieldEventName Field = iota
	FieldEventContext
	FieldComponent
	FieldUsername
	FieldAffectedUser
	FieldDescription
	FieldOrigin
	FieldCourseArea
	FieldRole
	FieldStatus
)

var fieldNames = map[Field]string{
	FieldEventName:    "event_name",
	FieldEventContext: "event_context",
	FieldComponent:    "component",
	FieldUsername:     "username",
	FieldAffectedUser: "affected_user",
	FieldDescription:  "description",
	FieldOrigin:       "origin",
	FieldCourseArea:   "course_area",
	FieldRole:         "role",
	FieldStatus:       "status",
}

func (f Field) String() string {
	if s, ok := fieldNames[f]; ok {
		return s
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ParseField converts a snake_case field name to a Field.
func ParseField(s string) (Field, error) {
	for f, name := range fieldNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field: %q", s)
}

// Fields returns every rule-addressable field in declaration order.
func Fields() []Field {
	return []Field{
		FieldEventName, FieldEventContext, FieldComponent, FieldUsername,
		FieldAffectedUser, FieldDescription, FieldOrigin, FieldCourseArea,
		FieldRole, FieldStatus,
	}
}

// Get returns the current value of f.
func (r *LogRecord) Get(f Field) string {
	switch f {
	case FieldEventName:
		return r.EventName
	case FieldEventContext:
		return r.EventContext
	case FieldComponent:
		return r.Component
	case FieldUsername:
		return r.Username
	case FieldAffectedUser:
		return r.AffectedUser
	case FieldDescription:
		return r.Description
	case FieldOrigin:
		return r.Origin
	case FieldCourseArea:
		return r.CourseArea
	case FieldRole:
		return string(r.Role)
	case FieldStatus:
		return r.Status
	default:
		return ""
	}
}

// Set overwrites f with v.
func (r *LogRecord) Set(f Field, v string) {
	switch f {
	case FieldEventName:
		r.EventName = v
	case FieldEventContext:
		r.EventContext = v
	case FieldComponent:
		r.Component = v
	case FieldUsername:
		r.Username = v
	case FieldAffectedUser:
		r.AffectedUser = v
	case FieldDescription:
		r.Description = v
	case FieldOrigin:
		r.Origin = v
	case FieldCourseArea:
		r.CourseArea = v
	case FieldRole:
		r.Role = Role(v)
	case FieldStatus:
		r.Status = v
	}
}

// SwapUsers exchanges the acting and affected user, both the names from the
// platform export and the ids from the database export.
func (r *LogRecord) SwapUsers() {
	r.Username, r.AffectedUser = r.AffectedUser, r.Username
	r.UserID, r.RelatedUserID = r.RelatedUserID, r.UserID
}
