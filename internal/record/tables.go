package record

import (
	"fmt"
	"strconv"
	"strings"
)

// CourseUser keys an enrolment: a user holding a role in a course.
type CourseUser struct {
	CourseID int64
	UserID   int64
}

// PairSet is a set of (course, user) enrolments.
type PairSet map[CourseUser]struct{}

// Has reports whether the user holds the set's role in the course.
func (s PairSet) Has(courseID, userID int64) bool {
	_, ok := s[CourseUser{courseID, userID}]
	return ok
}

// Add inserts an enrolment.
func (s PairSet) Add(courseID, userID int64) {
	s[CourseUser{courseID, userID}] = struct{}{}
}

// IDSet is a set of user ids.
type IDSet map[int64]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id int64) { s[id] = struct{}{} }

// ParseIDList parses a delimited list of ids such as Moodle's siteadmins
// setting ("2,5,17"). Commas, semicolons and whitespace all separate ids.
func ParseIDList(s string) (IDSet, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	set := make(IDSet, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id list: %q is not an id", f)
		}
		set.Add(id)
	}
	return set, nil
}

// Tables holds the reference data for one run. A nil set means the table was
// not supplied.
type Tables struct {
	Courses           map[int64]string // course id -> shortname
	Student           PairSet
	Teacher           PairSet
	NonEditingTeacher PairSet
	CourseCreator     IDSet
	Manager           IDSet
	Admin             IDSet
	DeletedUsers      IDSet
}
