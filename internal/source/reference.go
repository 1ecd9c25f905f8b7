package source

import (
	"fmt"
	"strings"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Courses reads the course table (id, shortname).
func (rd *Reader) Courses(p string) (map[int64]string, Report, error) {
	courses := make(map[int64]string)
	rep, err := rd.readTable(p, []column{{name: "id"}, {name: "shortname"}}, func(r row) error {
		id, err := r.int("id", false)
		if err != nil {
			return err
		}
		courses[id] = strings.TrimSpace(r.str("shortname"))
		return nil
	})
	if err != nil {
		return nil, rep, err
	}
	return courses, rep, nil
}

// Enrolments reads a (courseid, userid) role table.
func (rd *Reader) Enrolments(p string) (record.PairSet, Report, error) {
	set := make(record.PairSet)
	rep, err := rd.readTable(p, []column{{name: "courseid"}, {name: "userid"}}, func(r row) error {
		c, err := r.int("courseid", false)
		if err != nil {
			return err
		}
		u, err := r.int("userid", false)
		if err != nil {
			return err
		}
		set.Add(c, u)
		return nil
	})
	if err != nil {
		return nil, rep, err
	}
	return set, rep, nil
}

// UserIDs reads a table of user ids. The table has either one column
// (userid, or id for the deleted users table) or two (roleid, userid); the
// last column always holds the user id.
func (rd *Reader) UserIDs(p string) (record.IDSet, Report, error) {
	set := make(record.IDSet)
	rep, err := rd.readTable(p, nil, func(r row) error {
		if len(r.cells) == 0 || len(r.cells) > 2 {
			return &record.MalformedRowError{
				Source: r.source, Line: r.line, Column: "*",
				Value: strings.Join(r.cells, ","),
				Err:   fmt.Errorf("%d cells, want 1 or 2", len(r.cells)),
			}
		}
		r.index = map[string]int{"userid": len(r.cells) - 1}
		id, err := r.int("userid", false)
		if err != nil {
			return err
		}
		set.Add(id)
		return nil
	})
	if err != nil {
		return nil, rep, err
	}
	return set, rep, nil
}
