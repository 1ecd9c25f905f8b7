package source

import (
	"github.com/marcelocantos/moodlelogs/internal/record"
)

var databaseColumns = []column{
	{name: "id"},
	{name: "userid"},
	{name: "courseid"},
	{name: "relateduserid", optional: true},
	{name: "timecreated"},
}

// Database reads the export of the standard log store table
// (id, userid, courseid, relateduserid, timecreated). Row order is not
// significant.
func (rd *Reader) Database(p string) ([]record.DatabaseRow, Report, error) {
	var rows []record.DatabaseRow
	rep, err := rd.readTable(p, databaseColumns, func(r row) error {
		var d record.DatabaseRow
		var err error
		if d.ID, err = r.int("id", false); err != nil {
			return err
		}
		if d.UserID, err = r.int("userid", false); err != nil {
			return err
		}
		if d.CourseID, err = r.int("courseid", false); err != nil {
			return err
		}
		if d.RelatedUserID, err = r.int("relateduserid", true); err != nil {
			return err
		}
		if d.TimeCreated, err = r.int("timecreated", false); err != nil {
			return err
		}
		rows = append(rows, d)
		return nil
	})
	if err != nil {
		return nil, rep, err
	}
	return rows, rep, nil
}
