// Package project renders consolidated records as an output table and writes
// it to a sink.
package project

import (
	"fmt"
	"time"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// DefaultLayout renders times as day/month/two-digit year.
const DefaultLayout = "02/01/06, 15:04:05"

// RenderTimes fills TimeText from UnixTime in loc (UTC when nil).
func RenderTimes(records []*record.LogRecord, layout string, loc *time.Location) {
	if layout == "" {
		layout = DefaultLayout
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, r := range records {
		r.TimeText = time.Unix(r.UnixTime, 0).In(loc).Format(layout)
	}
}

// column extracts one output cell. A nil cell is null.
type column func(r *record.LogRecord) any

var columns = map[string]column{
	"ID":            func(r *record.LogRecord) any { return r.ID },
	"Time":          func(r *record.LogRecord) any { return r.TimeText },
	"Year":          func(r *record.LogRecord) any { return nullInt(r.Year) },
	"Course_Area":   func(r *record.LogRecord) any { return nullString(r.CourseArea) },
	"Unix_Time":     func(r *record.LogRecord) any { return r.UnixTime },
	"Username":      func(r *record.LogRecord) any { return r.Username },
	"Component":     func(r *record.LogRecord) any { return r.Component },
	"Event_name":    func(r *record.LogRecord) any { return r.EventName },
	"Role":          func(r *record.LogRecord) any { return nullString(string(r.Role)) },
	"userid":        func(r *record.LogRecord) any { return r.UserID },
	"Status":        func(r *record.LogRecord) any { return nullString(r.Status) },
	"courseid":      func(r *record.LogRecord) any { return r.CourseID },
	"Affected_user": func(r *record.LogRecord) any { return r.AffectedUser },
	"Event_context": func(r *record.LogRecord) any { return r.EventContext },
	"Origin":        func(r *record.LogRecord) any { return r.Origin },
	"IP_address":    func(r *record.LogRecord) any { return r.IPAddress },
	"Description":   func(r *record.LogRecord) any { return r.Description },
}

// DefaultColumns is the output projection of a run.
func DefaultColumns() []string {
	return []string{
		"ID", "Time", "Year", "Course_Area", "Unix_Time", "Username",
		"Component", "Event_name", "Role", "userid", "Status",
	}
}

// OptionalColumns are the further columns a run may select.
func OptionalColumns() []string {
	return []string{"courseid", "Affected_user", "Event_context", "Origin", "IP_address", "Description"}
}

// Table is a projected output table.
type Table struct {
	Header []string
	Rows   [][]any
}

// Project selects cols from records in order. An empty cols selects
// DefaultColumns.
func Project(records []*record.LogRecord, cols []string) (*Table, error) {
	if len(cols) == 0 {
		cols = DefaultColumns()
	}
	get := make([]column, len(cols))
	for i, c := range cols {
		fn, ok := columns[c]
		if !ok {
			return nil, fmt.Errorf("unknown output column %q", c)
		}
		get[i] = fn
	}

	t := &Table{Header: append([]string(nil), cols...), Rows: make([][]any, len(records))}
	for i, r := range records {
		row := make([]any, len(get))
		for j, fn := range get {
			row[j] = fn(r)
		}
		t.Rows[i] = row
	}
	return t, nil
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
