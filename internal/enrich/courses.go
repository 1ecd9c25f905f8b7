// Package enrich attaches reference data to joined records: the course
// label, the academic year and the acting user's role. The enrichers run in
// a fixed order (courses, years, roles) because the role cascade reads the
// course label.
package enrich

import (
	"sort"
	"strconv"
	"strings"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Warnings collects the non-fatal lookup misses of a stage.
type Warnings []record.UnmappedValueWarning

// LabelCourses sets CourseArea from the course shortname table. Records whose
// course is not in the table keep a null area; each missing course id is
// reported once with the number of records it affected. Course id 0 means
// the event has no course and is not reported.
//
// With splitYear set, shortnames of the form AREA_YYYY are split into the
// area label and the record's year.
func LabelCourses(records []*record.LogRecord, shortnames map[int64]string, splitYear bool) Warnings {
	missing := make(map[int64]int)
	for _, r := range records {
		name, ok := shortnames[r.CourseID]
		if !ok {
			if r.CourseID != 0 {
				missing[r.CourseID]++
			}
			continue
		}
		if !splitYear {
			r.CourseArea = name
			continue
		}
		area, year := splitShortname(name)
		r.CourseArea = area
		if year != 0 {
			r.Year = year
		}
	}

	return unmapped("course", missing)
}

// unmapped turns per-key miss counts into warnings ordered by key.
func unmapped(table string, missing map[int64]int) Warnings {
	ids := make([]int64, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var w Warnings
	for _, id := range ids {
		w = append(w, record.UnmappedValueWarning{
			Table: table,
			Key:   strconv.FormatInt(id, 10),
			Count: missing[id],
		})
	}
	return w
}

// splitShortname splits "AREA_YYYY[_...]" into AREA and YYYY. A shortname
// without a numeric second part is returned whole with year 0.
func splitShortname(name string) (string, int) {
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return name, 0
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || year <= 0 {
		return name, 0
	}
	return parts[0], year
}
