package enrich

import (
	"strconv"
	"strings"
	"time"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// yearOffset turns the two-digit year of the platform export into a full one.
const yearOffset = 2000

// DeriveYears fills the year of records that do not have one yet. The year is
// read from the platform time text ("d/m/yy, HH:MM"). When that text cannot
// be parsed the year of UnixTime in loc is used instead. It returns how many
// records needed the fallback.
func DeriveYears(records []*record.LogRecord, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	var fallback int
	for _, r := range records {
		if r.Year != 0 {
			continue
		}
		if y, ok := platformYear(r.PlatformTime); ok {
			r.Year = y
			continue
		}
		fallback++
		r.Year = time.Unix(r.UnixTime, 0).In(loc).Year()
	}
	return fallback
}

func platformYear(text string) (int, bool) {
	parts := strings.Split(text, "/")
	if len(parts) < 3 {
		return 0, false
	}
	yy, _, _ := strings.Cut(parts[2], ",")
	n, err := strconv.Atoi(strings.TrimSpace(yy))
	if err != nil || n < 0 {
		return 0, false
	}
	return n + yearOffset, true
}
