// Package align joins the platform log export with the database log export
// by position.
//
// The two exports share no key. The platform export is delivered newest
// first and the database export in arbitrary order, so the platform rows are
// reversed and the database rows sorted by (timecreated, id) before the i-th
// row of each is taken to describe the same event. When the exports were
// taken at slightly different moments their lengths differ; the surplus rows
// are dropped from the tail of the longer sequence. This is a heuristic:
// nothing verifies that the zipped rows actually correspond.
package align

import (
	"sort"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Side identifies which export lost rows during length reconciliation.
type Side int

const (
	SideNone Side = iota
	SidePlatform
	SideDatabase
)

func (s Side) String() string {
	switch s {
	case SidePlatform:
		return "platform"
	case SideDatabase:
		return "database"
	default:
		return "none"
	}
}

// Result is the outcome of AlignAndJoin.
type Result struct {
	Records     []*record.LogRecord
	Dropped     int  // rows discarded from the tail of the longer export
	DroppedFrom Side // which export they came from
}

// AlignAndJoin reverses the platform rows, sorts the database rows by
// (TimeCreated, ID), truncates the longer sequence to the length of the
// shorter one and zips them into records. The inputs are not modified.
func AlignAndJoin(platform []record.PlatformRow, database []record.DatabaseRow) (*Result, error) {
	if len(platform) == 0 {
		return nil, &record.EmptyInputError{Source: "platform"}
	}
	if len(database) == 0 {
		return nil, &record.EmptyInputError{Source: "database"}
	}

	p := make([]record.PlatformRow, len(platform))
	for i, row := range platform {
		p[len(platform)-1-i] = row
	}

	d := make([]record.DatabaseRow, len(database))
	copy(d, database)
	sort.SliceStable(d, func(i, j int) bool {
		if d[i].TimeCreated != d[j].TimeCreated {
			return d[i].TimeCreated < d[j].TimeCreated
		}
		return d[i].ID < d[j].ID
	})

	res := &Result{}
	switch {
	case len(p) > len(d):
		res.Dropped, res.DroppedFrom = len(p)-len(d), SidePlatform
		p = p[:len(d)]
	case len(d) > len(p):
		res.Dropped, res.DroppedFrom = len(d)-len(p), SideDatabase
		d = d[:len(p)]
	}

	res.Records = make([]*record.LogRecord, len(p))
	for i := range p {
		res.Records[i] = record.Join(p[i], d[i])
	}
	return res, nil
}
