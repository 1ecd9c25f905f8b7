package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

var platformColumns = []column{
	{name: "Time"},
	{name: "User full name"},
	{name: "Affected user"},
	{name: "Event context"},
	{name: "Component"},
	{name: "Event name"},
	{name: "Description"},
	{name: "Origin", optional: true},
	{name: "IP address", optional: true},
}

// Platform reads the platform log export. p is either a CSV file or a
// directory of per-user exports, which are concatenated in lexical file
// order. Rows keep the export's newest-first order within each file. A
// cancelled ctx stops the read before the next file.
func (rd *Reader) Platform(ctx context.Context, p string) ([]record.PlatformRow, Report, error) {
	info, err := rd.FS.Stat(p)
	if err != nil {
		return nil, Report{Source: p}, fmt.Errorf("platform export: %w", err)
	}
	if !info.IsDir() {
		return rd.platformFile(p)
	}

	entries, err := afero.ReadDir(rd.FS, p)
	if err != nil {
		return nil, Report{Source: p}, fmt.Errorf("platform export: %w", err)
	}
	rep := Report{Source: p}
	var rows []record.PlatformRow
	for _, e := range entries {
		if e.IsDir() || !isCSV(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		got, r, err := rd.platformFile(filepath.Join(p, e.Name()))
		if err != nil {
			return nil, rep, err
		}
		rows = append(rows, got...)
		rep.Files++
		rep.Rows += r.Rows
		rep.Dropped += r.Dropped
	}
	return rows, rep, nil
}

func (rd *Reader) platformFile(p string) ([]record.PlatformRow, Report, error) {
	var rows []record.PlatformRow
	rep, err := rd.readTable(p, platformColumns, func(r row) error {
		rows = append(rows, record.PlatformRow{
			Time:         r.str("Time"),
			Username:     r.str("User full name"),
			AffectedUser: r.str("Affected user"),
			EventContext: r.str("Event context"),
			Component:    r.str("Component"),
			EventName:    r.str("Event name"),
			Description:  r.str("Description"),
			Origin:       r.str("Origin"),
			IPAddress:    r.str("IP address"),
		})
		return nil
	})
	if err != nil {
		return nil, rep, err
	}
	return rows, rep, nil
}
