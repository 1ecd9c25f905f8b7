package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// MalformedPolicy decides what happens to a row whose cells cannot be parsed.
// It is chosen once per run.
type MalformedPolicy string

const (
	MalformedAbort MalformedPolicy = "abort" // the run fails on the first bad row
	MalformedDrop  MalformedPolicy = "drop"  // bad rows are skipped and counted
)

// Report describes one table read.
type Report struct {
	Source  string
	Files   int
	Rows    int
	Dropped int
}

// Reader reads CSV inputs from a filesystem.
type Reader struct {
	FS        afero.Fs
	Malformed MalformedPolicy
	Logger    *slog.Logger
}

// NewReader returns a Reader on fsys that aborts on malformed rows.
func NewReader(fsys afero.Fs) *Reader {
	return &Reader{FS: fsys, Malformed: MalformedAbort, Logger: slog.Default()}
}

// column is an expected column of a table.
type column struct {
	name     string
	optional bool
}

// row is one data row with access to its cells by column name.
type row struct {
	source string
	line   int
	cells  []string
	index  map[string]int
}

func (r row) str(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return r.cells[i]
}

// int parses col as an integer. Empty cells and the NULL of SQL dumps read
// as 0 when the column is optional.
func (r row) int(col string, optional bool) (int64, error) {
	v := strings.TrimSpace(r.str(col))
	if optional && (v == "" || strings.EqualFold(v, "null") || v == `\N`) {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &record.MalformedRowError{Source: r.source, Line: r.line, Column: col, Value: v, Err: err}
	}
	return n, nil
}

// readTable reads one CSV file and calls fn for each data row. A file whose
// first cell parses as an integer has no header and cols apply by position.
// Otherwise header names are matched to cols case-insensitively.
func (rd *Reader) readTable(path string, cols []column, fn func(row) error) (Report, error) {
	rep := Report{Source: path, Files: 1}

	rc, err := Open(rd.FS, path)
	if err != nil {
		return rep, fmt.Errorf("open %s: %w", path, err)
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var index map[string]int
	var width int
	first := true
	for {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("read %s: %w", path, err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if len(cells) > 0 {
				cells[0] = strings.TrimPrefix(cells[0], "\ufeff")
			}
			if !headerless(cells) {
				index, err = headerIndex(path, cells, cols)
				if err != nil {
					return rep, err
				}
				width = minWidth(index)
				continue
			}
			index = positionalIndex(cols)
			width = minWidth(index)
		}

		r := row{source: path, line: line, cells: cells, index: index}
		if len(cells) < width {
			err = &record.MalformedRowError{
				Source: path, Line: line, Column: "*",
				Value: strings.Join(cells, ","),
				Err:   fmt.Errorf("%d cells, want %d", len(cells), width),
			}
		} else {
			err = fn(r)
		}
		if err != nil {
			var bad *record.MalformedRowError
			if rd.Malformed == MalformedDrop && errors.As(err, &bad) {
				rep.Dropped++
				rd.logger().Warn("dropping malformed row", "source", path, "line", line, "err", err)
				continue
			}
			return rep, err
		}
		rep.Rows++
	}
	return rep, nil
}

func (rd *Reader) logger() *slog.Logger {
	if rd.Logger == nil {
		return slog.Default()
	}
	return rd.Logger
}

func headerless(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(cells[0]), 10, 64)
	return err == nil
}

func positionalIndex(cols []column) map[string]int {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c.name] = i
	}
	return index
}

func headerIndex(path string, header []string, cols []column) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	index := make(map[string]int, len(cols))
	for _, c := range cols {
		i, ok := pos[strings.ToLower(c.name)]
		if !ok {
			if c.optional {
				continue
			}
			return nil, fmt.Errorf("%s: missing column %q", path, c.name)
		}
		index[c.name] = i
	}
	return index, nil
}

// minWidth is the number of cells a row needs to reach every indexed column.
func minWidth(index map[string]int) int {
	w := 0
	for _, i := range index {
		w = max(w, i+1)
	}
	return w
}
