package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/marcelocantos/moodlelogs/internal/config"
	"github.com/marcelocantos/moodlelogs/internal/record"
	"github.com/marcelocantos/moodlelogs/internal/source"
)

// inputs is everything a run reads before the join.
type inputs struct {
	platform []record.PlatformRow
	database []record.DatabaseRow
	tables   record.Tables
	names    []string
	drops    []Drop
}

// readInputs reads the two exports and the reference tables concurrently.
// The first failure cancels the other readers.
func (rn *Runner) readInputs(ctx context.Context, log *slog.Logger) (*inputs, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := rn.Config
	rd := &source.Reader{FS: rn.FS, Malformed: cfg.MalformedPolicy(), Logger: log}

	var store LogStore
	if cfg.Sources.DB.Enabled() {
		open := rn.OpenStore
		if open == nil {
			open = openMoodleDB
		}
		var err error
		if store, err = open(cfg.Sources.DB, rn.Debug); err != nil {
			return nil, err
		}
		defer store.Close()
	}

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
		in       inputs
	)

	setErr := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}
	report := func(kind string, rep source.Report) {
		mu.Lock()
		defer mu.Unlock()
		in.names = append(in.names, rep.Source)
		if rep.Dropped > 0 {
			in.drops = append(in.drops, Drop{Source: kind, Reason: "malformed", Rows: rep.Dropped})
		}
		log.Info("read input", "kind", kind, "source", rep.Source, "rows", rep.Rows, "dropped", rep.Dropped)
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		rows, rep, err := rd.Platform(ctx, cfg.Sources.Platform)
		if err != nil {
			setErr(err)
			return
		}
		report("platform", rep)
		in.platform = rows
	}()
	go func() {
		defer wg.Done()
		if store != nil {
			rng, err := logRange(cfg.Sources.DB)
			if err != nil {
				setErr(err)
				return
			}
			rows, err := store.LogRows(ctx, rng)
			if err != nil {
				setErr(err)
				return
			}
			report("database", source.Report{Source: cfg.Sources.DB.Driver + " logstore", Rows: len(rows)})
			in.database = rows
			return
		}
		rows, rep, err := rd.Database(cfg.Sources.Database)
		if err != nil {
			setErr(err)
			return
		}
		report("database", rep)
		in.database = rows
	}()
	go func() {
		defer wg.Done()
		var t record.Tables
		var err error
		if store != nil {
			t, err = store.Tables(ctx, cfg.Sources.RoleIDs)
		} else {
			t, err = readTables(ctx, rd, cfg.Reference, report)
		}
		if err != nil {
			setErr(err)
			return
		}
		if cfg.Reference.SiteAdmins != "" {
			if t.Admin, err = record.ParseIDList(cfg.Reference.SiteAdmins); err != nil {
				setErr(fmt.Errorf("siteadmins: %w", err))
				return
			}
		}
		in.tables = t
	}()

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	slices.Sort(in.names)
	return &in, nil
}

// readTables reads the reference tables named in ref. Tables without a path
// stay nil, which the role cascade and the filter treat as absent.
func readTables(ctx context.Context, rd *source.Reader, ref config.ReferenceConfig, report func(string, source.Report)) (record.Tables, error) {
	var t record.Tables

	if ref.Courses != "" {
		courses, rep, err := rd.Courses(ref.Courses)
		if err != nil {
			return t, err
		}
		report("courses", rep)
		t.Courses = courses
	}

	for _, e := range []struct {
		kind string
		path string
		dst  *record.PairSet
	}{
		{"students", ref.Students, &t.Student},
		{"teachers", ref.Teachers, &t.Teacher},
		{"non_editing_teachers", ref.NonEditingTeachers, &t.NonEditingTeacher},
	} {
		if e.path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return t, err
		}
		set, rep, err := rd.Enrolments(e.path)
		if err != nil {
			return t, err
		}
		report(e.kind, rep)
		*e.dst = set
	}

	for _, e := range []struct {
		kind string
		path string
		dst  *record.IDSet
	}{
		{"course_creators", ref.CourseCreators, &t.CourseCreator},
		{"managers", ref.Managers, &t.Manager},
		{"admins", ref.Admins, &t.Admin},
		{"deleted_users", ref.DeletedUsers, &t.DeletedUsers},
	} {
		if e.path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return t, err
		}
		set, rep, err := rd.UserIDs(e.path)
		if err != nil {
			return t, err
		}
		report(e.kind, rep)
		*e.dst = set
	}
	return t, nil
}

// logRange converts the configured dates to unix bounds. Until is inclusive
// of its whole day.
func logRange(db config.DBConfig) (source.LogRange, error) {
	var rng source.LogRange
	if db.Since != "" {
		t, err := time.Parse(time.DateOnly, db.Since)
		if err != nil {
			return rng, fmt.Errorf("db since: %w", err)
		}
		rng.Since = t.Unix()
	}
	if db.Until != "" {
		t, err := time.Parse(time.DateOnly, db.Until)
		if err != nil {
			return rng, fmt.Errorf("db until: %w", err)
		}
		rng.Until = t.AddDate(0, 0, 1).Unix()
	}
	return rng, nil
}

func openMoodleDB(db config.DBConfig, debug bool) (LogStore, error) {
	m, err := source.OpenMoodleDB(db.Driver, db.DSN, db.Prefix, debug)
	if err != nil {
		return nil, err
	}
	return m, nil
}
