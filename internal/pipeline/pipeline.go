// Package pipeline runs one consolidation: it reads both exports and the
// reference tables, joins them, enriches and reclassifies the records,
// filters them and writes the projected table.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/marcelocantos/moodlelogs/internal/align"
	"github.com/marcelocantos/moodlelogs/internal/audit"
	"github.com/marcelocantos/moodlelogs/internal/config"
	"github.com/marcelocantos/moodlelogs/internal/enrich"
	"github.com/marcelocantos/moodlelogs/internal/filter"
	"github.com/marcelocantos/moodlelogs/internal/metrics"
	"github.com/marcelocantos/moodlelogs/internal/project"
	"github.com/marcelocantos/moodlelogs/internal/record"
	"github.com/marcelocantos/moodlelogs/internal/rules"
	"github.com/marcelocantos/moodlelogs/internal/source"
)

// LogStore supplies the database export and the reference tables straight
// from a Moodle database. *source.MoodleDB implements it.
type LogStore interface {
	LogRows(ctx context.Context, rng source.LogRange) ([]record.DatabaseRow, error)
	Tables(ctx context.Context, ids source.RoleIDs) (record.Tables, error)
	Close() error
}

// Runner runs the pipeline for one configuration.
type Runner struct {
	Config  *config.Config
	FS      afero.Fs
	Stdout  io.Writer // receives the table when the output path is "-"
	Logger  *slog.Logger
	Metrics *metrics.Recorder // may be nil

	// Rules overrides the rule set built from Config.Rules.File.
	Rules *rules.RuleSet

	// OpenStore connects to the database when Config.Sources.DB is enabled.
	// Defaults to source.OpenMoodleDB.
	OpenStore func(db config.DBConfig, debug bool) (LogStore, error)
	Debug     bool
}

// Stage is the row count after a named stage.
type Stage struct {
	Name string
	Rows int
}

// Result summarises a run.
type Result struct {
	RunID    string
	Inputs   []string
	Output   string
	Stages   []Stage
	Dropped  []Drop
	Warnings enrich.Warnings

	YearFallbacks  int
	DeletedModules int
	RuleStats      rules.Stats
	ScriptErrors   int64
	FilterStats    filter.Stats
	Duration       time.Duration
}

// Drop counts rows discarded from a source for a reason.
type Drop struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
	Rows   int    `json:"rows"`
}

// Rows returns the row count of every stage by name.
func (r *Result) Rows() map[string]int {
	out := make(map[string]int, len(r.Stages))
	for _, s := range r.Stages {
		out[s.Name] = s.Rows
	}
	return out
}

// Entry describes the run for the ledger.
func (r *Result) Entry(command string, exitCode int, err error) audit.Entry {
	cwd, _ := os.Getwd()
	e := audit.Entry{
		RunID:    r.RunID,
		Command:  command,
		Inputs:   r.Inputs,
		Output:   r.Output,
		Rows:     r.Rows(),
		ExitCode: exitCode,
		Cwd:      cwd,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Run executes the pipeline. The run id is assigned before anything is
// read, so it is set on the result even when the run fails. No output is
// written unless every stage succeeds.
func (rn *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Output: rn.Config.Output.Path}
	log := rn.logger().With("run", res.RunID)

	err := rn.run(ctx, res, log)
	res.Duration = time.Since(start)
	rn.Metrics.Finish(res.Duration, err, time.Now())
	if err != nil {
		log.Error("run failed", "err", err, "duration", res.Duration)
		return res, err
	}
	log.Info("run complete", "output", res.Output, "rows", res.Rows()["output"], "duration", res.Duration)
	return res, nil
}

func (rn *Runner) run(ctx context.Context, res *Result, log *slog.Logger) error {
	cfg := rn.Config

	// Settle everything that can fail without reading data first.
	yearLoc, err := config.Location(cfg.Enrich.Timezone)
	if err != nil {
		return err
	}
	outLoc, err := config.Location(cfg.Output.Timezone)
	if err != nil {
		return err
	}
	if _, err := project.FormatFor(cfg.Output.Path); err != nil {
		return err
	}
	if _, err := project.Project(nil, cfg.Output.Columns); err != nil {
		return err
	}
	rs, err := rn.ruleSet()
	if err != nil {
		return err
	}

	in, err := rn.readInputs(ctx, log)
	if err != nil {
		return err
	}
	res.Inputs = in.names
	res.Dropped = append(res.Dropped, in.drops...)
	for _, d := range in.drops {
		rn.Metrics.Dropped(d.Source, d.Reason, d.Rows)
	}
	rn.stage(res, log, "platform", len(in.platform))
	rn.stage(res, log, "database", len(in.database))

	flt, err := filter.New(filter.Options{
		Extra:        cfg.Filter.Extra,
		Disable:      cfg.Filter.Disable,
		DeletedUsers: in.tables.DeletedUsers,
	})
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	joined, err := align.AlignAndJoin(in.platform, in.database)
	if err != nil {
		return err
	}
	if joined.Dropped > 0 {
		log.Warn("exports differ in length; tail rows dropped",
			"from", joined.DroppedFrom.String(), "rows", joined.Dropped)
		d := Drop{Source: joined.DroppedFrom.String(), Reason: "alignment", Rows: joined.Dropped}
		res.Dropped = append(res.Dropped, d)
		rn.Metrics.Dropped(d.Source, d.Reason, d.Rows)
	}
	records := joined.Records
	rn.stage(res, log, "joined", len(records))

	if err := ctx.Err(); err != nil {
		return err
	}
	if in.tables.Courses != nil {
		res.Warnings = enrich.LabelCourses(records, in.tables.Courses, cfg.Enrich.SplitCourseYear)
		for _, w := range res.Warnings {
			log.Warn("course not in course table", "table", w.Table, "courseid", w.Key, "records", w.Count)
			rn.Metrics.Unmapped(w.Table, w.Count)
		}
	} else {
		log.Warn("no course table; course areas stay empty")
	}
	res.YearFallbacks = enrich.DeriveYears(records, yearLoc)
	if res.YearFallbacks > 0 {
		log.Debug("year derived from timestamp", "records", res.YearFallbacks)
	}
	roleMisses, err := enrich.AssignRoles(records, in.tables)
	if err != nil {
		return err
	}
	for _, w := range roleMisses {
		log.Warn("user in no role table", "table", w.Table, "userid", w.Key, "records", w.Count)
		rn.Metrics.Unmapped(w.Table, w.Count)
	}
	res.Warnings = append(res.Warnings, roleMisses...)
	rn.stage(res, log, "enriched", len(records))

	if err := ctx.Err(); err != nil {
		return err
	}
	res.RuleStats = rs.Apply(records)
	res.ScriptErrors = rs.ScriptErrors()
	if res.ScriptErrors > 0 {
		log.Warn("rule scripts failed; treated as no match", "errors", res.ScriptErrors)
	}
	rn.Metrics.RuleMatches(res.RuleStats.Matches)
	res.DeletedModules = enrich.MarkDeletedModules(records)
	rn.stage(res, log, "reclassified", len(records))

	if err := ctx.Err(); err != nil {
		return err
	}
	records, res.FilterStats = flt.Apply(records)
	rn.Metrics.FilterMatches(res.FilterStats.Matches)
	rn.stage(res, log, "filtered", len(records))

	project.RenderTimes(records, cfg.Output.TimeLayout, outLoc)
	tbl, err := project.Project(records, cfg.Output.Columns)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := project.WriteFile(rn.FS, cfg.Output.Path, rn.Stdout, tbl); err != nil {
		return err
	}
	rn.stage(res, log, "output", len(tbl.Rows))
	return nil
}

func (rn *Runner) stage(res *Result, log *slog.Logger, name string, rows int) {
	res.Stages = append(res.Stages, Stage{Name: name, Rows: rows})
	rn.Metrics.Stage(name, rows)
	log.Debug("stage done", "stage", name, "rows", rows)
}

func (rn *Runner) ruleSet() (*rules.RuleSet, error) {
	if rn.Rules != nil {
		return rn.Rules, nil
	}
	return rules.Load(rn.FS, rn.Config.Rules.File)
}

func (rn *Runner) logger() *slog.Logger {
	if rn.Logger != nil {
		return rn.Logger
	}
	return slog.Default()
}

// IsInputError reports whether err was caused by the inputs rather than by
// the environment: an empty export, a missing reference table or a
// malformed row.
func IsInputError(err error) bool {
	var empty *record.EmptyInputError
	var missing *record.MissingReferenceError
	var malformed *record.MalformedRowError
	return errors.As(err, &empty) || errors.As(err, &missing) || errors.As(err, &malformed)
}
