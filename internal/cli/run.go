package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcelocantos/moodlelogs/internal/audit"
	"github.com/marcelocantos/moodlelogs/internal/config"
	"github.com/marcelocantos/moodlelogs/internal/metrics"
	"github.com/marcelocantos/moodlelogs/internal/pipeline"
)

// override is a run flag that replaces one config setting when given.
type override struct {
	name   string
	usage  string
	str    func(*config.Config) *string
	list   func(*config.Config) *[]string
	toggle func(*config.Config) *bool
}

var runOverrides = []override{
	{name: "platform", usage: "Platform export file or directory", str: func(c *config.Config) *string { return &c.Sources.Platform }},
	{name: "database", usage: "Database export file", str: func(c *config.Config) *string { return &c.Sources.Database }},
	{name: "malformed", usage: "Malformed row policy: abort or drop", str: func(c *config.Config) *string { return &c.Sources.MalformedRows }},
	{name: "driver", usage: "Database driver: mysql or postgres", str: func(c *config.Config) *string { return &c.Sources.DB.Driver }},
	{name: "dsn", usage: "Read the database export and reference tables from this database", str: func(c *config.Config) *string { return &c.Sources.DB.DSN }},
	{name: "prefix", usage: "Moodle table prefix", str: func(c *config.Config) *string { return &c.Sources.DB.Prefix }},
	{name: "since", usage: "First day of database logs to read (YYYY-MM-DD)", str: func(c *config.Config) *string { return &c.Sources.DB.Since }},
	{name: "until", usage: "Last day of database logs to read (YYYY-MM-DD)", str: func(c *config.Config) *string { return &c.Sources.DB.Until }},
	{name: "courses", usage: "Course table (id, shortname)", str: func(c *config.Config) *string { return &c.Reference.Courses }},
	{name: "students", usage: "Student enrolments (courseid, userid)", str: func(c *config.Config) *string { return &c.Reference.Students }},
	{name: "teachers", usage: "Teacher enrolments (courseid, userid)", str: func(c *config.Config) *string { return &c.Reference.Teachers }},
	{name: "non-editing-teachers", usage: "Non-editing teacher enrolments (courseid, userid)", str: func(c *config.Config) *string { return &c.Reference.NonEditingTeachers }},
	{name: "course-creators", usage: "Course creator user ids", str: func(c *config.Config) *string { return &c.Reference.CourseCreators }},
	{name: "managers", usage: "Manager user ids", str: func(c *config.Config) *string { return &c.Reference.Managers }},
	{name: "admins", usage: "Admin user ids table", str: func(c *config.Config) *string { return &c.Reference.Admins }},
	{name: "siteadmins", usage: "Admin user ids as a list, e.g. \"2,7\"", str: func(c *config.Config) *string { return &c.Reference.SiteAdmins }},
	{name: "deleted-users", usage: "Deleted user ids", str: func(c *config.Config) *string { return &c.Reference.DeletedUsers }},
	{name: "rules", usage: "Rules file", str: func(c *config.Config) *string { return &c.Rules.File }},
	{name: "timezone", usage: "Timezone for year fallback and rendered times", str: func(c *config.Config) *string { return &c.Output.Timezone }},
	{name: "time-layout", usage: "Go time layout of the Time column", str: func(c *config.Config) *string { return &c.Output.TimeLayout }},
	{name: "output", usage: "Output path (.csv, .xlsx, .jsonl) or - for stdout", str: func(c *config.Config) *string { return &c.Output.Path }},
	{name: "metrics-textfile", usage: "Write run metrics to this Prometheus textfile", str: func(c *config.Config) *string { return &c.Metrics.Textfile }},
	{name: "columns", usage: "Output columns", list: func(c *config.Config) *[]string { return &c.Output.Columns }},
	{name: "extra-filter", usage: "Enable an optional exclusion predicate", list: func(c *config.Config) *[]string { return &c.Filter.Extra }},
	{name: "disable-filter", usage: "Disable a builtin exclusion predicate", list: func(c *config.Config) *[]string { return &c.Filter.Disable }},
	{name: "split-year", usage: "Split AREA_YYYY course shortnames into area and year", toggle: func(c *config.Config) *bool { return &c.Enrich.SplitCourseYear }},
	{name: "audit", usage: "Record the run in the ledger", toggle: func(c *config.Config) *bool { return &c.Audit.Enabled }},
}

// bindOverrides registers the override flags and returns a function that
// applies the changed ones to a config.
func bindOverrides(fs *pflag.FlagSet, overrides []override) func(*config.Config) {
	strs := make(map[string]*string)
	lists := make(map[string]*[]string)
	bools := make(map[string]*bool)
	for _, o := range overrides {
		switch {
		case o.str != nil:
			strs[o.name] = fs.String(o.name, "", o.usage)
		case o.list != nil:
			lists[o.name] = fs.StringSlice(o.name, nil, o.usage)
		case o.toggle != nil:
			bools[o.name] = fs.Bool(o.name, false, o.usage)
		}
	}
	return func(cfg *config.Config) {
		for _, o := range overrides {
			if !fs.Changed(o.name) {
				continue
			}
			switch {
			case o.str != nil:
				*o.str(cfg) = *strs[o.name]
			case o.list != nil:
				*o.list(cfg) = *lists[o.name]
			case o.toggle != nil:
				*o.toggle(cfg) = *bools[o.name]
			}
		}
	}
}

func (a *App) runCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consolidate the platform and database exports into one table",
		Args:  cobra.NoArgs,
	}
	apply := bindOverrides(cmd.Flags(), runOverrides)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the run summary")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}
		apply(cfg)
		if cmd.Flags().Changed("timezone") {
			cfg.Enrich.Timezone = cfg.Output.Timezone
		}
		cfg.ExpandPaths()
		if err := config.Validate(cfg); err != nil {
			return err
		}

		var rec *metrics.Recorder
		if cfg.Metrics.Textfile != "" {
			rec = metrics.New()
		}
		rn := &pipeline.Runner{
			Config:  cfg,
			FS:      a.FS,
			Stdout:  a.Stdout,
			Logger:  a.logger,
			Metrics: rec,
			Debug:   a.debug,
		}
		res, runErr := rn.Run(cmd.Context())

		code := ExitOK
		if runErr != nil {
			code = ExitFailure
		}
		a.logRun(cfg, res.Entry("run", code, runErr), res)
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("metrics not written", "err", err)
		}
		if runErr != nil {
			return failed(fmt.Errorf("run %s: %w", res.RunID, runErr))
		}
		if !quiet && !a.jsonLogs {
			printSummary(a.Stderr, res)
		}
		return nil
	}
	return cmd
}

// logRun appends the run to the ledger. The run's outcome never depends on
// the ledger.
func (a *App) logRun(cfg *config.Config, e audit.Entry, res *pipeline.Result) {
	if !cfg.Audit.Enabled {
		return
	}
	l, err := audit.NewLogger(a.FS, cfg.Audit.Path)
	if err == nil {
		err = l.Log(e, res.Duration)
	}
	if err != nil {
		a.logger.Warn("run ledger unavailable", "path", cfg.Audit.Path, "err", err)
	}
}

func printSummary(w io.Writer, res *pipeline.Result) {
	printKV(w,
		[2]string{"Run", res.RunID},
		[2]string{"Output", res.Output},
		[2]string{"Duration", res.Duration.Round(time.Millisecond).String()},
	)

	stages := section{Title: "Stages", Headers: []string{"STAGE", "ROWS"}}
	for _, s := range res.Stages {
		stages.Rows = append(stages.Rows, []string{s.Name, strconv.Itoa(s.Rows)})
	}

	dropped := section{Title: "Dropped", Headers: []string{"SOURCE", "REASON", "ROWS"}}
	for _, d := range res.Dropped {
		dropped.Rows = append(dropped.Rows, []string{d.Source, d.Reason, strconv.Itoa(d.Rows)})
	}

	unmapped := section{Title: "Unmapped", Headers: []string{"TABLE", "KEY", "RECORDS"}}
	for _, u := range res.Warnings {
		unmapped.Rows = append(unmapped.Rows, []string{u.Table, u.Key, strconv.Itoa(u.Count)})
	}

	excluded := section{Title: "Excluded", Headers: []string{"PREDICATE", "MATCHES"}}
	for _, id := range slices.Sorted(maps.Keys(res.FilterStats.Matches)) {
		excluded.Rows = append(excluded.Rows, []string{id, strconv.Itoa(res.FilterStats.Matches[id])})
	}

	printStyledTable(w, stages, dropped, unmapped, excluded)
}
