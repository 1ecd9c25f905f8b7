package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/moodlelogs/internal/audit"
	"github.com/marcelocantos/moodlelogs/internal/source"
)

// Config holds the moodlelogs configuration.
type Config struct {
	Sources   SourcesConfig   `yaml:"sources"`
	Reference ReferenceConfig `yaml:"reference"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Rules     RulesConfig     `yaml:"rules"`
	Filter    FilterConfig    `yaml:"filter"`
	Output    OutputConfig    `yaml:"output"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	EnvFile   string          `yaml:"env_file"`
}

// SourcesConfig names the two log exports. The database export is either a
// CSV file or a live Moodle database.
type SourcesConfig struct {
	Platform      string         `yaml:"platform"       validate:"required"`
	Database      string         `yaml:"database"`
	MalformedRows string         `yaml:"malformed_rows" validate:"oneof=abort drop"`
	DB            DBConfig       `yaml:"db"`
	RoleIDs       source.RoleIDs `yaml:"role_ids"`
}

// DBConfig connects to a Moodle database. The DSN may reference environment
// variables as ${NAME}; variables from the env file are visible too.
type DBConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=mysql mariadb postgres postgresql pgsql"`
	DSN    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
	Since  string `yaml:"since" validate:"omitempty,datetime=2006-01-02"`
	Until  string `yaml:"until" validate:"omitempty,datetime=2006-01-02"`
}

// Enabled reports whether the database export is read from a database.
func (d DBConfig) Enabled() bool { return d.DSN != "" }

// ReferenceConfig names the reference tables. Only Students is mandatory.
// When the database source is enabled, tables are read from the database.
type ReferenceConfig struct {
	Courses            string `yaml:"courses"`
	Students           string `yaml:"students"`
	Teachers           string `yaml:"teachers"`
	NonEditingTeachers string `yaml:"non_editing_teachers"`
	CourseCreators     string `yaml:"course_creators"`
	Managers           string `yaml:"managers"`
	Admins             string `yaml:"admins"`
	SiteAdmins         string `yaml:"siteadmins"`
	DeletedUsers       string `yaml:"deleted_users"`
}

// EnrichConfig controls course labelling and year derivation.
type EnrichConfig struct {
	SplitCourseYear bool   `yaml:"split_course_year"`
	Timezone        string `yaml:"timezone" validate:"omitempty,timezone"`
}

// RulesConfig points at an optional YAML rules file.
type RulesConfig struct {
	File string `yaml:"file"`
}

// FilterConfig adjusts the exclusion predicates.
type FilterConfig struct {
	Extra   []string `yaml:"extra"   validate:"dive,oneof=deleted-module unlabelled-area"`
	Disable []string `yaml:"disable"`
}

// OutputConfig controls the projected table and its sink.
type OutputConfig struct {
	Path       string   `yaml:"path" validate:"required"`
	Columns    []string `yaml:"columns"`
	TimeLayout string   `yaml:"time_layout"`
	Timezone   string   `yaml:"timezone" validate:"omitempty,timezone"`
}

// AuditConfig controls the run ledger.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			MalformedRows: string(source.MalformedAbort),
			DB:            DBConfig{Driver: "mysql", Prefix: "mdl_"},
			RoleIDs:       source.DefaultRoleIDs(),
		},
		Enrich: EnrichConfig{Timezone: "UTC"},
		Output: OutputConfig{Path: "-", Timezone: "UTC"},
		Audit: AuditConfig{
			Enabled: true,
			Path:    audit.DefaultPath(),
		},
		EnvFile: ".env",
	}
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "moodlelogs", "config.yaml")
}

// LoadFrom reads the config at path on fsys over the defaults. A missing
// file yields the defaults. Paths starting with ~ are expanded and ${VAR}
// references in the DSN are resolved against the environment and the env
// file.
func LoadFrom(fsys afero.Fs, path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	env, err := loadEnvFile(fsys, cfg.EnvFile)
	if err != nil {
		return nil, err
	}
	cfg.Sources.DB.DSN = os.Expand(cfg.Sources.DB.DSN, func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return env[name]
	})

	cfg.ExpandPaths()
	return cfg, nil
}

// ExpandPaths expands a leading ~ in every path setting.
func (c *Config) ExpandPaths() {
	for _, p := range []*string{
		&c.Sources.Platform, &c.Sources.Database,
		&c.Reference.Courses, &c.Reference.Students, &c.Reference.Teachers,
		&c.Reference.NonEditingTeachers, &c.Reference.CourseCreators,
		&c.Reference.Managers, &c.Reference.Admins, &c.Reference.DeletedUsers,
		&c.Rules.File, &c.Output.Path, &c.Audit.Path, &c.Metrics.Textfile,
	} {
		*p = expandHome(*p)
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// loadEnvFile parses a dotenv file. A missing file is not an error.
func loadEnvFile(fsys afero.Fs, path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := afero.ReadFile(fsys, expandHome(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", path, err)
	}
	return env, nil
}

var validate = validator.New()

// Validate checks the configuration after flags have been applied.
func Validate(c *Config) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Error())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sources.Database == "" && !c.Sources.DB.Enabled() {
		return errors.New("invalid config: sources.database or sources.db.dsn is required")
	}
	if !c.Sources.DB.Enabled() && c.Reference.Students == "" {
		return errors.New("invalid config: reference.students is required")
	}
	if c.Reference.Admins != "" && c.Reference.SiteAdmins != "" {
		return errors.New("invalid config: reference.admins and reference.siteadmins are mutually exclusive")
	}
	return nil
}

// Location resolves a timezone name. An empty name is UTC.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

// MalformedPolicy returns the configured malformed row policy.
func (c *Config) MalformedPolicy() source.MalformedPolicy {
	return source.MalformedPolicy(c.Sources.MalformedRows)
}
