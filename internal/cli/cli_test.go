package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/moodlelogs/internal/audit"
)

const testConfig = `
sources:
  platform: /in/platform.csv
  database: /in/logstore.csv
reference:
  students: /in/students.csv
output:
  path: /out/logs.csv
audit:
  path: /ledger/runs.jsonl
`

type harness struct {
	fs     afero.Fs
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{fs: afero.NewMemMapFs()}
	files := map[string]string{
		"/etc/moodlelogs.yaml": testConfig,
		"/in/platform.csv": "Time,User full name,Affected user,Event context,Component,Event name,Description\n" +
			`"3/10/21, 14:10",Ana Lima,-,Course: Biology,System,Course viewed,d` + "\n" +
			`"3/10/21, 14:05",Ana Lima,-,Forum: News,Forum,Discussion viewed,d` + "\n",
		"/in/logstore.csv": "21,5,7,0,1633263000\n20,5,7,0,1633262700\n",
		"/in/students.csv": "courseid,userid\n7,5\n",
	}
	for name, data := range files {
		require.NoError(t, afero.WriteFile(h.fs, name, []byte(data), 0o644))
	}
	return h
}

func (h *harness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	app := &App{FS: h.fs, Stdin: strings.NewReader(""), Stdout: &h.stdout, Stderr: &h.stderr, Version: "1.2.3"}
	return app.Run(context.Background(), append([]string{"--config", "/etc/moodlelogs.yaml"}, args...))
}

func TestRunCommand(t *testing.T) {
	h := newHarness(t)

	code := h.run("run")
	require.Equal(t, ExitOK, code, h.stderr.String())

	data, err := afero.ReadFile(h.fs, "/out/logs.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ID,Time,Year,Course_Area"), string(data))
	assert.Contains(t, h.stderr.String(), "Stages")
	assert.Contains(t, h.stderr.String(), "filtered")

	entries, err := audit.Tail(h.fs, "/ledger/runs.jsonl", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run", entries[0].Command)
	assert.Equal(t, 2, entries[0].Rows["output"])
}

func TestRunCommandOverrides(t *testing.T) {
	h := newHarness(t)

	code := h.run("run", "--output", "-", "--columns", "ID,Role", "--audit=false", "--quiet")
	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, "ID,Role\n20,Student\n21,Student\n", h.stdout.String())

	exists, _ := afero.Exists(h.fs, "/ledger/runs.jsonl")
	assert.False(t, exists)
}

func TestRunCommandExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"run", "--colour"}, ExitUsage},
		{"unknown command", []string{"consolidate"}, ExitUsage},
		{"invalid policy", []string{"run", "--malformed", "ignore"}, ExitUsage},
		{"bad output format", []string{"run", "--output", "/out/logs.parquet"}, ExitFailure},
		{"missing platform", []string{"run", "--platform", "/in/nope.csv"}, ExitFailure},
		{"missing students", []string{"run", "--students", "/in/nope.csv"}, ExitFailure},
		{"missing rules file", []string{"run", "--rules", "/in/nope.yaml"}, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			assert.Equal(t, tt.want, h.run(tt.args...), h.stderr.String())
			assert.Contains(t, h.stderr.String(), "moodlelogs:")
		})
	}
}

func TestFailedRunIsRecorded(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, ExitFailure, h.run("run", "--platform", "/in/nope.csv"))

	entries, err := audit.Tail(h.fs, "/ledger/runs.jsonl", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ExitFailure, entries[0].ExitCode)
	assert.Contains(t, entries[0].Error, "nope.csv")
}

func TestAuditCommands(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, ExitOK, h.run("run", "--quiet"))
	require.Equal(t, ExitOK, h.run("run", "--quiet"))

	require.Equal(t, ExitOK, h.run("audit", "verify"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "ledger integrity verified")

	require.Equal(t, ExitOK, h.run("audit", "show", "-n", "1", "--raw"))
	assert.Contains(t, h.stdout.String(), `"seq": 2`)

	require.Equal(t, ExitOK, h.run("audit", "show"))
	assert.Contains(t, h.stdout.String(), "SEQ")

	// Tamper with the first entry.
	data, err := afero.ReadFile(h.fs, "/ledger/runs.jsonl")
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"output":2`, `"output":3`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, afero.WriteFile(h.fs, "/ledger/runs.jsonl", []byte(tampered), 0o600))

	assert.Equal(t, ExitFailure, h.run("audit", "verify"))
	assert.Contains(t, h.stderr.String(), "FAILED")
}

func TestRulesCommand(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, ExitOK, h.run("rules"), h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "area-logged-in")
	assert.Contains(t, out, "component-web-service")

	require.Equal(t, ExitOK, h.run("rules", "--raw"))
	assert.Contains(t, h.stdout.String(), `"id": "swap-message-contact-added"`)

	assert.Equal(t, ExitUsage, h.run("rules", "--rules", "/in/platform.csv"))
	assert.Equal(t, ExitUsage, h.run("rules", "--rules", "/in/nope.yaml"))
}

func TestFiltersCommand(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, ExitOK, h.run("filters"), h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "cron-user")
	assert.Contains(t, out, "unlabelled-area")
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, ExitOK, h.run("version"))
	assert.Equal(t, "moodlelogs 1.2.3\n", h.stdout.String())
}
