// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/moodlelogs/internal/audit"
)

const configYAML = `
sources:
  platform: /in/platform.csv
  database: /in/logstore.csv
reference:
  students: /in/students.csv
output:
  path: /out/logs.csv
  columns: [ID, Username, Role]
audit:
  path: /ledger/runs.jsonl
`

func newServer(t *testing.T) (*Server, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"/etc/moodlelogs.yaml": configYAML,
		"/in/platform.csv": "Time,User full name,Affected user,Event context,Component,Event name,Description\n" +
			`"3/10/21, 14:10",Ana Lima,-,Course: Biology,System,Course viewed,d` + "\n" +
			`"3/10/21, 14:05",Ana Lima,-,Forum: News,Forum,Discussion viewed,d` + "\n",
		"/in/logstore.csv": "id,userid,courseid,relateduserid,timecreated\n" +
			"21,5,7,,1633263000\n20,5,7,,1633262700\n",
		"/in/students.csv": "7,5\n",
	}
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(data), 0o644))
	}
	return New(Options{
		FS:         fsys,
		ConfigPath: "/etc/moodlelogs.yaml",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:    "test",
	}), fsys
}

func request(args map[string]any) gomcp.CallToolRequest {
	var req gomcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *gomcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(gomcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestConsolidate(t *testing.T) {
	s, fsys := newServer(t)

	res, err := s.consolidate(context.Background(), request(nil))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var sum runSummary
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &sum))
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Rows["output"])
	assert.Empty(t, sum.Table)

	data, err := afero.ReadFile(fsys, "/out/logs.csv")
	require.NoError(t, err)
	assert.Equal(t, "ID,Username,Role\n20,Ana Lima,Student\n21,Ana Lima,Student\n", string(data))

	entries, err := audit.Tail(fsys, "/ledger/runs.jsonl", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mcp", entries[0].Command)
	assert.Equal(t, sum.RunID, entries[0].RunID)
}

func TestConsolidateToResult(t *testing.T) {
	s, _ := newServer(t)

	res, err := s.consolidate(context.Background(), request(map[string]any{"output": "-"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var sum runSummary
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &sum))
	assert.Equal(t, "ID,Username,Role\n20,Ana Lima,Student\n21,Ana Lima,Student\n", sum.Table)
}

func TestConsolidateFailure(t *testing.T) {
	s, fsys := newServer(t)

	res, err := s.consolidate(context.Background(), request(map[string]any{"platform": "/in/missing.csv"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "missing.csv")

	entries, err := audit.Tail(fsys, "/ledger/runs.jsonl", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].ExitCode)
}

func TestConsolidateInvalidConfig(t *testing.T) {
	s, _ := newServer(t)
	res, err := s.consolidate(context.Background(), request(map[string]any{"output": "/out/logs.parquet", "config": "/nowhere.yaml"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "invalid config")
}

func TestListRules(t *testing.T) {
	s, fsys := newServer(t)
	require.NoError(t, afero.WriteFile(fsys, "/etc/rules.yaml", []byte(`
rules:
  - id: quiz-review
    target: component
    contains: Quiz attempt reviewed
    set: Quiz
`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/etc/moodlelogs.yaml",
		[]byte(configYAML+"rules:\n  file: /etc/rules.yaml\n"), 0o644))

	res, err := s.listRules(context.Background(), request(nil))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var got []ruleInfo
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	require.NotEmpty(t, got)
	assert.Equal(t, "area-logged-in", got[0].ID)
	last := got[len(got)-1]
	assert.Equal(t, "quiz-review", last.ID)
	assert.Equal(t, "contains", last.Kind)
	assert.Equal(t, "component", last.Target)
}

func TestListFilters(t *testing.T) {
	s, _ := newServer(t)
	res, err := s.listFilters(context.Background(), request(nil))
	require.NoError(t, err)

	var got []filterInfo
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	ids := make([]string, len(got))
	for i, f := range got {
		ids[i] = f.ID
	}
	assert.Contains(t, ids, "cron-user")
	assert.NotContains(t, ids, "deleted-user")
}

func TestToolsList(t *testing.T) {
	s, _ := newServer(t)
	resp := s.MCPServer().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"consolidate", "list_rules", "list_filters"} {
		assert.Contains(t, string(data), `"name":"`+name+`"`)
	}
}
