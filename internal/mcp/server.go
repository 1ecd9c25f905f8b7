// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes consolidation runs as MCP tools over stdio, so an agent
// can run the pipeline and inspect the rule table.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/afero"

	"github.com/marcelocantos/moodlelogs/internal/audit"
	"github.com/marcelocantos/moodlelogs/internal/config"
	"github.com/marcelocantos/moodlelogs/internal/filter"
	"github.com/marcelocantos/moodlelogs/internal/pipeline"
	"github.com/marcelocantos/moodlelogs/internal/record"
	"github.com/marcelocantos/moodlelogs/internal/rules"
)

// Options configures the tool server.
type Options struct {
	FS         afero.Fs
	ConfigPath string // default config file; a tool call may name another
	Logger     *slog.Logger
	Version    string
}

// Server holds the tool handlers.
type Server struct {
	opts Options
}

// New returns the tool handlers for opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{opts: opts}
}

// MCPServer registers the tools on a new MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("moodlelogs", s.opts.Version, server.WithToolCapabilities(false))

	srv.AddTool(gomcp.NewTool("consolidate",
		gomcp.WithDescription("Join the platform and database log exports, enrich and reclassify the records, "+
			"drop excluded activity and write the table. Returns the run summary; with output \"-\" the table is returned too."),
		gomcp.WithString("config", gomcp.Description("Config file path (defaults to the server's config)")),
		gomcp.WithString("platform", gomcp.Description("Platform export file or directory (overrides config)")),
		gomcp.WithString("database", gomcp.Description("Database export file (overrides config)")),
		gomcp.WithString("output", gomcp.Description("Output path ending in .csv, .xlsx or .jsonl, or \"-\" (overrides config)")),
	), s.consolidate)

	srv.AddTool(gomcp.NewTool("list_rules",
		gomcp.WithDescription("List the reclassification rules in evaluation order, including those from the configured rules file."),
		gomcp.WithString("config", gomcp.Description("Config file path (defaults to the server's config)")),
	), s.listRules)

	srv.AddTool(gomcp.NewTool("list_filters",
		gomcp.WithDescription("List the exclusion predicates active under the config."),
		gomcp.WithString("config", gomcp.Description("Config file path (defaults to the server's config)")),
	), s.listFilters)

	return srv
}

// Serve runs the server on stdin/stdout until ctx is done or stdin closes.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	return server.NewStdioServer(s.MCPServer()).Listen(ctx, stdin, stdout)
}

func (s *Server) loadConfig(req gomcp.CallToolRequest) (*config.Config, error) {
	path := req.GetString("config", s.opts.ConfigPath)
	cfg, err := config.LoadFrom(s.opts.FS, path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

type runSummary struct {
	RunID    string                        `json:"run_id"`
	Output   string                        `json:"output"`
	Rows     map[string]int                `json:"rows"`
	Dropped  []pipeline.Drop               `json:"dropped,omitempty"`
	Warnings []record.UnmappedValueWarning `json:"unmapped,omitempty"`
	Matches  map[string]int                `json:"filter_matches,omitempty"`
	Table    string                        `json:"table,omitempty"`
}

func (s *Server) consolidate(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	cfg, err := s.loadConfig(req)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	if v := req.GetString("platform", ""); v != "" {
		cfg.Sources.Platform = v
	}
	if v := req.GetString("database", ""); v != "" {
		cfg.Sources.Database = v
	}
	if v := req.GetString("output", ""); v != "" {
		cfg.Output.Path = v
	}
	cfg.ExpandPaths()
	if err := config.Validate(cfg); err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}

	var table bytes.Buffer
	rn := &pipeline.Runner{
		Config: cfg,
		FS:     s.opts.FS,
		Stdout: &table,
		Logger: s.opts.Logger,
	}
	res, runErr := rn.Run(ctx)
	s.ledger(cfg, res, runErr)
	if runErr != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("run %s failed: %v", res.RunID, runErr)), nil
	}

	data, err := json.MarshalIndent(runSummary{
		RunID:    res.RunID,
		Output:   res.Output,
		Rows:     res.Rows(),
		Dropped:  res.Dropped,
		Warnings: res.Warnings,
		Matches:  res.FilterStats.Matches,
		Table:    table.String(),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return gomcp.NewToolResultText(string(data)), nil
}

// ledger records the run. Ledger failures are logged, never returned.
func (s *Server) ledger(cfg *config.Config, res *pipeline.Result, runErr error) {
	if !cfg.Audit.Enabled || res == nil {
		return
	}
	code := 0
	if runErr != nil {
		code = 2
	}
	l, err := audit.NewLogger(s.opts.FS, cfg.Audit.Path)
	if err == nil {
		err = l.Log(res.Entry("mcp", code, runErr), res.Duration)
	}
	if err != nil {
		s.opts.Logger.Warn("run ledger unavailable", "err", err)
	}
}

type ruleInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
	When   string `json:"when"`
	Then   string `json:"then"`
}

func (s *Server) listRules(_ context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	cfg, err := s.loadConfig(req)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	rs, err := rules.Load(s.opts.FS, cfg.Rules.File)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}

	var out []ruleInfo
	for _, r := range rs.Rules() {
		out = append(out, ruleInfo{
			ID:     r.ID,
			Kind:   r.Kind.String(),
			Target: r.Target.String(),
			When:   r.When.String(),
			Then:   r.Then.String(),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return gomcp.NewToolResultText(string(data)), nil
}

type filterInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func (s *Server) listFilters(_ context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	cfg, err := s.loadConfig(req)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	// The deleted-user predicate depends on a table read at run time; list
	// it whenever a table is configured.
	var deleted record.IDSet
	if cfg.Reference.DeletedUsers != "" || cfg.Sources.DB.Enabled() {
		deleted = record.IDSet{}
	}
	f, err := filter.New(filter.Options{
		Extra:        cfg.Filter.Extra,
		Disable:      cfg.Filter.Disable,
		DeletedUsers: deleted,
	})
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}

	var out []filterInfo
	for _, p := range f.Predicates() {
		out = append(out, filterInfo{ID: p.ID, Description: p.Description})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return gomcp.NewToolResultText(string(data)), nil
}
