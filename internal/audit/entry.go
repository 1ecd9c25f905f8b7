package audit

import "time"

// Entry is one run of the consolidation pipeline.
type Entry struct {
	Seq      uint64         `json:"seq"`
	Time     time.Time      `json:"ts"`
	PrevHash string         `json:"prev_hash"`
	RunID    string         `json:"run_id"`
	Command  string         `json:"command"`          // "run" or "mcp"
	Inputs   []string       `json:"inputs"`           // platform and database sources
	Output   string         `json:"output,omitempty"` // sink path, "-" for stdout
	Rows     map[string]int `json:"rows,omitempty"`   // row count after each stage
	ExitCode int            `json:"exit_code"`        // 0 = success
	Error    string         `json:"error,omitempty"`
	Duration float64        `json:"duration_ms"`
	Cwd      string         `json:"cwd"`
	Hash     string         `json:"hash"` // SHA-256 of this entry (with hash field empty)
}
