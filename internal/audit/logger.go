package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const genesisInput = "moodlelogs-genesis"

// DefaultPath returns the default location of the run ledger.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "moodlelogs", "runs.jsonl")
}

// Logger is an append-only, hash-chained run ledger writer.
type Logger struct {
	mu       sync.Mutex
	fs       afero.Fs
	path     string
	seq      uint64
	prevHash string
	now      func() time.Time
}

// NewLogger opens or creates a ledger at path on fsys. It reads the last
// entry to resume the hash chain.
func NewLogger(fsys afero.Fs, path string) (*Logger, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	l := &Logger{
		fs:       fsys,
		path:     path,
		prevHash: genesisHash(),
		now:      func() time.Time { return time.Now().UTC() },
	}

	if data, err := afero.ReadFile(fsys, path); err == nil && len(data) > 0 {
		lines := splitLines(data)
		if len(lines) > 0 {
			var last Entry
			if err := json.Unmarshal(lines[len(lines)-1], &last); err == nil {
				l.seq = last.Seq
				l.prevHash = last.Hash
			}
		}
	}

	return l, nil
}

// Log appends e to the ledger. Seq, Time, PrevHash and Hash are assigned
// here; duration is the run's wall time.
func (l *Logger) Log(e Entry, duration time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.seq + 1
	e.Time = l.now()
	e.PrevHash = l.prevHash
	e.Duration = float64(duration.Microseconds()) / 1000.0
	e.Hash = computeHash(e)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	data = append(data, '\n')

	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write ledger entry: %w", err)
	}
	l.seq = e.Seq
	l.prevHash = e.Hash
	return nil
}

// Path returns the ledger file path.
func (l *Logger) Path() string {
	return l.path
}

func genesisHash() string {
	h := sha256.Sum256([]byte(genesisInput))
	return fmt.Sprintf("%x", h)
}

func computeHash(e Entry) string {
	e.Hash = "" // hash is computed with this field empty
	data, _ := json.Marshal(e)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
