package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// StepEntry is one recorded progress message.
type StepEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// StepLogger records installation progress in memory and, optionally, as
// JSON lines on a writer.
type StepLogger struct {
	mu      sync.Mutex
	entries []StepEntry
	out     io.Writer
	now     func() time.Time
}

// NewStepLogger creates a step logger. out may be nil.
func NewStepLogger(out io.Writer) *StepLogger {
	return &StepLogger{out: out, now: time.Now}
}

// OpenStepLog creates a step logger appending to steps.jsonl in dir.
// The returned file must be closed by the caller.
func OpenStepLog(dir string) (*StepLogger, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "steps.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open step log: %w", err)
	}
	return NewStepLogger(f), f, nil
}

// Step records a progress message.
func (s *StepLogger) Step(msg string) {
	s.record("STEP", msg)
}

// Error records a failure message.
func (s *StepLogger) Error(msg string) {
	s.record("ERROR", msg)
}

// Entries returns a copy of the recorded entries.
func (s *StepLogger) Entries() []StepEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StepEntry(nil), s.entries...)
}

// Summarize returns every recorded message, one per line.
func (s *StepLogger) Summarize() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, e := range s.entries {
		fmt.Fprintf(&b, "%s %s\n", e.Level, e.Message)
	}
	return b.String()
}

func (s *StepLogger) record(level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := StepEntry{Time: s.now().UTC(), Level: level, Message: strings.TrimSpace(msg)}
	s.entries = append(s.entries, entry)
	if s.out == nil {
		return
	}
	if data, err := json.Marshal(entry); err == nil {
		_, _ = fmt.Fprintln(s.out, string(data))
	}
}

var _ ports.StepLogger = (*StepLogger)(nil)
