// internal/guide/guide.go

// Package guide accumulates the steps of an automation run and renders them
// as user-facing documentation.
package guide

import (
	"sync"
	"time"
)

// Record is one completed step of a run.
type Record struct {
	Step           int       `json:"step"`
	Description    string    `json:"description"`
	Reasoning      string    `json:"reasoning,omitempty"`
	Kind           string    `json:"kind"`
	Target         string    `json:"target,omitempty"`
	URL            string    `json:"url"`
	Title          string    `json:"title,omitempty"`
	Success        bool      `json:"success"`
	ScreenshotPath string    `json:"screenshot,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// Screenshot holds raw PNG bytes until the generator writes them out.
	Screenshot []byte `json:"-"`
}

// Log is an append-only record of a run, safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	goal    string
	started time.Time
	records []Record
}

func NewLog(goal string) *Log {
	return &Log{goal: goal, started: time.Now()}
}

func (l *Log) Goal() string { return l.goal }

func (l *Log) Started() time.Time { return l.started }

// Append adds a record. The step number is assigned here so callers cannot
// produce gaps or duplicates.
func (l *Log) Append(r Record) Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	r.Step = len(l.records) + 1
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	l.records = append(l.records, r)
	return r
}

// Records returns a copy of the log so far.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
