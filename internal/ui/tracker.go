package ui

import (
	"sync"
	"time"
)

// Tracker accumulates progress for the TUI. It is safe for concurrent use.
type Tracker struct {
	mu         sync.RWMutex
	stage      Stage
	current    int
	total      int
	file       string
	stageStart time.Time
	errors     int
	warnings   int

	now func() time.Time
}

// Snapshot is a point-in-time copy of a Tracker.
type Snapshot struct {
	Stage    Stage
	Current  int
	Total    int
	File     string
	Fraction float64
	Rate     float64
	ETA      time.Duration
	Errors   int
	Warnings int
}

// NewTracker returns a tracker in the scanning stage.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.stageStart = t.now()
	return t
}

// Apply records event, resetting counters when the stage changes.
func (t *Tracker) Apply(event ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Stage != t.stage {
		t.stage = event.Stage
		t.stageStart = t.now()
		t.current = 0
		t.file = ""
	}
	t.total = event.Total
	if event.Current > t.current {
		t.current = event.Current
	}
	if event.CurrentFile != "" {
		t.file = event.CurrentFile
	}
}

// AddError counts event.
func (t *Tracker) AddError(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if event.IsWarn {
		t.warnings++
		return
	}
	t.errors++
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		Stage:    t.stage,
		Current:  t.current,
		Total:    t.total,
		File:     t.file,
		Errors:   t.errors,
		Warnings: t.warnings,
	}
	if t.total > 0 {
		s.Fraction = float64(t.current) / float64(t.total)
		if s.Fraction > 1 {
			s.Fraction = 1
		}
	}
	elapsed := t.now().Sub(t.stageStart)
	if elapsed > 0 && t.current > 0 {
		s.Rate = float64(t.current) / elapsed.Seconds()
		if remaining := t.total - t.current; remaining > 0 {
			s.ETA = time.Duration(float64(remaining) / s.Rate * float64(time.Second))
		}
	}
	return s
}
