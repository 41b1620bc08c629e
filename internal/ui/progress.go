package ui

import (
	"sync"
	"time"
)

// ProgressTracker holds progress state across stages. Safe for
// concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	message    string
	startTime  time.Time
	stageStart time.Time
	errors     int
	warns      int

	lastETA time.Duration
}

// ProgressStats is a snapshot of current progress.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	Message    string
	ErrorCount int
	WarnCount  int
	Elapsed    time.Duration
}

// NewProgressTracker creates a tracker starting at the loading stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageLoading,
		startTime:  now,
		stageStart: now,
	}
}

// SetStage transitions to a new stage.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.message = ""
	p.stageStart = time.Now()
	p.lastETA = 0
}

// Update advances progress within the current stage.
func (p *ProgressTracker) Update(current int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if message != "" {
		p.message = message
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warns++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot. Takes the write lock: ETA smoothing
// updates state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Message:    p.message,
		ErrorCount: p.errors,
		WarnCount:  p.warns,
		Elapsed:    time.Since(p.startTime),
	}
	if p.total > 0 {
		stats.Progress = float64(p.current) / float64(p.total)
	}
	stats.ETA = p.eta()
	return stats
}

// eta estimates time remaining in the current stage, exponentially
// smoothed so the number doesn't jump around. Caller holds the lock.
func (p *ProgressTracker) eta() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	perItem := elapsed / time.Duration(p.current)
	raw := perItem * time.Duration(p.total-p.current)

	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	smoothed := time.Duration(0.3*float64(raw) + 0.7*float64(p.lastETA))
	p.lastETA = smoothed
	return smoothed
}
