package ui

import (
	"sync"
	"time"
)

// etaSmoothing weighs a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// speedInterval is the minimum gap between throughput samples.
const speedInterval = 500 * time.Millisecond

// ProgressTracker holds per-stage progress. It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time
	errors      int
	warnings    int

	lastETA       time.Duration
	lastCurrent   int
	lastSpeedCalc time.Time
	speed         float64
	avgSpeed      float64
	samples       int
}

// ProgressStats is a snapshot of ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	// Speed and AvgSpeed are items per second.
	Speed    float64
	AvgSpeed float64
}

// NewProgressTracker creates a tracker positioned at StageLoading.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageLoading, stageStart: now, lastSpeedCalc: now}
}

// SetStage transitions to a new stage and resets counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = now
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSpeedCalc = now
	p.speed = 0
	p.avgSpeed = 0
	p.samples = 0
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	elapsed := now.Sub(p.lastSpeedCalc)
	if elapsed < speedInterval {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		p.speed = float64(delta) / elapsed.Seconds()
		p.samples++
		if p.samples == 1 {
			p.avgSpeed = p.speed
		} else {
			p.avgSpeed = 0.2*p.speed + 0.8*p.avgSpeed
		}
	}
	p.lastCurrent = current
	p.lastSpeedCalc = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    p.fraction(),
		ETA:         p.eta(),
		CurrentFile: p.currentFile,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
		Speed:       p.speed,
		AvgSpeed:    p.avgSpeed,
	}
}

// fraction is progress in [0,1]. Callers hold mu.
func (p *ProgressTracker) fraction() float64 {
	if p.total == 0 {
		return 0
	}
	return min(float64(p.current)/float64(p.total), 1)
}

// eta estimates the remaining stage time with exponential smoothing, so
// uneven embedding batches do not make it jump. Callers hold mu.
func (p *ProgressTracker) eta() time.Duration {
	progress := p.fraction()
	if p.current == 0 || progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
