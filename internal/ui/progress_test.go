package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_StartsAtLoading(t *testing.T) {
	stats := NewProgressTracker().Stats()

	assert.Equal(t, StageLoading, stats.Stage)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Progress)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_Progress(t *testing.T) {
	tests := []struct {
		current, total int
		want           float64
	}{
		{0, 10, 0},
		{5, 10, 0.5},
		{10, 10, 1},
		{15, 10, 1},
		{3, 0, 0},
	}
	for _, tt := range tests {
		p := NewProgressTracker()
		p.SetStage(StageEmbedding, tt.total)
		p.Update(tt.current, "")
		assert.InDelta(t, tt.want, p.Stats().Progress, 1e-9, "%d/%d", tt.current, tt.total)
	}
}

func TestProgressTracker_SetStageResets(t *testing.T) {
	// Given progress in one stage
	p := NewProgressTracker()
	p.SetStage(StageChunking, 3)
	p.Update(2, "git-revert.txt")

	// When moving on
	p.SetStage(StageEmbedding, 40)

	// Then counters restart
	stats := p.Stats()
	assert.Equal(t, StageEmbedding, stats.Stage)
	assert.Equal(t, 40, stats.Total)
	assert.Zero(t, stats.Current)
	assert.Empty(t, stats.CurrentFile)
}

func TestProgressTracker_KeepsLastFile(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageChunking, 3)
	p.Update(1, "git-commit.txt")
	p.Update(2, "")

	assert.Equal(t, "git-commit.txt", p.Stats().CurrentFile)
}

func TestProgressTracker_CountsErrorsAndWarnings(t *testing.T) {
	p := NewProgressTracker()
	p.AddError(ErrorEvent{Err: assert.AnError})
	p.AddError(ErrorEvent{Err: assert.AnError, IsWarn: true})
	p.AddError(ErrorEvent{Err: assert.AnError, IsWarn: true})

	stats := p.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 2, stats.WarnCount)
}

func TestProgressTracker_ETAAfterPartialProgress(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 100)
	time.Sleep(20 * time.Millisecond)
	p.Update(50, "")

	assert.Positive(t, p.Stats().ETA)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Update(i, "")
			_ = p.Stats()
		}(i)
	}
	wg.Wait()
}
