package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  string
	}{
		{"counted", ProgressEvent{Stage: StageChunking, Current: 3, Total: 10, CurrentFile: "git-commit.txt"}, "[CHUNK] 3/10 - git-commit.txt\n"},
		{"message wins over file", ProgressEvent{Stage: StageEmbedding, Current: 1, Total: 2, CurrentFile: "x", Message: "batch"}, "[EMBED] 1/2 - batch\n"},
		{"message only", ProgressEvent{Stage: StagePublishing, Message: "Publishing 12 chunks..."}, "[PUBLISH] Publishing 12 chunks...\n"},
		{"nothing to say", ProgressEvent{Stage: StageLoading}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewPlainRenderer(NewConfig(buf)).UpdateProgress(tt.event)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{File: "bad.txt", Err: errors.New("skipped: invalid_utf8"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("boom")})

	assert.Equal(t, "WARN: bad.txt: skipped: invalid_utf8\nERROR: boom\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given a finished ingest
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When completing
	r.Complete(CompletionStats{
		Revision:   "0123456789abcdef0123",
		Generation: "00000000000000000042",
		Documents:  3,
		Chunks:     12,
		Duration:   1500 * time.Millisecond,
		Warnings:   1,
		Stages:     StageTimings{Load: time.Millisecond, Embed: time.Second},
		Embedder:   EmbedderInfo{Backend: "static", Model: "static-hash-256", Dimensions: 256},
	})

	// Then the summary names the generation and short revision
	out := buf.String()
	assert.Contains(t, out, "Complete: 3 documents, 12 chunks published")
	assert.Contains(t, out, "(0 errors, 1 warnings)")
	assert.Contains(t, out, "Generation: 00000000000000000042 (revision 0123456789ab)")
	assert.Contains(t, out, "12 chunks @ 12.0/sec")
	assert.Contains(t, out, "Embedder: static (static-hash-256, 256 dims)")
	assert.NotContains(t, out, "\x1b[")
}

func TestPlainRenderer_CompleteUpToDate(t *testing.T) {
	buf := &bytes.Buffer{}

	NewPlainRenderer(NewConfig(buf)).Complete(CompletionStats{UpToDate: true, Revision: "abc"})

	assert.Equal(t, "Index is up to date at revision abc (use --force to rebuild)\n", buf.String())
}

func TestPlainRenderer_NilOutput(t *testing.T) {
	r := NewPlainRenderer(Config{})
	require.NoError(t, r.Start(context.Background()))
	r.UpdateProgress(ProgressEvent{Stage: StageLoading, Message: "x"})
	require.NoError(t, r.Stop())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestPlainRenderer_ConcurrentUpdates(t *testing.T) {
	out := &lockedBuffer{}
	r := NewPlainRenderer(NewConfig(out))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.UpdateProgress(ProgressEvent{Stage: StageChunking, Current: i, Total: 20, CurrentFile: fmt.Sprint(i)})
			r.AddError(ErrorEvent{Err: errors.New("x"), IsWarn: true})
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.errors, 20)
}
