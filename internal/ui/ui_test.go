package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageLoading, "Loading", "LOAD"},
		{StageChunking, "Chunking", "CHUNK"},
		{StageEmbedding, "Embedding", "EMBED"},
		{StagePublishing, "Publishing", "PUBLISH"},
		{StageComplete, "Complete", "DONE"},
		{Stage(42), "Unknown", "???"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.icon, tt.stage.Icon())
		})
	}
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestNewConfig_Options(t *testing.T) {
	buf := &bytes.Buffer{}

	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithDocsRoot("Documentation"))

	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "Documentation", cfg.DocsRoot)
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	// Given output that is not a terminal
	cfg := NewConfig(&bytes.Buffer{})

	// When choosing a renderer
	r := NewRenderer(cfg)

	// Then the plain renderer is used
	assert.IsType(t, &PlainRenderer{}, r)
	assert.IsType(t, &PlainRenderer{}, NewRenderer(NewConfig(&bytes.Buffer{}, WithForcePlain(true))))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestGetStyles(t *testing.T) {
	assert.Equal(t, "x", GetStyles(true).Header.Render("x"))
	assert.True(t, DefaultStyles().Header.GetBold())
}
