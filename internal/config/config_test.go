package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// isolate points the user config at an empty temp dir so the developer's
// own ~/.config/docrag does not leak into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Retrieval.Oversample)
	assert.InDelta(t, 0.7, cfg.Retrieval.Lambda, 1e-9)
	assert.Equal(t, 6, cfg.Retrieval.TopK.Comparison)
	assert.Equal(t, 4, cfg.Retrieval.TopK.Procedural)
	assert.Equal(t, 5000, cfg.Answer.MaxContextChars)
}

func TestLoad_NoFiles_UsesDefaultsAndResolvesPaths(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Documentation"), cfg.Docs.Root)
	assert.Equal(t, filepath.Join(dir, DefaultDataDir), cfg.Index.DataDir)
}

func TestLoad_ProjectFileOverlaysDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	yml := `
docs:
  root: /srv/git/Documentation
  filename_prefix: git-
retrieval:
  lambda: 0.5
  top_k:
    comparison: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte(yml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/srv/git/Documentation", cfg.Docs.Root)
	assert.Equal(t, "git-", cfg.Docs.FilenamePrefix)
	assert.InDelta(t, 0.5, cfg.Retrieval.Lambda, 1e-9)
	assert.Equal(t, 8, cfg.Retrieval.TopK.Comparison)
	// Untouched keys keep their defaults
	assert.Equal(t, 4, cfg.Retrieval.TopK.Definition)
	assert.Equal(t, 3, cfg.Retrieval.Oversample)
}

func TestLoad_UserConfigThenProjectPrecedence(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "docrag"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "docrag", "config.yaml"),
		[]byte("retrieval:\n  oversample: 5\n  max_variants: 3\n"), 0644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName),
		[]byte("retrieval:\n  oversample: 4\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Retrieval.Oversample, "project overrides user")
	assert.Equal(t, 3, cfg.Retrieval.MaxVariants, "user value survives")
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	isolate(t)
	t.Setenv("DOCS_HOME", "/data/docs")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName),
		[]byte("docs:\n  root: ${DOCS_HOME}/git\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/data/docs/git", cfg.Docs.Root)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	isolate(t)
	t.Setenv("DOCRAG_MMR_LAMBDA", "0")
	t.Setenv("DOCRAG_EMBEDDINGS_PROVIDER", "ollama")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DOCRAG_RERANK", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Retrieval.Lambda)
	assert.True(t, cfg.Retrieval.Rerank)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "sk-test", cfg.Answer.APIKey)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("retrieval: [oops"), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, docerrors.IsCode(err, docerrors.ErrCodeConfigInvalid))
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"oversample below 2", func(c *Config) { c.Retrieval.Oversample = 1 }, "oversample"},
		{"lambda above 1", func(c *Config) { c.Retrieval.Lambda = 1.5 }, "lambda"},
		{"too many variants", func(c *Config) { c.Retrieval.MaxVariants = 5 }, "max_variants"},
		{"single variant", func(c *Config) { c.Retrieval.MaxVariants = 1 }, "max_variants"},
		{"zero threshold", func(c *Config) { c.Retrieval.DedupThreshold = 0 }, "dedup_threshold"},
		{"overlap too big", func(c *Config) { c.Chunking.OverlapChars = 600 }, "overlap_chars"},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK.General = 0 }, "top_k.general"},
		{"unknown embedder", func(c *Config) { c.Embeddings.Provider = "mlx" }, "embeddings.provider"},
		{"unknown answerer", func(c *Config) { c.Answer.Provider = "t5" }, "answer.provider"},
		{"bad duration", func(c *Config) { c.Retrieval.VariantTimeout = "soon" }, "variant_timeout"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, docerrors.IsCode(err, docerrors.ErrCodeConfigInvalid))
		})
	}
}

func TestDuration_FallsBack(t *testing.T) {
	assert.Equal(t, 2*time.Second, Duration("2s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("nope", time.Minute))
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Retrieval.Subject = "kubectl"

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigName)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "kubectl", loaded.Retrieval.Subject)
}
