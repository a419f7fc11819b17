package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docrag/configs"
	"github.com/Aman-CERP/docrag/internal/config"
)

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given the embedded template decoded onto an empty config
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(configs.ProjectConfigTemplate), &cfg))

	// Then it validates and agrees with the built-in defaults
	require.NoError(t, cfg.Validate())
	assert.Equal(t, *config.NewConfig(), cfg)
}

func TestConfigInit(t *testing.T) {
	t.Run("creates project file", func(t *testing.T) {
		dir := newProject(t)

		out, err := execute(t, "--dir", dir, "config", "init")

		require.NoError(t, err)
		assert.Contains(t, out, "Created")
		data, err := os.ReadFile(filepath.Join(dir, config.ProjectConfigName))
		require.NoError(t, err)
		assert.Equal(t, configs.ProjectConfigTemplate, string(data))
	})

	t.Run("keeps existing file without force", func(t *testing.T) {
		dir := newProject(t)
		path := filepath.Join(dir, config.ProjectConfigName)
		require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

		out, err := execute(t, "--dir", dir, "config", "init")

		require.NoError(t, err)
		assert.Contains(t, out, "already exists")
		data, _ := os.ReadFile(path)
		assert.Equal(t, "version: 1\n", string(data))
	})

	t.Run("force overwrites", func(t *testing.T) {
		dir := newProject(t)
		path := filepath.Join(dir, config.ProjectConfigName)
		require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

		_, err := execute(t, "--dir", dir, "config", "init", "--force")

		require.NoError(t, err)
		data, _ := os.ReadFile(path)
		assert.Equal(t, configs.ProjectConfigTemplate, string(data))
	})
}

func TestConfigShow_MergesProjectFile(t *testing.T) {
	// Given a project override and an API key in the environment
	dir := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectConfigName),
		[]byte("retrieval:\n  lambda: 0.4\n"), 0o644))
	t.Setenv("OPENAI_API_KEY", "sk-secret")

	// When
	out, err := execute(t, "--dir", dir, "config", "show")

	// Then the override shows and the key does not
	require.NoError(t, err)
	assert.Contains(t, out, "lambda: 0.4")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "sk-secret")
}

func TestConfigShow_JSON(t *testing.T) {
	dir := newProject(t)
	t.Setenv("OPENAI_API_KEY", "sk-secret")

	out, err := execute(t, "--dir", dir, "config", "show", "--json")
	require.NoError(t, err)

	assert.NotContains(t, out, "sk-secret")
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, filepath.Join(dir, "Documentation"), cfg.Docs.Root)
}

func TestConfigPath(t *testing.T) {
	dir := newProject(t)

	out, err := execute(t, "--dir", dir, "config", "path")

	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("docrag", "config.yaml"))
	assert.Contains(t, out, filepath.Join(dir, config.ProjectConfigName))
}
