package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

var testDocs = map[string]string{
	"git-commit.txt": "git-commit(1)\n=============\n\nNAME\n----\ngit-commit - Record changes to the repository\n\n" +
		"DESCRIPTION\n-----------\nCreate a new commit containing the current contents of the index.\n",
	"git-revert.txt": "git-revert(1)\n=============\n\nNAME\n----\ngit-revert - Revert some existing commits\n\n" +
		"DESCRIPTION\n-----------\nGiven one or more existing commits, revert the changes that the\n" +
		"related patches introduce. Use revert to undo a commit that is already published.\n",
	"git-reset.txt": "git-reset(1)\n============\n\nNAME\n----\ngit-reset - Reset current HEAD to the specified state\n",
}

// newProject creates a project directory with a Documentation tree and an
// isolated user config location.
func newProject(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := t.TempDir()
	docs := filepath.Join(dir, "Documentation")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	for name, text := range testDocs {
		require.NoError(t, os.WriteFile(filepath.Join(docs, name), []byte(text), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"ingest", "query", "serve", "mcp", "status", "doctor", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "--version")

	require.NoError(t, err)
	assert.Contains(t, out, "docrag version")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("empty path is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(""))
	})

	t.Run("sets unset variables", func(t *testing.T) {
		// Given an env file and an unset variable
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("DOCRAG_CMD_TEST_VAR=from-file\n"), 0o644))
		t.Setenv("DOCRAG_CMD_TEST_VAR", "")
		require.NoError(t, os.Unsetenv("DOCRAG_CMD_TEST_VAR"))

		// When
		require.NoError(t, loadEnvFile(path))

		// Then
		assert.Equal(t, "from-file", os.Getenv("DOCRAG_CMD_TEST_VAR"))
	})

	t.Run("does not override the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("DOCRAG_CMD_TEST_VAR=from-file\n"), 0o644))
		t.Setenv("DOCRAG_CMD_TEST_VAR", "from-env")

		require.NoError(t, loadEnvFile(path))

		assert.Equal(t, "from-env", os.Getenv("DOCRAG_CMD_TEST_VAR"))
	})
}

func TestRootCmd_ProfilingFlags(t *testing.T) {
	// Given a heap profile request on a cheap command
	path := filepath.Join(t.TempDir(), "heap.prof")

	// When
	_, err := execute(t, "--profile-mem", path, "version", "--short")

	// Then the profile is written on exit
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestReportError(t *testing.T) {
	failure := docerrors.EmptyIndex()

	t.Run("human readable by default", func(t *testing.T) {
		cmd := newStatusCmd()
		var buf bytes.Buffer

		reportError(&buf, cmd, failure)

		assert.Contains(t, buf.String(), failure.Message)
		assert.False(t, json.Valid(buf.Bytes()))
	})

	t.Run("json when requested", func(t *testing.T) {
		cmd := newStatusCmd()
		require.NoError(t, cmd.Flags().Set("json", "true"))
		var buf bytes.Buffer

		reportError(&buf, cmd, failure)

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, failure.Code, got["code"])
	})
}
