package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/api"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/search"
)

// ingestedProject returns a project with a published index.
func ingestedProject(t *testing.T) string {
	t.Helper()
	dir := newProject(t)
	out, err := execute(t, "--dir", dir, "ingest", "--plain", "--revision", "rev-1")
	require.NoError(t, err, out)
	return dir
}

func TestQueryCmd_Answers(t *testing.T) {
	dir := ingestedProject(t)

	out, err := execute(t, "--dir", dir, "query", "How", "do", "I", "undo", "a", "commit?")

	require.NoError(t, err, out)
	assert.Contains(t, out, "From the documentation")
	assert.Contains(t, out, "Sources (procedural):")
	assert.Contains(t, out, "[1] ")
}

func TestQueryCmd_JSON(t *testing.T) {
	dir := ingestedProject(t)

	out, err := execute(t, "--dir", dir, "query", "--json", "--top-k", "2", "How do I undo a commit?")
	require.NoError(t, err, out)

	var resp answer.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, search.IntentProcedural, resp.Intent)
	assert.NotEmpty(t, resp.Sources)
	assert.LessOrEqual(t, len(resp.Sources), 2)
	assert.Equal(t, answer.ProviderExtractive, resp.Generator)
}

func TestQueryCmd_RetrieveOnly(t *testing.T) {
	dir := ingestedProject(t)

	out, err := execute(t, "--dir", dir, "query", "--retrieve-only", "--json", "what is git reset")
	require.NoError(t, err, out)

	var resp api.RetrieveResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "what is git reset", resp.Question)
	assert.NotEmpty(t, resp.Items)
	assert.Equal(t, 1, resp.Items[0].Rank)
}

func TestQueryCmd_NoIndex(t *testing.T) {
	// Given a project that was never ingested
	dir := newProject(t)

	// When
	out, err := execute(t, "--dir", dir, "query", "How do I undo a commit?")

	// Then the question is declined without error
	require.NoError(t, err, out)
	assert.Contains(t, out, answer.NoAnswer)
}

func TestQueryCmd_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "query")
	assert.Error(t, err)
}

func TestSearchConfig(t *testing.T) {
	// Given retrieval settings with one unset intent
	cfg := config.NewConfig().Retrieval
	cfg.Lambda = 0.5
	cfg.VariantTimeout = "3s"
	cfg.TopK.Comparison = 8
	cfg.TopK.General = 0

	// When
	sc := searchConfig(cfg)

	// Then
	assert.Equal(t, 0.5, sc.Lambda)
	assert.Equal(t, "3s", sc.VariantTimeout.String())
	assert.Equal(t, 8, sc.TopK[search.IntentComparison])
	assert.Equal(t, search.DefaultTopK()[search.IntentGeneral], sc.TopK[search.IntentGeneral])
	assert.Equal(t, "git", sc.Subject)
}
