package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/pkg/version"
)

type fakeAsker struct {
	resp     *answer.Response
	err      error
	question string
	topK     int
}

func (f *fakeAsker) Ask(_ context.Context, question string, topK int) (*answer.Response, error) {
	f.question, f.topK = question, topK
	return f.resp, f.err
}

type fakeRetriever struct {
	result *search.Result
	err    error
}

func (f *fakeRetriever) Retrieve(context.Context, string, int) (*search.Result, error) {
	return f.result, f.err
}

type brokenIndex struct{ err error }

func (b brokenIndex) Index() (*store.VectorIndex, error) { return nil, b.err }

func newTestServer(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Asker == nil {
		deps.Asker = &fakeAsker{resp: &answer.Response{Answer: "a"}}
	}
	if deps.Retriever == nil {
		deps.Retriever = &fakeRetriever{result: &search.Result{}}
	}
	if deps.Index == nil {
		deps.Index = search.StaticIndex{}
	}
	s, err := NewServer(deps)
	require.NoError(t, err)
	return s.Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	h := newTestServer(t, Dependencies{})

	rr := do(t, h, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, version.Short(), body["version"])
	assert.Contains(t, body["message"], "docrag")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestChat(t *testing.T) {
	// Given
	asker := &fakeAsker{resp: &answer.Response{
		Answer:    "Use git revert.",
		Intent:    search.IntentProcedural,
		Generator: "extractive",
		Sources:   []answer.Source{{File: "git-revert.txt", Snippet: "NAME\n----", Section: "NAME", Score: 0.9}},
	}}
	h := newTestServer(t, Dependencies{Asker: asker})

	// When
	rr := do(t, h, http.MethodPost, "/chat", `{"question":"  How do I undo a commit?  ","top_k":3}`)

	// Then
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "How do I undo a commit?", asker.question)
	assert.Equal(t, 3, asker.topK)

	var body struct {
		Answer  string `json:"answer"`
		Intent  string `json:"intent"`
		Sources []struct {
			File    string  `json:"file"`
			Snippet string  `json:"snippet"`
			Section string  `json:"section"`
			Score   float32 `json:"score"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Use git revert.", body.Answer)
	assert.Equal(t, "procedural", body.Intent)
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "git-revert.txt", body.Sources[0].File)
	assert.Equal(t, "NAME\n----", body.Sources[0].Snippet)
}

func TestChat_DefaultTopK(t *testing.T) {
	asker := &fakeAsker{resp: &answer.Response{Answer: "a"}}
	h := newTestServer(t, Dependencies{Asker: asker})

	rr := do(t, h, http.MethodPost, "/chat", `{"question":"What is git?"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, asker.topK)
	assert.Contains(t, rr.Body.String(), `"sources":[]`)
}

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"question":`, errors.ErrCodeInvalidInput},
		{"empty question", `{"question":"   "}`, errors.ErrCodeQueryEmpty},
		{"too long", `{"question":"` + strings.Repeat("a", MaxQuestionChars+1) + `"}`, errors.ErrCodeQueryTooLong},
		{"zero top_k", `{"question":"q","top_k":0}`, errors.ErrCodeInvalidInput},
		{"huge top_k", `{"question":"q","top_k":1000}`, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := &fakeAsker{}
			h := newTestServer(t, Dependencies{Asker: asker})

			rr := do(t, h, http.MethodPost, "/chat", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rr).Code)
			assert.Empty(t, asker.question)
		})
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"corrupt index", errors.CorruptIndex("metadata missing", nil), http.StatusServiceUnavailable, errors.ErrCodeCorruptIndex},
		{"all variants failed", errors.EmbeddingFailure("all variants failed", nil), http.StatusBadGateway, errors.ErrCodeEmbeddingFailed},
		{"rate limited", errors.New(errors.ErrCodeRateLimited, "slow down", nil), http.StatusTooManyRequests, errors.ErrCodeRateLimited},
		{"unknown error hides message", stderrors.New("secret path /etc"), http.StatusInternalServerError, errors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, Dependencies{Asker: &fakeAsker{err: tt.err}})

			rr := do(t, h, http.MethodPost, "/chat", `{"question":"q"}`)

			assert.Equal(t, tt.wantStatus, rr.Code)
			resp := decode[ErrorResponse](t, rr)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotContains(t, resp.Message, "/etc")
		})
	}
}

func TestRetrieve(t *testing.T) {
	c := &chunk.Chunk{
		ID:       "git-reset.txt#2",
		DocPath:  "git-reset.txt",
		Title:    "DESCRIPTION",
		Text:     "Reset the current branch head.",
		Metadata: map[string]string{chunk.MetaDocTitle: "git-reset"},
	}
	r := &fakeRetriever{result: &search.Result{
		Question: "How do I undo a commit?",
		Intent:   search.IntentProcedural,
		TopK:     4,
		Variants: []string{"How do I undo a commit?", "undo commit"},
		Items:    []search.Item{{Rank: 1, Chunk: c, Score: 0.8, MMRScore: 0.5, RerankScore: 31, Variant: "undo commit"}},
	}}
	h := newTestServer(t, Dependencies{Retriever: r})

	rr := do(t, h, http.MethodPost, "/retrieve", `{"question":"How do I undo a commit?"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[RetrieveResponse](t, rr)
	assert.Equal(t, search.IntentProcedural, resp.Intent)
	assert.Equal(t, 4, resp.TopK)
	assert.Len(t, resp.Variants, 2)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, RetrieveItem{
		Rank: 1, ID: "git-reset.txt#2", File: "git-reset.txt", Command: "git-reset", Section: "DESCRIPTION",
		Score: 0.8, MMRScore: 0.5, RerankScore: 31, Variant: "undo commit", Text: "Reset the current branch head.",
	}, resp.Items[0])
}

func TestHealth(t *testing.T) {
	idx, err := store.NewVectorIndex(store.Options{Dimensions: 2, Model: "static", Revision: "abc"})
	require.NoError(t, err)
	require.NoError(t, idx.Add([]*chunk.Chunk{{ID: "a#0", DocPath: "a", Text: "x"}}, [][]float32{{1, 0}}))
	empty, err := store.NewVectorIndex(store.Options{Dimensions: 2})
	require.NoError(t, err)

	tests := []struct {
		name       string
		source     search.IndexSource
		wantStatus int
		want       string
	}{
		{"published", search.StaticIndex{Idx: idx}, http.StatusOK, StatusOK},
		{"nothing published", search.StaticIndex{}, http.StatusOK, StatusEmpty},
		{"empty generation", search.StaticIndex{Idx: empty}, http.StatusOK, StatusEmpty},
		{"corrupt", brokenIndex{err: errors.CorruptIndex("bad", nil)}, http.StatusServiceUnavailable, StatusCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, Dependencies{Index: tt.source, Generation: func() string { return "g1" }})

			rr := do(t, h, http.MethodGet, "/healthz", "")

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.want, decode[HealthResponse](t, rr).Status)
		})
	}

	t.Run("reports index details", func(t *testing.T) {
		h := newTestServer(t, Dependencies{Index: search.StaticIndex{Idx: idx}, Generation: func() string { return "g1" }})

		resp := decode[HealthResponse](t, do(t, h, http.MethodGet, "/healthz", ""))

		assert.Equal(t, HealthResponse{Status: StatusOK, Generation: "g1", Revision: "abc", Model: "static", Chunks: 1}, resp)
	})
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, Dependencies{})
	do(t, h, http.MethodGet, "/", "")

	rr := do(t, h, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "docrag_http_requests_total")
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	full := Dependencies{Asker: &fakeAsker{}, Retriever: &fakeRetriever{}, Index: search.StaticIndex{}}

	_, err := NewServer(full)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*Dependencies){
		"asker":     func(d *Dependencies) { d.Asker = nil },
		"retriever": func(d *Dependencies) { d.Retriever = nil },
		"index":     func(d *Dependencies) { d.Index = nil },
	} {
		t.Run(name, func(t *testing.T) {
			d := full
			mutate(&d)
			_, err := NewServer(d)
			assert.Error(t, err)
		})
	}
}

func TestChat_EndToEnd(t *testing.T) {
	// Given an index of one manual page and the offline stack
	ctx := context.Background()
	emb := embed.NewStaticEmbedder(128)
	text := "git-revert(1)\n=============\n\nNAME\n----\ngit-revert - Revert some existing commits\n\n" +
		"DESCRIPTION\n-----------\nGiven one or more existing commits, revert the changes that the\n" +
		"related patches introduce. Use revert to undo a commit that is already published.\n"
	chunks, err := chunk.NewSectionChunker().Chunk(ctx, &chunk.Document{Path: "git-revert.txt", Revision: "r", Text: text})
	require.NoError(t, err)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText()
	}
	vectors, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	idx, err := store.NewVectorIndex(store.Options{Dimensions: 128, Model: emb.ModelName(), Revision: "r"})
	require.NoError(t, err)
	require.NoError(t, idx.Add(chunks, vectors))

	source := search.StaticIndex{Idx: idx}
	retriever, err := search.NewRetriever(source, emb, search.DefaultConfig())
	require.NoError(t, err)
	asker, err := answer.NewAnswerer(retriever, answer.NewExtractiveGenerator(), answer.Options{})
	require.NoError(t, err)
	h := newTestServer(t, Dependencies{Asker: asker, Retriever: retriever, Index: source})

	// When
	rr := do(t, h, http.MethodPost, "/chat", `{"question":"How do I undo a commit?"}`)

	// Then
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[answer.Response](t, rr)
	assert.Equal(t, search.IntentProcedural, resp.Intent)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "git-revert.txt", resp.Sources[0].File)
	assert.Contains(t, resp.Answer, "git-revert.txt")
}
