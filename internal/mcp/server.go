package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// ServerName is the implementation name reported to clients.
const ServerName = "docrag"

// MaxTopK bounds top_k in tool calls.
const MaxTopK = 50

// Tool names.
const (
	ToolRetrieve    = "retrieve"
	ToolAsk         = "ask"
	ToolIndexStatus = "index_status"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, question string, topK int) (*answer.Response, error)
}

// Retriever returns ranked chunks.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) (*search.Result, error)
}

// Dependencies are the services behind the tools.
type Dependencies struct {
	Asker     Asker
	Retriever Retriever
	Index     search.IndexSource
	// Generation names the served generation, when known.
	Generation func() string
	// Embedder is reported by index_status; may be nil.
	Embedder embed.Embedder
}

// Server bridges MCP clients with retrieval and answering.
type Server struct {
	mcp    *mcp.Server
	deps   Dependencies
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolRetrieve,
		Description: "Find the documentation sections most relevant to a question. Returns ranked, de-duplicated chunks with file and section provenance.",
	},
	{
		Name:        ToolAsk,
		Description: "Answer a question from the indexed documentation. Returns the answer, the detected question intent and the sources it is grounded in.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report whether the documentation index is published, its revision and size, and which embedder is active.",
	},
}

// QuestionInput is the input of the retrieve and ask tools.
type QuestionInput struct {
	Question string `json:"question" jsonschema:"the question to answer, in natural language"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of sections to use; default depends on the question intent"`
}

// RetrieveOutput is the structured result of the retrieve tool.
type RetrieveOutput struct {
	Intent   string         `json:"intent" jsonschema:"detected question intent"`
	Variants []string       `json:"variants" jsonschema:"query variants that were searched"`
	Results  []ResultOutput `json:"results" jsonschema:"ranked documentation sections"`
}

// ResultOutput is one ranked chunk.
type ResultOutput struct {
	Rank    int     `json:"rank"`
	ID      string  `json:"id"`
	File    string  `json:"file" jsonschema:"document path relative to the documentation root"`
	Command string  `json:"command,omitempty" jsonschema:"command the page documents"`
	Section string  `json:"section,omitempty" jsonschema:"section title"`
	Score   float32 `json:"score" jsonschema:"cosine similarity to the closest query variant"`
	Content string  `json:"content"`
}

// AskOutput is the structured result of the ask tool.
type AskOutput struct {
	Answer  string          `json:"answer"`
	Intent  string          `json:"intent"`
	Sources []answer.Source `json:"sources"`
}

// IndexStatusInput is the (empty) input of index_status.
type IndexStatusInput struct{}

// IndexStatusOutput is the result of index_status.
type IndexStatusOutput struct {
	Status     string       `json:"status" jsonschema:"ok, empty or corrupt"`
	Error      string       `json:"error,omitempty"`
	Generation string       `json:"generation,omitempty"`
	Revision   string       `json:"revision,omitempty"`
	Model      string       `json:"model,omitempty"`
	Dimensions int          `json:"dimensions,omitempty"`
	Chunks     int          `json:"chunks"`
	Documents  int          `json:"documents"`
	Embedder   EmbedderInfo `json:"embedder"`
}

// EmbedderInfo describes the query embedder.
type EmbedderInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}

// NewServer creates an MCP server with the tools registered.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Asker == nil {
		return nil, fmt.Errorf("asker is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("index source is required")
	}

	s := &Server{
		deps:   deps,
		logger: slog.Default(),
		mcp: mcp.NewServer(
			&mcp.Implementation{Name: ServerName, Version: version.Version},
			nil,
		),
	}
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpRetrieveHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// CallTool invokes a tool by name. retrieve and ask return markdown,
// index_status returns *IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolRetrieve:
		input, err := decodeInput(args)
		if err != nil {
			return nil, err
		}
		result, err := s.retrieve(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatRetrieval(result), nil
	case ToolAsk:
		input, err := decodeInput(args)
		if err != nil {
			return nil, err
		}
		resp, err := s.ask(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatAnswer(resp), nil
	case ToolIndexStatus:
		return s.indexStatus(ctx), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeInput(args map[string]any) (QuestionInput, error) {
	var input QuestionInput
	data, err := json.Marshal(args)
	if err != nil {
		return input, NewInvalidParamsError("invalid arguments")
	}
	if err := json.Unmarshal(data, &input); err != nil {
		return input, NewInvalidParamsError("invalid arguments: " + err.Error())
	}
	return input, nil
}

func validateQuestion(input QuestionInput) (string, error) {
	q := strings.TrimSpace(input.Question)
	if q == "" {
		return "", NewInvalidParamsError("question parameter is required")
	}
	return q, nil
}

func (s *Server) retrieve(ctx context.Context, input QuestionInput) (*search.Result, error) {
	q, err := validateQuestion(input)
	if err != nil {
		return nil, err
	}
	result, err := s.deps.Retriever.Retrieve(ctx, q, clampTopK(input.TopK, MaxTopK))
	if err != nil {
		return nil, MapError(err)
	}
	return result, nil
}

func (s *Server) ask(ctx context.Context, input QuestionInput) (*answer.Response, error) {
	q, err := validateQuestion(input)
	if err != nil {
		return nil, err
	}
	resp, err := s.deps.Asker.Ask(ctx, q, clampTopK(input.TopK, MaxTopK))
	if err != nil {
		return nil, MapError(err)
	}
	return resp, nil
}

func (s *Server) mcpRetrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, input QuestionInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	result, err := s.retrieve(ctx, input)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	out := RetrieveOutput{
		Intent:   string(result.Intent),
		Variants: result.Variants,
		Results:  make([]ResultOutput, 0, len(result.Items)),
	}
	for _, it := range validItems(result.Items) {
		out.Results = append(out.Results, ResultOutput{
			Rank:    it.Rank,
			ID:      it.Chunk.ID,
			File:    it.Source(),
			Command: it.Command(),
			Section: it.Section(),
			Score:   it.Score,
			Content: it.Chunk.Content(),
		})
	}
	return textResult(FormatRetrieval(result)), out, nil
}

func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, input QuestionInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	resp, err := s.ask(ctx, input)
	if err != nil {
		return nil, AskOutput{}, err
	}
	sources := resp.Sources
	if sources == nil {
		sources = []answer.Source{}
	}
	return textResult(FormatAnswer(resp)), AskOutput{
		Answer:  resp.Answer,
		Intent:  string(resp.Intent),
		Sources: sources,
	}, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.indexStatus(ctx), nil
}

func (s *Server) indexStatus(ctx context.Context) *IndexStatusOutput {
	out := &IndexStatusOutput{Status: "empty"}
	if s.deps.Embedder != nil {
		info := embed.GetInfo(ctx, s.deps.Embedder)
		out.Embedder = EmbedderInfo{
			Provider:   string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
			Available:  info.Available,
		}
	}

	idx, err := s.deps.Index.Index()
	if err != nil {
		out.Status = "corrupt"
		out.Error = MapError(err).Message
		return out
	}
	if idx == nil {
		return out
	}

	info := idx.Info()
	out.Revision = info.Revision
	out.Model = info.Model
	out.Dimensions = info.Dimensions
	out.Chunks = idx.Len()
	out.Documents = len(idx.Documents())
	if out.Chunks > 0 {
		out.Status = "ok"
	}
	if s.deps.Generation != nil {
		out.Generation = s.deps.Generation()
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server over the given transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		if err := s.RegisterResources(); err != nil {
			s.logger.Warn("mcp_resources_unavailable", slog.String("error", err.Error()))
		}
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
