package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DocURIPrefix prefixes document resource URIs.
const DocURIPrefix = "docrag://docs/"

// RegisterResources registers every indexed document as a resource whose
// content is rebuilt from its chunks at read time. With nothing published it
// registers nothing.
func (s *Server) RegisterResources() error {
	idx, err := s.deps.Index.Index()
	if err != nil {
		return err
	}
	if idx == nil {
		return nil
	}

	docs := idx.Documents()
	for _, path := range docs {
		s.mcp.AddResource(&mcp.Resource{
			Name:        path,
			URI:         DocURIPrefix + path,
			Description: fmt.Sprintf("Indexed documentation page %s", path),
			MIMEType:    MimeTypeForPath(path),
		}, s.makeDocHandler())
	}
	s.logger.Info("mcp_resources_registered", slog.Int("count", len(docs)))
	return nil
}

func (s *Server) makeDocHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.ReadResource(ctx, req.Params.URI)
	}
}

// ReadResource returns the indexed text of a document resource: its chunks
// in order, separated by blank lines.
func (s *Server) ReadResource(_ context.Context, uri string) (*mcp.ReadResourceResult, error) {
	path, ok := strings.CutPrefix(uri, DocURIPrefix)
	if !ok || path == "" {
		return nil, NewResourceNotFoundError(uri)
	}

	idx, err := s.deps.Index.Index()
	if err != nil {
		return nil, MapError(err)
	}
	if idx == nil {
		return nil, NewResourceNotFoundError(uri)
	}
	chunks := idx.DocumentChunks(path)
	if len(chunks) == 0 {
		return nil, NewResourceNotFoundError(uri)
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: MimeTypeForPath(path),
			Text:     strings.Join(parts, "\n\n"),
		}},
	}, nil
}
