// Package chunk splits documents into section-aligned, citeable chunks.
package chunk

import (
	"fmt"
	"strings"
)

// Default chunking limits, measured in characters (runes).
const (
	DefaultMaxChunkChars = 1200
	DefaultOverlapChars  = 150
)

// Metadata keys set on chunks.
const (
	MetaHeaderPath = "header_path"
	MetaDocTitle   = "doc_title"
	MetaFamily     = "family"
)

// Document is one source file as read by the ingestion driver.
type Document struct {
	// Path is relative to the document root, slash-separated.
	Path string
	// Revision identifies the document tree version; copied to every chunk.
	Revision string
	// Text is the full UTF-8 content.
	Text string
	// Family overrides format detection from the path when not FamilyAuto.
	Family Family
}

// Chunk is the atomic retrievable unit.
//
// [Start, End) is a byte range into Document.Text. Ranges of one document
// never overlap and are ordered by Ordinal; the bytes between them are
// whitespace. Text is exactly Document.Text[Start:End]. When an oversized
// section is split, Overlap repeats the tail of the previous sub-chunk so the
// embedded content keeps cross-boundary context without breaking the
// non-overlapping range invariant.
type Chunk struct {
	ID       string            `json:"id"`
	DocPath  string            `json:"doc_path"`
	Revision string            `json:"revision"`
	Title    string            `json:"title,omitempty"`
	Depth    int               `json:"depth"`
	Ordinal  int               `json:"ordinal"`
	Start    int               `json:"start"`
	End      int               `json:"end"`
	Text     string            `json:"text"`
	Overlap  string            `json:"overlap,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// overlapSep joins Overlap and Text in Content.
const overlapSep = "\n"

// ChunkID returns the stable identifier for the ordinal-th chunk of path.
func ChunkID(path string, ordinal int) string {
	return fmt.Sprintf("%s#%d", path, ordinal)
}

// Untitled reports whether the chunk is lead-in text with no heading.
func (c *Chunk) Untitled() bool {
	return c.Title == ""
}

// Content is the overlap-prefixed body used for embedding and display.
func (c *Chunk) Content() string {
	if c.Overlap == "" {
		return c.Text
	}
	return c.Overlap + overlapSep + c.Text
}

// EmbeddingText prefixes Content with the document title and header path,
// so sections with generic titles ("OPTIONS") embed near their command.
func (c *Chunk) EmbeddingText() string {
	var parts []string
	if t := c.Metadata[MetaDocTitle]; t != "" {
		parts = append(parts, t)
	}
	if hp := c.Metadata[MetaHeaderPath]; hp != "" {
		parts = append(parts, hp)
	}
	if len(parts) == 0 {
		return c.Content()
	}
	return strings.Join(parts, " > ") + "\n\n" + c.Content()
}
