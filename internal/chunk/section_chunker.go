package chunk

import (
	"context"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Options configures SectionChunker.
type Options struct {
	MaxChunkChars int // Maximum runes in a chunk's Content (default: DefaultMaxChunkChars)
	OverlapChars  int // Runes of the previous sub-chunk carried into the next (default: DefaultOverlapChars)
}

// SectionChunker splits documents at headings and splits oversized
// sections at paragraph boundaries.
type SectionChunker struct {
	options Options
}

// NewSectionChunker creates a chunker with default options.
func NewSectionChunker() *SectionChunker {
	return NewSectionChunkerWithOptions(Options{})
}

// NewSectionChunkerWithOptions creates a chunker with custom options.
// A negative OverlapChars disables overlap; an overlap of half the max or
// more is clamped so every sub-chunk still makes progress.
func NewSectionChunkerWithOptions(opts Options) *SectionChunker {
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	if opts.OverlapChars == 0 {
		opts.OverlapChars = DefaultOverlapChars
	}
	if opts.OverlapChars < 0 {
		opts.OverlapChars = 0
	}
	if limit := opts.MaxChunkChars/2 - 1; opts.OverlapChars > limit {
		opts.OverlapChars = max(limit, 0)
	}
	return &SectionChunker{options: opts}
}

// Options returns the effective options.
func (c *SectionChunker) Options() Options {
	return c.options
}

type section struct {
	start, end int
	body       int // offset just past the heading lines
	title      string
	depth      int
	headerPath string
}

// Chunk splits doc into ordered chunks. It is deterministic and has no
// side effects; an empty or whitespace-only document yields no chunks.
func (c *SectionChunker) Chunk(ctx context.Context, doc *Document) ([]*Chunk, error) {
	if !utf8.ValidString(doc.Text) {
		return nil, errors.ChunkingError(doc.Path, errors.New(errors.ErrCodeInvalidEncoding, "document is not valid UTF-8", nil))
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	family := doc.Family
	if family == FamilyAuto {
		family = DetectFamily(doc.Path)
	}
	sections, docTitle := c.parseSections(doc, family)

	var chunks []*Chunk
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = c.appendSection(chunks, doc, sec, docTitle, family)
	}
	return chunks, nil
}

// parseSections cuts the text at every heading line. Lead-in text before
// the first heading becomes an untitled section. A heading with nothing
// under it, such as a man-page title directly followed by NAME, is folded
// into the section that follows.
func (c *SectionChunker) parseSections(doc *Document, family Family) ([]section, string) {
	text := doc.Text
	lines := strings.Split(text, "\n")
	offsets := make([]int, len(lines))
	pos := 0
	for i, ln := range lines {
		offsets[i] = pos
		pos += len(ln) + 1
	}

	hs := rulesFor(family).headings(lines)
	docTitle := titleFromHeadings(hs)
	if docTitle == "" {
		docTitle = titleFromPath(doc.Path)
	}

	if len(hs) == 0 {
		return []section{{start: 0, end: len(text)}}, docTitle
	}

	var (
		sections []section
		stack    []heading
	)
	if first := offsets[hs[0].line]; first > 0 {
		sections = append(sections, section{start: 0, end: first})
	}
	for i, h := range hs {
		end := len(text)
		if i+1 < len(hs) {
			end = offsets[hs[i+1].line]
		}
		for len(stack) > 0 && stack[len(stack)-1].depth >= h.depth {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
		body := end
		if next := h.line + h.span; next < len(offsets) {
			body = min(offsets[next], end)
		}
		sections = append(sections, section{
			start:      offsets[h.line],
			end:        end,
			body:       body,
			title:      h.title,
			depth:      h.depth,
			headerPath: headerPath(stack),
		})
	}
	return foldBareHeadings(text, sections), docTitle
}

// foldBareHeadings moves the start of each section back over any preceding
// headings that have no body. Trailing bare headings extend the last section.
func foldBareHeadings(text string, sections []section) []section {
	out := make([]section, 0, len(sections))
	pending := -1
	for _, sec := range sections {
		if sec.title != "" && strings.TrimSpace(text[sec.body:sec.end]) == "" {
			if pending < 0 {
				pending = sec.start
			}
			continue
		}
		if pending >= 0 {
			sec.start = pending
			pending = -1
		}
		out = append(out, sec)
	}
	if pending >= 0 {
		if len(out) == 0 {
			return sections
		}
		out[len(out)-1].end = len(text)
	}
	return out
}

func headerPath(stack []heading) string {
	titles := make([]string, len(stack))
	for i, h := range stack {
		titles[i] = h.title
	}
	return strings.Join(titles, " > ")
}

// appendSection trims the section and emits it as one chunk, or as several
// sub-chunks when it is longer than the limit.
func (c *SectionChunker) appendSection(chunks []*Chunk, doc *Document, sec section, docTitle string, family Family) []*Chunk {
	text := doc.Text
	start := skipSpace(text, sec.start, sec.end)
	end := start + len(strings.TrimRightFunc(text[start:sec.end], unicode.IsSpace))
	if start >= end {
		return chunks
	}

	var overlap string
	pos := start
	for pos < end {
		budget := c.options.MaxChunkChars
		if overlap != "" {
			budget -= utf8.RuneCountInString(overlap) + len(overlapSep)
		}

		cut := end - pos
		if utf8.RuneCountInString(text[pos:end]) > budget {
			cut = splitPoint(text[pos:end], budget)
		}
		pieceEnd := pos + len(strings.TrimRightFunc(text[pos:pos+cut], unicode.IsSpace))

		chunks = append(chunks, c.newChunk(doc, sec, len(chunks), pos, pieceEnd, overlap, docTitle, family))

		overlap = tail(text[pos:pieceEnd], c.options.OverlapChars)
		pos = skipSpace(text, pos+cut, end)
	}
	return chunks
}

func (c *SectionChunker) newChunk(doc *Document, sec section, ordinal, start, end int, overlap, docTitle string, family Family) *Chunk {
	meta := map[string]string{
		MetaDocTitle: docTitle,
		MetaFamily:   family.String(),
	}
	if sec.headerPath != "" {
		meta[MetaHeaderPath] = sec.headerPath
	}
	return &Chunk{
		ID:       ChunkID(doc.Path, ordinal),
		DocPath:  doc.Path,
		Revision: doc.Revision,
		Title:    sec.title,
		Depth:    sec.depth,
		Ordinal:  ordinal,
		Start:    start,
		End:      end,
		Text:     doc.Text[start:end],
		Overlap:  overlap,
		Metadata: meta,
	}
}

// splitPoint returns the byte length of the longest prefix of s within
// budget runes that ends at a paragraph break, else a line break, else a
// space. With no break at all it cuts at the rune limit.
func splitPoint(s string, budget int) int {
	window := s
	n := 0
	for i := range s {
		if n == budget {
			window = s[:i]
			break
		}
		n++
	}
	for _, sep := range []string{"\n\n", "\n"} {
		if i := strings.LastIndex(window, sep); i > 0 {
			return i
		}
	}
	if i := strings.LastIndexAny(window, " \t"); i > 0 {
		return i
	}
	if len(window) == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return len(window)
}

// tail returns at most n trailing runes of s, starting at a word where possible.
func tail(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	i := len(s)
	for count := 0; count < n && i > 0; count++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	out := s[i:]
	if prev, _ := utf8.DecodeLastRuneInString(s[:i]); i > 0 && !unicode.IsSpace(prev) {
		if j := strings.IndexAny(out, " \t\n"); j >= 0 && j < len(out)-1 {
			out = out[j:]
		}
	}
	return strings.TrimSpace(out)
}

func skipSpace(s string, pos, end int) int {
	for pos < end {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}

var manPageSuffix = regexp.MustCompile(`\s*\(\d+\)$`)

func titleFromHeadings(hs []heading) string {
	for _, h := range hs {
		if h.depth == 0 {
			return manPageSuffix.ReplaceAllString(h.title, "")
		}
	}
	return ""
}

func titleFromPath(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Normalize converts line endings to LF and strips trailing whitespace from
// each line. Ingestion applies it before chunking so offsets refer to the
// normalized text.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	return strings.Join(lines, "\n")
}
