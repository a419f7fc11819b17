package chunk

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Family selects the heading rules used to classify lines.
type Family int

const (
	// FamilyAuto detects the family from the document path.
	FamilyAuto Family = iota
	// FamilyPlain has no headings.
	FamilyPlain
	// FamilyMarkdown uses ATX "#" headings and setext underlined headings.
	FamilyMarkdown
	// FamilyAsciidoc uses "=" prefix titles and underlined titles.
	FamilyAsciidoc
)

func (f Family) String() string {
	switch f {
	case FamilyPlain:
		return "plain"
	case FamilyMarkdown:
		return "markdown"
	case FamilyAsciidoc:
		return "asciidoc"
	default:
		return "auto"
	}
}

// DetectFamily maps a file extension to a format family.
// The .txt sources of the corpus are asciidoc, so .txt maps there too;
// a .txt file with no asciidoc titles still produces one untitled chunk.
func DetectFamily(p string) Family {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return FamilyMarkdown
	case ".adoc", ".asciidoc", ".asc", ".txt":
		return FamilyAsciidoc
	default:
		return FamilyPlain
	}
}

// heading is a classified section-start line.
type heading struct {
	line  int // index of the first line of the heading
	span  int // number of lines the heading occupies
	depth int
	title string
}

// lineRules classifies the lines of one document into headings.
// Implementations are stateful across a single pass (fences, blocks).
type lineRules interface {
	headings(lines []string) []heading
}

func rulesFor(f Family) lineRules {
	switch f {
	case FamilyMarkdown:
		return markdownRules{}
	case FamilyAsciidoc:
		return asciidocRules{}
	default:
		return plainRules{}
	}
}

type plainRules struct{}

func (plainRules) headings([]string) []heading { return nil }

var (
	atxPattern    = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	setextPattern = regexp.MustCompile(`^ {0,3}(={2,}|-{2,})\s*$`)
	listPattern   = regexp.MustCompile(`^\s*([-*+>]|\d+[.)])(\s|$)`)
	fencePattern  = regexp.MustCompile("^\\s{0,3}(```|~~~)")
	prefixPattern = regexp.MustCompile(`^(={1,6})\s+(\S.*?)\s*$`)
	blockPattern  = regexp.MustCompile(`^(-{4,}|\.{4,}|_{4,}|\*{4,}|\+{4,})\s*$`)
)

type markdownRules struct{}

func (markdownRules) headings(lines []string) []heading {
	var (
		out   []heading
		fence string
		front = len(lines) > 0 && strings.TrimSpace(lines[0]) == "---"
	)
	for i := 0; i < len(lines); i++ {
		ln := lines[i]
		if front {
			// front matter is never a section start
			if i > 0 && strings.TrimSpace(ln) == "---" {
				front = false
			}
			continue
		}
		if m := fencePattern.FindStringSubmatch(ln); m != nil {
			switch {
			case fence == "":
				fence = m[1]
			case fence == m[1]:
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}
		if m := atxPattern.FindStringSubmatch(ln); m != nil {
			if title := strings.TrimSpace(m[2]); title != "" {
				out = append(out, heading{line: i, span: 1, depth: len(m[1]) - 1, title: title})
			}
			continue
		}
		if i+1 < len(lines) && setextTitle(lines, i) {
			depth := 0
			if strings.TrimSpace(lines[i+1])[0] == '-' {
				depth = 1
			}
			out = append(out, heading{line: i, span: 2, depth: depth, title: strings.TrimSpace(ln)})
			i++
		}
	}
	return out
}

// setextTitle reports whether lines[i] is a one-line paragraph underlined
// by "===" or "---" on the next line.
func setextTitle(lines []string, i int) bool {
	ln := lines[i]
	if strings.TrimSpace(ln) == "" || strings.HasPrefix(ln, "    ") || strings.HasPrefix(ln, "\t") {
		return false
	}
	if listPattern.MatchString(ln) || fencePattern.MatchString(ln) {
		return false
	}
	if i > 0 && strings.TrimSpace(lines[i-1]) != "" {
		return false
	}
	return setextPattern.MatchString(lines[i+1])
}

// underlineDepth maps asciidoc two-line title underline characters to depth.
var underlineDepth = map[rune]int{'=': 0, '-': 1, '~': 2, '^': 3, '+': 4}

type asciidocRules struct{}

func (asciidocRules) headings(lines []string) []heading {
	var (
		out   []heading
		block string
	)
	for i := 0; i < len(lines); i++ {
		ln := lines[i]
		if block == "" && i+1 < len(lines) {
			if d, ok := underlined(ln, lines[i+1]); ok {
				out = append(out, heading{line: i, span: 2, depth: d, title: strings.TrimSpace(ln)})
				i++
				continue
			}
		}
		if m := blockPattern.FindStringSubmatch(ln); m != nil {
			switch {
			case block == "":
				block = m[1]
			case block == m[1]:
				block = ""
			}
			continue
		}
		if block != "" {
			continue
		}
		if m := prefixPattern.FindStringSubmatch(ln); m != nil {
			out = append(out, heading{line: i, span: 1, depth: len(m[1]) - 1, title: m[2]})
		}
	}
	return out
}

// underlined reports whether title followed by under forms a two-line
// asciidoc section title, returning its depth.
func underlined(title, under string) (int, bool) {
	if strings.TrimSpace(title) == "" || title[0] == ' ' || title[0] == '\t' {
		return 0, false
	}
	under = strings.TrimRight(under, " \t")
	if len(under) < 2 {
		return 0, false
	}
	c, _ := utf8.DecodeRuneInString(under)
	depth, ok := underlineDepth[c]
	if !ok || strings.Trim(under, string(c)) != "" {
		return 0, false
	}
	// a title that is itself a delimiter line is a block, not a heading
	if strings.Trim(strings.TrimSpace(title), string(c)) == "" {
		return 0, false
	}
	n := utf8.RuneCountInString(strings.TrimRight(title, " \t"))
	if diff := n - len(under); diff > 2 || diff < -2 {
		return 0, false
	}
	return depth, true
}
