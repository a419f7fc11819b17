package source

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// pathMatcher matches slash-separated relative paths against
// gitignore-style patterns. The last matching pattern wins, so a
// "!pattern" re-includes a path excluded earlier.
type pathMatcher struct {
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

func newPathMatcher(patterns ...string) (*pathMatcher, error) {
	m := &pathMatcher{}
	for _, p := range patterns {
		if err := m.add(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *pathMatcher) add(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return nil
	}
	var r rule
	if strings.HasPrefix(pattern, "!") {
		r.negate = true
		pattern = pattern[1:]
	} else if strings.HasPrefix(pattern, `\!`) || strings.HasPrefix(pattern, `\#`) {
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// "doc/frotz" is relative to the root, "**/frotz" and "*.txt" are not
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile("^" + globToRegex(pattern) + "$")
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	r.re = re
	m.rules = append(m.rules, r)
	return nil
}

// addFile appends the patterns of a .gitignore file.
func (m *pathMatcher) addFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// a broken line in a .gitignore should not block ingestion
		_ = m.add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return nil
}

func (m *pathMatcher) match(rel string, isDir bool) bool {
	excluded := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			excluded = !r.negate
		}
	}
	return excluded
}

func (r rule) matches(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")

	if r.anchored {
		if r.re.MatchString(rel) || (isDir && r.re.MatchString(rel+"/")) {
			return !r.dirOnly || isDir
		}
		// a file inside a matched directory
		for i := 1; i < len(parts); i++ {
			if r.re.MatchString(strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	if r.re.MatchString(rel) || (isDir && r.re.MatchString(rel+"/")) {
		return !r.dirOnly || isDir
	}
	for i, part := range parts {
		if !r.re.MatchString(part) {
			continue
		}
		if i == len(parts)-1 {
			return !r.dirOnly || isDir
		}
		return true
	}
	return false
}

// globToRegex translates gitignore glob syntax. "**/" spans any number of
// directories, "*" and "?" never cross a slash.
func globToRegex(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if i == 0 || pattern[i-1] == '/' {
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			j := strings.IndexByte(pattern[i:], ']')
			if j > 1 {
				b.WriteString(pattern[i : i+j+1])
				i += j
				continue
			}
			b.WriteString(`\[`)
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteString(regexp.QuoteMeta(string(pattern[i])))
				continue
			}
			b.WriteString(`\\`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
