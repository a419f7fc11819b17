package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/errors"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func paths(docs []*chunk.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Path
	}
	return out
}

func TestLoad_FiltersAndOrder(t *testing.T) {
	// Given a doc tree with mixed files
	root := t.TempDir()
	writeFile(t, root, "git-log.txt", "log\n")
	writeFile(t, root, "git-commit.txt", "commit\r\nline  \n")
	writeFile(t, root, "howto/git-guide.md", "# Guide\n")
	writeFile(t, root, "RelNotes.txt", "notes\n")
	writeFile(t, root, "git-image.png", "png")
	writeFile(t, root, "build/git-gen.txt", "generated\n")
	writeFile(t, root, ".git/git-config.txt", "internal\n")

	// When loaded with the git- prefix and doc extensions
	snap, err := Load(context.Background(), Options{
		Root:           root,
		Extensions:     []string{".txt", ".md"},
		FilenamePrefix: "git-",
		Exclude:        []string{"**/.git/**", "build/"},
		Revision:       "rev-1",
	})

	// Then only matching docs are returned, sorted, normalized and tagged
	require.NoError(t, err)
	assert.Equal(t, []string{"git-commit.txt", "git-log.txt", "howto/git-guide.md"}, paths(snap.Documents))
	assert.Equal(t, "rev-1", snap.Revision)
	for _, d := range snap.Documents {
		assert.Equal(t, "rev-1", d.Revision)
	}
	assert.Equal(t, "commit\nline\n", snap.Documents[0].Text)
	assert.Empty(t, snap.Skipped)
}

func TestLoad_SkipsUnusableFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.txt", "fine\n")
	writeFile(t, root, "latin1.txt", "caf\xe9\n")
	writeFile(t, root, "binary.txt", "a\x00b")
	writeFile(t, root, "huge.txt", string(make([]byte, 2048)))

	snap, err := Load(context.Background(), Options{Root: root, MaxFileSize: 1024, Revision: "r"})

	require.NoError(t, err)
	assert.Equal(t, []string{"good.txt"}, paths(snap.Documents))
	assert.ElementsMatch(t, []Skipped{
		{Path: "binary.txt", Reason: ReasonBinary},
		{Path: "huge.txt", Reason: ReasonTooLarge},
		{Path: "latin1.txt", Reason: ReasonNotUTF8},
	}, snap.Skipped)
}

func TestLoad_RespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.html\ntmp/\n!keep.html\n")
	writeFile(t, root, "a.txt", "a\n")
	writeFile(t, root, "a.html", "a\n")
	writeFile(t, root, "keep.html", "k\n")
	writeFile(t, root, "tmp/b.txt", "b\n")

	with, err := Load(context.Background(), Options{Root: root, RespectGitignore: true, Extensions: []string{".txt", ".html"}, Revision: "r"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "keep.html"}, paths(with.Documents))

	without, err := Load(context.Background(), Options{Root: root, Extensions: []string{".txt", ".html"}, Revision: "r"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.html", "a.txt", "keep.html", "tmp/b.txt"}, paths(without.Documents))
}

func TestLoad_MissingRoot(t *testing.T) {
	_, err := Load(context.Background(), Options{Root: filepath.Join(t.TempDir(), "nope")})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFileNotFound))
}

func TestLoad_InvalidExcludePattern(t *testing.T) {
	_, err := Load(context.Background(), Options{Root: t.TempDir(), Exclude: []string{"[z-a]x"}})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestLoad_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, Options{Root: root, Revision: "r"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestContentRevision(t *testing.T) {
	a := []*chunk.Document{{Path: "a.txt", Text: "x"}, {Path: "b.txt", Text: "y"}}
	b := []*chunk.Document{{Path: "a.txt", Text: "x"}, {Path: "b.txt", Text: "y"}}
	c := []*chunk.Document{{Path: "a.txt", Text: "x"}, {Path: "b.txt", Text: "z"}}

	assert.Equal(t, ContentRevision(a), ContentRevision(b))
	assert.NotEqual(t, ContentRevision(a), ContentRevision(c))
	assert.Regexp(t, `^sha256:[0-9a-f]{16}$`, ContentRevision(a))
}

func TestPathMatcher(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"extension anywhere", []string{"*.log"}, "a/b/c.log", false, true},
		{"double star dir", []string{"**/.git/**"}, ".git", true, true},
		{"double star file", []string{"**/.git/**"}, "sub/.git/HEAD", false, true},
		{"dir only matches dir", []string{"tmp/"}, "tmp", true, true},
		{"dir only skips file", []string{"tmp/"}, "tmp", false, false},
		{"dir only matches contents", []string{"tmp/"}, "x/tmp/y.txt", false, true},
		{"anchored", []string{"/build"}, "build/out.txt", false, true},
		{"anchored not nested", []string{"/build"}, "src/build", true, false},
		{"path with slash anchored", []string{"docs/old"}, "docs/old/a.md", false, true},
		{"negation", []string{"*.txt", "!keep.txt"}, "keep.txt", false, false},
		{"question mark", []string{"v?.md"}, "v1.md", false, true},
		{"char class", []string{"git-[ab]*.txt"}, "git-add.txt", false, true},
		{"comment ignored", []string{"# *.txt"}, "a.txt", false, false},
		{"no match", []string{"*.md"}, "a.txt", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := newPathMatcher(tt.patterns...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.match(tt.path, tt.isDir))
		})
	}
}

func TestFilter_Skip(t *testing.T) {
	// Given: a root whose .gitignore drops drafts
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "drafts/\n")
	f, err := NewFilter(root, Options{
		Extensions:       []string{".txt"},
		FilenamePrefix:   "git-",
		Exclude:          []string{"**/.git/**"},
		RespectGitignore: true,
	})
	require.NoError(t, err)

	// Then: paths are kept or skipped the way Load walks them
	assert.False(t, f.Skip("git-add.txt", false))
	assert.True(t, f.Skip("git-add.md", false))
	assert.True(t, f.Skip("tig.txt", false))
	assert.True(t, f.Skip("drafts", true))
	assert.True(t, f.Skip(".git", true))
	assert.False(t, f.Skip("howto", true))
}
