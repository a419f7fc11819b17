// Package source discovers and reads the documentation tree to ingest.
// It filters by extension, filename prefix, exclude patterns, size, and
// encoding, so that every Document it returns is valid UTF-8 text.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/errors"
)

// DefaultMaxFileSize is used when Options.MaxFileSize is zero (1MB).
const DefaultMaxFileSize = 1 << 20

// Skip reasons reported in Snapshot.Skipped.
const (
	ReasonTooLarge   = "too_large"
	ReasonBinary     = "binary"
	ReasonNotUTF8    = "invalid_utf8"
	ReasonUnreadable = "unreadable"
)

// Options configures Load.
type Options struct {
	// Root is the document directory.
	Root string
	// Extensions restricts files by extension, case-insensitive. Empty allows all.
	Extensions []string
	// FilenamePrefix keeps only files whose base name starts with it.
	FilenamePrefix string
	// Exclude holds gitignore-style patterns against slash-separated relative paths.
	Exclude []string
	// MaxFileSize in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64
	// RespectGitignore applies Root/.gitignore on top of Exclude.
	RespectGitignore bool
	// Revision overrides revision detection when set.
	Revision string
}

// OptionsFromConfig maps the docs section onto Load options.
func OptionsFromConfig(docs config.DocsConfig, revision string) Options {
	return Options{
		Root:             docs.Root,
		Extensions:       docs.Extensions,
		FilenamePrefix:   docs.FilenamePrefix,
		Exclude:          docs.Exclude,
		MaxFileSize:      int64(docs.MaxFileSizeKB) * 1024,
		RespectGitignore: docs.RespectGitignore,
		Revision:         revision,
	}
}

// Skipped is a file that matched the filters but could not be used.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Snapshot is the document tree as read by one Load call.
type Snapshot struct {
	Root      string
	Revision  string
	Documents []*chunk.Document
	Skipped   []Skipped
}

// Load walks opts.Root and reads every matching document. Documents are
// returned in lexical path order with normalized line endings, each tagged
// with the snapshot revision.
func Load(ctx context.Context, opts Options) (*Snapshot, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound, fmt.Sprintf("document root %s not found", root), err).
			WithSuggestion("set docs.root in .docrag.yaml or pass --docs")
	}
	if !info.IsDir() {
		return nil, errors.ValidationError(fmt.Sprintf("document root is not a directory: %s", root), nil)
	}

	filter, err := NewFilter(root, opts)
	if err != nil {
		return nil, err
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	snap := &Snapshot{Root: root}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if filter.Skip(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filter.Skip(rel, false) {
			return nil
		}

		doc, reason := readDocument(path, rel, maxSize)
		if reason != "" {
			slog.Info("document_skipped", slog.String("path", rel), slog.String("reason", reason))
			snap.Skipped = append(snap.Skipped, Skipped{Path: rel, Reason: reason})
			return nil
		}
		snap.Documents = append(snap.Documents, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap.Revision = opts.Revision
	if snap.Revision == "" {
		snap.Revision = GitRevision(ctx, root)
	}
	if snap.Revision == "" {
		snap.Revision = ContentRevision(snap.Documents)
	}
	for _, doc := range snap.Documents {
		doc.Revision = snap.Revision
	}

	slog.Debug("documents_loaded",
		slog.String("root", root),
		slog.String("revision", snap.Revision),
		slog.Int("documents", len(snap.Documents)),
		slog.Int("skipped", len(snap.Skipped)))
	return snap, nil
}

// Filter decides which paths under a document root are ingested.
type Filter struct {
	opts    Options
	matcher *pathMatcher
}

// NewFilter compiles the exclude patterns of opts, plus root/.gitignore
// when RespectGitignore is set.
func NewFilter(root string, opts Options) (*Filter, error) {
	matcher, err := newPathMatcher(opts.Exclude...)
	if err != nil {
		return nil, errors.ConfigError("invalid docs.exclude pattern", err)
	}
	if opts.RespectGitignore {
		if gi := filepath.Join(root, ".gitignore"); fileExists(gi) {
			if err := matcher.addFile(gi); err != nil {
				slog.Warn("gitignore_unreadable", slog.String("path", gi), slog.String("error", err.Error()))
			}
		}
	}
	return &Filter{opts: opts, matcher: matcher}, nil
}

// Skip reports whether the slash-separated relative path is left out.
// Directories are only checked against the exclude patterns.
func (f *Filter) Skip(rel string, isDir bool) bool {
	if isDir {
		return f.matcher.match(rel, true)
	}
	return !wanted(rel, f.opts) || f.matcher.match(rel, false)
}

// wanted applies the extension and filename prefix filters.
func wanted(rel string, opts Options) bool {
	base := filepath.Base(rel)
	if opts.FilenamePrefix != "" && !strings.HasPrefix(base, opts.FilenamePrefix) {
		return false
	}
	if len(opts.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	return slices.ContainsFunc(opts.Extensions, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

func readDocument(path, rel string, maxSize int64) (*chunk.Document, string) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ReasonUnreadable
	}
	if info.Size() > maxSize {
		return nil, ReasonTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ReasonUnreadable
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, ReasonBinary
	}
	if !utf8.Valid(data) {
		return nil, ReasonNotUTF8
	}
	return &chunk.Document{Path: rel, Text: chunk.Normalize(string(data))}, ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
