package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

// DefaultKeepGenerations keeps the published generation and the one before it.
const DefaultKeepGenerations = 2

// Generation is a published, loaded index.
type Generation struct {
	Name  string
	Dir   string
	Index *VectorIndex
}

// BuildFunc produces the index for a new generation.
type BuildFunc func(ctx context.Context) (*VectorIndex, error)

// Manager owns the data directory: it loads the generation named by CURRENT,
// publishes rebuilt generations and prunes old ones.
//
// Readers call Index and keep the returned pointer for the whole request; a
// concurrent publish swaps the pointer without affecting them.
type Manager struct {
	dataDir string
	keep    int

	// Search tuning applied to loaded generations; zero keeps the defaults.
	efSearch int
	exactMax int

	current atomic.Pointer[Generation]

	// loadErr is the error from the last failed load when nothing is served.
	loadErr atomic.Pointer[error]

	rebuildMu sync.Mutex
	reloadMu  sync.Mutex
}

// NewManager creates a manager for dataDir. keep < 1 uses
// DefaultKeepGenerations.
func NewManager(dataDir string, keep int) *Manager {
	if keep < 1 {
		keep = DefaultKeepGenerations
	}
	return &Manager{dataDir: dataDir, keep: keep}
}

// SetSearchOptions tunes generations loaded from now on. Zero values keep
// DefaultEfSearch and DefaultExactSearchMax.
func (m *Manager) SetSearchOptions(efSearch, exactSearchMax int) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	m.efSearch = efSearch
	m.exactMax = exactSearchMax
}

// DataDir returns the managed directory.
func (m *Manager) DataDir() string {
	return m.dataDir
}

// Current returns the served generation, or nil when none is loaded.
func (m *Manager) Current() *Generation {
	return m.current.Load()
}

// Index returns the served index. With no published generation it returns
// (nil, nil); when the published generation failed to load it returns the
// CorruptIndex error until a rebuild succeeds.
func (m *Manager) Index() (*VectorIndex, error) {
	if gen := m.current.Load(); gen != nil {
		return gen.Index, nil
	}
	if errp := m.loadErr.Load(); errp != nil {
		return nil, *errp
	}
	return nil, nil
}

// Open loads the generation named by CURRENT. A data directory without
// CURRENT is not an error; nothing is served until the first rebuild.
func (m *Manager) Open() error {
	_, err := m.Reload()
	return err
}

// Reload re-reads CURRENT and swaps in its generation when it differs from
// the served one. It reports whether a swap happened. A generation that fails
// to load leaves the served one in place.
func (m *Manager) Reload() (bool, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	name, err := m.readCurrent()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, m.recordLoadError(docerrors.CorruptIndex("unreadable CURRENT pointer", err))
	}

	if gen := m.current.Load(); gen != nil && gen.Name == name {
		return false, nil
	}

	dir := m.generationDir(name)
	idx, err := Load(dir)
	if err != nil {
		return false, m.recordLoadError(err)
	}
	idx.tune(m.efSearch, m.exactMax)

	m.swap(&Generation{Name: name, Dir: dir, Index: idx})
	slog.Info("index_loaded",
		slog.String("generation", name),
		slog.Int("chunks", idx.Len()),
		slog.String("revision", idx.Revision()))
	return true, nil
}

func (m *Manager) recordLoadError(err error) error {
	if m.current.Load() == nil {
		m.loadErr.Store(&err)
	}
	slog.Warn("index_load_failed", slog.String("dir", m.dataDir), slog.String("error", err.Error()))
	return err
}

func (m *Manager) swap(gen *Generation) {
	m.current.Store(gen)
	m.loadErr.Store(nil)
	info := gen.Index.Info()
	telemetry.RecordIndexLoaded(info.Chunks, info.CreatedAt)
}

// Rebuild builds, persists and publishes a new generation. Only one rebuild
// may run at a time per data directory, across processes; a second caller
// fails fast with RebuildInProgress.
func (m *Manager) Rebuild(ctx context.Context, build BuildFunc) (*Generation, error) {
	if !m.rebuildMu.TryLock() {
		return nil, rebuildInProgress(m.dataDir)
	}
	defer m.rebuildMu.Unlock()

	lock := NewFileLock(filepath.Join(m.dataDir, LockFile))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeIndexFailed, "failed to take rebuild lock", err)
	}
	if !acquired {
		return nil, rebuildInProgress(m.dataDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("rebuild_unlock_failed", slog.String("error", err.Error()))
		}
	}()

	idx, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := m.nextGenerationName()
	dir := m.generationDir(name)
	if err := idx.Persist(dir); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	if err := m.writeCurrent(name); err != nil {
		os.RemoveAll(dir)
		return nil, docerrors.New(docerrors.ErrCodeIndexFailed, "failed to publish generation", err)
	}

	gen := &Generation{Name: name, Dir: dir, Index: idx}
	m.reloadMu.Lock()
	m.swap(gen)
	m.reloadMu.Unlock()

	slog.Info("index_published",
		slog.String("generation", name),
		slog.Int("chunks", idx.Len()),
		slog.String("revision", idx.Revision()))

	if err := m.prune(name); err != nil {
		slog.Warn("generation_prune_failed", slog.String("error", err.Error()))
	}

	return gen, nil
}

func rebuildInProgress(dataDir string) error {
	return docerrors.New(docerrors.ErrCodeRebuildInProgress, "another rebuild holds the index lock", nil).
		WithDetail("data_dir", dataDir).
		WithSuggestion("Wait for the running ingest to finish")
}

// Generations lists generation names on disk, oldest first.
func (m *Manager) Generations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.dataDir, GenerationsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// prune removes the oldest generations so at most keep remain. The
// published generation is never removed.
func (m *Manager) prune(published string) error {
	names, err := m.Generations()
	if err != nil {
		return err
	}
	if len(names) <= m.keep {
		return nil
	}

	for _, name := range names[:len(names)-m.keep] {
		if name == published {
			continue
		}
		if err := os.RemoveAll(m.generationDir(name)); err != nil {
			return fmt.Errorf("failed to remove generation %s: %w", name, err)
		}
		slog.Debug("generation_pruned", slog.String("generation", name))
	}
	return nil
}

// Watch reloads the served generation whenever CURRENT is replaced. It
// blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	if err := os.MkdirAll(m.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.dataDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.dataDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != CurrentFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, err := m.Reload(); err != nil {
				slog.Warn("index_reload_failed", slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("index_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) generationDir(name string) string {
	return filepath.Join(m.dataDir, GenerationsDir, name)
}

// nextGenerationName returns a name that sorts after every existing one.
func (m *Manager) nextGenerationName() string {
	name := fmt.Sprintf("%020d", time.Now().UnixNano())
	if names, err := m.Generations(); err == nil && len(names) > 0 {
		if last := names[len(names)-1]; name <= last {
			name = last + "a"
		}
	}
	return name
}

func (m *Manager) readCurrent() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.dataDir, CurrentFile))
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(data))
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid generation name %q", name)
	}
	return name, nil
}

// writeCurrent atomically points CURRENT at name.
func (m *Manager) writeCurrent(name string) error {
	path := filepath.Join(m.dataDir, CurrentFile)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(name+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write CURRENT: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename CURRENT: %w", err)
	}
	return nil
}
