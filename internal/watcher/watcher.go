package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/docrag/internal/source"
)

// Operation is the kind of change seen for a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a document.
type FileEvent struct {
	// Path is slash-separated and relative to the watched root.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// DefaultDebounceWindow coalesces a typical editor save or git checkout.
const DefaultDebounceWindow = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	DebounceWindow time.Duration
	// Source holds the filters ingestion applies; Root is ignored.
	Source source.Options
}

// Watcher follows a documentation tree.
type Watcher struct {
	root      string
	filter    *source.Filter
	fsw       *fsnotify.Watcher
	debouncer *Debouncer

	events chan []FileEvent
	errors chan error

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New watches every directory under root that the filters keep.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot watch %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot watch %s: not a directory", abs)
	}
	filter, err := source.NewFilter(abs, opts.Source)
	if err != nil {
		return nil, err
	}
	window := opts.DebounceWindow
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		root:      abs,
		filter:    filter,
		fsw:       fsw,
		debouncer: NewDebouncer(window),
		events:    make(chan []FileEvent, 16),
		errors:    make(chan error, 16),
		done:      make(chan struct{}),
	}
	if err := w.addTree(abs, false); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins delivering events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.startOnce.Do(func() {
		w.wg.Add(2)
		go w.loop(ctx)
		go w.forward()
	})
	return nil
}

// Events returns debounced batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watch errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.debouncer.Stop()
		w.wg.Wait()
		close(w.events)
		close(w.errors)
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			go func() { _ = w.Stop() }()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// forward moves debounced batches to Events.
func (w *Watcher) forward() {
	defer w.wg.Done()
	for batch := range w.debouncer.Output() {
		select {
		case w.events <- batch:
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)
	now := time.Now()

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.filter.Skip(rel, true) {
				return
			}
			// Files may land before the watch does.
			if err := w.addTree(ev.Name, true); err != nil {
				w.emitError(err)
			}
			return
		}
		if !w.filter.Skip(rel, false) {
			w.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: now})
		}
	case ev.Has(fsnotify.Write):
		if !w.filter.Skip(rel, false) {
			w.debouncer.Add(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// The path is gone, so a removed directory can only be told apart
		// by its missing extension.
		if !w.filter.Skip(rel, false) || filepath.Ext(rel) == "" {
			w.debouncer.Add(FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
		}
	}
}

// addTree watches dir and its kept subdirectories. With emit set, files
// already present are reported as created.
func (w *Watcher) addTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !d.IsDir() {
			if emit && d.Type().IsRegular() && !w.filter.Skip(rel, false) {
				w.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
			}
			return nil
		}
		if rel != "." && w.filter.Skip(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Warn("watch_error_dropped", slog.String("error", err.Error()))
	}
}
