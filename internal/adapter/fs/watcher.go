package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"studyrag/internal/port"
)

const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changes to the files a Walker would return. Events are
// collected until the tree has been quiet for the debounce interval, so an
// editor's burst of writes arrives as one change.
type Watcher struct {
	walker   *Walker
	debounce time.Duration
	logger   *zap.Logger
}

func NewWatcher(walker *Walker, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{walker: walker, debounce: debounce, logger: logger}
}

// Watch blocks until ctx is done. New directories are watched as they
// appear, and the matching files already inside them are reported.
func (w *Watcher) Watch(ctx context.Context, root string, onChange func([]port.FileChange)) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer fw.Close()

	st := &watchState{
		fw:      fw,
		root:    root,
		pending: make(map[string]port.FileChange),
		known:   make(map[string]string),
	}
	found, err := w.addTree(fw, root, root)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	for _, c := range found {
		st.known[c.RelPath] = c.Path
	}
	w.logger.Debug("watching", zap.String("root", root), zap.Int("files", len(found)))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(st, ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			if len(st.pending) == 0 {
				continue
			}
			batch := make([]port.FileChange, 0, len(st.pending))
			for _, c := range st.pending {
				batch = append(batch, c)
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].RelPath < batch[j].RelPath })
			clear(st.pending)
			onChange(batch)
		}
	}
}

// watchState is the bookkeeping of one Watch call. known maps the relative
// path of every matching file seen so far to its absolute path.
type watchState struct {
	fw      *fsnotify.Watcher
	root    string
	pending map[string]port.FileChange
	known   map[string]string
}

// handle records ev in st.pending and reports whether anything was recorded.
func (w *Watcher) handle(st *watchState, ev fsnotify.Event) bool {
	rel, err := filepath.Rel(st.root, ev.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if w.walker.Match(rel) {
			delete(st.known, rel)
			st.pending[rel] = port.FileChange{Path: ev.Name, RelPath: rel, Removed: true}
			return true
		}
		return w.removeTree(st, ev.Name, rel)
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if !ev.Has(fsnotify.Create) || w.walker.SkipDir(rel) {
			return false
		}
		found, err := w.addTree(st.fw, st.root, ev.Name)
		if err != nil {
			w.logger.Warn("failed to watch new directory", zap.String("path", rel), zap.Error(err))
		}
		for _, c := range found {
			st.known[c.RelPath] = c.Path
			st.pending[c.RelPath] = c
		}
		return len(found) > 0
	}
	if !w.walker.Match(rel) {
		return false
	}
	st.known[rel] = ev.Name
	st.pending[rel] = port.FileChange{Path: ev.Name, RelPath: rel}
	return true
}

// removeTree handles a directory that was deleted or moved away. The event
// names only the directory, so every known file below it is reported
// removed and the stale watches are dropped.
func (w *Watcher) removeTree(st *watchState, dir, rel string) bool {
	prefix := rel + "/"
	recorded := false
	for r, path := range st.known {
		if !strings.HasPrefix(r, prefix) {
			continue
		}
		delete(st.known, r)
		st.pending[r] = port.FileChange{Path: path, RelPath: r, Removed: true}
		recorded = true
	}
	for _, watched := range st.fw.WatchList() {
		if watched == dir || strings.HasPrefix(watched, dir+string(filepath.Separator)) {
			_ = st.fw.Remove(watched)
		}
	}
	return recorded
}

// addTree watches dir and every directory below it that is not excluded.
// It returns the matching files found along the way.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root, dir string) ([]port.FileChange, error) {
	var found []port.FileChange
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.walker.SkipDir(rel) {
				return filepath.SkipDir
			}
			return fw.Add(path)
		}
		if w.walker.Match(rel) {
			found = append(found, port.FileChange{Path: path, RelPath: rel})
		}
		return nil
	})
	return found, err
}
