package resource

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// NotifySource is a WatchSource backed by fsnotify on the host filesystem.
type NotifySource struct {
	log zerolog.Logger
}

// NewNotifySource creates an fsnotify watch source.
func NewNotifySource(log zerolog.Logger) *NotifySource {
	return &NotifySource{log: log}
}

// Watch implements WatchSource. It watches the directories between the
// nearest existing ancestor and the pattern's literal base, plus the base's
// subtree when the pattern can match below it, and follows directories as
// they appear.
func (s *NotifySource) Watch(root, pattern string, onChange func(Change)) (Disposable, error) {
	full := filepath.ToSlash(pattern)
	if !path.IsAbs(full) {
		full = path.Join(filepath.ToSlash(root), full)
	}
	if !doublestar.ValidatePattern(full) {
		return nil, doublestar.ErrBadPattern
	}
	base, sub := doublestar.SplitPattern(full)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &patternWatch{
		watcher:   fw,
		pattern:   full,
		base:      filepath.Clean(filepath.FromSlash(base)),
		recursive: strings.Contains(sub, "/") || strings.Contains(sub, "**"),
		dirs:      make(map[string]bool),
		onChange:  onChange,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		log:       s.log.With().Str("pattern", full).Logger(),
	}

	start := nearestDir(w.base)
	if err := w.add(start); err != nil {
		fw.Close()
		return nil, err
	}
	if start == w.base && w.recursive {
		w.addTree(w.base, false)
	}

	go w.run()
	return DisposeFunc(w.stop), nil
}

type patternWatch struct {
	watcher   *fsnotify.Watcher
	pattern   string
	base      string
	recursive bool
	onChange  func(Change)
	log       zerolog.Logger

	mu   sync.Mutex
	dirs map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func (w *patternWatch) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("resource watcher error")
		}
	}
}

func (w *patternWatch) handle(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(name); err == nil && info.IsDir() && w.relevant(name) {
			if err := w.add(name); err != nil {
				w.log.Warn().Err(err).Str("dir", name).Msg("failed to watch new directory")
				return
			}
			// Files may have landed before the watch was added.
			w.addTree(name, true)
			return
		}
		w.emit(OpCreate, name)
	case ev.Has(fsnotify.Write):
		w.emit(OpChange, name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if !w.forget(name) {
			w.emit(OpDelete, name)
			return
		}
		if name == w.base || within(name, w.base) {
			// The base or one of its ancestors is gone; wait for it to reappear.
			if err := w.add(nearestDir(w.base)); err != nil {
				w.log.Warn().Err(err).Msg("failed to rearm resource watcher")
			}
		}
		w.onChange(Change{Op: OpDelete, Path: name})
	}
}

func (w *patternWatch) emit(op Op, name string) {
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(name))
	if err != nil || !ok {
		return
	}
	w.log.Debug().Str("op", op.String()).Str("path", name).Msg("resource changed")
	w.onChange(Change{Op: op, Path: name})
}

// relevant reports whether dir must be watched: it lies on the way to the
// base, is the base, or is inside the base of a recursive pattern.
func (w *patternWatch) relevant(dir string) bool {
	if dir == w.base || within(dir, w.base) {
		return true
	}
	return w.recursive && within(w.base, dir)
}

func (w *patternWatch) add(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.mu.Lock()
	w.dirs[dir] = true
	w.mu.Unlock()
	return nil
}

func (w *patternWatch) forget(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		return false
	}
	delete(w.dirs, dir)
	return true
}

// addTree watches relevant directories below dir. When emitCreates is set,
// files already matching the pattern are reported as created.
func (w *patternWatch) addTree(dir string, emitCreates bool) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p == dir {
				return nil
			}
			if !w.relevant(p) {
				return filepath.SkipDir
			}
			if err := w.add(p); err != nil {
				w.log.Warn().Err(err).Str("dir", p).Msg("failed to watch directory")
			}
			return nil
		}
		if emitCreates {
			w.emit(OpCreate, p)
		}
		return nil
	})
}

func (w *patternWatch) stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		if err := w.watcher.Close(); err != nil {
			w.log.Debug().Err(err).Msg("closing resource watcher")
		}
	})
}

// nearestDir returns the closest existing directory at or above dir.
func nearestDir(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// within reports whether p is strictly inside dir.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
