package resource

import (
	"sync"

	"github.com/rs/zerolog"
)

// Op is the kind of filesystem change a watch reports.
type Op uint8

const (
	OpCreate Op = iota + 1
	OpChange
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpChange:
		return "change"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one filesystem event relevant to a watched pattern.
type Change struct {
	Op      Op
	Path    string
	Pattern string
}

// Disposable releases a resource. Dispose is safe to call more than once.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to Disposable.
type DisposeFunc func()

// Dispose implements Disposable.
func (f DisposeFunc) Dispose() { f() }

// WatchSource installs a filesystem watch for one glob pattern below root
// and reports create, change and delete events for matching paths.
type WatchSource interface {
	Watch(root, pattern string, onChange func(Change)) (Disposable, error)
}

// ChangeWatcher installs one watch per pattern and funnels their events
// into a single callback.
type ChangeWatcher struct {
	source WatchSource
	log    zerolog.Logger
}

// NewChangeWatcher creates a watcher over source.
func NewChangeWatcher(source WatchSource, log zerolog.Logger) *ChangeWatcher {
	return &ChangeWatcher{source: source, log: log}
}

// Install watches every valid pattern below root, calling onInvalidate for
// each relevant event. A pattern whose watch cannot be installed is logged
// and skipped. The returned handle releases every installed watch; the int
// is the number of watches installed.
func (w *ChangeWatcher) Install(root string, patterns []string, onInvalidate func(Change)) (Disposable, int) {
	set := &watchSet{}
	for _, pattern := range ValidPatterns(patterns, w.log) {
		handle, err := w.source.Watch(root, Normalize(pattern), func(c Change) {
			c.Pattern = pattern
			onInvalidate(c)
		})
		if err != nil {
			w.log.Warn().Err(err).Str("pattern", pattern).Msg("failed to watch resource pattern, auto-refresh disabled")
			continue
		}
		set.handles = append(set.handles, handle)
	}
	return set, len(set.handles)
}

type watchSet struct {
	once    sync.Once
	handles []Disposable
}

func (s *watchSet) Dispose() {
	s.once.Do(func() {
		for _, h := range s.handles {
			h.Dispose()
		}
		s.handles = nil
	})
}
