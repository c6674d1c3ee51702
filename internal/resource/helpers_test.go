package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testRoot = "/ws"

// memFS builds an in-memory tree. Keys are absolute paths; a trailing slash
// creates an empty directory.
func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(testRoot, 0755))
	mtime := time.UnixMilli(1_700_000_000_000)
	for name, body := range files {
		if name[len(name)-1] == '/' {
			require.NoError(t, fsys.MkdirAll(name, 0755))
			continue
		}
		require.NoError(t, fsys.MkdirAll(filepath.Dir(name), 0755))
		require.NoError(t, afero.WriteFile(fsys, name, []byte(body), 0644))
		require.NoError(t, fsys.Chtimes(name, mtime, mtime))
	}
	return fsys
}

// countingFinder counts FindFiles calls.
type countingFinder struct {
	Finder
	calls atomic.Int32
}

func (c *countingFinder) FindFiles(ctx context.Context, root, pattern string, maxResults int) ([]string, error) {
	c.calls.Add(1)
	return c.Finder.FindFiles(ctx, root, pattern, maxResults)
}

// blockingFinder never finds anything before ctx ends.
type blockingFinder struct{}

func (blockingFinder) FindFiles(ctx context.Context, _, _ string, _ int) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// staticFinder returns a fixed set of paths.
type staticFinder struct {
	paths []string
	err   error
}

func (s staticFinder) FindFiles(context.Context, string, string, int) ([]string, error) {
	return s.paths, s.err
}

// flakyStater fails Stat on the root for the first failures calls, or
// forever when failures is negative.
type flakyStater struct {
	Stater
	root     string
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyStater) Stat(name string) (os.FileInfo, error) {
	if name == f.root {
		f.calls.Add(1)
		if f.failures.Load() != 0 {
			f.failures.Add(-1)
			return nil, errors.New("device not ready")
		}
	}
	return f.Stater.Stat(name)
}

// fakeSource is a WatchSource whose events are fired by the test.
type fakeSource struct {
	mu      sync.Mutex
	watches []*fakeWatch
	fail    map[string]bool
}

type fakeWatch struct {
	root     string
	pattern  string
	onChange func(Change)
	disposed atomic.Int32
}

func newFakeSource(failing ...string) *fakeSource {
	f := &fakeSource{fail: make(map[string]bool)}
	for _, p := range failing {
		f.fail[p] = true
	}
	return f
}

func (f *fakeSource) Watch(root, pattern string, onChange func(Change)) (Disposable, error) {
	if f.fail[pattern] {
		return nil, errors.New("watch limit reached")
	}
	w := &fakeWatch{root: root, pattern: pattern, onChange: onChange}
	f.mu.Lock()
	f.watches = append(f.watches, w)
	f.mu.Unlock()
	return DisposeFunc(func() { w.disposed.Add(1) }), nil
}

// fire delivers c to every live watch on pattern.
func (f *fakeSource) fire(pattern string, c Change) {
	f.mu.Lock()
	watches := append([]*fakeWatch(nil), f.watches...)
	f.mu.Unlock()
	for _, w := range watches {
		if w.pattern == pattern && w.disposed.Load() == 0 {
			w.onChange(c)
		}
	}
}

// live counts undisposed watches.
func (f *fakeSource) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.watches {
		if w.disposed.Load() == 0 {
			n++
		}
	}
	return n
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
