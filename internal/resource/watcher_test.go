package resource

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeWatcher_Install(t *testing.T) {
	src := newFakeSource("bad/*.md")
	w := NewChangeWatcher(src, zerolog.Nop())

	var changes []Change
	handle, n := w.Install(testRoot, []string{"file://docs/*.md", "file://bad/*.md", "", "src/**"}, func(c Change) {
		changes = append(changes, c)
	})

	assert.Equal(t, 2, n, "failed and empty patterns are skipped")
	assert.Equal(t, 2, src.live())

	src.fire("docs/*.md", Change{Op: OpCreate, Path: "/ws/docs/new.md"})
	src.fire("src/**", Change{Op: OpDelete, Path: "/ws/src/old.go"})

	require.Len(t, changes, 2)
	assert.Equal(t, Change{Op: OpCreate, Path: "/ws/docs/new.md", Pattern: "file://docs/*.md"}, changes[0])
	assert.Equal(t, "src/**", changes[1].Pattern)

	handle.Dispose()
	handle.Dispose()
	assert.Equal(t, 0, src.live())
	for _, fw := range src.watches {
		assert.Equal(t, int32(1), fw.disposed.Load(), "each watch is released exactly once")
	}
}

func TestChangeWatcher_WatchRoot(t *testing.T) {
	src := newFakeSource()
	w := NewChangeWatcher(src, zerolog.Nop())

	_, n := w.Install("/project", []string{"README.md"}, func(Change) {})
	require.Equal(t, 1, n)
	assert.Equal(t, "/project", src.watches[0].root)
	assert.Equal(t, "README.md", src.watches[0].pattern)
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "change", OpChange.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "unknown", Op(0).String())
}
