package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/config"
	"github.com/opencode-ai/agentctx/internal/event"
)

type testEnv struct {
	svc    *Service
	finder *countingFinder
	source *fakeSource
	clock  *fakeClock
}

func newTestService(t *testing.T, fsys afero.Fs, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		finder: &countingFinder{Finder: NewFS(fsys)},
		source: newFakeSource(),
		clock:  newFakeClock(),
	}
	base := []Option{
		WithFS(fsys),
		WithFinder(env.finder),
		WithWatchSource(env.source),
		WithClock(env.clock.Now),
		WithLogger(zerolog.Nop()),
		WithBatching(DefaultBatchSize, DefaultRetryLimit, LinearBackoff(time.Millisecond)),
	}
	env.svc = NewService(StaticRoot(testRoot), append(base, opts...)...)
	t.Cleanup(func() { _ = env.svc.Close() })
	return env
}

func docsFS(t *testing.T) afero.Fs {
	return memFS(t, map[string]string{
		"/ws/README.md":          string(make([]byte, 120)),
		"/ws/docs/intro.md":      "intro",
		"/ws/docs/setup.md":      "setup",
		"/ws/docs/guide/deep.md": "deep",
		"/ws/src/main.go":        "package main",
	})
}

func TestService_ScenarioA_SingleFile(t *testing.T) {
	env := newTestService(t, docsFS(t))

	list, err := env.svc.Resolve(context.Background(), &agent.Config{
		Name:      "readme",
		Resources: []string{"file://README.md"},
	})
	require.NoError(t, err)

	require.Len(t, list, 2)
	assert.True(t, list[0].Header)
	assert.Equal(t, "README.md", list[0].Label)
	assert.Equal(t, "1 file", list[0].Description)

	child := list[1]
	assert.False(t, child.Header)
	assert.Equal(t, "README.md", child.Label)
	assert.True(t, child.Exists)
	assert.Equal(t, int64(120), child.SizeBytes)
	assert.Equal(t, "/ws/README.md", child.AbsolutePath)
	assert.Equal(t, "README.md", child.RelativePath)
	assert.Equal(t, KindFile, child.Kind)
}

func TestService_ScenarioB_EmptyResources(t *testing.T) {
	env := newTestService(t, docsFS(t))

	list, err := env.svc.Resolve(context.Background(), &agent.Config{Name: "empty"})
	require.NoError(t, err)

	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.Zero(t, env.finder.calls.Load())
	assert.Zero(t, env.svc.Stats().Entries)
}

func TestService_ScenarioC_ThreeBatches(t *testing.T) {
	patterns, files := numberedPatterns(25)
	env := newTestService(t, memFS(t, files))

	list, err := env.svc.Resolve(context.Background(), &agent.Config{Name: "many", Resources: patterns})
	require.NoError(t, err)

	assert.Len(t, list.Headers(), 25)
	assert.Len(t, list.Files(), 25)
	assert.Equal(t, 3.0, testutil.ToFloat64(env.svc.Metrics().Batches))
	assert.Equal(t, int32(25), env.finder.calls.Load())
}

func TestService_Deterministic(t *testing.T) {
	env := newTestService(t, docsFS(t))
	cfg := &agent.Config{Name: "docs", Resources: []string{"file://docs/**/*.md", "file://README.md"}}

	first, err := env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	calls := env.finder.calls.Load()

	second, err := env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, env.finder.calls.Load(), "second call is served from cache")

	stats := env.svc.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestService_PatternChangeBypassesCache(t *testing.T) {
	env := newTestService(t, docsFS(t))
	cfg := &agent.Config{Name: "docs", Resources: []string{"file://docs/*.md"}}

	_, err := env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	before := env.finder.calls.Load()

	changed := cfg.Clone()
	changed.Resources[0] = "file://docs/**/*.md"
	list, err := env.svc.Resolve(context.Background(), changed)
	require.NoError(t, err)

	assert.Greater(t, env.finder.calls.Load(), before)
	assert.Len(t, list.Files(), 3)
	assert.Equal(t, 2, env.svc.Stats().Entries)
}

func TestService_TTLExpiry(t *testing.T) {
	env := newTestService(t, docsFS(t), WithCache(time.Minute, 10, time.Hour))
	cfg := &agent.Config{Name: "docs", Resources: []string{"file://docs/*.md"}}

	_, err := env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	before := env.finder.calls.Load()

	env.clock.Advance(time.Minute + time.Millisecond)
	_, err = env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, before+1, env.finder.calls.Load())
}

func TestService_EvictionBound(t *testing.T) {
	env := newTestService(t, docsFS(t), WithCache(time.Hour, 3, time.Hour))

	for i := range 8 {
		_, err := env.svc.Resolve(context.Background(), &agent.Config{
			Name:      fmt.Sprintf("agent-%d", i),
			Resources: []string{"file://README.md"},
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, env.svc.Stats().Entries, 3)
	}
	assert.Equal(t, 3, env.svc.Stats().Entries)
}

func TestService_PartialFailure(t *testing.T) {
	env := newTestService(t, docsFS(t))

	list, err := env.svc.Resolve(context.Background(), &agent.Config{
		Name:      "docs",
		Resources: []string{"file://docs/*.md", "file://does-not-exist/*.md"},
	})
	require.NoError(t, err)

	headers := list.Headers()
	require.Len(t, headers, 2)
	assert.Equal(t, "docs/*.md", headers[0].Label)
	assert.Equal(t, "2 files", headers[0].Description)
	assert.Equal(t, "does-not-exist/*.md", headers[1].Label)
	assert.Equal(t, "0 files", headers[1].Description)
	assert.Len(t, list.Files(), 2)
}

func TestService_WatchInvalidates(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	env := newTestService(t, docsFS(t), WithBus(bus))
	cfg := &agent.Config{Name: "docs", Resources: []string{"file://docs/*.md"}}

	invalidated := make(chan event.ResourcesInvalidatedData, 1)
	bus.Subscribe(event.ResourcesInvalidated, func(e event.Event) {
		invalidated <- e.Data.(event.ResourcesInvalidatedData)
	})

	_, err := env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)

	handle, err := env.svc.Watch(cfg)
	require.NoError(t, err)
	defer handle.Dispose()

	before := env.finder.calls.Load()
	env.source.fire("docs/*.md", Change{Op: OpCreate, Path: "/ws/docs/new.md"})

	select {
	case data := <-invalidated:
		assert.Equal(t, "docs", data.Agent)
		assert.Equal(t, "create", data.Op)
		assert.Equal(t, "file://docs/*.md", data.Pattern)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for invalidation event")
	}

	_, err = env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, before+1, env.finder.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.svc.Metrics().Invalidations))
}

func TestService_WatchReplacesPreviousSet(t *testing.T) {
	env := newTestService(t, docsFS(t))
	cfg := &agent.Config{Name: "docs", Resources: []string{"file://docs/*.md", "file://README.md"}}

	_, err := env.svc.Resolve(context.Background(), cfg)
	require.NoError(t, err)

	_, err = env.svc.Watch(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, env.source.live())

	_, err = env.svc.Watch(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, env.source.live(), "the previous set is released before the new one")
	assert.Len(t, env.source.watches, 4)
	assert.Equal(t, 1, env.svc.Stats().ActiveWatches)
}

func TestService_WatchSingleActiveAgent(t *testing.T) {
	env := newTestService(t, docsFS(t))
	docs := &agent.Config{Name: "docs", Resources: []string{"file://docs/*.md"}}
	code := &agent.Config{Name: "code", Resources: []string{"file://src/*.go"}}

	_, err := env.svc.Watch(docs)
	require.NoError(t, err)
	_, err = env.svc.Watch(code)
	require.NoError(t, err)

	assert.Equal(t, 1, env.source.live())
	stats := env.svc.Stats()
	assert.Equal(t, 1, stats.ActiveWatches)
	assert.Equal(t, "code", stats.ActiveAgent)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.svc.Metrics().ActiveWatches))
	assert.False(t, env.svc.Watching("docs"))
	assert.True(t, env.svc.Watching("code"))
}

func TestService_WatchMultipleAgents(t *testing.T) {
	env := newTestService(t, docsFS(t), WithSingleActiveWatch(false))
	docs := &agent.Config{Name: "docs", Resources: []string{"file://docs/*.md"}}
	code := &agent.Config{Name: "code", Resources: []string{"file://src/*.go"}}

	h1, err := env.svc.Watch(docs)
	require.NoError(t, err)
	_, err = env.svc.Watch(code)
	require.NoError(t, err)
	assert.Equal(t, 2, env.source.live())

	assert.True(t, env.svc.Watching("docs"))

	h1.Dispose()
	h1.Dispose()
	assert.Equal(t, 1, env.source.live())
	assert.Equal(t, 1, env.svc.Stats().ActiveWatches)
	assert.False(t, env.svc.Watching("docs"))
	assert.True(t, env.svc.Watching("code"))
}

func TestService_WatchSkipsFailingPatterns(t *testing.T) {
	env := newTestService(t, docsFS(t), WithWatchSource(newFakeSource("README.md")))
	src := env.svc.watcher.source.(*fakeSource)

	handle, err := env.svc.Watch(&agent.Config{Name: "docs", Resources: []string{"file://docs/*.md", "file://README.md"}})
	require.NoError(t, err)
	defer handle.Dispose()
	assert.Equal(t, 1, src.live())
}

func TestService_ValidationErrors(t *testing.T) {
	env := newTestService(t, docsFS(t))
	ctx := context.Background()

	_, err := env.svc.Resolve(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidAgent)

	_, err = env.svc.Resolve(ctx, &agent.Config{Name: "  ", Resources: []string{"README.md"}})
	assert.ErrorIs(t, err, ErrInvalidAgent)

	_, err = env.svc.Resolve(ctx, &agent.Config{Name: "blank", Resources: []string{"", "file://", " "}})
	assert.ErrorIs(t, err, ErrNoValidPatterns)
	assert.Equal(t, ErrorKindValidation, Classify(err))
	assert.Equal(t, []Action{ActionEditAgent, ActionViewConfig}, RecoveryActions(err))

	_, err = env.svc.Watch(nil)
	assert.ErrorIs(t, err, ErrInvalidAgent)
}

func TestService_NoWorkspace(t *testing.T) {
	svc := NewService(RootFunc(func() (string, error) {
		return "", errors.New("no folder")
	}), WithFS(afero.NewMemMapFs()), WithLogger(zerolog.Nop()))
	defer svc.Close()

	_, err := svc.Resolve(context.Background(), &agent.Config{Name: "docs"})
	assert.ErrorIs(t, err, ErrNoWorkspace)
	assert.Equal(t, []Action{ActionOpenFolder}, RecoveryActions(err))

	_, err = svc.Watch(&agent.Config{Name: "docs"})
	assert.ErrorIs(t, err, ErrNoWorkspace)
}

func TestService_Timeout(t *testing.T) {
	env := newTestService(t, docsFS(t), WithFinder(blockingFinder{}), WithTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := env.svc.Resolve(context.Background(), &agent.Config{Name: "slow", Resources: []string{"**/*"}})

	assert.ErrorIs(t, err, ErrResourceLoadTimeout)
	assert.Equal(t, ErrorKindTimeout, Classify(err))
	assert.Equal(t, []Action{ActionRetry, ActionRefresh}, RecoveryActions(err))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, env.svc.Stats().Entries, "nothing is cached after a timeout")
}

func TestService_ProcessingFailure(t *testing.T) {
	fsys := docsFS(t)
	stater := &flakyStater{Stater: NewFS(fsys), root: testRoot}
	stater.failures.Store(-1)
	env := newTestService(t, fsys, WithStater(stater), WithBatching(10, 1, LinearBackoff(time.Millisecond)))

	_, err := env.svc.Resolve(context.Background(), &agent.Config{Name: "docs", Resources: []string{"README.md"}})

	var procErr *ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 2, procErr.Attempts)
	assert.Equal(t, []Action{ActionRetry, ActionViewConfig, ActionShowLogs}, RecoveryActions(err))
}

func TestService_Cancelled(t *testing.T) {
	env := newTestService(t, docsFS(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.Resolve(ctx, &agent.Config{Name: "docs", Resources: []string{"README.md"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ErrorKindCancelled, Classify(err))
	assert.Empty(t, RecoveryActions(err))
}

func TestService_InvalidateAll(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	env := newTestService(t, docsFS(t), WithBus(bus))

	var cleared atomic.Int32
	bus.Subscribe(event.CacheCleared, func(e event.Event) {
		cleared.Store(int32(e.Data.(event.CacheClearedData).Removed))
	})

	for _, name := range []string{"a", "b"} {
		_, err := env.svc.Resolve(context.Background(), &agent.Config{Name: name, Resources: []string{"README.md"}})
		require.NoError(t, err)
	}
	env.svc.InvalidateAll()

	assert.Zero(t, env.svc.Stats().Entries)
	assert.Eventually(t, func() bool { return cleared.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestService_Close(t *testing.T) {
	env := newTestService(t, docsFS(t))
	_, err := env.svc.Watch(&agent.Config{Name: "docs", Resources: []string{"docs/*.md"}})
	require.NoError(t, err)

	require.NoError(t, env.svc.Close())
	require.NoError(t, env.svc.Close())
	assert.Equal(t, 0, env.source.live())

	_, err = env.svc.Resolve(context.Background(), &agent.Config{Name: "docs", Resources: []string{"README.md"}})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = env.svc.Watch(&agent.Config{Name: "docs"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestService_SweeperRemovesExpired(t *testing.T) {
	env := newTestService(t, docsFS(t), WithCache(time.Minute, 10, 10*time.Millisecond))

	_, err := env.svc.Resolve(context.Background(), &agent.Config{Name: "docs", Resources: []string{"README.md"}})
	require.NoError(t, err)
	require.Equal(t, 1, env.svc.Stats().Entries)

	env.clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool { return env.svc.Stats().Entries == 0 }, time.Second, 10*time.Millisecond)
}

func TestService_WithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BatchSize = 4
	cfg.RetryLimit = 0
	cfg.CacheMaxEntries = 2

	env := newTestService(t, docsFS(t), WithConfig(cfg))
	patterns, _ := numberedPatterns(9)

	plan := env.svc.Batches().Plan(patterns)
	assert.Len(t, plan, 3)
	assert.Len(t, plan[2], 1)
	assert.Equal(t, 0, env.svc.Batches().retryLimit)
	assert.Equal(t, 2, env.svc.Cache().maxEntries)
	assert.Equal(t, 10*time.Second, env.svc.timeout)
}
