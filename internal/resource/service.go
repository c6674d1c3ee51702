package resource

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/config"
	"github.com/opencode-ai/agentctx/internal/event"
	"github.com/opencode-ai/agentctx/internal/logging"
	"github.com/opencode-ai/agentctx/internal/metrics"
)

// DefaultResolveTimeout bounds a single Resolve call.
const DefaultResolveTimeout = 10 * time.Second

// RootResolver supplies the single active search root, or an error when no
// root is open.
type RootResolver interface {
	Root() (string, error)
}

// RootFunc adapts a function to RootResolver.
type RootFunc func() (string, error)

// Root implements RootResolver.
func (f RootFunc) Root() (string, error) { return f() }

// StaticRoot is a RootResolver that always returns dir.
func StaticRoot(dir string) RootResolver {
	return RootFunc(func() (string, error) { return dir, nil })
}

type options struct {
	finder       Finder
	stater       Stater
	source       WatchSource
	bus          *event.Bus
	metrics      *metrics.Metrics
	log          *zerolog.Logger
	now          func() time.Time
	timeout      time.Duration
	ttl          time.Duration
	maxEntries   int
	sweep        time.Duration
	batchSize    int
	retryLimit   int
	backoff      BackoffFunc
	maxResults   int
	singleActive bool
}

// Option configures a Service.
type Option func(*options)

// WithConfig applies the tuning values of a loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.ttl = cfg.CacheTTL.Std()
		o.maxEntries = cfg.CacheMaxEntries
		o.sweep = cfg.SweepInterval.Std()
		o.batchSize = cfg.BatchSize
		o.retryLimit = cfg.RetryLimit
		o.backoff = LinearBackoff(cfg.RetryBackoff.Std())
		o.maxResults = cfg.MaxResults
		o.timeout = cfg.ResolveTimeout.Std()
	}
}

// WithFS resolves patterns against fsys instead of the host filesystem.
func WithFS(fsys afero.Fs) Option {
	return func(o *options) {
		f := NewFS(fsys)
		o.finder = f
		o.stater = f
	}
}

// WithFinder replaces the file search primitive.
func WithFinder(finder Finder) Option {
	return func(o *options) { o.finder = finder }
}

// WithStater replaces the stat primitive.
func WithStater(stater Stater) Option {
	return func(o *options) { o.stater = stater }
}

// WithWatchSource replaces the filesystem watch primitive.
func WithWatchSource(source WatchSource) Option {
	return func(o *options) { o.source = source }
}

// WithBus publishes resource events on bus.
func WithBus(bus *event.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithMetrics records into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = &log }
}

// WithClock sets the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTimeout bounds each Resolve call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithCache sets the cache TTL, size bound and sweep interval.
func WithCache(ttl time.Duration, maxEntries int, sweep time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
		o.maxEntries = maxEntries
		o.sweep = sweep
	}
}

// WithBatching sets the batch size and retry policy.
func WithBatching(batchSize, retryLimit int, backoff BackoffFunc) Option {
	return func(o *options) {
		o.batchSize = batchSize
		o.retryLimit = retryLimit
		o.backoff = backoff
	}
}

// WithMaxResults caps the matches of a single pattern.
func WithMaxResults(n int) Option {
	return func(o *options) { o.maxResults = n }
}

// WithSingleActiveWatch controls whether watching one agent releases the
// watches of the previously watched agent. It is on by default.
func WithSingleActiveWatch(enabled bool) Option {
	return func(o *options) { o.singleActive = enabled }
}

// Stats is a snapshot of service state.
type Stats struct {
	Entries       int    `json:"entries" yaml:"entries"`
	ActiveWatches int    `json:"activeWatches" yaml:"activeWatches"`
	ActiveAgent   string `json:"activeAgent,omitempty" yaml:"activeAgent,omitempty"`
	Hits          uint64 `json:"hits" yaml:"hits"`
	Misses        uint64 `json:"misses" yaml:"misses"`
}

type registration struct {
	id       string
	agent    string
	key      string
	patterns int
	handle   Disposable
	once     sync.Once
}

// Service resolves agent resources into presentation lists, caches them and
// invalidates them when watched files change.
type Service struct {
	root    RootResolver
	batches *BatchResolver
	cache   *Cache
	watcher *ChangeWatcher
	bus     *event.Bus
	metrics *metrics.Metrics
	log     zerolog.Logger

	timeout      time.Duration
	singleActive bool

	hits   atomic.Uint64
	misses atomic.Uint64

	mu      sync.Mutex
	watches map[string]*registration
	active  string
	closed  bool

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewService creates a service resolving against root and starts its cache
// sweeper. Call Close to stop it and release all watches.
func NewService(root RootResolver, opts ...Option) *Service {
	o := options{
		timeout:      DefaultResolveTimeout,
		ttl:          DefaultCacheTTL,
		maxEntries:   DefaultCacheMaxEntries,
		sweep:        DefaultSweepInterval,
		batchSize:    DefaultBatchSize,
		retryLimit:   DefaultRetryLimit,
		backoff:      LinearBackoff(DefaultRetryStep),
		maxResults:   DefaultMaxResults,
		singleActive: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := logging.Component("resource")
	if o.log != nil {
		log = *o.log
	}
	if o.finder == nil || o.stater == nil {
		osfs := NewOsFS()
		if o.finder == nil {
			o.finder = osfs
		}
		if o.stater == nil {
			o.stater = osfs
		}
	}
	if o.source == nil {
		o.source = NewNotifySource(log)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.timeout <= 0 {
		o.timeout = DefaultResolveTimeout
	}
	if o.sweep <= 0 {
		o.sweep = DefaultSweepInterval
	}

	globs := NewGlobResolver(o.finder, o.maxResults, o.metrics, log)
	s := &Service{
		root: root,
		batches: NewBatchResolver(globs, NewStatProbe(o.stater), o.stater, BatchConfig{
			BatchSize:  o.batchSize,
			RetryLimit: o.retryLimit,
			Backoff:    o.backoff,
			Metrics:    o.metrics,
			Logger:     log,
		}),
		cache: NewCache(CacheConfig{
			TTL:        o.ttl,
			MaxEntries: o.maxEntries,
			Now:        o.now,
			Metrics:    o.metrics,
			Logger:     log,
		}),
		watcher:      NewChangeWatcher(o.source, log),
		bus:          o.bus,
		metrics:      o.metrics,
		log:          log,
		timeout:      o.timeout,
		singleActive: o.singleActive,
		watches:      make(map[string]*registration),
		stopSweep:    make(chan struct{}),
		sweepDone:    make(chan struct{}),
	}

	go s.sweepLoop(o.sweep)
	return s
}

func (s *Service) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.cache.Sweep()
		}
	}
}

// Cache exposes the result cache.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Batches exposes the batch resolver.
func (s *Service) Batches() *BatchResolver {
	return s.batches
}

// Metrics exposes the service's collectors.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Resolve returns the presentation list for cfg's resources, from the cache
// when a fresh entry exists.
func (s *Service) Resolve(ctx context.Context, cfg *agent.Config) (PresentationList, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	root, err := s.validate(cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.Resources) == 0 {
		return PresentationList{}, nil
	}

	key := CacheKey(cfg.Name, cfg.Resources)
	if data, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		s.metrics.CacheHits.Inc()
		s.log.Debug().Str("agent", cfg.Name).Msg("resources served from cache")
		s.publish(event.Event{
			Type: event.ResourcesResolved,
			Data: event.ResourcesResolvedData{Agent: cfg.Name, Entries: len(data), Cached: true},
		})
		return data, nil
	}
	s.misses.Add(1)
	s.metrics.CacheMisses.Inc()

	patterns := ValidPatterns(cfg.Resources, s.log)
	if len(patterns) == 0 {
		return nil, ErrNoValidPatterns
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.batches.ResolveAll(ctx, root, patterns)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrResourceLoadTimeout, s.timeout)
		}
		s.metrics.ResolveDuration.WithLabelValues(string(Classify(err))).Observe(time.Since(start).Seconds())
		s.log.Error().Err(err).Str("agent", cfg.Name).Msg("failed to resolve resources")
		return nil, err
	}

	list := BuildFlatList(records, patterns...)
	s.cache.Set(key, list)
	s.metrics.ResolveDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	s.log.Debug().
		Str("agent", cfg.Name).
		Int("patterns", len(patterns)).
		Int("records", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("resources resolved")
	s.publish(event.Event{
		Type: event.ResourcesResolved,
		Data: event.ResourcesResolvedData{Agent: cfg.Name, Entries: len(list)},
	})
	return slices.Clone(list), nil
}

// Watch installs change watches for cfg's resources. Any relevant change
// invalidates the agent's cached resolution. A previous watch set for the
// same resources is released first and, unless single active watching was
// disabled, so is the watch set of any other agent. The caller should
// Dispose the handle when the agent is no longer displayed.
func (s *Service) Watch(cfg *agent.Config) (Disposable, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	root, err := s.validate(cfg)
	if err != nil {
		return nil, err
	}
	key := CacheKey(cfg.Name, cfg.Resources)

	s.mu.Lock()
	var stale []*registration
	for k, reg := range s.watches {
		if k == key || s.singleActive {
			stale = append(stale, reg)
			delete(s.watches, k)
		}
	}
	s.mu.Unlock()
	for _, reg := range stale {
		s.release(reg)
	}

	handle, n := s.watcher.Install(root, cfg.Resources, func(c Change) {
		s.invalidate(cfg.Name, key, c)
	})
	reg := &registration{
		id:       ulid.Make().String(),
		agent:    cfg.Name,
		key:      key,
		patterns: n,
		handle:   handle,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		handle.Dispose()
		return nil, ErrClosed
	}
	prev := s.watches[key]
	s.watches[key] = reg
	s.active = cfg.Name
	s.mu.Unlock()
	if prev != nil {
		s.release(prev)
	}

	s.metrics.ActiveWatches.Inc()
	s.log.Debug().Str("agent", cfg.Name).Str("id", reg.id).Int("patterns", n).Msg("watching resources")
	s.publish(event.Event{
		Type: event.WatchStarted,
		Data: event.WatchData{ID: reg.id, Agent: cfg.Name, Patterns: n},
	})

	return DisposeFunc(func() {
		s.mu.Lock()
		if s.watches[key] == reg {
			delete(s.watches, key)
			if s.active == reg.agent {
				s.active = ""
			}
		}
		s.mu.Unlock()
		s.release(reg)
	}), nil
}

// Watching reports whether a watch set for the named agent is installed.
func (s *Service) Watching(agentName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.watches {
		if reg.agent == agentName {
			return true
		}
	}
	return false
}

// release disposes a registration's watches exactly once.
func (s *Service) release(reg *registration) {
	reg.once.Do(func() {
		reg.handle.Dispose()
		s.metrics.ActiveWatches.Dec()
		s.log.Debug().Str("agent", reg.agent).Str("id", reg.id).Msg("released resource watches")
		s.publish(event.Event{
			Type: event.WatchStopped,
			Data: event.WatchData{ID: reg.id, Agent: reg.agent, Patterns: reg.patterns},
		})
	})
}

func (s *Service) invalidate(agentName, key string, c Change) {
	s.cache.Invalidate(key)
	s.metrics.Invalidations.Inc()
	s.log.Debug().
		Str("agent", agentName).
		Str("op", c.Op.String()).
		Str("path", c.Path).
		Msg("resources invalidated")
	s.publish(event.Event{
		Type: event.ResourcesInvalidated,
		Data: event.ResourcesInvalidatedData{
			Agent:   agentName,
			Key:     key,
			Pattern: c.Pattern,
			Path:    c.Path,
			Op:      c.Op.String(),
		},
	})
}

// InvalidateAll clears every cached resolution.
func (s *Service) InvalidateAll() {
	n := s.cache.InvalidateAll()
	s.log.Debug().Int("removed", n).Msg("resource cache cleared")
	s.publish(event.Event{Type: event.CacheCleared, Data: event.CacheClearedData{Removed: n}})
}

// Stats returns a snapshot of cache and watch state.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	watches, active := len(s.watches), s.active
	s.mu.Unlock()

	return Stats{
		Entries:       s.cache.Len(),
		ActiveWatches: watches,
		ActiveAgent:   active,
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
	}
}

// Close stops the cache sweeper and releases every watch. It is safe to
// call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		regs := make([]*registration, 0, len(s.watches))
		for _, reg := range s.watches {
			regs = append(regs, reg)
		}
		s.watches = make(map[string]*registration)
		s.active = ""
		s.mu.Unlock()

		close(s.stopSweep)
		<-s.sweepDone
		for _, reg := range regs {
			s.release(reg)
		}
	})
	return nil
}

func (s *Service) validate(cfg *agent.Config) (string, error) {
	if cfg == nil || strings.TrimSpace(cfg.Name) == "" {
		return "", ErrInvalidAgent
	}
	root, err := s.root.Root()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoWorkspace, err)
	}
	if root == "" {
		return "", ErrNoWorkspace
	}
	return root, nil
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
