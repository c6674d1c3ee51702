package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/agentctx/internal/metrics"
)

const (
	// DefaultBatchSize is the number of patterns resolved together.
	DefaultBatchSize = 10
	// DefaultRetryLimit is the number of retries after a batch's first attempt.
	DefaultRetryLimit = 2
	// DefaultRetryStep is the linear backoff unit between batch attempts.
	DefaultRetryStep = time.Second

	// statConcurrency bounds in-flight stat calls per pattern.
	statConcurrency = 64
)

// BatchConfig configures a BatchResolver. Zero values select defaults.
type BatchConfig struct {
	BatchSize  int
	RetryLimit int
	Backoff    BackoffFunc
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// BatchResolver resolves many patterns into FileRecords. Batches run
// sequentially; the patterns of a batch, and the matches of each pattern,
// are resolved concurrently.
type BatchResolver struct {
	globs      *GlobResolver
	probe      *StatProbe
	stater     Stater
	batchSize  int
	retryLimit int
	backoff    BackoffFunc
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewBatchResolver creates a BatchResolver. stater is used to verify the
// search root before each batch attempt.
func NewBatchResolver(globs *GlobResolver, probe *StatProbe, stater Stater, cfg BatchConfig) *BatchResolver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.Backoff == nil {
		cfg.Backoff = LinearBackoff(DefaultRetryStep)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &BatchResolver{
		globs:      globs,
		probe:      probe,
		stater:     stater,
		batchSize:  cfg.BatchSize,
		retryLimit: cfg.RetryLimit,
		backoff:    cfg.Backoff,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
}

// Plan splits valid patterns into the batches ResolveAll will run.
func (b *BatchResolver) Plan(patterns []string) [][]string {
	var batches [][]string
	for start := 0; start < len(patterns); start += b.batchSize {
		end := min(start+b.batchSize, len(patterns))
		batches = append(batches, patterns[start:end])
	}
	return batches
}

// ResolveAll resolves every valid pattern below root. Empty patterns are
// dropped. A pattern that fails contributes no records; the call fails
// only when a batch exhausts its retries (*ProcessingError) or ctx ends.
func (b *BatchResolver) ResolveAll(ctx context.Context, root string, patterns []string) ([]FileRecord, error) {
	var all []FileRecord
	for i, batch := range b.Plan(ValidPatterns(patterns, b.log)) {
		n := i + 1
		records, attempts, err := withRetry(ctx, b.retryLimit, b.backoff,
			func(int) ([]FileRecord, error) {
				return b.resolveBatch(ctx, root, batch)
			},
			func(err error, attempt int, next time.Duration) {
				b.metrics.BatchRetries.Inc()
				b.log.Warn().Err(err).
					Int("batch", n).
					Int("attempt", attempt).
					Dur("wait", next).
					Msg("batch processing failed, retrying")
			},
		)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			b.metrics.BatchFailures.Inc()
			b.log.Error().Err(err).Int("batch", n).Int("attempts", attempts).Msg("batch processing failed")
			return nil, &ProcessingError{Batch: n, Patterns: batch, Attempts: attempts, Err: err}
		}

		b.metrics.Batches.Inc()
		b.log.Debug().Int("batch", n).Int("patterns", len(batch)).Int("records", len(records)).Msg("batch resolved")
		all = append(all, records...)
	}
	b.metrics.FilesResolved.Add(float64(len(all)))
	return all, nil
}

// resolveBatch is one attempt at a batch. It fails only for systemic
// problems: an unusable search root or a finished context.
func (b *BatchResolver) resolveBatch(ctx context.Context, root string, batch []string) ([]FileRecord, error) {
	if err := b.checkRoot(root); err != nil {
		return nil, err
	}

	perPattern := make([][]FileRecord, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, pattern := range batch {
		g.Go(func() error {
			perPattern[i] = b.resolvePattern(gctx, root, pattern)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, backoff.Permanent(err)
	}

	var records []FileRecord
	for _, recs := range perPattern {
		records = append(records, recs...)
	}
	return records, nil
}

// resolvePattern expands and stats a single pattern.
func (b *BatchResolver) resolvePattern(ctx context.Context, root, pattern string) []FileRecord {
	paths := b.globs.Resolve(ctx, root, Normalize(pattern))
	if len(paths) == 0 {
		return nil
	}

	records := make([]FileRecord, len(paths))
	var g errgroup.Group
	g.SetLimit(statConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			records[i] = b.probe.Probe(ctx, root, path, pattern)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (b *BatchResolver) checkRoot(root string) error {
	info, err := b.stater.Stat(root)
	if err != nil {
		return fmt.Errorf("search root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("search root %s is not a directory", root)
	}
	return nil
}
