package resource

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentctx/internal/metrics"
)

// DefaultMaxResults bounds the matches of a single pattern.
const DefaultMaxResults = 1000

// GlobResolver expands one normalized pattern into absolute paths. Failures
// are logged and yield no paths so one bad pattern never aborts a resolution.
type GlobResolver struct {
	finder     Finder
	maxResults int
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewGlobResolver creates a resolver capped at maxResults matches per
// pattern; non-positive values select DefaultMaxResults. m may be nil.
func NewGlobResolver(finder Finder, maxResults int, m *metrics.Metrics, log zerolog.Logger) *GlobResolver {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &GlobResolver{finder: finder, maxResults: maxResults, metrics: m, log: log}
}

// Resolve returns up to maxResults absolute paths matching pattern below root.
func (g *GlobResolver) Resolve(ctx context.Context, root, pattern string) []string {
	paths, err := g.finder.FindFiles(ctx, root, pattern, g.maxResults)
	if err != nil {
		g.log.Warn().Err(err).Str("pattern", pattern).Msg("failed to find files")
		if g.metrics != nil {
			g.metrics.PatternFailures.Inc()
		}
		return nil
	}
	if len(paths) > g.maxResults {
		g.log.Debug().
			Str("pattern", pattern).
			Int("matches", len(paths)).
			Int("limit", g.maxResults).
			Msg("truncating matches")
		paths = paths[:g.maxResults]
	}
	return paths
}
