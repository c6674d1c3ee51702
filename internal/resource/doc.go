// Package resource resolves an agent's resource patterns against a workspace
// and caches the display-ready result.
//
// # Pipeline
//
// A resolution runs the agent's patterns through these stages:
//
//   - [Normalize] strips the "file://" scheme from each pattern.
//   - [BatchResolver] splits patterns into fixed-size batches. Patterns inside a
//     batch are resolved concurrently with [GlobResolver] and every match is
//     stat'ed concurrently with [StatProbe]. Batches run one after another and
//     a batch that fails systemically is retried with linear backoff.
//   - [BuildFlatList] groups the records under one header per pattern.
//   - [Cache] stores the list under a key derived from the agent name and its
//     pattern list, bounded by size (oldest insertion evicted first) and TTL.
//
// [Service] ties the stages together and owns the cache, a background sweep
// of expired entries, and the per-agent watch sets installed by
// [ChangeWatcher]. A filesystem change matching any watched pattern drops the
// owning agent's cache entry so the next Resolve recomputes it.
//
// # Failure handling
//
// A bad or unreadable pattern contributes zero records and is logged. Only
// validation failures, batches that exhaust their retries, and timeouts are
// returned to the caller; [Classify] maps those errors to an [ErrorKind].
package resource
