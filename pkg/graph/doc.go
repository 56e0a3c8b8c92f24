/*
Package graph resolves and executes task graphs with on-disk memoization.

The resolver walks the futures reachable from a root task, computes each
origin's canonical fingerprint, and deduplicates instances: two futures with
equal fingerprints denote the same node. Instance ids come from the class's
persistent id table, so resolution is reproducible across process restarts.
Traversal is depth-first with slot names visited in sorted order, which keeps
id assignment stable. Cycles are rejected before any work is scheduled.

Staleness is decided per node from filesystem timestamps: a node reruns when
its result is missing, older than any upstream result, older than its
class's source token, or when any upstream reruns. Everything else is served
from cache.

# Execution

The scheduler dispatches ready nodes onto a bounded worker pool:

	resolver ──▶ DAG ──▶ ready queue ──▶ workers ──▶ runner
	                        ▲                 │
	                        └── promotion ◀───┘

Every task class carries a channel tuple (its class name plus any declared
tags); a node runs only while holding one permit in each of its channels, so
a rate limit on any channel bounds concurrency across all classes sharing it.

A task failure stops dispatch, drains in-flight nodes, and surfaces as a
FailedTaskError naming the first failure. Downstream nodes of a failed node
are skipped, never run. Logs and scratch data of failed tasks stay on disk
for post-mortem.

# Usage

	value, err := graph.Run(ctx, root,
	    graph.WithCacheRoot("/var/cache/pipelines"),
	    graph.WithRateLimits(types.RateLimits{"gpu": 1}),
	)
*/
package graph
