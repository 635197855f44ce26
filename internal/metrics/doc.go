// Package metrics collects the engine's Prometheus metrics across six
// domains: store operations, compaction passes and escalation outcomes,
// DAG shape, LLM call latency/retries, capture throughput, and worker
// pool activity.
//
// Collector registers every metric through promauto on construction, so
// callers never manage a Registry directly. Each NewCollector call must
// use a distinct namespace — the default Prometheus registry panics on a
// duplicate metric name.
package metrics
