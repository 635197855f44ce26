// Package compaction is the soft/hard threshold control loop (spec.md
// §4.D): it watches a session's running token total, groups unsummarized
// messages into blocks, runs them through the escalation ladder, and
// condenses leaf summaries up the DAG once a level accumulates enough
// uncondensed nodes. Soft pressure is handled off the caller's goroutine;
// hard pressure blocks the caller until pressure drops. At most one pass
// per session runs at a time.
package compaction
