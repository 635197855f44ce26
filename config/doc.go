// Package config loads the context-management engine's configuration:
// database location and pool sizing, the soft/hard token thresholds, the
// compaction block-size and condensation-fanout knobs, capture's blob
// diversion threshold, retrieval pagination/regex limits, the LLM backend,
// and logging. Values come from defaults, overlaid by an optional YAML
// file, overlaid by LCM_-prefixed environment variables.
package config
