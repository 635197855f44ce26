// Package escalation implements the three-level summarization ladder
// (spec.md §4.C): given a block of messages and a target token ceiling,
// try preserve_details, then bullet_points, accepting overshoot up to a
// configured multiplier of the ceiling before moving to the next level.
// truncated is the deterministic, non-LLM terminal fallback and never
// fails.
package escalation
