// Package retrieval implements the read-only tools an agent uses to walk
// back through context a compaction pass condensed away: status, describe,
// expand, and grep (spec.md §4.G). Every call re-reads the store directly;
// nothing here is cached, and nothing here mutates state.
package retrieval
