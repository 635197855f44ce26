// Package injection builds the reconstruction block a host emits into a
// freshly compacted conversation (spec.md §4.F): a preamble, the content
// of every top-level summary in transcript order, and a short menu of
// retrieval verbs. It never reads or writes anything beyond the store's
// current top-level summaries.
package injection
