// Package store is the immutable message log and summary DAG at the
// center of the context-management engine. Every message and summary is
// append-only: nothing is ever edited or deleted, only marked as
// consumed by a higher-level summary.
//
// Store is backed by SQLite (modernc.org/sqlite, no cgo) through GORM,
// with FTS5 companion tables kept current by insert/update/delete
// triggers rather than rebuilt lazily on search.
package store
