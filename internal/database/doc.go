// Package database opens the engine's embedded SQLite database through
// GORM and the pure-Go modernc.org/sqlite driver (via the glebarez/sqlite
// dialector), and manages the resulting connection pool.
//
// PoolManager wraps the GORM handle with DB(), Ping(), Stats(), Close(),
// and transaction helpers (WithTransaction, WithTransactionRetry) that
// retry on SQLite's transient lock-contention errors. A background health
// check loop pings the database on an interval and logs failures through
// zap.
package database
