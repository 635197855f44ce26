// Package migration applies the engine's schema to the embedded SQLite
// database.
//
// Migrations are plain .sql files embedded from migrations/, named
// "<version>_<name>.sql" and applied in version order inside one
// transaction each. The applied version is tracked in a meta table;
// there is no Down — the schema only grows, and a corrupted or
// unreadable database is a store-unavailable condition, not something a
// migration rollback would fix.
package migration
