// Package catalog holds the connection, tag and rule definitions that drive
// monitoring and alarming.
//
// Definitions are edited through the management API and read by the monitor
// and engine packages. The catalog itself has no runtime behaviour: starting
// or stopping sessions in response to edits is the caller's job.
//
// Two Store implementations are provided:
//   - SQLiteStore, on the embedded database with migrations
//   - PostgresStore, on a pgx pool for installations that share definitions
//
// A Rule's logic is a closed sum type with exactly two cases, StaticLogic and
// CompareLogic. Rows whose columns do not form either case are still loaded,
// with a nil Logic, so the evaluator can report and skip them.
package catalog
