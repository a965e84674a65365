// Package journal is a SQLite-backed diagnostic sink for monitor events.
//
// Every event published on a bus can be appended as one row, tagged with
// the run it belongs to. The journal is write-only from the engine's point
// of view: state itself is never restored from it.
//
// # Ordering
//
// All reads order by the event seq (logical clock), never by wall time:
// ORDER BY seq ASC, id ASC COLLATE BINARY. Filters are always bound as
// parameters.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
package journal
