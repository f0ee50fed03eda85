// Package journal records dispatched events in an append-only SQLite log.
//
// A process run is identified by a token. For every dispatch the journal
// stores the store's logical seq, the event tag, the canonical JSON payload
// and the canonical JSON of the resulting state. Entry IDs are content
// addressed (codec.EventID), so appending the same entry twice is a no-op.
//
// Reads order by seq and then id with binary collation; wall time is never
// stored. Replay feeds a recorded run back through a reducer and reports
// every seq whose state it could not reproduce.
//
// Connections run in WAL mode with synchronous=NORMAL, a 5s busy timeout and
// foreign keys enforced.
package journal
