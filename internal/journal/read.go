package journal

import (
	"context"
	"fmt"

	"github.com/roach88/vigil/internal/event"
)

// ReadRun returns every entry of a run ordered by seq ASC, id ASC COLLATE BINARY.
// Returns an empty slice (not nil) if the run has no entries.
func (j *Journal) ReadRun(ctx context.Context, token string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, run_token, seq, tag, payload, state, reserved
		FROM events
		WHERE run_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e   Entry
			tag string
		)
		if err := rows.Scan(&e.ID, &e.RunToken, &e.Seq, &tag, &e.Payload, &e.State, &e.Reserved); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Tag = event.Tag(tag)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// Runs lists recorded runs ordered by starting seq, then token.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT token, started_at_seq, engine_version
		FROM runs
		ORDER BY started_at_seq ASC, token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.Token, &r.StartedAtSeq, &r.EngineVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastSeq returns the highest seq recorded for a run, or 0.
func (j *Journal) LastSeq(ctx context.Context, token string) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_token = ?
	`, token).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
