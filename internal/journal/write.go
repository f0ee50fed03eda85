package journal

import (
	"context"
	"fmt"

	"github.com/roach88/vigil/internal/codec"
	"github.com/roach88/vigil/internal/event"
)

// Run is one recorded process run.
type Run struct {
	Token         string
	StartedAtSeq  int64
	EngineVersion string
}

// Entry is one dispatched event as stored in the journal.
// Payload and State hold canonical JSON.
type Entry struct {
	ID       string
	RunToken string
	Seq      int64
	Tag      event.Tag
	Payload  string
	State    string
	Reserved bool
}

// NewEntry builds the journal entry for a dispatched event and the state the
// reducer produced for it.
func NewEntry(runToken string, seq int64, ev event.Raw, state any) (Entry, error) {
	payload, err := codec.Marshal(ev)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal %s payload: %w", ev.Tag(), err)
	}
	stateJSON, err := codec.Marshal(state)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal state at seq %d: %w", seq, err)
	}
	id, err := codec.EventID(runToken, seq, string(ev.Tag()), payload)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:       id,
		RunToken: runToken,
		Seq:      seq,
		Tag:      ev.Tag(),
		Payload:  string(payload),
		State:    string(stateJSON),
		Reserved: event.IsReserved(ev.Tag()),
	}, nil
}

// BeginRun records a new run. Beginning the same token twice is a no-op.
func (j *Journal) BeginRun(ctx context.Context, run Run) error {
	if run.Token == "" {
		return fmt.Errorf("begin run: empty token")
	}
	if run.EngineVersion == "" {
		run.EngineVersion = EngineVersion
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (token, started_at_seq, engine_version)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, run.Token, run.StartedAtSeq, run.EngineVersion)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Append inserts an entry. Duplicate IDs and duplicate (run, seq) pairs are
// silently ignored. The run must have been begun.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (id, run_token, seq, tag, payload, state, reserved)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, e.ID, e.RunToken, e.Seq, string(e.Tag), e.Payload, e.State, e.Reserved)
	if err != nil {
		return fmt.Errorf("append seq %d: %w", e.Seq, err)
	}
	return nil
}
