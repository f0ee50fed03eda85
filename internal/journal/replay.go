package journal

import (
	"context"
	"fmt"

	"github.com/roach88/vigil/internal/codec"
	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/store"
)

// Divergence is a recorded state that re-reduction did not reproduce.
type Divergence struct {
	Seq  int64     `json:"seq"`
	Tag  event.Tag `json:"tag"`
	Want string    `json:"want"`
	Got  string    `json:"got"`
}

// ReplayResult summarizes a replay.
type ReplayResult[S any] struct {
	Token       string       `json:"token"`
	Events      int          `json:"events"`
	Final       S            `json:"final"`
	Divergences []Divergence `json:"divergences"`
}

// Replayed reports whether every recorded state was reproduced.
func (r ReplayResult[S]) Replayed() bool {
	return len(r.Divergences) == 0
}

// Replay re-reduces a recorded run from initial and compares each resulting
// state with the recorded one. Tasks are not re-run: only the reducer is
// exercised, so puts appear as the recorded events they produced.
func Replay[S any](ctx context.Context, j *Journal, token string, initial S, reducer store.Reducer[S]) (ReplayResult[S], error) {
	result := ReplayResult[S]{Token: token, Final: initial, Divergences: []Divergence{}}

	entries, err := j.ReadRun(ctx, token)
	if err != nil {
		return result, fmt.Errorf("replay %s: %w", token, err)
	}

	state := initial
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ev, err := event.Decode(e.Tag, []byte(e.Payload))
		if err != nil {
			return result, fmt.Errorf("replay %s seq %d: %w", token, e.Seq, err)
		}
		state = reducer(state, ev)

		got, err := codec.Marshal(state)
		if err != nil {
			return result, fmt.Errorf("replay %s seq %d: %w", token, e.Seq, err)
		}
		if string(got) != e.State {
			result.Divergences = append(result.Divergences, Divergence{
				Seq:  e.Seq,
				Tag:  e.Tag,
				Want: e.State,
				Got:  string(got),
			})
		}
		result.Events++
	}
	result.Final = state
	return result, nil
}
