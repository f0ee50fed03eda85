package app

import (
	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/visibility"
)

// State is the root state of the application store.
type State struct {
	Visibility visibility.State `json:"visibility"`
	Router     RouterState      `json:"router"`
}

// RouterState tracks the last location the router reported.
type RouterState struct {
	Pathname string `json:"pathname"`
}

// Initial returns the application's initial state.
func Initial() State {
	return State{
		Visibility: visibility.Initial(),
		Router:     RouterState{Pathname: "/"},
	}
}

// Reduce is the root reducer. Each slice sees every event.
func Reduce(s State, ev event.Raw) State {
	s.Visibility = visibility.Reduce(s.Visibility, ev)
	if lc, ok := ev.(event.LocationChange); ok {
		s.Router.Pathname = lc.Pathname
	}
	return s
}
