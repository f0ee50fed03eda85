// Package visibility bridges a push-based visibility signal into the store.
//
// The slice is State{Visible}, initially visible. The bridge task (Root)
// reacts to START_WATCHING_VISIBILITY by opening a channel over a Source and
// putting a visibility/setVisibility event for every value it yields. A new
// start replaces the running watch; STOP_WATCHING_VISIBILITY ends it. Either
// way the source subscription is released by the watch's cleanup.
package visibility
