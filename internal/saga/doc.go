// Package saga runs cooperative tasks that react to store events.
//
// A Scheduler owns a tree of tasks. Each task body runs on its own goroutine
// but only while it holds the scheduler baton, so at most one task body
// executes at any moment. A task gives the baton back when it reaches a
// suspension point:
//
//   - Take waits for the next matching store event
//   - TakeChan waits for a channel value or close
//   - Join waits for a child task to finish
//
// Put, PutResolve and Cancel are checkpoints: they do not suspend, but a
// task that was cancelled while running unwinds there.
//
// Standing registrations (TakeEvery, TakeLatest, Throttle) spawn worker
// tasks as children of the calling task. A task with a live registration or
// live children does not finish on its own.
//
// Cancellation is depth-first, children before parents. A suspended task
// unwinds immediately; its goroutine exits via runtime.Goexit, so deferred
// calls in the body run, then the task's cleanup stack (Task.Defer) runs in
// LIFO order. Cleanups run exactly once on every exit path.
//
// A failing task (error return or panic) fails its parent with
// CHILD_FAILED, which cancels the parent's remaining children. A failed
// root task goes to the Reporter.
package saga
