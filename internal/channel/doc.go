// Package channel turns push-based sources into pollable queues.
//
// A [Channel] is an unbounded FIFO with a closed flag. Producers call Put from
// any goroutine and never block; consumers Poll, and register a one-shot
// readiness callback with Watch when the channel is empty. The scheduler in
// package saga builds its blocking take on top of Poll and Watch.
//
// [Open] adapts a subscribe/unsubscribe source: the emit callback handed to
// the source enqueues into the channel, and Close releases the subscription
// exactly once.
//
// Close semantics:
//   - Close is idempotent.
//   - Values buffered before Close are still delivered; after that Poll
//     returns ErrClosed.
//   - Put after Close drops the value and returns false.
package channel
