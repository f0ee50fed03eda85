// Package store holds application state and delivers dispatched events.
//
// A Store owns a single state value S and a Reducer. Every dispatch runs the
// reducer, notifies state listeners, and then delivers the event to the
// subscription registry used by the saga scheduler:
//
//   - take subscriptions are one-shot and removed before they are woken
//   - watch subscriptions stay registered until cancelled
//
// Subscriptions are delivered in registration order. A subscription added
// while an event is being delivered does not see that event.
//
// Reserved router events (see event.IsReserved) reach reducers and listeners
// but never reach the registry.
//
// Dispatch is serialized. A dispatch issued while another is in progress
// (from a listener, or from a take wake-up) is queued and processed by the
// outer call before it returns.
package store
