// Package event defines the closed event catalog and the pattern matcher used
// by the effect layer.
//
// The store carries a raw stream of [Raw] values. Only values that also
// implement [Event] can be taken or put by tasks; [Event] is sealed, so the
// set of takeable events is exactly the catalog declared in this package.
// Router events share the raw stream but are reserved: reducers and
// listeners see them, tasks never do.
//
// # Patterns
//
// A [Pattern] is a set of tags (or the wildcard) plus a static result type:
//
//	event.Of[event.SetVisibility]()  // narrows to SetVisibility
//	event.AnyOf(startP, stopP)        // narrows to Event
//	event.Any()                       // narrows to Event
//
// Matching only compares tags. Payload content never participates.
package event
