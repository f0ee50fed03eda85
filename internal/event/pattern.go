package event

import (
	"fmt"
	"reflect"
)

// Matcher is the untyped view of a pattern, used by the store's
// subscription registry.
type Matcher interface {
	Matches(ev Event) bool
}

// TagSet is implemented by every Pattern and lets patterns be combined.
type TagSet interface {
	tagSet() (tags []Tag, wildcard bool)
}

// Pattern selects catalog events by tag. E is the type a matched event
// narrows to: the concrete event type for single-tag patterns, Event for
// sets and the wildcard.
type Pattern[E Event] struct {
	tags     []Tag
	wildcard bool
}

// Of returns the single-tag pattern for E. E must be a concrete catalog type.
func Of[E Event]() Pattern[E] {
	var zero E
	if any(zero) == nil {
		panic("event: Of requires a concrete event type")
	}
	return Pattern[E]{tags: []Tag{zero.Tag()}}
}

// Any returns the wildcard pattern.
func Any() Pattern[Event] {
	return Pattern[Event]{wildcard: true}
}

// AnyOf returns the pattern matching any tag of the given patterns. The
// result narrows to Event. A wildcard member makes the whole set a wildcard;
// an empty set matches nothing.
func AnyOf(sets ...TagSet) Pattern[Event] {
	var p Pattern[Event]
	seen := make(map[Tag]bool)
	for _, s := range sets {
		tags, wildcard := s.tagSet()
		if wildcard {
			return Any()
		}
		for _, tag := range tags {
			if !seen[tag] {
				seen[tag] = true
				p.tags = append(p.tags, tag)
			}
		}
	}
	return p
}

func (p Pattern[E]) tagSet() ([]Tag, bool) {
	return p.tags, p.wildcard
}

// Wildcard reports whether p matches every catalog event.
func (p Pattern[E]) Wildcard() bool {
	return p.wildcard
}

// Tags returns a copy of the tags p matches. Nil for the wildcard.
func (p Pattern[E]) Tags() []Tag {
	if p.wildcard {
		return nil
	}
	out := make([]Tag, len(p.tags))
	copy(out, p.tags)
	return out
}

// Matches reports whether ev's tag is selected by p.
func (p Pattern[E]) Matches(ev Event) bool {
	if ev == nil {
		return false
	}
	if p.wildcard {
		return true
	}
	tag := ev.Tag()
	for _, t := range p.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Narrow returns ev as E when p matches it. A matched event of the wrong Go
// type panics with *PatternMismatchError.
func (p Pattern[E]) Narrow(ev Event) (E, bool) {
	var zero E
	if !p.Matches(ev) {
		return zero, false
	}
	typed, ok := ev.(E)
	if !ok {
		panic(&PatternMismatchError{
			Tag:  ev.Tag(),
			Want: reflect.TypeOf((*E)(nil)).Elem().String(),
			Got:  fmt.Sprintf("%T", ev),
		})
	}
	return typed, true
}

// String renders p for logs.
func (p Pattern[E]) String() string {
	if p.wildcard {
		return "*"
	}
	if len(p.tags) == 1 {
		return string(p.tags[0])
	}
	return fmt.Sprintf("%v", p.tags)
}
