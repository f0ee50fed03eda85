package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Tag identifies an event kind on the store's raw stream.
type Tag string

// ReservedPrefix marks tags owned by the navigation/router subsystem.
const ReservedPrefix = "@@router/"

// Raw is anything that may travel on the store's event stream.
type Raw interface {
	Tag() Tag
}

// Event is a member of the closed catalog. Only catalog events can be taken
// or put by tasks.
type Event interface {
	Raw
	catalogEvent()
}

// StartWatchingVisibility asks the visibility bridge to (re)open its source.
type StartWatchingVisibility struct{}

// StopWatchingVisibility ends the current watch cycle.
type StopWatchingVisibility struct{}

// SetVisibility records a visibility change.
type SetVisibility struct {
	Visible bool `json:"visible"`
}

// LocationChange is dispatched by the router after navigation.
type LocationChange struct {
	Pathname string `json:"pathname"`
}

// CallHistoryMethod asks the router to call a history method.
type CallHistoryMethod struct {
	Method string   `json:"method"`
	Args   []string `json:"args,omitempty"`
}

const (
	TagStartWatchingVisibility Tag = "START_WATCHING_VISIBILITY"
	TagStopWatchingVisibility  Tag = "STOP_WATCHING_VISIBILITY"
	TagSetVisibility           Tag = "visibility/setVisibility"
	TagLocationChange          Tag = ReservedPrefix + "LOCATION_CHANGE"
	TagCallHistoryMethod       Tag = ReservedPrefix + "CALL_HISTORY_METHOD"
)

func (StartWatchingVisibility) Tag() Tag { return TagStartWatchingVisibility }
func (StopWatchingVisibility) Tag() Tag  { return TagStopWatchingVisibility }
func (SetVisibility) Tag() Tag           { return TagSetVisibility }
func (LocationChange) Tag() Tag          { return TagLocationChange }
func (CallHistoryMethod) Tag() Tag       { return TagCallHistoryMethod }

func (StartWatchingVisibility) catalogEvent() {}
func (StopWatchingVisibility) catalogEvent()  {}
func (SetVisibility) catalogEvent()           {}

// registry maps every known tag to its single Go type.
var registry = map[Tag]reflect.Type{}

func init() {
	register[StartWatchingVisibility]()
	register[StopWatchingVisibility]()
	register[SetVisibility]()
	registerReserved[LocationChange]()
	registerReserved[CallHistoryMethod]()
}

func register[E Event]() {
	var zero E
	tag := zero.Tag()
	if IsReserved(tag) {
		panic(fmt.Sprintf("event: catalog tag %q uses reserved prefix %q", tag, ReservedPrefix))
	}
	add(tag, reflect.TypeOf(zero))
}

func registerReserved[R Raw]() {
	var zero R
	tag := zero.Tag()
	if !IsReserved(tag) {
		panic(fmt.Sprintf("event: router tag %q must use prefix %q", tag, ReservedPrefix))
	}
	add(tag, reflect.TypeOf(zero))
}

func add(tag Tag, typ reflect.Type) {
	if prev, ok := registry[tag]; ok {
		panic(fmt.Sprintf("event: tag %q registered twice (%s, %s)", tag, prev, typ))
	}
	registry[tag] = typ
}

// IsReserved reports whether tag belongs to the router subsystem.
func IsReserved(tag Tag) bool {
	return strings.HasPrefix(string(tag), ReservedPrefix)
}

// IsCatalog reports whether tag names a takeable catalog event.
func IsCatalog(tag Tag) bool {
	_, ok := registry[tag]
	return ok && !IsReserved(tag)
}

// Lookup returns the Go type registered for tag.
func Lookup(tag Tag) (reflect.Type, bool) {
	typ, ok := registry[tag]
	return typ, ok
}

// Tags returns all registered tags, sorted. Reserved tags are included only
// when withReserved is true.
func Tags(withReserved bool) []Tag {
	tags := make([]Tag, 0, len(registry))
	for tag := range registry {
		if !withReserved && IsReserved(tag) {
			continue
		}
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Decode rebuilds a registered event from its tag and JSON payload.
// An empty payload decodes to the zero value.
func Decode(tag Tag, payload []byte) (Raw, error) {
	typ, ok := registry[tag]
	if !ok {
		return nil, &UnknownTagError{Tag: tag}
	}
	ptr := reflect.New(typ)
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", tag, err)
		}
	}
	raw, ok := ptr.Elem().Interface().(Raw)
	if !ok {
		return nil, fmt.Errorf("decode %s: %s does not implement Raw", tag, typ)
	}
	return raw, nil
}
