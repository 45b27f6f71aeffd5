package ecs

import (
	"fmt"
	"reflect"
)

// MaxEvents bounds the number of distinct event payload types per world.
const MaxEvents = 128

// EventType is the id of an event payload type within one world.
type EventType uint8

type eventRegistry struct {
	ids   map[reflect.Type]EventType
	names []string
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{ids: make(map[reflect.Type]EventType, 16)}
}

func (r *eventRegistry) typeOf(rt reflect.Type) EventType {
	if t, ok := r.ids[rt]; ok {
		return t
	}
	if len(r.names) >= MaxEvents {
		panic(fmt.Sprintf("ecs: cannot register event %s: event limit %d reached", rt, MaxEvents))
	}
	t := EventType(len(r.names))
	r.ids[rt] = t
	r.names = append(r.names, rt.String())
	return t
}

type inboxEntry struct {
	typ     EventType
	payload any
}

// Inbox is a bounded per-system queue of pending events, in send order.
// Several events of one type may be pending at once.
type Inbox struct {
	entries  []inboxEntry
	capacity int
	dropped  int
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{
		entries:  make([]inboxEntry, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

// DefaultInboxCapacity is used when a world is built without WithInboxCapacity.
const DefaultInboxCapacity = 256

// Push appends an event. A full inbox drops it and reports false.
func (in *Inbox) Push(t EventType, payload any) bool {
	if len(in.entries) >= in.capacity {
		in.dropped++
		return false
	}
	in.entries = append(in.entries, inboxEntry{typ: t, payload: payload})
	return true
}

func (in *Inbox) Has(t EventType) bool {
	for _, e := range in.entries {
		if e.typ == t {
			return true
		}
	}
	return false
}

func (in *Inbox) Each(t EventType, fn func(payload any)) {
	for _, e := range in.entries {
		if e.typ == t {
			fn(e.payload)
		}
	}
}

// Clear removes pending events of type t and keeps the rest in order.
func (in *Inbox) Clear(t EventType) {
	kept := in.entries[:0]
	for _, e := range in.entries {
		if e.typ != t {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(in.entries); i++ {
		in.entries[i] = inboxEntry{}
	}
	in.entries = kept
}

// Drain discards everything and returns how many events were pending.
func (in *Inbox) Drain() int {
	n := len(in.entries)
	clear(in.entries)
	in.entries = in.entries[:0]
	return n
}

func (in *Inbox) Len() int { return len(in.entries) }

// Dropped counts events rejected because the inbox was full.
func (in *Inbox) Dropped() int { return in.dropped }
