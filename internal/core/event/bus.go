package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered mailbox for events produced outside the frame
// loop (window callbacks, the shader watcher). Post may be called from any
// goroutine; DispatchAll runs on the loop goroutine once per tick and hands
// everything posted since the previous call to the typed handlers.
type Bus struct {
	mu       sync.Mutex // guards back
	front    []any
	back     []any
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]any, 0, 32),
		back:     make([]any, 0, 32),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Post queues an event for the next DispatchAll.
func Post[T any](b *Bus, event T) {
	b.mu.Lock()
	b.back = append(b.back, event)
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T. Handlers are
// registered during startup, before the loop runs.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeFor[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers moves everything posted so far to the front buffer.
func (b *Bus) SwapBuffers() {
	clear(b.front)
	b.front = b.front[:0]
	b.mu.Lock()
	b.front, b.back = b.back, b.front
	b.mu.Unlock()
}

// DispatchAll swaps buffers and delivers the front buffer in post order.
// Events without a handler are dropped. It returns the number delivered.
func (b *Bus) DispatchAll() int {
	b.SwapBuffers()
	n := 0
	for _, ev := range b.front {
		hs := b.handlers[reflect.TypeOf(ev)]
		for _, h := range hs {
			h(ev)
		}
		if len(hs) > 0 {
			n++
		}
	}
	return n
}
