package ebus

import (
	"reflect"
	"sync"
)

// Bus is a synchronous in-process event bus. Handlers run on the publisher's
// goroutine in subscription order and must not block for long.
type Bus struct {
	subs map[reflect.Type][]func(any)
	mx   sync.RWMutex
}

func New() *Bus {
	return &Bus{subs: map[reflect.Type][]func(any){}}
}

func (b *Bus) Publish(event any) {
	b.mx.RLock()
	handlers := b.subs[reflect.TypeOf(event)]
	b.mx.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Subscribe registers fn for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	var zero T
	t := reflect.TypeOf(zero)

	b.mx.Lock()
	defer b.mx.Unlock()
	b.subs[t] = append(b.subs[t], func(ev any) {
		fn(ev.(T))
	})
}
