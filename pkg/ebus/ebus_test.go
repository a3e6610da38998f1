package ebus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type ping struct{ N int }
type pong struct{ N int }

func TestPublishTyped(t *testing.T) {
	bus := New()

	var pings []int
	var pongs []int
	Subscribe(bus, func(ev ping) { pings = append(pings, ev.N) })
	Subscribe(bus, func(ev ping) { pings = append(pings, ev.N*10) })
	Subscribe(bus, func(ev pong) { pongs = append(pongs, ev.N) })

	bus.Publish(ping{N: 1})
	bus.Publish(pong{N: 2})
	bus.Publish(ping{N: 3})

	assert.Equal(t, []int{1, 10, 3, 30}, pings)
	assert.Equal(t, []int{2}, pongs)
}

func TestPublishNoSubscribers(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() {
		bus.Publish(ping{N: 1})
	})
}
