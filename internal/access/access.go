package access

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnauthorized = errors.New("unauthorized")
var ErrHalted = errors.New("halted")

// Guard is the role and pause capability consumed by the engine. Admins are
// fixed at construction, the halted flag is toggled by the lifecycle service
// and persisted there.
type Guard struct {
	admins map[common.Address]struct{}
	halted bool
	mx     sync.RWMutex
}

func NewGuard(admins []common.Address, halted bool) *Guard {
	g := &Guard{admins: map[common.Address]struct{}{}, halted: halted}
	for _, a := range admins {
		g.admins[a] = struct{}{}
	}
	return g
}

func (g *Guard) RequireAuthorized(caller common.Address) error {
	g.mx.RLock()
	defer g.mx.RUnlock()

	if _, ok := g.admins[caller]; !ok {
		return ErrUnauthorized
	}
	return nil
}

func (g *Guard) IsHalted() bool {
	g.mx.RLock()
	defer g.mx.RUnlock()
	return g.halted
}

func (g *Guard) SetHalted(halted bool) {
	g.mx.Lock()
	defer g.mx.Unlock()
	g.halted = halted
}
