package prices

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/w3bucket/bucket-provider/internal/db"
	"github.com/w3bucket/bucket-provider/internal/events"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

var ErrInvalidPrice = errors.New("invalid unit price")

type DB interface {
	ListUnitPrices() ([]db.UnitPrice, error)
	Begin() db.Tx
}

type Access interface {
	RequireAuthorized(caller common.Address) error
}

// Registry is the admin-settable currency -> unit price mapping. A currency
// with no configured price quotes as free, callers wanting to forbid one must
// set a positive price or reject it at the lifecycle layer.
type Registry struct {
	db     DB
	access Access
	bus    *ebus.Bus

	prices map[common.Address]*big.Int
	mx     sync.RWMutex
}

func NewRegistry(xdb DB, access Access, bus *ebus.Bus) (*Registry, error) {
	list, err := xdb.ListUnitPrices()
	if err != nil {
		return nil, fmt.Errorf("failed to load unit prices: %w", err)
	}

	r := &Registry{db: xdb, access: access, bus: bus, prices: map[common.Address]*big.Int{}}
	for _, p := range list {
		r.prices[p.Currency] = p.Price
	}
	return r, nil
}

// SetUnitPrices upserts every entry and emits UnitPriceUpdated per entry in
// input order, whether or not the stored value changed.
func (r *Registry) SetUnitPrices(caller common.Address, entries []db.UnitPrice) error {
	if err := r.access.RequireAuthorized(caller); err != nil {
		return err
	}

	for _, e := range entries {
		if e.Price == nil || e.Price.Sign() < 0 {
			return fmt.Errorf("%w: currency %s", ErrInvalidPrice, e.Currency.Hex())
		}
	}

	r.mx.Lock()
	tx := r.db.Begin()
	for _, e := range entries {
		tx.SetUnitPrice(e)
	}
	if err := tx.Commit(); err != nil {
		r.mx.Unlock()
		return fmt.Errorf("failed to store unit prices: %w", err)
	}
	for _, e := range entries {
		r.prices[e.Currency] = new(big.Int).Set(e.Price)
	}
	r.mx.Unlock()

	for _, e := range entries {
		r.bus.Publish(events.UnitPriceUpdated{Currency: e.Currency, Price: new(big.Int).Set(e.Price)})
	}
	return nil
}

// UnitPrices returns every configured entry, ordered by currency id so the
// view is stable for a given state snapshot.
func (r *Registry) UnitPrices() []db.UnitPrice {
	r.mx.RLock()
	defer r.mx.RUnlock()

	list := make([]db.UnitPrice, 0, len(r.prices))
	for cur, price := range r.prices {
		list = append(list, db.UnitPrice{Currency: cur, Price: new(big.Int).Set(price)})
	}
	sort.Slice(list, func(i, j int) bool {
		return bytes.Compare(list[i].Currency[:], list[j].Currency[:]) < 0
	})
	return list
}

// UnitPrice returns the configured price for the currency, or zero when the
// currency was never configured.
func (r *Registry) UnitPrice(currency common.Address) *big.Int {
	r.mx.RLock()
	defer r.mx.RUnlock()

	if p, ok := r.prices[currency]; ok {
		return new(big.Int).Set(p)
	}
	return new(big.Int)
}
