package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/w3bucket/bucket-provider/internal/db"
)

var ErrIndexOutOfRange = errors.New("renewal index out of range")

type DB interface {
	GetCounter(name string) (uint64, error)
	GetRenewalCount(tokenID uint64) (uint64, error)
	GetTokenRenewal(tokenID, index uint64) (db.Renewal, error)
}

// Ledger is the append-only per-bucket renewal history. Ids come from a
// global monotonic counter, records are immutable and survive bucket burn.
type Ledger struct {
	db DB

	next uint64
	mx   sync.Mutex
}

func New(xdb DB) (*Ledger, error) {
	next, err := xdb.GetCounter(db.CounterRenewal)
	if err != nil {
		return nil, fmt.Errorf("failed to load renewal counter: %w", err)
	}
	return &Ledger{db: xdb, next: next}, nil
}

// Append stages the next renewal record on tx and returns it. The record,
// its per-token index entry and the advanced counter land with the caller's
// commit.
func (l *Ledger) Append(tx db.Tx, tokenID uint64, currency common.Address, unitPrice *big.Int, capacityUnits, periodUnits uint64, renewedBy common.Address, now time.Time) (db.Renewal, error) {
	index, err := l.db.GetRenewalCount(tokenID)
	if err != nil {
		return db.Renewal{}, fmt.Errorf("failed to read renewal count: %w", err)
	}

	l.mx.Lock()
	defer l.mx.Unlock()

	rec := db.Renewal{
		ID:            l.next,
		TokenID:       tokenID,
		Currency:      currency,
		UnitPrice:     new(big.Int).Set(unitPrice),
		CapacityUnits: capacityUnits,
		PeriodUnits:   periodUnits,
		RenewedBy:     renewedBy,
		RenewedAt:     now.Unix(),
	}

	tx.AppendRenewal(rec, index)
	tx.SetCounter(db.CounterRenewal, l.next+1)
	l.next++

	return rec, nil
}

// CountFor reports how many renewals were ever appended for the token,
// the initial mint included.
func (l *Ledger) CountFor(tokenID uint64) (uint64, error) {
	return l.db.GetRenewalCount(tokenID)
}

// ByIndex returns the index-th renewal of the token in append order.
func (l *Ledger) ByIndex(tokenID, index uint64) (db.Renewal, error) {
	count, err := l.db.GetRenewalCount(tokenID)
	if err != nil {
		return db.Renewal{}, fmt.Errorf("failed to read renewal count: %w", err)
	}
	if index >= count {
		return db.Renewal{}, fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfRange, index, count)
	}

	rec, err := l.db.GetTokenRenewal(tokenID, index)
	if err != nil {
		return db.Renewal{}, fmt.Errorf("failed to read renewal record: %w", err)
	}
	return rec, nil
}
