package service

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/w3bucket/bucket-provider/internal/access"
	"github.com/w3bucket/bucket-provider/internal/db"
	"github.com/w3bucket/bucket-provider/internal/events"
	"github.com/w3bucket/bucket-provider/internal/ledger"
	"github.com/w3bucket/bucket-provider/internal/prices"
	"github.com/w3bucket/bucket-provider/internal/settle"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

var ErrInvalidUnits = errors.New("capacity and period units must be positive")

type DB interface {
	Begin() db.Tx
}

// TokenRegistry is the bucket token capability: ownership, enumeration and
// the frozen metadata URI live behind it, the lifecycle never reimplements
// them.
type TokenRegistry interface {
	Mint(tx db.Tx, owner common.Address, uri string, totalCapacity uint64, now time.Time) (db.Token, error)
	Burn(tx db.Tx, id uint64) error
	Get(id uint64) (db.Token, error)
	OwnerOf(id uint64) (common.Address, error)
	URI(id uint64) (string, error)
	ExistsActive(id uint64) bool
}

// Halt is the pause capability. Halted gates mint and renew only, burn and
// reads stay available.
type Halt interface {
	IsHalted() bool
	SetHalted(halted bool)
}

type Access interface {
	RequireAuthorized(caller common.Address) error
}

// Service orchestrates the bucket lifecycle: Unminted -> Active -> Burned.
// Every mutating operation runs to completion under one mutex, observing and
// committing state at a single serialization point.
type Service struct {
	db      DB
	prices  *prices.Registry
	settler *settle.Settler
	ledger  *ledger.Ledger
	tokens  TokenRegistry
	guard   Access
	halt    Halt
	bus     *ebus.Bus

	// megabytes of bucket capacity granted per capacity unit
	capacityUnitMB uint64
	now            func() time.Time

	mx sync.Mutex
}

func NewService(xdb DB, priceReg *prices.Registry, settler *settle.Settler, ldgr *ledger.Ledger, tokens TokenRegistry, guard Access, halt Halt, capacityUnitMB uint64, bus *ebus.Bus) *Service {
	return &Service{
		db:             xdb,
		prices:         priceReg,
		settler:        settler,
		ledger:         ldgr,
		tokens:         tokens,
		guard:          guard,
		halt:           halt,
		bus:            bus,
		capacityUnitMB: capacityUnitMB,
		now:            time.Now,
	}
}

// Mint settles payment for a fresh bucket, creates the token with a frozen
// URI and records the purchase as renewal #0. Payment failure aborts the
// whole operation with no state change.
func (s *Service) Mint(caller, owner common.Address, uri string, currency common.Address, capacityUnits, periodUnits uint64, attachedNative *big.Int) (db.Token, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.halt.IsHalted() {
		return db.Token{}, access.ErrHalted
	}
	if capacityUnits == 0 || periodUnits == 0 {
		return db.Token{}, ErrInvalidUnits
	}
	totalCapacity, err := s.totalCapacity(capacityUnits)
	if err != nil {
		return db.Token{}, err
	}

	unitPrice := s.prices.UnitPrice(currency)
	amount, err := s.settler.Quote(currency, capacityUnits, periodUnits)
	if err != nil {
		return db.Token{}, err
	}

	tx := s.db.Begin()
	if err = s.settler.Settle(tx, caller, currency, amount, attachedNative); err != nil {
		return db.Token{}, err
	}

	now := s.now()
	tok, err := s.tokens.Mint(tx, owner, uri, totalCapacity, now)
	if err != nil {
		return db.Token{}, fmt.Errorf("failed to mint token: %w", err)
	}

	if _, err = s.ledger.Append(tx, tok.ID, currency, unitPrice, capacityUnits, periodUnits, caller, now); err != nil {
		return db.Token{}, fmt.Errorf("failed to append renewal record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		// payment already moved, a commit failure here means broken storage
		log.Error().Err(err).Uint64("token", tok.ID).Msg("failed to commit mint, storage is inconsistent")
		return db.Token{}, fmt.Errorf("failed to commit mint: %w", err)
	}

	s.bus.Publish(events.BucketMinted{
		Owner:         owner,
		TokenID:       tok.ID,
		URI:           uri,
		TotalCapacity: totalCapacity,
		Currency:      currency,
		AmountPaid:    amount,
	})
	s.bus.Publish(events.PermanentURI{URI: uri, TokenID: tok.ID})

	return tok, nil
}

// RenewBucket extends an active bucket. Any payer may renew any bucket,
// payment gates the action, not ownership.
func (s *Service) RenewBucket(caller common.Address, tokenID uint64, currency common.Address, capacityUnits, periodUnits uint64, attachedNative *big.Int) (db.Renewal, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.halt.IsHalted() {
		return db.Renewal{}, access.ErrHalted
	}
	if capacityUnits == 0 || periodUnits == 0 {
		return db.Renewal{}, ErrInvalidUnits
	}
	if _, err := s.tokens.OwnerOf(tokenID); err != nil {
		return db.Renewal{}, err
	}

	unitPrice := s.prices.UnitPrice(currency)
	amount, err := s.settler.Quote(currency, capacityUnits, periodUnits)
	if err != nil {
		return db.Renewal{}, err
	}

	tx := s.db.Begin()
	if err = s.settler.Settle(tx, caller, currency, amount, attachedNative); err != nil {
		return db.Renewal{}, err
	}

	rec, err := s.ledger.Append(tx, tokenID, currency, unitPrice, capacityUnits, periodUnits, caller, s.now())
	if err != nil {
		return db.Renewal{}, fmt.Errorf("failed to append renewal record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		log.Error().Err(err).Uint64("token", tokenID).Msg("failed to commit renewal, storage is inconsistent")
		return db.Renewal{}, fmt.Errorf("failed to commit renewal: %w", err)
	}

	s.bus.Publish(events.BucketRenewed{
		TokenID:       tokenID,
		Currency:      currency,
		UnitPrice:     unitPrice,
		CapacityUnits: capacityUnits,
		PeriodUnits:   periodUnits,
		RenewedBy:     caller,
	})

	return rec, nil
}

// Burn retires a bucket. Only the owner may burn, renewal history is kept.
// Burn stays available while halted.
func (s *Service) Burn(caller common.Address, tokenID uint64) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	owner, err := s.tokens.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != caller {
		return access.ErrUnauthorized
	}

	tx := s.db.Begin()
	if err = s.tokens.Burn(tx, tokenID); err != nil {
		return fmt.Errorf("failed to burn token: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit burn: %w", err)
	}

	log.Info().Uint64("token", tokenID).Str("owner", owner.Hex()).Msg("bucket burned")
	return nil
}

// Pause disables mint and renew for every caller until Unpause. The halted
// flag is persisted so a restart comes back halted.
func (s *Service) Pause(caller common.Address) error {
	return s.setHalted(caller, true)
}

func (s *Service) Unpause(caller common.Address) error {
	return s.setHalted(caller, false)
}

func (s *Service) setHalted(caller common.Address, halted bool) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if err := s.guard.RequireAuthorized(caller); err != nil {
		return err
	}

	tx := s.db.Begin()
	tx.SetHalted(halted)
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to store halted state: %w", err)
	}
	s.halt.SetHalted(halted)

	log.Info().Bool("halted", halted).Str("by", caller.Hex()).Msg("halted state changed")
	return nil
}

func (s *Service) Halted() bool {
	return s.halt.IsHalted()
}

// SetUnitPrices and Withdraw run under the same serialization point as the
// lifecycle operations.
func (s *Service) SetUnitPrices(caller common.Address, entries []db.UnitPrice) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.prices.SetUnitPrices(caller, entries)
}

func (s *Service) Withdraw(caller, to, currency common.Address) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.settler.Withdraw(caller, to, currency)
}

// Reads take the same lock as the mutating operations, so every view is a
// consistent snapshot of committed state.
func (s *Service) UnitPrices() []db.UnitPrice {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.prices.UnitPrices()
}

func (s *Service) BucketRenewalCount(tokenID uint64) (uint64, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.ledger.CountFor(tokenID)
}

func (s *Service) RenewalOfBucketByIndex(tokenID, index uint64) (db.Renewal, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.ledger.ByIndex(tokenID, index)
}

func (s *Service) TokenURI(tokenID uint64) (string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.tokens.URI(tokenID)
}

func (s *Service) OwnerOf(tokenID uint64) (common.Address, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.tokens.OwnerOf(tokenID)
}

func (s *Service) Bucket(tokenID uint64) (db.Token, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.tokens.Get(tokenID)
}

func (s *Service) CollectedBalance(currency common.Address) *big.Int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.settler.CollectedBalance(currency)
}

func (s *Service) totalCapacity(capacityUnits uint64) (uint64, error) {
	if s.capacityUnitMB != 0 && capacityUnits > math.MaxUint64/s.capacityUnitMB {
		return 0, settle.ErrArithmeticOverflow
	}
	return capacityUnits * s.capacityUnitMB, nil
}
