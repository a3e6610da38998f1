package tokens

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/w3bucket/bucket-provider/internal/db"
)

var ErrInvalidToken = errors.New("invalid token")

type DB interface {
	GetToken(id uint64) (db.Token, error)
	GetOwnerCount(owner common.Address) (uint64, error)
	GetOwnerToken(owner common.Address, index uint64) (uint64, error)
	GetCounter(name string) (uint64, error)
}

// Registry keeps the bucket tokens: sequential ids, per-owner enumeration and
// the frozen metadata URI. Burn removes a token from ownership lookups but
// its record stays, so history readers can still resolve it as burned.
type Registry struct {
	db DB

	minted uint64
	mx     sync.Mutex
}

func NewRegistry(xdb DB) (*Registry, error) {
	minted, err := xdb.GetCounter(db.CounterToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load token counter: %w", err)
	}
	return &Registry{db: xdb, minted: minted}, nil
}

// Mint stages a fresh token for owner on tx and returns it. The URI is
// assigned once here and never changes.
func (r *Registry) Mint(tx db.Tx, owner common.Address, uri string, totalCapacity uint64, now time.Time) (db.Token, error) {
	ownerCount, err := r.db.GetOwnerCount(owner)
	if err != nil {
		return db.Token{}, fmt.Errorf("failed to read owner token count: %w", err)
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	tok := db.Token{
		ID:            r.minted + 1,
		Owner:         owner,
		URI:           uri,
		Status:        db.TokenStatusActive,
		MintedAt:      now.Unix(),
		OwnerIndex:    ownerCount,
		TotalCapacity: totalCapacity,
	}

	tx.SetToken(tok)
	tx.SetOwnerToken(owner, ownerCount, tok.ID)
	tx.SetOwnerCount(owner, ownerCount+1)
	tx.SetCounter(db.CounterToken, r.minted+1)
	r.minted++

	return tok, nil
}

// Burn stages the Active -> Burned transition and drops the token from the
// owner's enumeration, swapping the last entry into the freed slot.
func (r *Registry) Burn(tx db.Tx, id uint64) error {
	tok, err := r.active(id)
	if err != nil {
		return err
	}

	ownerCount, err := r.db.GetOwnerCount(tok.Owner)
	if err != nil {
		return fmt.Errorf("failed to read owner token count: %w", err)
	}

	lastIndex := ownerCount - 1
	if tok.OwnerIndex != lastIndex {
		lastID, err := r.db.GetOwnerToken(tok.Owner, lastIndex)
		if err != nil {
			return fmt.Errorf("failed to read owner token index: %w", err)
		}
		last, err := r.db.GetToken(lastID)
		if err != nil {
			return fmt.Errorf("failed to read token record: %w", err)
		}

		last.OwnerIndex = tok.OwnerIndex
		tx.SetToken(last)
		tx.SetOwnerToken(tok.Owner, tok.OwnerIndex, lastID)
	}
	tx.DeleteOwnerToken(tok.Owner, lastIndex)
	tx.SetOwnerCount(tok.Owner, ownerCount-1)

	tok.Status = db.TokenStatusBurned
	tx.SetToken(tok)
	return nil
}

// Get returns the stored token record whatever its status, burned included.
func (r *Registry) Get(id uint64) (db.Token, error) {
	tok, err := r.db.GetToken(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.Token{}, fmt.Errorf("%w: id %d", ErrInvalidToken, id)
		}
		return db.Token{}, fmt.Errorf("failed to read token record: %w", err)
	}
	return tok, nil
}

func (r *Registry) OwnerOf(id uint64) (common.Address, error) {
	tok, err := r.active(id)
	if err != nil {
		return common.Address{}, err
	}
	return tok.Owner, nil
}

// URI returns the persistent metadata URI, failing for burned or never
// minted ids.
func (r *Registry) URI(id uint64) (string, error) {
	tok, err := r.active(id)
	if err != nil {
		return "", err
	}
	return tok.URI, nil
}

func (r *Registry) ExistsActive(id uint64) bool {
	_, err := r.active(id)
	return err == nil
}

func (r *Registry) BalanceOf(owner common.Address) (uint64, error) {
	return r.db.GetOwnerCount(owner)
}

func (r *Registry) TokenOfOwnerByIndex(owner common.Address, index uint64) (uint64, error) {
	id, err := r.db.GetOwnerToken(owner, index)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("failed to read owner token index: %w", err)
	}
	return id, nil
}

func (r *Registry) active(id uint64) (db.Token, error) {
	tok, err := r.db.GetToken(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.Token{}, fmt.Errorf("%w: id %d", ErrInvalidToken, id)
		}
		return db.Token{}, fmt.Errorf("failed to read token record: %w", err)
	}
	if tok.Status != db.TokenStatusActive {
		return db.Token{}, fmt.Errorf("%w: id %d is burned", ErrInvalidToken, id)
	}
	return tok, nil
}
