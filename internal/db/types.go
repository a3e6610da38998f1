package db

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotFound = errors.New("not found")

// Schema versions of the persisted layout. Migrations are additive only:
// existing json tags keep their name and type forever, new fields append
// new tags. SchemaV2 introduced the per-bucket renewal count index and the
// TotalCapacity field on Token.
const (
	SchemaV1 = 1
	SchemaV2 = 2

	SchemaCurrent = SchemaV2
)

// NativeCurrency is the sentinel currency id for the chain's native coin.
var NativeCurrency = common.Address{}

type TokenStatus int

const (
	TokenStatusActive TokenStatus = iota + 1
	TokenStatusBurned
)

type UnitPrice struct {
	Currency common.Address `json:"c"`
	Price    *big.Int       `json:"p"`
}

type Balance struct {
	Currency common.Address `json:"c"`
	Amount   *big.Int       `json:"a"`
}

// Renewal is immutable once written. The stored unit price is the price at
// action time and is never looked up again.
type Renewal struct {
	ID            uint64         `json:"i"`
	TokenID       uint64         `json:"t"`
	Currency      common.Address `json:"c"`
	UnitPrice     *big.Int       `json:"u"`
	CapacityUnits uint64         `json:"cu"`
	PeriodUnits   uint64         `json:"pu"`
	RenewedBy     common.Address `json:"by"`
	RenewedAt     int64          `json:"at"`
}

type Token struct {
	ID         uint64         `json:"i"`
	Owner      common.Address `json:"o"`
	URI        string         `json:"u"`
	Status     TokenStatus    `json:"s"`
	MintedAt   int64          `json:"m"`
	OwnerIndex uint64         `json:"oi"`

	// appended in schema v2
	TotalCapacity uint64 `json:"cap,omitempty"`
}

// Counter names for the global monotonic id sequences.
const (
	CounterToken   = "token"
	CounterRenewal = "renewal"
)

// Tx stages writes belonging to a single state transition and commits them
// atomically. A transition either fully lands on disk or not at all.
type Tx interface {
	SetUnitPrice(p UnitPrice)
	SetBalance(b Balance)
	SetToken(t Token)
	// AppendRenewal stages the renewal record, its position in the
	// per-token sequence and the new per-token count.
	AppendRenewal(r Renewal, index uint64)
	SetOwnerToken(owner common.Address, index uint64, tokenID uint64)
	DeleteOwnerToken(owner common.Address, index uint64)
	SetOwnerCount(owner common.Address, n uint64)
	SetCounter(name string, next uint64)
	SetHalted(halted bool)
	Commit() error
}
