package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Domain events published on the bus after an operation's state commit.
// Off-process observers receive them through the websocket feed and the
// optional Kafka sink.

type UnitPriceUpdated struct {
	Currency common.Address `json:"currency"`
	Price    *big.Int       `json:"price"`
}

type BucketMinted struct {
	Owner         common.Address `json:"owner"`
	TokenID       uint64         `json:"token_id"`
	URI           string         `json:"uri"`
	TotalCapacity uint64         `json:"total_capacity"`
	Currency      common.Address `json:"currency"`
	AmountPaid    *big.Int       `json:"amount_paid"`
}

// PermanentURI signals that the metadata URI is frozen forever, it is
// distinct from the mint event on purpose.
type PermanentURI struct {
	URI     string `json:"uri"`
	TokenID uint64 `json:"token_id"`
}

type BucketRenewed struct {
	TokenID       uint64         `json:"token_id"`
	Currency      common.Address `json:"currency"`
	UnitPrice     *big.Int       `json:"unit_price"`
	CapacityUnits uint64         `json:"capacity_units"`
	PeriodUnits   uint64         `json:"period_units"`
	RenewedBy     common.Address `json:"renewed_by"`
}

type Withdraw struct {
	To       common.Address `json:"to"`
	Currency common.Address `json:"currency"`
	Amount   *big.Int       `json:"amount"`
}
