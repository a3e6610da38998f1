package tokens

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank is the native-currency account ledger the settler moves funds through.
// Native balances belong to the host chain, not to the engine's persisted
// state, so the bank is memory only.
type Bank struct {
	balances map[common.Address]*big.Int
	mx       sync.Mutex
}

func NewBank() *Bank {
	return &Bank{balances: map[common.Address]*big.Int{}}
}

// Deposit credits an account, used to fund payers.
func (b *Bank) Deposit(addr common.Address, amount *big.Int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.balances[addr] = new(big.Int).Add(b.get(addr), amount)
}

func (b *Bank) TransferFrom(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount.String())
	}

	b.mx.Lock()
	defer b.mx.Unlock()

	balance := b.get(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s has %s, need %s", ErrInsufficientFunds, from.Hex(), balance.String(), amount.String())
	}
	b.balances[from] = new(big.Int).Sub(balance, amount)
	b.balances[to] = new(big.Int).Add(b.get(to), amount)
	return nil
}

func (b *Bank) BalanceOf(addr common.Address) *big.Int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return new(big.Int).Set(b.get(addr))
}

func (b *Bank) get(addr common.Address) *big.Int {
	if v, ok := b.balances[addr]; ok {
		return v
	}
	return new(big.Int)
}
