package tokens

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/w3bucket/bucket-provider/internal/settle"
)

// Fungible is an allowance-based token ledger implementing the external
// fungible-token capability: holders approve a spender, the spender pulls
// with TransferFrom.
type Fungible struct {
	symbol   string
	decimals uint8

	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	mx         sync.Mutex
}

func NewFungible(symbol string, decimals uint8) *Fungible {
	return &Fungible{
		symbol:     symbol,
		decimals:   decimals,
		balances:   map[common.Address]*big.Int{},
		allowances: map[common.Address]map[common.Address]*big.Int{},
	}
}

func (f *Fungible) Symbol() string {
	return f.symbol
}

func (f *Fungible) Decimals() uint8 {
	return f.decimals
}

func (f *Fungible) Mint(to common.Address, amount *big.Int) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.balances[to] = new(big.Int).Add(f.balance(to), amount)
}

// Approve lets spender pull up to amount from owner, replacing any previous
// allowance.
func (f *Fungible) Approve(owner, spender common.Address, amount *big.Int) {
	f.mx.Lock()
	defer f.mx.Unlock()

	if f.allowances[owner] == nil {
		f.allowances[owner] = map[common.Address]*big.Int{}
	}
	f.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (f *Fungible) Allowance(owner, spender common.Address) *big.Int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return new(big.Int).Set(f.allowance(owner, spender))
}

// TransferFrom spends the caller-independent allowance model: `to` is the
// spender here, matching how the settler pulls into the vault.
func (f *Fungible) TransferFrom(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount.String())
	}

	f.mx.Lock()
	defer f.mx.Unlock()

	balance := f.balance(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s account %s has %s, need %s", ErrInsufficientFunds, f.symbol, from.Hex(), balance.String(), amount.String())
	}

	if from != to {
		allowance := f.allowance(from, to)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%s: allowance of %s for %s is %s, need %s", f.symbol, from.Hex(), to.Hex(), allowance.String(), amount.String())
		}
		f.allowances[from][to] = new(big.Int).Sub(allowance, amount)
	}
	f.balances[from] = new(big.Int).Sub(balance, amount)
	f.balances[to] = new(big.Int).Add(f.balance(to), amount)
	return nil
}

func (f *Fungible) BalanceOf(addr common.Address) *big.Int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return new(big.Int).Set(f.balance(addr))
}

func (f *Fungible) balance(addr common.Address) *big.Int {
	if v, ok := f.balances[addr]; ok {
		return v
	}
	return new(big.Int)
}

func (f *Fungible) allowance(owner, spender common.Address) *big.Int {
	if m, ok := f.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return v
		}
	}
	return new(big.Int)
}

// Set resolves currency ids to their token ledgers for the settler.
type Set struct {
	tokens map[common.Address]*Fungible
	mx     sync.RWMutex
}

func NewSet() *Set {
	return &Set{tokens: map[common.Address]*Fungible{}}
}

func (s *Set) Add(currency common.Address, token *Fungible) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.tokens[currency] = token
}

func (s *Set) Token(currency common.Address) (settle.FungibleToken, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	token, ok := s.tokens[currency]
	if !ok {
		return nil, fmt.Errorf("unknown token currency %s", currency.Hex())
	}
	return token, nil
}
