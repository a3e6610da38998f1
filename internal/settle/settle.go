package settle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/w3bucket/bucket-provider/internal/db"
	"github.com/w3bucket/bucket-provider/internal/events"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

var (
	ErrIncorrectPayment        = errors.New("incorrect native payment amount")
	ErrUnexpectedNativePayment = errors.New("unexpected native payment for token currency")
	ErrPaymentTransferFailed   = errors.New("payment transfer failed")
	ErrArithmeticOverflow      = errors.New("arithmetic overflow")
)

// amounts are 256-bit unsigned, wider products fail the quote
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type DB interface {
	ListBalances() ([]db.Balance, error)
	Begin() db.Tx
}

type Prices interface {
	UnitPrice(currency common.Address) *big.Int
}

type Access interface {
	RequireAuthorized(caller common.Address) error
}

// NativeBank moves the chain's native currency between accounts.
type NativeBank interface {
	TransferFrom(from, to common.Address, amount *big.Int) error
}

// FungibleToken is the external token capability for one non-native currency.
// TransferFrom pulls from the payer's pre-approved allowance.
type FungibleToken interface {
	TransferFrom(from, to common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
	Decimals() uint8
}

// Tokens resolves a non-native currency id to its token capability.
type Tokens interface {
	Token(currency common.Address) (FungibleToken, error)
}

// Settler computes charges and verifies and moves funds. Collected balances
// are credited only after the external pull succeeded, and withdrawal
// transfers out before the tracked balance is zeroed, so a failed transfer
// never leaves the bookkeeping ahead of the actual funds.
type Settler struct {
	db     DB
	prices Prices
	access Access
	bank   NativeBank
	tokens Tokens
	bus    *ebus.Bus

	// vault is the account holding collected funds until withdrawal
	vault common.Address

	balances map[common.Address]*big.Int
	mx       sync.RWMutex
}

func NewSettler(xdb DB, prices Prices, access Access, bank NativeBank, tokens Tokens, vault common.Address, bus *ebus.Bus) (*Settler, error) {
	list, err := xdb.ListBalances()
	if err != nil {
		return nil, fmt.Errorf("failed to load collected balances: %w", err)
	}

	s := &Settler{
		db:       xdb,
		prices:   prices,
		access:   access,
		bank:     bank,
		tokens:   tokens,
		vault:    vault,
		bus:      bus,
		balances: map[common.Address]*big.Int{},
	}
	for _, b := range list {
		s.balances[b.Currency] = b.Amount
	}
	return s, nil
}

// Quote returns unitPrice(currency) * capacityUnits * periodUnits, exactly.
// An unconfigured currency quotes as free.
func (s *Settler) Quote(currency common.Address, capacityUnits, periodUnits uint64) (*big.Int, error) {
	amount := s.prices.UnitPrice(currency)
	amount.Mul(amount, new(big.Int).SetUint64(capacityUnits))
	amount.Mul(amount, new(big.Int).SetUint64(periodUnits))

	if amount.Cmp(maxAmount) > 0 {
		return nil, ErrArithmeticOverflow
	}
	return amount, nil
}

// Settle verifies the payment for required and pulls it from payer into the
// vault. On success the collected balance for the currency is credited and
// staged on tx; the caller owns the commit.
func (s *Settler) Settle(tx db.Tx, payer, currency common.Address, required, attachedNative *big.Int) error {
	if attachedNative == nil {
		attachedNative = new(big.Int)
	}

	if currency == db.NativeCurrency {
		if attachedNative.Cmp(required) != 0 {
			return fmt.Errorf("%w: need %s, got %s", ErrIncorrectPayment, required.String(), attachedNative.String())
		}
		if required.Sign() > 0 {
			if err := s.bank.TransferFrom(payer, s.vault, required); err != nil {
				return fmt.Errorf("%w: %w", ErrPaymentTransferFailed, err)
			}
		}
	} else {
		if attachedNative.Sign() != 0 {
			return ErrUnexpectedNativePayment
		}
		if required.Sign() > 0 {
			token, err := s.tokens.Token(currency)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrPaymentTransferFailed, err)
			}
			if err = token.TransferFrom(payer, s.vault, required); err != nil {
				return fmt.Errorf("%w: %w", ErrPaymentTransferFailed, err)
			}
		}
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	balance := new(big.Int).Add(s.balance(currency), required)
	tx.SetBalance(db.Balance{Currency: currency, Amount: balance})
	s.balances[currency] = balance
	return nil
}

// Withdraw pays the full collected balance for the currency out to `to` and
// zeroes it. A zero balance is a no-op success that still emits the event.
func (s *Settler) Withdraw(caller, to, currency common.Address) error {
	if err := s.access.RequireAuthorized(caller); err != nil {
		return err
	}

	s.mx.Lock()
	amount := new(big.Int).Set(s.balance(currency))

	if amount.Sign() > 0 {
		// transfer first, zero the record only after the funds moved
		var err error
		if currency == db.NativeCurrency {
			err = s.bank.TransferFrom(s.vault, to, amount)
		} else {
			var token FungibleToken
			if token, err = s.tokens.Token(currency); err == nil {
				err = token.TransferFrom(s.vault, to, amount)
			}
		}
		if err != nil {
			s.mx.Unlock()
			return fmt.Errorf("%w: %w", ErrPaymentTransferFailed, err)
		}

		tx := s.db.Begin()
		tx.SetBalance(db.Balance{Currency: currency, Amount: new(big.Int)})
		if err = tx.Commit(); err != nil {
			s.mx.Unlock()
			return fmt.Errorf("failed to store balance: %w", err)
		}
		s.balances[currency] = new(big.Int)
	}
	s.mx.Unlock()

	s.bus.Publish(events.Withdraw{To: to, Currency: currency, Amount: amount})
	return nil
}

// CollectedBalance returns the tracked not-yet-withdrawn total for a currency.
func (s *Settler) CollectedBalance(currency common.Address) *big.Int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return new(big.Int).Set(s.balance(currency))
}

func (s *Settler) balance(currency common.Address) *big.Int {
	if b, ok := s.balances[currency]; ok {
		return b
	}
	return new(big.Int)
}
