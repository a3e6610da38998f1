package tokens

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankTransfer(t *testing.T) {
	b := NewBank()
	b.Deposit(alice, big.NewInt(100))

	require.NoError(t, b.TransferFrom(alice, bob, big.NewInt(40)))
	assert.Equal(t, "60", b.BalanceOf(alice).String())
	assert.Equal(t, "40", b.BalanceOf(bob).String())
}

func TestBankInsufficientFunds(t *testing.T) {
	b := NewBank()
	b.Deposit(alice, big.NewInt(10))

	err := b.TransferFrom(alice, bob, big.NewInt(40))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "10", b.BalanceOf(alice).String())
	assert.Zero(t, b.BalanceOf(bob).Sign())
}

func TestBankRejectsNegative(t *testing.T) {
	b := NewBank()
	assert.Error(t, b.TransferFrom(alice, bob, big.NewInt(-1)))
}

func TestFungibleAllowanceFlow(t *testing.T) {
	f := NewFungible("USDC", 6)
	f.Mint(alice, big.NewInt(1000))
	f.Approve(alice, bob, big.NewInt(100))

	require.NoError(t, f.TransferFrom(alice, bob, big.NewInt(60)))
	assert.Equal(t, "940", f.BalanceOf(alice).String())
	assert.Equal(t, "60", f.BalanceOf(bob).String())
	assert.Equal(t, "40", f.Allowance(alice, bob).String())

	// the rest of the allowance is not enough anymore
	err := f.TransferFrom(alice, bob, big.NewInt(60))
	require.Error(t, err)
	assert.Equal(t, "940", f.BalanceOf(alice).String())
}

func TestFungibleNoAllowance(t *testing.T) {
	f := NewFungible("USDC", 6)
	f.Mint(alice, big.NewInt(1000))

	require.Error(t, f.TransferFrom(alice, bob, big.NewInt(1)))
}

func TestFungibleSelfTransferSkipsAllowance(t *testing.T) {
	f := NewFungible("USDC", 6)
	f.Mint(alice, big.NewInt(10))

	require.NoError(t, f.TransferFrom(alice, alice, big.NewInt(10)))
	assert.Equal(t, "10", f.BalanceOf(alice).String())
}

func TestFungibleInsufficientBalance(t *testing.T) {
	f := NewFungible("USDC", 6)
	f.Mint(alice, big.NewInt(5))
	f.Approve(alice, bob, big.NewInt(100))

	err := f.TransferFrom(alice, bob, big.NewInt(50))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestSetResolves(t *testing.T) {
	s := NewSet()
	usdc := NewFungible("USDC", 6)
	s.Add(alice, usdc)

	tok, err := s.Token(alice)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), tok.Decimals())

	_, err = s.Token(bob)
	assert.Error(t, err)
}
