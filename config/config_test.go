package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w3bucket/bucket-provider/internal/db"
)

func TestLoadGeneratesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18655", cfg.ListenAddr)
	assert.Equal(t, uint64(1024), cfg.CapacityUnitMegabytes)
	require.Len(t, cfg.Currencies, 1)
	assert.Equal(t, "NATIVE", cfg.Currencies[0].Symbol)

	// the generated file loads back identically
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestCurrencyAddress(t *testing.T) {
	addr, err := Currency{Symbol: "NATIVE"}.CurrencyAddress()
	require.NoError(t, err)
	assert.Equal(t, db.NativeCurrency, addr)

	addr, err = Currency{Address: "0x1000000000000000000000000000000000000001"}.CurrencyAddress()
	require.NoError(t, err)
	assert.Equal(t, "0x1000000000000000000000000000000000000001", addr.Hex())

	_, err = Currency{Address: "nonsense"}.CurrencyAddress()
	assert.Error(t, err)
}

func TestBaseUnitPrice(t *testing.T) {
	price, err := Currency{Symbol: "NATIVE", Decimals: 18, UnitPrice: "0.8"}.BaseUnitPrice()
	require.NoError(t, err)
	assert.Equal(t, "800000000000000000", price.String())

	price, err = Currency{Symbol: "USDC", Decimals: 6, UnitPrice: "5"}.BaseUnitPrice()
	require.NoError(t, err)
	assert.Equal(t, "5000000", price.String())

	price, err = Currency{Symbol: "X", Decimals: 0, UnitPrice: "0"}.BaseUnitPrice()
	require.NoError(t, err)
	assert.Zero(t, price.Sign())

	_, err = Currency{Symbol: "USDC", Decimals: 6, UnitPrice: "0.0000001"}.BaseUnitPrice()
	assert.Error(t, err)

	_, err = Currency{Symbol: "USDC", Decimals: 6, UnitPrice: "-1"}.BaseUnitPrice()
	assert.Error(t, err)

	_, err = Currency{Symbol: "USDC", Decimals: 6, UnitPrice: "abc"}.BaseUnitPrice()
	assert.Error(t, err)
}

func TestUnitPrices(t *testing.T) {
	cfg := &Config{Currencies: []Currency{
		{Symbol: "NATIVE", Decimals: 18, UnitPrice: "0.8"},
		{Address: "0x1000000000000000000000000000000000000001", Symbol: "USDC", Decimals: 6, UnitPrice: "5"},
	}}

	list, err := cfg.UnitPrices()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, db.NativeCurrency, list[0].Currency)
	assert.Equal(t, "800000000000000000", list[0].Price.String())
	assert.Equal(t, "5000000", list[1].Price.String())
}
