package prices

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w3bucket/bucket-provider/internal/access"
	"github.com/w3bucket/bucket-provider/internal/db"
	ldb "github.com/w3bucket/bucket-provider/internal/db/leveldb"
	"github.com/w3bucket/bucket-provider/internal/events"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	usdc     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	dai      = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func newTest(t *testing.T) (*Registry, *ebus.Bus) {
	t.Helper()

	xdb, err := ldb.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = xdb.Close()
	})

	bus := ebus.New()
	reg, err := NewRegistry(xdb, access.NewGuard([]common.Address{admin}, false), bus)
	require.NoError(t, err)
	return reg, bus
}

func TestSetAndGet(t *testing.T) {
	reg, _ := newTest(t)

	err := reg.SetUnitPrices(admin, []db.UnitPrice{
		{Currency: db.NativeCurrency, Price: big.NewInt(800)},
		{Currency: usdc, Price: big.NewInt(5)},
	})
	require.NoError(t, err)

	assert.Equal(t, "800", reg.UnitPrice(db.NativeCurrency).String())
	assert.Equal(t, "5", reg.UnitPrice(usdc).String())
	assert.Len(t, reg.UnitPrices(), 2)
}

func TestOverwrite(t *testing.T) {
	reg, _ := newTest(t)

	require.NoError(t, reg.SetUnitPrices(admin, []db.UnitPrice{{Currency: usdc, Price: big.NewInt(5)}}))
	require.NoError(t, reg.SetUnitPrices(admin, []db.UnitPrice{{Currency: usdc, Price: big.NewInt(9)}}))

	assert.Equal(t, "9", reg.UnitPrice(usdc).String())
	assert.Len(t, reg.UnitPrices(), 1)
}

func TestUnconfiguredIsZero(t *testing.T) {
	reg, _ := newTest(t)
	assert.Zero(t, reg.UnitPrice(dai).Sign())
}

func TestUnauthorized(t *testing.T) {
	reg, _ := newTest(t)

	err := reg.SetUnitPrices(stranger, []db.UnitPrice{{Currency: usdc, Price: big.NewInt(5)}})
	assert.ErrorIs(t, err, access.ErrUnauthorized)
	assert.Zero(t, reg.UnitPrice(usdc).Sign())
}

func TestInvalidPriceRejectsWholeBatch(t *testing.T) {
	reg, _ := newTest(t)

	err := reg.SetUnitPrices(admin, []db.UnitPrice{
		{Currency: usdc, Price: big.NewInt(5)},
		{Currency: dai, Price: big.NewInt(-1)},
	})
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.Zero(t, reg.UnitPrice(usdc).Sign())

	err = reg.SetUnitPrices(admin, []db.UnitPrice{{Currency: dai, Price: nil}})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestEventsEmittedInInputOrder(t *testing.T) {
	reg, bus := newTest(t)

	var got []events.UnitPriceUpdated
	ebus.Subscribe(bus, func(ev events.UnitPriceUpdated) {
		got = append(got, ev)
	})

	entries := []db.UnitPrice{
		{Currency: dai, Price: big.NewInt(2)},
		{Currency: usdc, Price: big.NewInt(1)},
		{Currency: dai, Price: big.NewInt(3)},
	}
	require.NoError(t, reg.SetUnitPrices(admin, entries))

	require.Len(t, got, 3)
	assert.Equal(t, dai, got[0].Currency)
	assert.Equal(t, "2", got[0].Price.String())
	assert.Equal(t, usdc, got[1].Currency)
	assert.Equal(t, dai, got[2].Currency)
	assert.Equal(t, "3", got[2].Price.String())

	// last write of the batch wins
	assert.Equal(t, "3", reg.UnitPrice(dai).String())
}

func TestPersistedAcrossRestart(t *testing.T) {
	path := t.TempDir()

	xdb, err := ldb.NewDB(path)
	require.NoError(t, err)

	reg, err := NewRegistry(xdb, access.NewGuard([]common.Address{admin}, false), ebus.New())
	require.NoError(t, err)
	require.NoError(t, reg.SetUnitPrices(admin, []db.UnitPrice{{Currency: usdc, Price: big.NewInt(42)}}))
	require.NoError(t, xdb.Close())

	xdb, err = ldb.NewDB(path)
	require.NoError(t, err)
	defer xdb.Close()

	reg, err = NewRegistry(xdb, access.NewGuard([]common.Address{admin}, false), ebus.New())
	require.NoError(t, err)
	assert.Equal(t, "42", reg.UnitPrice(usdc).String())
}

func TestViewOrderedAndCopied(t *testing.T) {
	reg, _ := newTest(t)

	require.NoError(t, reg.SetUnitPrices(admin, []db.UnitPrice{
		{Currency: dai, Price: big.NewInt(2)},
		{Currency: usdc, Price: big.NewInt(1)},
	}))

	list := reg.UnitPrices()
	require.Len(t, list, 2)
	assert.Equal(t, usdc, list[0].Currency)
	assert.Equal(t, dai, list[1].Currency)

	// mutating the returned slice must not leak into the registry
	list[0].Price.SetInt64(777)
	assert.Equal(t, "1", reg.UnitPrice(usdc).String())
}
