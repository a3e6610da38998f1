package tokens

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w3bucket/bucket-provider/internal/db"
	ldb "github.com/w3bucket/bucket-provider/internal/db/leveldb"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newTest(t *testing.T) (*Registry, *ldb.DB) {
	t.Helper()

	xdb, err := ldb.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = xdb.Close()
	})

	reg, err := NewRegistry(xdb)
	require.NoError(t, err)
	return reg, xdb
}

func mintOne(t *testing.T, reg *Registry, xdb *ldb.DB, owner common.Address, uri string) db.Token {
	t.Helper()

	tx := xdb.Begin()
	tok, err := reg.Mint(tx, owner, uri, 1024, time.Unix(1000, 0))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return tok
}

func burnOne(t *testing.T, reg *Registry, xdb *ldb.DB, id uint64) {
	t.Helper()

	tx := xdb.Begin()
	require.NoError(t, reg.Burn(tx, id))
	require.NoError(t, tx.Commit())
}

func TestMintSequentialIDs(t *testing.T) {
	reg, xdb := newTest(t)

	assert.Equal(t, uint64(1), mintOne(t, reg, xdb, alice, "u1").ID)
	assert.Equal(t, uint64(2), mintOne(t, reg, xdb, bob, "u2").ID)
	assert.Equal(t, uint64(3), mintOne(t, reg, xdb, alice, "u3").ID)
}

func TestOwnershipAndURI(t *testing.T) {
	reg, xdb := newTest(t)
	tok := mintOne(t, reg, xdb, alice, "ipfs://meta")

	owner, err := reg.OwnerOf(tok.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	uri, err := reg.URI(tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta", uri)

	assert.True(t, reg.ExistsActive(tok.ID))
	assert.False(t, reg.ExistsActive(99))

	_, err = reg.OwnerOf(99)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOwnerEnumeration(t *testing.T) {
	reg, xdb := newTest(t)

	mintOne(t, reg, xdb, alice, "u1")
	mintOne(t, reg, xdb, bob, "u2")
	mintOne(t, reg, xdb, alice, "u3")

	n, err := reg.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	id, err := reg.TokenOfOwnerByIndex(alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	id, err = reg.TokenOfOwnerByIndex(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)

	_, err = reg.TokenOfOwnerByIndex(alice, 2)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBurn(t *testing.T) {
	reg, xdb := newTest(t)

	mintOne(t, reg, xdb, alice, "u1")
	mintOne(t, reg, xdb, alice, "u2")
	mintOne(t, reg, xdb, alice, "u3")

	// burning the middle token swaps the last one into its slot
	burnOne(t, reg, xdb, 2)

	n, err := reg.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	id, err := reg.TokenOfOwnerByIndex(alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	id, err = reg.TokenOfOwnerByIndex(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)

	assert.False(t, reg.ExistsActive(2))
	_, err = reg.OwnerOf(2)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = reg.URI(2)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// the record itself stays readable as burned
	tok, err := reg.Get(2)
	require.NoError(t, err)
	assert.Equal(t, db.TokenStatusBurned, tok.Status)
	assert.Equal(t, "u2", tok.URI)
}

func TestBurnTwice(t *testing.T) {
	reg, xdb := newTest(t)
	tok := mintOne(t, reg, xdb, alice, "u1")

	burnOne(t, reg, xdb, tok.ID)

	tx := xdb.Begin()
	assert.ErrorIs(t, reg.Burn(tx, tok.ID), ErrInvalidToken)
}

func TestBurnedIDNeverReused(t *testing.T) {
	reg, xdb := newTest(t)

	tok := mintOne(t, reg, xdb, alice, "u1")
	burnOne(t, reg, xdb, tok.ID)

	next := mintOne(t, reg, xdb, alice, "u2")
	assert.Equal(t, tok.ID+1, next.ID)
}

func TestCounterSurvivesRestart(t *testing.T) {
	path := t.TempDir()

	xdb, err := ldb.NewDB(path)
	require.NoError(t, err)

	reg, err := NewRegistry(xdb)
	require.NoError(t, err)
	mintOne(t, reg, xdb, alice, "u1")
	require.NoError(t, xdb.Close())

	xdb, err = ldb.NewDB(path)
	require.NoError(t, err)
	defer xdb.Close()

	reg, err = NewRegistry(xdb)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), mintOne(t, reg, xdb, bob, "u2").ID)
}
