package leveldb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/w3bucket/bucket-provider/internal/db"
)

type DB struct {
	db *leveldb.DB
}

func NewDB(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	d := &DB{db: ldb}
	if err = d.migrate(); err != nil {
		_ = ldb.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func keyUnitPrice(currency common.Address) []byte {
	return []byte("p:" + currency.Hex())
}

func keyBalance(currency common.Address) []byte {
	return []byte("cb:" + currency.Hex())
}

func keyToken(id uint64) []byte {
	return []byte(fmt.Sprintf("tk:%016x", id))
}

func keyRenewal(id uint64) []byte {
	return []byte(fmt.Sprintf("r:%016x", id))
}

func keyTokenRenewal(tokenID, index uint64) []byte {
	return []byte(fmt.Sprintf("tr:%016x:%016x", tokenID, index))
}

func keyRenewalCount(tokenID uint64) []byte {
	return []byte(fmt.Sprintf("tc:%016x", tokenID))
}

func keyOwnerToken(owner common.Address, index uint64) []byte {
	return []byte(fmt.Sprintf("ot:%s:%016x", owner.Hex(), index))
}

func keyOwnerCount(owner common.Address) []byte {
	return []byte("oc:" + owner.Hex())
}

func keyCounter(name string) []byte {
	return []byte("n:" + name)
}

var keySchema = []byte("meta:schema")
var keyHalted = []byte("meta:halted")

// small auxiliary records, json tags are part of the persisted schema
type countRec struct {
	N uint64 `json:"n"`
}

type refRec struct {
	R uint64 `json:"r"`
}

type idxRec struct {
	I uint64 `json:"i"`
}

type haltRec struct {
	H bool `json:"h"`
}

type schemaRec struct {
	V int `json:"v"`
}

func (d *DB) get(key []byte, v any) error {
	data, err := d.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			err = db.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (d *DB) ListUnitPrices() ([]db.UnitPrice, error) {
	it := d.db.NewIterator(util.BytesPrefix([]byte("p:")), nil)
	defer it.Release()

	var list []db.UnitPrice
	for it.Next() {
		var p db.UnitPrice
		if err := json.Unmarshal(it.Value(), &p); err != nil {
			return nil, fmt.Errorf("failed to decode unit price record: %w", err)
		}
		list = append(list, p)
	}
	return list, it.Error()
}

func (d *DB) ListBalances() ([]db.Balance, error) {
	it := d.db.NewIterator(util.BytesPrefix([]byte("cb:")), nil)
	defer it.Release()

	var list []db.Balance
	for it.Next() {
		var b db.Balance
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			return nil, fmt.Errorf("failed to decode balance record: %w", err)
		}
		list = append(list, b)
	}
	return list, it.Error()
}

func (d *DB) GetToken(id uint64) (db.Token, error) {
	var t db.Token
	if err := d.get(keyToken(id), &t); err != nil {
		return db.Token{}, err
	}
	return t, nil
}

func (d *DB) GetRenewal(id uint64) (db.Renewal, error) {
	var r db.Renewal
	if err := d.get(keyRenewal(id), &r); err != nil {
		return db.Renewal{}, err
	}
	return r, nil
}

func (d *DB) GetTokenRenewal(tokenID, index uint64) (db.Renewal, error) {
	var ref refRec
	if err := d.get(keyTokenRenewal(tokenID, index), &ref); err != nil {
		return db.Renewal{}, err
	}
	return d.GetRenewal(ref.R)
}

func (d *DB) GetRenewalCount(tokenID uint64) (uint64, error) {
	var c countRec
	if err := d.get(keyRenewalCount(tokenID), &c); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return c.N, nil
}

func (d *DB) GetOwnerToken(owner common.Address, index uint64) (uint64, error) {
	var ref idxRec
	if err := d.get(keyOwnerToken(owner, index), &ref); err != nil {
		return 0, err
	}
	return ref.I, nil
}

func (d *DB) GetOwnerCount(owner common.Address) (uint64, error) {
	var c countRec
	if err := d.get(keyOwnerCount(owner), &c); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return c.N, nil
}

func (d *DB) GetCounter(name string) (uint64, error) {
	var c countRec
	if err := d.get(keyCounter(name), &c); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return c.N, nil
}

func (d *DB) GetHalted() (bool, error) {
	var h haltRec
	if err := d.get(keyHalted, &h); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return h.H, nil
}

func (d *DB) getSchemaVersion() (int, error) {
	var s schemaRec
	if err := d.get(keySchema, &s); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return s.V, nil
}

// Begin starts a staged transaction. Writes become visible only after Commit,
// which applies them in a single leveldb batch.
func (d *DB) Begin() db.Tx {
	return &Tx{d: d, batch: new(leveldb.Batch)}
}

type Tx struct {
	d     *DB
	batch *leveldb.Batch
}

func (t *Tx) put(key []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// record types are all marshalable, this cannot happen at runtime
		panic(fmt.Errorf("failed to encode record: %w", err))
	}
	t.batch.Put(key, data)
}

func (t *Tx) SetUnitPrice(p db.UnitPrice) {
	t.put(keyUnitPrice(p.Currency), p)
}

func (t *Tx) SetBalance(b db.Balance) {
	t.put(keyBalance(b.Currency), b)
}

func (t *Tx) SetToken(tok db.Token) {
	t.put(keyToken(tok.ID), tok)
}

func (t *Tx) AppendRenewal(r db.Renewal, index uint64) {
	t.put(keyRenewal(r.ID), r)
	t.put(keyTokenRenewal(r.TokenID, index), refRec{R: r.ID})
	t.put(keyRenewalCount(r.TokenID), countRec{N: index + 1})
}

func (t *Tx) SetOwnerToken(owner common.Address, index uint64, tokenID uint64) {
	t.put(keyOwnerToken(owner, index), idxRec{I: tokenID})
}

func (t *Tx) DeleteOwnerToken(owner common.Address, index uint64) {
	t.batch.Delete(keyOwnerToken(owner, index))
}

func (t *Tx) SetOwnerCount(owner common.Address, n uint64) {
	t.put(keyOwnerCount(owner), countRec{N: n})
}

func (t *Tx) SetCounter(name string, next uint64) {
	t.put(keyCounter(name), countRec{N: next})
}

func (t *Tx) SetHalted(halted bool) {
	t.put(keyHalted, haltRec{H: halted})
}

func (t *Tx) Commit() error {
	return t.d.db.Write(t.batch, nil)
}
