package leveldb

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/w3bucket/bucket-provider/internal/db"
)

// migrate brings the persisted layout up to db.SchemaCurrent. Migrations only
// add data, existing records are never rewritten into a different shape.
func (d *DB) migrate() error {
	v, err := d.getSchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if v == 0 {
		// fresh database, start at the current schema
		return d.setSchemaVersion(db.SchemaCurrent)
	}

	if v > db.SchemaCurrent {
		return fmt.Errorf("database schema v%d is newer than supported v%d", v, db.SchemaCurrent)
	}

	for v < db.SchemaCurrent {
		switch v {
		case db.SchemaV1:
			if err = d.migrateV2(); err != nil {
				return fmt.Errorf("failed to migrate schema to v2: %w", err)
			}
		}
		v++

		if err = d.setSchemaVersion(v); err != nil {
			return fmt.Errorf("failed to bump schema version: %w", err)
		}
		log.Info().Int("version", v).Msg("database schema migrated")
	}
	return nil
}

func (d *DB) setSchemaVersion(v int) error {
	data, err := json.Marshal(schemaRec{V: v})
	if err != nil {
		return err
	}
	return d.db.Put(keySchema, data, nil)
}

// migrateV2 backfills the per-token renewal count index, which v1 derived by
// scanning the per-token sequence on every read.
func (d *DB) migrateV2() error {
	counts := map[uint64]uint64{}

	it := d.db.NewIterator(util.BytesPrefix([]byte("tr:")), nil)
	for it.Next() {
		var tokenID, index uint64
		if _, err := fmt.Sscanf(string(it.Key()), "tr:%016x:%016x", &tokenID, &index); err != nil {
			it.Release()
			return fmt.Errorf("failed to parse renewal index key %q: %w", it.Key(), err)
		}
		if index+1 > counts[tokenID] {
			counts[tokenID] = index + 1
		}
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	for tokenID, n := range counts {
		data, err := json.Marshal(countRec{N: n})
		if err != nil {
			return err
		}
		batch.Put(keyRenewalCount(tokenID), data)
	}
	return d.db.Write(batch, nil)
}
