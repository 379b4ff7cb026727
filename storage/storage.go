// storage package keeps the local state of the vote coordinator in a
// prefixed key-value store. The following prefixes are used:
//   - 'r/' for voter records (the local mirror of the ledger "has voted" flag)
//   - 'dp/' for demo ledger proposals
//   - 'dv/' for demo ledger votes
//
// Artifacts are encoded with deterministic CBOR.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	voterRecordPrefix  = []byte("r/")
	demoProposalPrefix = []byte("dp/")
	demoVotePrefix     = []byte("dv/")
)

// ErrNotFound is returned when the requested artifact is not stored.
var ErrNotFound = errors.New("not found")

// Storage wraps the database holding the coordinator artifacts.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}

// getArtifact decodes the artifact stored under prefix+key into out. It
// returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rTx.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if data == nil {
		return ErrNotFound
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stores the artifact under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return fmt.Errorf("set artifact: %w", err)
	}
	return wTx.Commit()
}

// deleteArtifact removes the artifact stored under prefix+key.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return wTx.Commit()
}

// iterateArtifacts calls fn for every artifact stored under prefix+sub, in
// key order. Keys passed to fn include neither the prefix nor sub. Iteration
// stops when fn returns false.
func (s *Storage) iterateArtifacts(prefix, sub []byte, fn func(key, value []byte) bool) error {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	return rd.Iterate(sub, func(k, v []byte) bool {
		// values are only valid during the callback
		key := make([]byte, len(k))
		copy(key, k)
		value := make([]byte, len(v))
		copy(value, v)
		return fn(key, value)
	})
}

func idKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}
