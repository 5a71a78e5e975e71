package embedcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var errCorruptVector = errors.New("embedcache: stored vector has invalid byte length")

// BadgerTier is an optional disk-backed overflow tier for the embedding
// cache, for deployments that want cached embeddings to survive a process
// restart instead of re-paying the embedding-provider cost on every cold
// start. Entries are stored with BadgerDB's native TTL so expired rows are
// reclaimed by its own garbage collection.
type BadgerTier struct {
	db *badger.DB
}

// BadgerTierOptions configures the disk tier.
type BadgerTierOptions struct {
	DataDir  string
	InMemory bool
}

// OpenBadgerTier opens (or creates) the on-disk cache database. With
// InMemory set, DataDir is ignored and nothing is written to disk.
func OpenBadgerTier(opts BadgerTierOptions) (*BadgerTier, error) {
	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	return &BadgerTier{db: db}, nil
}

// Get looks up key, returning (nil, false, nil) on a miss or expiry.
func (t *BadgerTier) Get(key string) ([]float32, bool, error) {
	var vec []float32
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, decodeErr := decodeVector(val)
			vec = v
			return decodeErr
		})
	})
	if err != nil {
		return nil, false, err
	}
	if vec == nil {
		return nil, false, nil
	}
	return vec, true, nil
}

// Set stores vector under key with the given TTL (zero means no expiry).
func (t *BadgerTier) Set(key string, vector []float32, ttl time.Duration) error {
	data := encodeVector(vector)
	return t.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Close closes the underlying database.
func (t *BadgerTier) Close() error {
	return t.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(v) * 4)
	for _, f := range v {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(f))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errCorruptVector
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := binary.BigEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
