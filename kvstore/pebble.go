package kvstore

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/ethdb"
)

// PebbleStore is the durable KeyValueStore backend, wrapping
// cockroachdb/pebble exactly as the teacher's go.mod pulls it in as
// geth's production storage engine (no retrieved file in the example
// pack wraps pebble directly, since the pack's rollup-geth slice only
// carries deltas on top of the full upstream adapter; the
// accessor-pair-over-a-reader/writer-interface shape below follows
// core/rawdb/accessors_chain_rollup.go regardless of backend).
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a pebble-backed KeyValueStore at
// dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open pebble at %q: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Has(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (p *PebbleStore) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, closer.Close()
}

func (p *PebbleStore) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.NoSync)
}

func (p *PebbleStore) Delete(key []byte) error {
	return p.db.Delete(key, pebble.NoSync)
}

func (p *PebbleStore) NewBatch() ethdb.Batch {
	return &pebbleBatch{db: p.db, b: p.db.NewBatch()}
}

func (p *PebbleStore) NewBatchWithSize(size int) ethdb.Batch {
	return &pebbleBatch{db: p.db, b: p.db.NewBatchWithSize(size)}
}

func (p *PebbleStore) NewIterator(prefix, start []byte) ethdb.Iterator {
	lower := append(append([]byte{}, prefix...), start...)
	upper := upperBound(prefix)
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return &pebbleIterator{err: err}
	}
	return &pebbleIterator{iter: it, started: false}
}

func (p *PebbleStore) NewSnapshot() (ethdb.Snapshot, error) {
	return &pebbleSnapshot{snap: p.db.NewSnapshot()}, nil
}

func (p *PebbleStore) Stat() (string, error) {
	return p.db.Metrics().String(), nil
}

func (p *PebbleStore) Compact(start, limit []byte) error {
	return p.db.Compact(start, limit, true)
}

func (p *PebbleStore) Close() error {
	return p.db.Close()
}

// upperBound returns the first key not sharing prefix, for use as an
// exclusive iterator upper bound over a prefix range.
func upperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	ub := append([]byte{}, prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded above
}

type pebbleBatch struct {
	db   *pebble.DB
	b    *pebble.Batch
	size int
}

func (b *pebbleBatch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.b.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	b.size += len(key)
	return b.b.Delete(key, nil)
}

func (b *pebbleBatch) ValueSize() int { return b.size }

func (b *pebbleBatch) Write() error {
	return b.b.Commit(pebble.NoSync)
}

func (b *pebbleBatch) Reset() {
	b.b.Reset()
	b.size = 0
}

func (b *pebbleBatch) Replay(w ethdb.KeyValueWriter) error {
	reader := b.b.Reader()
	for {
		kind, k, v, ok, err := reader.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch kind {
		case pebble.InternalKeyKindSet:
			if err := w.Put(k, v); err != nil {
				return err
			}
		case pebble.InternalKeyKindDelete:
			if err := w.Delete(k); err != nil {
				return err
			}
		}
	}
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
	err     error
}

func (it *pebbleIterator) Next() bool {
	if it.err != nil || it.iter == nil {
		return false
	}
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.iter.Error()
}

func (it *pebbleIterator) Key() []byte {
	if it.iter == nil {
		return nil
	}
	return it.iter.Key()
}

func (it *pebbleIterator) Value() []byte {
	if it.iter == nil {
		return nil
	}
	return it.iter.Value()
}

func (it *pebbleIterator) Release() {
	if it.iter != nil {
		_ = it.iter.Close()
	}
}

type pebbleSnapshot struct {
	snap *pebble.Snapshot
}

func (s *pebbleSnapshot) Has(key []byte) (bool, error) {
	_, closer, err := s.snap.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (s *pebbleSnapshot) Get(key []byte) ([]byte, error) {
	v, closer, err := s.snap.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, closer.Close()
}

func (s *pebbleSnapshot) Release() {
	_ = s.snap.Close()
}
