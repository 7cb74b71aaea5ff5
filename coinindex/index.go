package coinindex

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/chainforge/corenode/kvstore"
	"github.com/chainforge/corenode/types"
)

// EntityTag is the single-byte value stored alongside each index key,
// identifying which entity class the key refers to.
type EntityTag byte

const (
	TagCoin    EntityTag = 0x01
	TagMessage EntityTag = 0x02
)

// ErrNotFound is returned by Remove when no entry exists for the
// derived key. It is non-fatal and should be logged by the caller.
var ErrNotFound = errors.New("coinindex: entry not found")

// Retryability filters an Iter call to a subset of the retryable
// ordering class.
type Retryability int

const (
	Any Retryability = iota
	OnlyRetryable
	OnlyNonRetryable
)

// Index is the amount-ordered CoinsToSpendIndex over an ordered KV
// store. It derives fixed-width packed keys (see key.go) and never
// materializes a full range scan: Iter returns a lazy cursor.
type Index struct {
	db kvstore.KeyValueStore
}

// New wraps db as a CoinsToSpendIndex.
func New(db kvstore.KeyValueStore) *Index {
	return &Index{db: db}
}

// InsertCoin records a spendable coin. Re-inserting the same (owner,
// asset, amount, utxo) is idempotent; it silently overwrites the tag.
func (idx *Index) InsertCoin(owner types.Owner, asset types.AssetID, amount uint64, utxo types.UtxoId) error {
	k := FromCoin(owner, asset, amount, utxo)
	return idx.db.Put(k.Bytes(), []byte{byte(TagCoin)})
}

// InsertMessage records an imported message.
func (idx *Index) InsertMessage(owner types.Owner, asset types.AssetID, amount uint64, nonce types.Nonce, retryable bool) error {
	k := FromMessage(owner, asset, amount, nonce, retryable)
	return idx.db.Put(k.Bytes(), []byte{byte(TagMessage)})
}

// Remove deletes the entry for a previously-inserted coin key. Coin
// spends and message consumption both reconstruct the same key
// deterministically and call this.
func (idx *Index) Remove(k Key) error {
	ok, err := idx.db.Has(k.Bytes())
	if err != nil {
		return fmt.Errorf("coinindex: remove: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return idx.db.Delete(k.Bytes())
}

// Entry is one yielded (key, tag) pair from Iter.
type Entry struct {
	Key Key
	Tag EntityTag
}

// Iter returns entries for (owner, asset) in ascending-amount order,
// optionally filtered by retryability. It does not materialize the
// full range: the returned slice reflects a single bounded scan up to
// limit entries, and the last key can be re-supplied as cursor to
// resume.
//
// limit <= 0 means "no limit" (scan to range end); callers that want a
// truly lazy sequence should prefer small limits and repeated calls.
func (idx *Index) Iter(owner types.Owner, asset types.AssetID, filter Retryability, cursor []byte, limit int) ([]Entry, error) {
	prefix := Prefix(owner, asset)
	start := cursor
	resume := len(cursor) == KeyLength && bytes.HasPrefix(cursor, prefix)
	if resume {
		// A full key from a previous call: the store's start position is
		// relative to the prefix, and the cursor key itself is skipped.
		start = cursor[len(prefix):]
	}
	it := idx.db.NewIterator(prefix, start)
	defer it.Release()

	var out []Entry
	for it.Next() {
		if resume && bytes.Equal(it.Key(), cursor) {
			continue
		}
		key, err := Decode(it.Key())
		if err != nil {
			return out, fmt.Errorf("coinindex: iter: %w", err)
		}
		switch filter {
		case OnlyRetryable:
			if !key.Retryable() {
				continue
			}
		case OnlyNonRetryable:
			if key.Retryable() {
				continue
			}
		}
		val := it.Value()
		if len(val) != 1 {
			return out, fmt.Errorf("coinindex: iter: malformed tag value for key %x", it.Key())
		}
		out = append(out, Entry{Key: key, Tag: EntityTag(val[0])})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return out, err
	}
	return out, nil
}
