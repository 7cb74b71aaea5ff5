// Package coinindex implements the amount-ordered CoinsToSpendIndex: a
// packed fixed-width binary key over an ordered KV store, following the
// same "byte-addressed key, not a struct" discipline the teacher uses
// for its trie/snapshot keys in core/rawdb (see schema_rollup.go's
// versioned single-byte-prefixed key helpers) — here generalized to a
// multi-field packed layout instead of a single prefix byte.
package coinindex

import (
	"encoding/binary"
	"fmt"

	"github.com/chainforge/corenode/types"
)

const (
	// KeyLength is the fixed size in bytes of every CoinsToSpendIndexKey:
	// owner(32) + asset(32) + retryable(1) + amount(8) + foreign_key(34).
	KeyLength = 32 + 32 + 1 + 8 + 34

	offsetOwner     = 0
	offsetAsset     = 32
	offsetRetryable = 64
	offsetAmount    = 65
	offsetForeign   = 73

	// NonRetryable sorts before Retryable under lexicographic comparison.
	NonRetryable byte = 0x01
	Retryable    byte = 0xFF
)

// messagePadding marks the final two bytes of a message's foreign key,
// distinguishing it in length-aligned form from a coin's output_index.
var messagePadding = [2]byte{0xFF, 0xFF}

// ErrInvalidKey is returned by Decode when the input is not exactly
// KeyLength bytes.
var ErrInvalidKey = fmt.Errorf("coinindex: key must be exactly %d bytes", KeyLength)

// Key is the packed, fixed-width CoinsToSpendIndex key. Its zero value is
// not meaningful; always construct via FromCoin/FromMessage or Decode.
type Key [KeyLength]byte

// FromCoin builds the key for a spendable coin.
func FromCoin(owner types.Owner, asset types.AssetID, amount uint64, utxo types.UtxoId) Key {
	var k Key
	copy(k[offsetOwner:offsetAsset], owner[:])
	copy(k[offsetAsset:offsetRetryable], asset[:])
	k[offsetRetryable] = NonRetryable
	binary.BigEndian.PutUint64(k[offsetAmount:offsetForeign], amount)
	copy(k[offsetForeign:offsetForeign+32], utxo.TxID[:])
	binary.BigEndian.PutUint16(k[offsetForeign+32:], utxo.OutputIndex)
	return k
}

// FromMessage builds the key for an imported message. retryable selects
// between the 0x01/0xFF ordering classes per has_retryable_amount().
func FromMessage(owner types.Owner, asset types.AssetID, amount uint64, nonce types.Nonce, retryable bool) Key {
	var k Key
	copy(k[offsetOwner:offsetAsset], owner[:])
	copy(k[offsetAsset:offsetRetryable], asset[:])
	if retryable {
		k[offsetRetryable] = Retryable
	} else {
		k[offsetRetryable] = NonRetryable
	}
	binary.BigEndian.PutUint64(k[offsetAmount:offsetForeign], amount)
	copy(k[offsetForeign:offsetForeign+32], nonce[:])
	copy(k[offsetForeign+32:], messagePadding[:])
	return k
}

// Bytes returns the key's raw byte slice, suitable for writing to a
// kvstore.KeyValueStore.
func (k Key) Bytes() []byte { return k[:] }

// Owner returns the owner field.
func (k Key) Owner() (o types.Owner) { copy(o[:], k[offsetOwner:offsetAsset]); return }

// Asset returns the asset_id field.
func (k Key) Asset() (a types.AssetID) { copy(a[:], k[offsetAsset:offsetRetryable]); return }

// Retryable reports whether this entry belongs to the retryable
// ordering class (0xFF).
func (k Key) Retryable() bool { return k[offsetRetryable] == Retryable }

// Amount returns the big-endian-encoded spendable amount.
func (k Key) Amount() uint64 { return binary.BigEndian.Uint64(k[offsetAmount:offsetForeign]) }

// IsMessage reports whether the foreign key's trailing two bytes are the
// message padding marker.
func (k Key) IsMessage() bool {
	return k[offsetForeign+32] == messagePadding[0] && k[offsetForeign+33] == messagePadding[1]
}

// UtxoId decodes the foreign key as a coin reference. The offset is
// always counted from byte 73 (after owner/asset/retryable/amount) —
// not from byte 0, which the design notes flag as the source's bug.
func (k Key) UtxoId() (types.UtxoId, error) {
	if k.IsMessage() {
		return types.UtxoId{}, fmt.Errorf("coinindex: key is a message entry, not a coin")
	}
	var u types.UtxoId
	copy(u.TxID[:], k[offsetForeign:offsetForeign+32])
	u.OutputIndex = binary.BigEndian.Uint16(k[offsetForeign+32:])
	return u, nil
}

// Nonce decodes the foreign key as a message reference.
func (k Key) Nonce() (types.Nonce, error) {
	if !k.IsMessage() {
		return types.Nonce{}, fmt.Errorf("coinindex: key is a coin entry, not a message")
	}
	var n types.Nonce
	copy(n[:], k[offsetForeign:offsetForeign+32])
	return n, nil
}

// Decode parses a raw byte slice into a Key, validating its length.
func Decode(raw []byte) (Key, error) {
	var k Key
	if len(raw) != KeyLength {
		return k, ErrInvalidKey
	}
	copy(k[:], raw)
	return k, nil
}

// Prefix returns the owner||asset prefix shared by every key for a
// given (owner, asset) pair, for use as an iteration bound.
func Prefix(owner types.Owner, asset types.AssetID) []byte {
	p := make([]byte, 0, 64)
	p = append(p, owner[:]...)
	p = append(p, asset[:]...)
	return p
}
