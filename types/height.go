// Package types holds the identifiers and wire records shared by every
// component of the PoA core: block heights, Tai64 timestamps, UTXO
// identifiers and the sealed-block envelope.
package types

import (
	"errors"
	"math"
)

// BlockHeight is a monotonically increasing 32-bit block counter.
type BlockHeight uint32

// ErrHeightOverflow is returned by Next when height is already at its
// maximum value. The caller must treat this as a fatal invariant
// violation: a well-formed chain never reaches it.
var ErrHeightOverflow = errors.New("types: block height overflow")

// Next returns the successor height, or ErrHeightOverflow if h is already
// math.MaxUint32.
func (h BlockHeight) Next() (BlockHeight, error) {
	if h == math.MaxUint32 {
		return 0, ErrHeightOverflow
	}
	return h + 1, nil
}

// Uint32 returns the underlying value.
func (h BlockHeight) Uint32() uint32 { return uint32(h) }
