package gasprice

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/chainforge/corenode/types"
)

// UnrecordedBlocks tracks L2 blocks whose DA posting cost has not yet
// been observed. Its cardinality is the field spec.md's UpdaterMetadata
// persists as "unrecorded-blocks set cardinality"; the block->bytes
// mapping itself lives alongside it in a prefixed KV table (see
// store.go) so cardinality tracking can stay an in-memory set without
// re-deriving it from storage on every read.
type UnrecordedBlocks struct {
	heights mapset.Set[types.BlockHeight]
	bytes   map[types.BlockHeight]uint64
}

// NewUnrecordedBlocks constructs an empty set.
func NewUnrecordedBlocks() *UnrecordedBlocks {
	return &UnrecordedBlocks{
		heights: mapset.NewThreadUnsafeSet[types.BlockHeight](),
		bytes:   make(map[types.BlockHeight]uint64),
	}
}

// Put records height's block_bytes, marking it unrecorded.
func (u *UnrecordedBlocks) Put(height types.BlockHeight, blockBytes uint64) {
	u.heights.Add(height)
	u.bytes[height] = blockBytes
}

// Remove clears height from the unrecorded set, once its DA cost has
// been observed.
func (u *UnrecordedBlocks) Remove(height types.BlockHeight) {
	u.heights.Remove(height)
	delete(u.bytes, height)
}

// Cardinality returns the number of still-unrecorded blocks.
func (u *UnrecordedBlocks) Cardinality() int {
	return u.heights.Cardinality()
}

// Contains reports whether height is still unrecorded.
func (u *UnrecordedBlocks) Contains(height types.BlockHeight) bool {
	return u.heights.Contains(height)
}
