package gasprice

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/chainforge/corenode/kvstore"
	"github.com/chainforge/corenode/types"
)

const (
	metadataVersion = 1

	keyMetadata       = "gp:metadata"
	keyRecordedHeight = "gp:recorded_height"
	prefixUnrecorded  = "gp:unrecorded:"
)

// UpdaterMetadata is the versioned, RLP-encoded record persisted
// atomically with every L2 block: {version, l2 block height last
// processed, exec price state, DA price state, last profit,
// unrecorded-blocks set cardinality}. RLP is the teacher's own choice
// for this kind of compact binary persistence record (see
// accessors_chain_rollup.go's header field codecs).
type UpdaterMetadata struct {
	Version               uint8
	L2BlockHeight         uint32
	ExecGasPrice          uint64
	ScaledDaGasPrice      uint64
	LastProfitBits        uint64 // two's-complement bit pattern of a signed int64; rlp has no signed-integer encoding
	UnrecordedBlocksCount uint64
}

// LastProfit decodes the signed profit value from its RLP-safe bit
// pattern.
func (m UpdaterMetadata) LastProfit() int64 { return int64(m.LastProfitBits) }

func metadataFromUpdater(u *AlgorithmUpdaterV1, unrecordedCount int) UpdaterMetadata {
	return UpdaterMetadata{
		Version:               metadataVersion,
		L2BlockHeight:         u.L2BlockHeight.Uint32(),
		ExecGasPrice:          u.ExecGasPrice,
		ScaledDaGasPrice:      u.ScaledDaGasPrice,
		LastProfitBits:        uint64(u.LastProfit),
		UnrecordedBlocksCount: uint64(unrecordedCount),
	}
}

// Store is the persistence boundary for GasPriceController: UpdaterMetadata
// and RecordedHeight as single versioned keys, UnrecordedBlocks as a
// prefixed table keyed by BlockHeight — exactly the layout spec.md §6
// enumerates.
type Store struct {
	db kvstore.KeyValueStore
}

// NewStore wraps db.
func NewStore(db kvstore.KeyValueStore) *Store {
	return &Store{db: db}
}

// Tx is a single-writer transaction over the underlying batch, giving
// the GasPriceController its "open, mutate, commit" atomicity per tick
// (spec.md §4.4 step b/h).
type Tx struct {
	batch kvstore.Batch
}

// Begin opens a new transaction. Nothing is visible to other readers
// until Commit is called.
func (s *Store) Begin() *Tx {
	return &Tx{batch: s.db.NewBatch()}
}

// Commit flushes every write made through this transaction atomically.
func (t *Tx) Commit() error {
	if err := t.batch.Write(); err != nil {
		return fmt.Errorf("gasprice: commit transaction: %w", err)
	}
	return nil
}

// SetMetadata stages the versioned UpdaterMetadata write.
func (t *Tx) SetMetadata(m UpdaterMetadata) error {
	enc, err := rlp.EncodeToBytes(&m)
	if err != nil {
		return fmt.Errorf("gasprice: encode metadata: %w", err)
	}
	return t.batch.Put([]byte(keyMetadata), enc)
}

// SetRecordedHeight stages the RecordedHeight scalar write.
func (t *Tx) SetRecordedHeight(h types.BlockHeight) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, h.Uint32())
	return t.batch.Put([]byte(keyRecordedHeight), buf)
}

// PutUnrecorded stages an UnrecordedBlocks[height] = blockBytes write.
func (t *Tx) PutUnrecorded(height types.BlockHeight, blockBytes uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, blockBytes)
	return t.batch.Put(unrecordedKey(height), buf)
}

// DeleteUnrecorded stages the removal of UnrecordedBlocks[height].
func (t *Tx) DeleteUnrecorded(height types.BlockHeight) error {
	return t.batch.Delete(unrecordedKey(height))
}

// DeleteUnrecordedRange stages the removal of every UnrecordedBlocks
// entry in [start, end] inclusive.
func (t *Tx) DeleteUnrecordedRange(start, end types.BlockHeight) error {
	for h := start.Uint32(); ; h++ {
		if err := t.DeleteUnrecorded(types.BlockHeight(h)); err != nil {
			return err
		}
		if h == end.Uint32() {
			return nil
		}
	}
}

func unrecordedKey(height types.BlockHeight) []byte {
	buf := make([]byte, len(prefixUnrecorded)+4)
	copy(buf, prefixUnrecorded)
	binary.BigEndian.PutUint32(buf[len(prefixUnrecorded):], height.Uint32())
	return buf
}

// ReadMetadata loads the persisted UpdaterMetadata, if any. A missing
// key is not an error: Get's "not found" behavior is backend-specific
// (pebble normalizes to a nil error, memorydb does not), so the error
// is ignored the same way the teacher's own rawdb accessors do and
// absence is read off len(data) instead.
func (s *Store) ReadMetadata() (*UpdaterMetadata, error) {
	data, _ := s.db.Get([]byte(keyMetadata))
	if len(data) == 0 {
		return nil, nil
	}
	var m UpdaterMetadata
	if err := rlp.DecodeBytes(data, &m); err != nil {
		return nil, fmt.Errorf("gasprice: decode metadata: %w", err)
	}
	return &m, nil
}

// ReadRecordedHeight loads the persisted RecordedHeight, defaulting to
// zero if unset.
func (s *Store) ReadRecordedHeight() (types.BlockHeight, error) {
	data, _ := s.db.Get([]byte(keyRecordedHeight))
	if len(data) == 0 {
		return 0, nil
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("gasprice: malformed recorded height value")
	}
	return types.BlockHeight(binary.BigEndian.Uint32(data)), nil
}

// LoadUnrecordedBlocks rebuilds the in-memory UnrecordedBlocks set from
// the persisted prefixed table, used on startup.
func (s *Store) LoadUnrecordedBlocks() (*UnrecordedBlocks, error) {
	ub := NewUnrecordedBlocks()
	it := s.db.NewIterator([]byte(prefixUnrecorded), nil)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != len(prefixUnrecorded)+4 {
			return nil, fmt.Errorf("gasprice: malformed unrecorded-blocks key %x", key)
		}
		height := types.BlockHeight(binary.BigEndian.Uint32(key[len(prefixUnrecorded):]))
		val := it.Value()
		if len(val) != 8 {
			return nil, fmt.Errorf("gasprice: malformed unrecorded-blocks value for height %d", height)
		}
		ub.Put(height, binary.BigEndian.Uint64(val))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return ub, nil
}
