package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Owner, AssetID and TxID are 32-byte identifiers. They reuse
// common.Hash exactly the way the teacher reuses it for every 32-byte
// value in the system, rather than introducing a parallel fixed-byte
// array type.
type (
	Owner   = common.Hash
	AssetID = common.Hash
	TxID    = common.Hash
)

// UtxoId identifies a coin by the transaction that created it and the
// position of the output within that transaction.
type UtxoId struct {
	TxID        TxID
	OutputIndex uint16
}

// Nonce identifies a bridged message.
type Nonce = common.Hash

// BlockHeader carries the fields of a produced block this package cares
// about. The executable body and state transition are opaque to this
// core and live behind the BlockProducer contract (see package producer).
type BlockHeader struct {
	Height    BlockHeight
	Time      Tai64Timestamp
	PrevRoot  common.Hash
	Producer  common.Address
}

// Seal is the consensus seal attached to a block. PoA uses a single
// authority signature over the block hash.
type Seal struct {
	Signature []byte
}

// SealedBlock pairs a produced block entity with its consensus seal. It
// is produced once and never mutated after sealing.
type SealedBlock[Block any] struct {
	Block Block
	Seal  Seal
}

// Hash returns a stand-in hash of the header for signing purposes. Real
// block hashing (over the full body) is out of scope here; the producer
// signs this hash of the header its BlockProducer dependency returns,
// after setting the header's height and time.
func (h BlockHeader) Hash() common.Hash {
	buf := make([]byte, 0, 4+8+32+20)
	var heightBytes [4]byte
	heightBytes[0] = byte(h.Height >> 24)
	heightBytes[1] = byte(h.Height >> 16)
	heightBytes[2] = byte(h.Height >> 8)
	heightBytes[3] = byte(h.Height)
	buf = append(buf, heightBytes[:]...)
	var timeBytes [8]byte
	for i := 0; i < 8; i++ {
		timeBytes[7-i] = byte(h.Time >> (8 * i))
	}
	buf = append(buf, timeBytes[:]...)
	buf = append(buf, h.PrevRoot.Bytes()...)
	buf = append(buf, h.Producer.Bytes()...)
	return common.BytesToHash(crypto.Keccak256(buf))
}
