package kvstore

import "github.com/ethereum/go-ethereum/ethdb/memorydb"

// NewMemory returns an in-memory KeyValueStore, suitable for tests and
// for the DaCostSource/BalanceAggregator test doubles in this repo. It
// is a thin re-export of ethdb/memorydb, the same backend the teacher
// uses for its own unit tests.
func NewMemory() KeyValueStore {
	return memorydb.New()
}
