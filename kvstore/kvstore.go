// Package kvstore defines the ordered key-value abstraction that
// coinindex and gasprice persist through. spec.md treats the storage
// engine's internals as opaque ("an ordered key-value store is
// assumed"); this package is the seam: two real backends satisfy it,
// mirroring the teacher's own ethdb.KeyValueReader/Writer/Iteratee split
// (core/rawdb/accessors_chain_rollup.go) and its choice of
// cockroachdb/pebble as the production engine (teacher go.mod).
package kvstore

import "github.com/ethereum/go-ethereum/ethdb"

// Iterator walks a range of keys in ascending lexicographic order.
// Implementations must not materialize the whole range up front.
type Iterator = ethdb.Iterator

// KeyValueStore is the minimal ordered-KV contract this repo needs:
// point reads/writes/deletes plus prefix iteration. Reusing
// ethdb.KeyValueStore directly (rather than declaring a parallel
// interface) means both the memory and pebble backends below, and any
// future ethdb-compatible backend, satisfy it for free.
type KeyValueStore = ethdb.KeyValueStore

// Batch groups several mutations into one atomic write, matching
// ethdb.Batch. GasPriceController uses this for its one-transaction-
// per-L2-tick commit discipline (spec.md §4.4).
type Batch = ethdb.Batch
