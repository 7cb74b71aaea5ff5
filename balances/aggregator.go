// Package balances implements the BalanceAggregator read path: per-
// (owner, asset) coin and message balances maintained by an indexer and
// read with overflow checking, following the same
// read-helper-with-KV-default shape the teacher uses in
// core/rawdb for header fields (data, _ := db.Get(key); if len(data) ==
// 0 { return zero }) and the same checked-width accumulation the
// teacher uses uint256 for in its fee-filtering path (miner/worker.go).
package balances

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/holiman/uint256"

	"github.com/chainforge/corenode/kvstore"
	"github.com/chainforge/corenode/types"
	"github.com/chainforge/corenode/xmetrics"
)

// ErrBalanceOverflow is returned when a balance sum does not fit the
// u64 result width, matching spec.md's DataError class.
var ErrBalanceOverflow = errors.New("balances: overflow")

// ErrIndexationDisabled is returned by Balances when the paginated
// by-owner view is requested but the aggregator was constructed without
// indexation support, matching spec.md's UserError class.
var ErrIndexationDisabled = errors.New("balances: indexation disabled")

const coinBalancesTablePrefix = "cb:"
const messageBalancesTablePrefix = "mb:"

// Aggregator is the BalanceAggregator: it maintains CoinBalances and
// MessageBalances KV tables and answers overflow-checked balance
// queries against them. An indexer elsewhere (outside this package's
// scope, per spec.md's "maintained by an indexer on executor events")
// is responsible for keeping the tables' invariant
// (table value == sum of live entities) true; this type only reads and
// accumulates.
type Aggregator struct {
	db         kvstore.KeyValueStore
	cache      *fastcache.Cache
	indexation bool
}

// Option configures an Aggregator at construction time.
type Option func(*Aggregator)

// WithIndexation enables the paginated Balances(owner, base) view. It is
// off by default: spec.md requires callers to be rejected with
// ErrIndexationDisabled until the feature is explicitly turned on,
// since the by-owner prefix scan assumes the indexer maintains a
// complete CoinBalances table rather than a sparse one.
func WithIndexation(enabled bool) Option {
	return func(a *Aggregator) { a.indexation = enabled }
}

// WithCacheBytes sizes the fastcache read-through cache for hot
// (owner, asset) balance lookups. Zero disables caching.
func WithCacheBytes(bytes int) Option {
	return func(a *Aggregator) {
		if bytes > 0 {
			a.cache = fastcache.New(bytes)
		}
	}
}

// New wraps db as a BalanceAggregator.
func New(db kvstore.KeyValueStore, opts ...Option) *Aggregator {
	a := &Aggregator{db: db}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func coinBalanceKey(owner types.Owner, asset types.AssetID) []byte {
	k := make([]byte, 0, len(coinBalancesTablePrefix)+64)
	k = append(k, coinBalancesTablePrefix...)
	k = append(k, owner[:]...)
	k = append(k, asset[:]...)
	return k
}

func coinBalancePrefix(owner types.Owner) []byte {
	k := make([]byte, 0, len(coinBalancesTablePrefix)+32)
	k = append(k, coinBalancesTablePrefix...)
	k = append(k, owner[:]...)
	return k
}

func messageBalanceKey(owner types.Owner) []byte {
	k := make([]byte, 0, len(messageBalancesTablePrefix)+32)
	k = append(k, messageBalancesTablePrefix...)
	k = append(k, owner[:]...)
	return k
}

// readU64 reads an 8-byte big-endian counter, defaulting to zero when
// absent, mirroring rawdb.ReadHeaderBaseFees's missing-key convention.
func readU64(db kvstore.KeyValueStore, key []byte) (uint64, error) {
	data, _ := db.Get(key)
	if len(data) == 0 {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("balances: malformed counter at key %x", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (a *Aggregator) coinBalance(owner types.Owner, asset types.AssetID) (uint64, error) {
	key := coinBalanceKey(owner, asset)
	if a.cache != nil {
		if v, ok := a.cache.HasGet(nil, key); ok && len(v) == 8 {
			return binary.BigEndian.Uint64(v), nil
		}
	}
	bal, err := readU64(a.db, key)
	if err != nil {
		return 0, err
	}
	if a.cache != nil {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, bal)
		a.cache.Set(key, buf)
	}
	return bal, nil
}

func (a *Aggregator) messageBalance(owner types.Owner) (uint64, error) {
	return readU64(a.db, messageBalanceKey(owner))
}

// Balance answers balance(owner, asset, base_asset): the coin balance
// for asset, plus the message balance when asset is the base asset,
// checked for overflow of the intended u64 result width. Both operands
// fit in a uint256 accumulator with room to spare, so the check has to
// be IsUint64 on the sum, not whether the 256-bit add itself overflowed.
func (a *Aggregator) Balance(owner types.Owner, asset, baseAsset types.AssetID) (*uint256.Int, error) {
	coinBal, err := a.coinBalance(owner, asset)
	if err != nil {
		return nil, fmt.Errorf("balances: read coin balance: %w", err)
	}
	sum := uint256.NewInt(coinBal)
	if asset != baseAsset {
		return sum, nil
	}
	msgBal, err := a.messageBalance(owner)
	if err != nil {
		return nil, fmt.Errorf("balances: read message balance: %w", err)
	}
	sum.Add(sum, uint256.NewInt(msgBal))
	if !sum.IsUint64() {
		xmetrics.BalanceOverflows.Inc(1)
		return nil, ErrBalanceOverflow
	}
	return sum, nil
}

// AssetBalance pairs an asset with its checked balance, the element
// type of Balances' ordered result.
type AssetBalance struct {
	Asset   types.AssetID
	Balance *uint256.Int
}

// Balances answers balances(owner, base_asset): every (owner, *) entry
// in CoinBalances, ordered by asset_id, with the base-asset rule
// applied to each. Requires WithIndexation(true) at construction.
func (a *Aggregator) Balances(owner types.Owner, baseAsset types.AssetID, cursor []byte, limit int) ([]AssetBalance, error) {
	if !a.indexation {
		return nil, ErrIndexationDisabled
	}
	prefix := coinBalancePrefix(owner)
	it := a.db.NewIterator(prefix, cursor)
	defer it.Release()

	var out []AssetBalance
	for it.Next() {
		key := it.Key()
		if len(key) != len(coinBalancesTablePrefix)+64 {
			return out, fmt.Errorf("balances: malformed CoinBalances key %x", key)
		}
		var asset types.AssetID
		copy(asset[:], key[len(coinBalancesTablePrefix)+32:])

		bal, err := a.Balance(owner, asset, baseAsset)
		if err != nil {
			return out, err
		}
		out = append(out, AssetBalance{Asset: asset, Balance: bal})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return out, err
	}
	return out, nil
}

// SetCoinBalance overwrites CoinBalances[(owner,asset)]. Exposed for the
// executor-event indexer (CoinCreated/CoinSpent) and for tests; this
// aggregator does not itself subscribe to executor events.
func (a *Aggregator) SetCoinBalance(owner types.Owner, asset types.AssetID, balance uint64) error {
	key := coinBalanceKey(owner, asset)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, balance)
	if a.cache != nil {
		a.cache.Set(key, buf)
	}
	return a.db.Put(key, buf)
}

// SetMessageBalance overwrites MessageBalances[owner].
func (a *Aggregator) SetMessageBalance(owner types.Owner, balance uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, balance)
	return a.db.Put(messageBalanceKey(owner), buf)
}
