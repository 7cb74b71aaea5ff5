package coinindex

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/corenode/types"
)

// byteRange returns a 32-byte slice counting up from lo to hi inclusive,
// matching the §8 scenario-4 fixture style (owner = 00..1F, etc).
func byteRange(lo, hi byte) []byte {
	out := make([]byte, 0, int(hi-lo)+1)
	for b := lo; ; b++ {
		out = append(out, b)
		if b == hi {
			break
		}
	}
	return out
}

func TestCoinsToSpendIndexKeyGoldenVector(t *testing.T) {
	var owner types.Owner
	copy(owner[:], byteRange(0x00, 0x1F))
	var asset types.AssetID
	copy(asset[:], byteRange(0x20, 0x3F))
	var txID types.TxID
	copy(txID[:], byteRange(0x50, 0x6F))

	utxo := types.UtxoId{TxID: txID, OutputIndex: 0xFEFF}
	const amount = uint64(0x4041424344454647)

	k := FromCoin(owner, asset, amount, utxo)

	require.Len(t, k, KeyLength)
	require.Equal(t, KeyLength, 105)
	require.Equal(t, byte(NonRetryable), k[64])

	want := hex.EncodeToString(byteRange(0x00, 0x1F)) +
		hex.EncodeToString(byteRange(0x20, 0x3F)) +
		"01" +
		"4041424344454647" +
		hex.EncodeToString(byteRange(0x50, 0x6F)) +
		"feff"
	require.Equal(t, want, hex.EncodeToString(k.Bytes()))
}

func TestKeyRoundTripsCoin(t *testing.T) {
	var owner types.Owner
	owner[0] = 0xAA
	var asset types.AssetID
	asset[0] = 0xBB
	var txID types.TxID
	txID[0] = 0xCC
	utxo := types.UtxoId{TxID: txID, OutputIndex: 7}

	k := FromCoin(owner, asset, 12345, utxo)
	decoded, err := Decode(k.Bytes())
	require.NoError(t, err)

	require.Equal(t, owner, decoded.Owner())
	require.Equal(t, asset, decoded.Asset())
	require.Equal(t, uint64(12345), decoded.Amount())
	require.False(t, decoded.Retryable())
	require.False(t, decoded.IsMessage())

	gotUtxo, err := decoded.UtxoId()
	require.NoError(t, err)
	require.Equal(t, utxo, gotUtxo)
}

func TestKeyRoundTripsMessage(t *testing.T) {
	var owner types.Owner
	owner[1] = 1
	var asset types.AssetID
	var nonce types.Nonce
	nonce[2] = 2

	k := FromMessage(owner, asset, 99, nonce, true)
	decoded, err := Decode(k.Bytes())
	require.NoError(t, err)

	require.True(t, decoded.Retryable())
	require.True(t, decoded.IsMessage())

	gotNonce, err := decoded.Nonce()
	require.NoError(t, err)
	require.Equal(t, nonce, gotNonce)
}

func TestAmountOrderingMatchesByteOrdering(t *testing.T) {
	var owner types.Owner
	var asset types.AssetID
	var tx types.TxID

	lo := FromCoin(owner, asset, 10, types.UtxoId{TxID: tx, OutputIndex: 0})
	hi := FromCoin(owner, asset, 20, types.UtxoId{TxID: tx, OutputIndex: 0})

	require.Less(t, string(lo.Bytes()), string(hi.Bytes()))
}

func TestNonRetryableSortsBeforeRetryable(t *testing.T) {
	var owner types.Owner
	var asset types.AssetID
	var nonce types.Nonce

	nonRetryable := FromMessage(owner, asset, 5, nonce, false)
	retryable := FromMessage(owner, asset, 5, nonce, true)

	require.Less(t, string(nonRetryable.Bytes()), string(retryable.Bytes()))
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode(make([]byte, KeyLength-1))
	require.ErrorIs(t, err, ErrInvalidKey)
}
