package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"offerswap/crypto"
)

func TestTransactionSignAndRecover(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	tx := &Transaction{
		Type:     TxTypeTakeOffer,
		Nonce:    7,
		Accounts: []common.Address{{0x01}, {0x02}},
		Data:     []byte{0xc0},
	}
	require.NoError(t, tx.Sign(key.PrivateKey))

	auth, err := tx.Authority()
	require.NoError(t, err)
	require.Equal(t, key.Authority().Address(), auth.Address())

	// a modified payload recovers a different signer
	tampered := &Transaction{Type: tx.Type, Nonce: 8, Accounts: tx.Accounts, Data: tx.Data, R: tx.R, S: tx.S, V: tx.V}
	other, err := tampered.Authority()
	if err == nil {
		require.NotEqual(t, key.Authority().Address(), other.Address())
	}
}

func TestTransactionHashCoversAccounts(t *testing.T) {
	a := &Transaction{Type: TxTypeMakeOffer, Accounts: []common.Address{{0x01}}}
	b := &Transaction{Type: TxTypeMakeOffer, Accounts: []common.Address{{0x02}}}
	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	require.NotEqual(t, ha, hb)
}

func TestUnsignedTransactionHasNoAuthority(t *testing.T) {
	tx := &Transaction{Type: TxTypeTransfer}
	_, err := tx.Authority()
	require.ErrorIs(t, err, ErrMissingSignature)

	tx.R, tx.S, tx.V = big.NewInt(1), big.NewInt(1), big.NewInt(3)
	_, err = tx.Authority()
	require.ErrorIs(t, err, crypto.ErrInvalidSignature)
}

func TestBlockHeaderHashIsStable(t *testing.T) {
	h := &BlockHeader{Height: 3, Timestamp: 10, PrevHash: []byte{1}}
	first, err := h.Hash()
	require.NoError(t, err)
	second, err := h.Hash()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 32)

	h.Height = 4
	third, err := h.Hash()
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}
