package core

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"offerswap/core/state"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/bank"
	"offerswap/native/escrow"
	"offerswap/storage"
	"offerswap/storage/trie"
)

func newTestProcessor(t *testing.T) (*StateProcessor, [20]byte) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	sp, err := NewStateProcessor(tr)
	require.NoError(t, err)
	require.NoError(t, sp.Manager().SetDepositParams(state.DepositParams{RecordBase: 10, PerByte: 1}))
	asset, err := sp.Bank.RegisterAsset("USD", 2)
	require.NoError(t, err)
	return sp, asset
}

func signedTx(t *testing.T, key *crypto.PrivateKey, txType types.TxType, accounts [][20]byte, data []byte) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{Type: txType, Data: data}
	for _, a := range accounts {
		tx.Accounts = append(tx.Accounts, a)
	}
	require.NoError(t, tx.Sign(key.PrivateKey))
	return tx
}

func TestApplyCreateHoldingAndTransfer(t *testing.T) {
	sp, asset := newTestProcessor(t)
	alice, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	bob, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	aliceAddr, bobAddr := addrOf(alice), addrOf(bob)
	require.NoError(t, sp.Manager().CreditNative(aliceAddr, uint256.NewInt(1_000)))
	require.NoError(t, sp.Manager().CreditNative(bobAddr, uint256.NewInt(1_000)))

	for _, key := range []*crypto.PrivateKey{alice, bob} {
		receipt, err := sp.ApplyTransaction(signedTx(t, key, types.TxTypeCreateHolding, [][20]byte{addrOf(key), asset}, nil))
		require.NoError(t, err)
		require.True(t, receipt.Succeeded(), receipt.Error)
		require.Equal(t, crypto.FormatAccount(addrOf(key)), receipt.Signer)
		require.Equal(t, bank.EventTypeHoldingOpened, receipt.Events[0].Type)
	}

	from, _, err := bank.HoldingAddress(aliceAddr, asset)
	require.NoError(t, err)
	to, _, err := bank.HoldingAddress(bobAddr, asset)
	require.NoError(t, err)
	require.NoError(t, sp.Bank.Mint(from, uint256.NewInt(30)))

	data, err := bank.TransferData{Amount: 12}.Encode()
	require.NoError(t, err)
	receipt, err := sp.ApplyTransaction(signedTx(t, alice, types.TxTypeTransfer, [][20]byte{from, to}, data))
	require.NoError(t, err)
	require.True(t, receipt.Succeeded(), receipt.Error)

	balance, err := sp.Bank.Balance(bobAddr, asset)
	require.NoError(t, err)
	require.Equal(t, uint64(12), balance.Uint64())

	// bob cannot spend from alice's holding
	receipt, err = sp.ApplyTransaction(signedTx(t, bob, types.TxTypeTransfer, [][20]byte{from, to}, data))
	require.NoError(t, err)
	require.Equal(t, escrow.CodeUnauthorized, receipt.Code)
}

func TestApplyCreateHoldingForAnotherOwnerIsRejected(t *testing.T) {
	sp, asset := newTestProcessor(t)
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, sp.Manager().CreditNative(addrOf(key), uint256.NewInt(1_000)))

	// pre-creating the vault of a future offer must not be possible
	offer, _, err := escrow.OfferAddress(addrOf(key), 1)
	require.NoError(t, err)
	before := sp.PendingRoot()
	receipt, err := sp.ApplyTransaction(signedTx(t, key, types.TxTypeCreateHolding, [][20]byte{offer, asset}, nil))
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.Equal(t, escrow.CodeUnauthorized, receipt.Code)
	require.Contains(t, receipt.Error, ErrHoldingOwner.Error())
	require.Equal(t, before, sp.PendingRoot())
}

func TestApplyRejectsUnknownAndUnsignedTransactions(t *testing.T) {
	sp, _ := newTestProcessor(t)
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	receipt, err := sp.ApplyTransaction(signedTx(t, key, types.TxType(0x7f), nil, nil))
	require.NoError(t, err)
	require.Equal(t, escrow.CodeMalformed, receipt.Code)

	receipt, err = sp.ApplyTransaction(&types.Transaction{Type: types.TxTypeTransfer})
	require.NoError(t, err)
	require.Equal(t, escrow.CodeMalformed, receipt.Code)
	require.Empty(t, receipt.Signer)
}

func TestApplyMalformedInstructionData(t *testing.T) {
	sp, asset := newTestProcessor(t)
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	accts, err := escrow.DeriveMakeOfferAccounts(addrOf(key), 1, asset, asset)
	require.NoError(t, err)

	tx := &types.Transaction{Type: types.TxTypeMakeOffer, Accounts: accts.List(), Data: []byte{0xff, 0x00}}
	require.NoError(t, tx.Sign(key.PrivateKey))
	receipt, err := sp.ApplyTransaction(tx)
	require.NoError(t, err)
	require.Equal(t, escrow.CodeMalformed, receipt.Code)

	tx = &types.Transaction{Type: types.TxTypeTakeOffer, Accounts: accts.List()[:2]}
	require.NoError(t, tx.Sign(key.PrivateKey))
	receipt, err = sp.ApplyTransaction(tx)
	require.NoError(t, err)
	require.Equal(t, escrow.CodeMalformed, receipt.Code)
}
