package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"offerswap/core/events"
	ledgerstate "offerswap/core/state"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/bank"
	"offerswap/native/escrow"
	"offerswap/storage/trie"
)

var (
	ErrUnknownTxType = errors.New("core: unknown transaction type")
	ErrHoldingOwner  = errors.New("core: holdings can only be opened by their owner")
)

// StateProcessor applies transactions to the ledger state. Each transaction
// runs inside a state snapshot; a failing transaction is reverted and
// recorded in a failed receipt.
type StateProcessor struct {
	Trie          *trie.Trie
	state         *ledgerstate.Manager
	Bank          *bank.Bank
	EscrowEngine  *escrow.Engine
	committedRoot common.Hash
	height        uint64
	buffer        *events.Buffer
}

func NewStateProcessor(tr *trie.Trie) (*StateProcessor, error) {
	if tr == nil {
		return nil, fmt.Errorf("core: state trie required")
	}
	manager := ledgerstate.NewManager(tr)
	sp := &StateProcessor{
		Trie:          tr,
		state:         manager,
		committedRoot: tr.Root(),
		buffer:        &events.Buffer{},
	}
	sp.Bank = bank.New(manager)
	sp.Bank.SetEmitter(sp.buffer)
	sp.EscrowEngine = escrow.NewEngine(manager, sp.Bank)
	sp.EscrowEngine.SetEmitter(sp.buffer)
	sp.EscrowEngine.SetHeightFunc(func() uint64 { return sp.height })
	return sp, nil
}

// Manager exposes the ledger state manager.
func (sp *StateProcessor) Manager() *ledgerstate.Manager { return sp.state }

// SetHeight sets the height of the block being applied.
func (sp *StateProcessor) SetHeight(height uint64) { sp.height = height }

// CurrentRoot returns the last committed state root.
func (sp *StateProcessor) CurrentRoot() common.Hash {
	return sp.committedRoot
}

// PendingRoot returns the root of the trie including in-memory mutations.
func (sp *StateProcessor) PendingRoot() common.Hash {
	return sp.Trie.Hash()
}

// ResetToRoot discards any in-memory changes and reloads the trie at the
// provided root hash.
func (sp *StateProcessor) ResetToRoot(root common.Hash) error {
	if err := sp.Trie.Reset(root); err != nil {
		return err
	}
	sp.committedRoot = root
	sp.buffer.Reset()
	return nil
}

// Commit persists the current trie contents and returns the resulting state
// root.
func (sp *StateProcessor) Commit(blockNumber uint64) (common.Hash, error) {
	root, err := sp.Trie.Commit(sp.committedRoot, blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	sp.committedRoot = root
	return root, nil
}

// ApplyTransaction executes tx and returns its receipt. Transaction level
// failures are reported through the receipt; the returned error is reserved
// for transactions that cannot be identified at all.
func (sp *StateProcessor) ApplyTransaction(tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("core: nil transaction")
	}
	hash, err := tx.TxHash()
	if err != nil {
		return nil, err
	}
	receipt := &types.Receipt{TxHash: hash, Type: tx.Type, BlockHeight: sp.height}

	sp.buffer.Reset()
	err = sp.state.Atomically(func() error {
		auth, err := tx.Authority()
		if err != nil {
			return err
		}
		receipt.Signer = crypto.FormatAccount(auth.Address())
		return sp.dispatch(tx, auth)
	})
	if err != nil {
		sp.buffer.Reset()
		receipt.Status = types.ReceiptFailed
		receipt.Code = escrow.Code(err)
		receipt.Error = err.Error()
		return receipt, nil
	}
	receipt.Status = types.ReceiptSuccess
	for _, evt := range sp.buffer.Drain() {
		receipt.Events = append(receipt.Events, *evt)
	}
	return receipt, nil
}

func (sp *StateProcessor) dispatch(tx *types.Transaction, auth crypto.Authority) error {
	switch tx.Type {
	case types.TxTypeTransfer:
		return sp.applyTransfer(tx, auth)
	case types.TxTypeCreateHolding:
		return sp.applyCreateHolding(tx, auth)
	case types.TxTypeMakeOffer:
		return sp.applyMakeOffer(tx, auth)
	case types.TxTypeTakeOffer:
		return sp.applyTakeOffer(tx, auth)
	default:
		return fmt.Errorf("%w: %w %d", escrow.ErrMalformed, ErrUnknownTxType, tx.Type)
	}
}

func (sp *StateProcessor) applyTransfer(tx *types.Transaction, auth crypto.Authority) error {
	from, to, err := bank.ParseTransferAccounts(tx.Accounts)
	if err != nil {
		return err
	}
	data, err := bank.DecodeTransferData(tx.Data)
	if err != nil {
		return err
	}
	return sp.Bank.Transfer(auth, from, to, uint256.NewInt(data.Amount))
}

func (sp *StateProcessor) applyCreateHolding(tx *types.Transaction, auth crypto.Authority) error {
	owner, asset, err := bank.ParseCreateHoldingAccounts(tx.Accounts)
	if err != nil {
		return err
	}
	// holdings for derived owners such as offers are only ever created by
	// the program that controls them
	if !auth.Is(owner) {
		return fmt.Errorf("%w: %w", escrow.ErrUnauthorized, ErrHoldingOwner)
	}
	_, err = sp.Bank.OpenHolding(auth, owner, asset)
	return err
}

func (sp *StateProcessor) applyMakeOffer(tx *types.Transaction, auth crypto.Authority) error {
	accts, err := escrow.MakeOfferAccountsFromList(tx.Accounts)
	if err != nil {
		return err
	}
	data, err := escrow.DecodeMakeOfferData(tx.Data)
	if err != nil {
		return err
	}
	_, err = sp.EscrowEngine.MakeOffer(auth, accts, data)
	return err
}

func (sp *StateProcessor) applyTakeOffer(tx *types.Transaction, auth crypto.Authority) error {
	accts, err := escrow.TakeOfferAccountsFromList(tx.Accounts)
	if err != nil {
		return err
	}
	_, err = sp.EscrowEngine.TakeOffer(auth, accts)
	return err
}
