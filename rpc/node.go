package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"offerswap/core/events"
	"offerswap/core/state"
	"offerswap/core/types"
	"offerswap/indexer"
	"offerswap/native/bank"
	"offerswap/native/escrow"
)

// Node is the subset of the ledger node served over RPC.
type Node interface {
	Height() uint64
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	AddTransaction(tx *types.Transaction) (common.Hash, error)
	Receipt(hash common.Hash) (*types.Receipt, error)

	Balance(owner, asset [20]byte) (*uint256.Int, error)
	Holding(addr [20]byte) (*bank.Holding, error)
	NativeBalance(addr [20]byte) (*uint256.Int, error)
	Assets() ([]*state.AssetMetadata, error)

	Offer(addr [20]byte) (*escrow.Offer, error)
	OpenOffers() ([]*escrow.Offer, error)
	StaleOffers(minAge uint64) ([]*escrow.Offer, error)

	DevMint(owner, asset [20]byte, amount *uint256.Int) (*bank.Holding, error)
	Events() *events.Bus
}

// OfferIndex is the SQL offer history, available when the indexer runs.
type OfferIndex interface {
	OffersByMaker(ctx context.Context, maker string) ([]indexer.Offer, error)
}
