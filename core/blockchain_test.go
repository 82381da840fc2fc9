package core

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"offerswap/core/types"
	"offerswap/storage"
)

func TestBlockchainAppendsAndReloads(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	bc, err := NewBlockchain(db)
	if err != nil {
		t.Fatalf("new blockchain: %v", err)
	}
	if !bc.Empty() {
		t.Fatalf("fresh chain should be empty")
	}

	genesis := types.NewBlock(&types.BlockHeader{Height: 0, Timestamp: 1}, nil)
	if err := bc.AddBlock(genesis, nil); err != nil {
		t.Fatalf("add genesis: %v", err)
	}
	genesisHash, err := genesis.Header.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	receipt := &types.Receipt{TxHash: common.HexToHash("0x01"), Status: types.ReceiptSuccess, BlockHeight: 1}
	next := types.NewBlock(&types.BlockHeader{Height: 1, Timestamp: 2, PrevHash: genesisHash}, nil)
	if err := bc.AddBlock(next, []*types.Receipt{receipt}); err != nil {
		t.Fatalf("add block 1: %v", err)
	}

	reopened, err := NewBlockchain(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.GetHeight() != 1 {
		t.Fatalf("expected height 1, got %d", reopened.GetHeight())
	}
	if !bytes.Equal(reopened.Tip(), bc.Tip()) {
		t.Fatalf("tip mismatch after reopen")
	}
	block, err := reopened.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("block 0: %v", err)
	}
	if block.Header.Timestamp != 1 {
		t.Fatalf("unexpected genesis timestamp %d", block.Header.Timestamp)
	}
	stored, err := reopened.Receipt(receipt.TxHash)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if !stored.Succeeded() || stored.BlockHeight != 1 {
		t.Fatalf("unexpected receipt %+v", stored)
	}
}

func TestBlockchainRejectsGaps(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	bc, err := NewBlockchain(db)
	if err != nil {
		t.Fatalf("new blockchain: %v", err)
	}

	if err := bc.AddBlock(types.NewBlock(&types.BlockHeader{Height: 1}, nil), nil); !errors.Is(err, ErrBlockMismatch) {
		t.Fatalf("expected genesis mismatch, got %v", err)
	}
	if err := bc.AddBlock(types.NewBlock(&types.BlockHeader{Height: 0}, nil), nil); err != nil {
		t.Fatalf("add genesis: %v", err)
	}
	if err := bc.AddBlock(types.NewBlock(&types.BlockHeader{Height: 1, PrevHash: []byte{0xde, 0xad}}, nil), nil); !errors.Is(err, ErrBlockMismatch) {
		t.Fatalf("expected prev hash mismatch, got %v", err)
	}
	if _, err := bc.GetBlockByHeight(7); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected missing block, got %v", err)
	}
	if _, err := bc.Receipt(common.Hash{}); !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("expected missing receipt, got %v", err)
	}
}
