package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"offerswap/core/types"
	"offerswap/storage"
)

var (
	ErrBlockNotFound   = errors.New("core: block not found")
	ErrReceiptNotFound = errors.New("core: receipt not found")
	ErrBlockMismatch   = errors.New("core: block does not extend the tip")
)

var (
	tipKey        = []byte("chain/tip")
	blockPrefix   = []byte("chain/block/")
	heightPrefix  = []byte("chain/height/")
	receiptPrefix = []byte("chain/receipt/")
)

// Blockchain stores blocks and receipts in the raw key space of the node
// database. The state trie lives in the same store under hashed keys.
type Blockchain struct {
	db     storage.Database
	mu     sync.RWMutex
	tip    []byte
	header *types.BlockHeader
}

// NewBlockchain opens the chain stored in db. An empty database yields an
// empty chain awaiting its genesis block.
func NewBlockchain(db storage.Database) (*Blockchain, error) {
	bc := &Blockchain{db: db}
	tip, err := db.Get(tipKey)
	if errors.Is(err, storage.ErrNotFound) {
		return bc, nil
	}
	if err != nil {
		return nil, err
	}
	block, err := bc.GetBlockByHash(tip)
	if err != nil {
		return nil, fmt.Errorf("load tip: %w", err)
	}
	bc.tip = tip
	bc.header = block.Header
	return bc, nil
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(heightPrefix)+8)
	copy(key, heightPrefix)
	binary.BigEndian.PutUint64(key[len(heightPrefix):], height)
	return key
}

func prefixed(prefix, suffix []byte) []byte {
	return append(append([]byte(nil), prefix...), suffix...)
}

// AddBlock appends b and its receipts. The first block must have height zero
// and every later block must extend the tip.
func (bc *Blockchain) AddBlock(b *types.Block, receipts []*types.Receipt) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.header == nil {
		if b.Header.Height != 0 || len(b.Header.PrevHash) != 0 {
			return fmt.Errorf("%w: expected genesis block", ErrBlockMismatch)
		}
	} else if b.Header.Height != bc.header.Height+1 || !bytes.Equal(b.Header.PrevHash, bc.tip) {
		return fmt.Errorf("%w: height %d", ErrBlockMismatch, b.Header.Height)
	}

	blockHash, err := b.Header.Hash()
	if err != nil {
		return err
	}
	blockBytes, err := json.Marshal(b)
	if err != nil {
		return err
	}
	for _, r := range receipts {
		encoded, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := bc.db.Put(prefixed(receiptPrefix, r.TxHash.Bytes()), encoded); err != nil {
			return err
		}
	}
	if err := bc.db.Put(prefixed(blockPrefix, blockHash), blockBytes); err != nil {
		return err
	}
	if err := bc.db.Put(heightKey(b.Header.Height), blockHash); err != nil {
		return err
	}
	if err := bc.db.Put(tipKey, blockHash); err != nil {
		return err
	}
	bc.tip = blockHash
	bc.header = b.Header
	return nil
}

// GetBlockByHash retrieves a block from the database by its hash.
func (bc *Blockchain) GetBlockByHash(hash []byte) (*types.Block, error) {
	blockBytes, err := bc.db.Get(prefixed(blockPrefix, hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	var block types.Block
	if err := json.Unmarshal(blockBytes, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockByHeight retrieves a block by its height.
func (bc *Blockchain) GetBlockByHeight(height uint64) (*types.Block, error) {
	hash, err := bc.db.Get(heightKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	if err != nil {
		return nil, err
	}
	return bc.GetBlockByHash(hash)
}

// GenesisHash returns the header hash of block zero, which identifies the
// ledger.
func (bc *Blockchain) GenesisHash() ([]byte, error) {
	block, err := bc.GetBlockByHeight(0)
	if err != nil {
		return nil, err
	}
	return block.Header.Hash()
}

// Receipt returns the receipt of the transaction with the given hash.
func (bc *Blockchain) Receipt(hash common.Hash) (*types.Receipt, error) {
	raw, err := bc.db.Get(prefixed(receiptPrefix, hash.Bytes()))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(raw, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// HasReceipt reports whether a transaction with the given hash was included.
func (bc *Blockchain) HasReceipt(hash common.Hash) (bool, error) {
	return bc.db.Has(prefixed(receiptPrefix, hash.Bytes()))
}

// Empty reports whether the chain still lacks its genesis block.
func (bc *Blockchain) Empty() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.header == nil
}

func (bc *Blockchain) GetHeight() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.header == nil {
		return 0
	}
	return bc.header.Height
}

func (bc *Blockchain) Tip() []byte {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return append([]byte(nil), bc.tip...)
}

// CurrentHeader returns the header of the tip, nil for an empty chain.
func (bc *Blockchain) CurrentHeader() *types.BlockHeader {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.header == nil {
		return nil
	}
	h := *bc.header
	return &h
}
