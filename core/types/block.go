package types

import (
	"encoding/json"

	"lukechampine.com/blake3"
)

// BlockHeader commits to the block's position, its transactions and the
// ledger state produced by applying them.
type BlockHeader struct {
	Height      uint64 `json:"height"`
	Timestamp   int64  `json:"timestamp"`
	PrevHash    []byte `json:"prevHash"`
	StateRoot   []byte `json:"stateRoot"`
	TxRoot      []byte `json:"txRoot"`
	ReceiptRoot []byte `json:"receiptRoot"`
}

// Block is a header plus the ordered transactions it commits to.
type Block struct {
	Header       *BlockHeader   `json:"header"`
	Transactions []*Transaction `json:"transactions"`
}

// NewBlock creates a new block from a header and a set of transactions.
func NewBlock(header *BlockHeader, txs []*Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash returns the blake3 digest of the JSON encoded header.
func (h *BlockHeader) Hash() ([]byte, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(b)
	return sum[:], nil
}
