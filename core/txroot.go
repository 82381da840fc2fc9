package core

import (
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"offerswap/core/types"
)

// ComputeTxRoot builds the transaction trie of a block. Transactions are RLP
// encoded and keyed by the RLP encoding of their index.
func ComputeTxRoot(txs []*types.Transaction) ([]byte, error) {
	return computeRoot(len(txs), func(i int) (interface{}, error) { return txs[i], nil })
}

// ComputeReceiptRoot commits to the outcome of every transaction in a block.
// Only the consensus relevant fields take part.
func ComputeReceiptRoot(receipts []*types.Receipt) ([]byte, error) {
	return computeRoot(len(receipts), func(i int) (interface{}, error) {
		r := receipts[i]
		return []interface{}{r.TxHash, uint8(r.Status), r.Code}, nil
	})
}

func computeRoot(n int, item func(int) (interface{}, error)) ([]byte, error) {
	backend := memorydb.New()
	db := rawdb.NewDatabase(backend)
	trieDB := triedb.NewDatabase(db, triedb.HashDefaults)
	defer trieDB.Close()
	trie, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		value, err := item(i)
		if err != nil {
			return nil, err
		}
		payload, err := rlp.EncodeToBytes(value)
		if err != nil {
			return nil, err
		}
		if err := trie.Update(rlp.AppendUint64(nil, uint64(i)), payload); err != nil {
			return nil, err
		}
	}
	hash := trie.Hash()
	return hash.Bytes(), nil
}
