package core

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"offerswap/core/types"
)

var (
	ErrMempoolFull          = errors.New("mempool full")
	ErrDuplicateTransaction = errors.New("transaction already known")
)

type mempoolEntry struct {
	hash common.Hash
	tx   *types.Transaction
}

// mempool queues signed transactions in arrival order until a block picks
// them up. A limit of zero disables the bound.
type mempool struct {
	mu      sync.Mutex
	limit   int
	entries []mempoolEntry
	known   map[common.Hash]struct{}
}

func newMempool(limit int) *mempool {
	return &mempool{limit: limit, known: make(map[common.Hash]struct{})}
}

func (m *mempool) add(hash common.Hash, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.known[hash]; ok {
		return ErrDuplicateTransaction
	}
	if m.limit > 0 && len(m.entries) >= m.limit {
		return ErrMempoolFull
	}
	m.known[hash] = struct{}{}
	m.entries = append(m.entries, mempoolEntry{hash: hash, tx: tx})
	return nil
}

// take removes up to max entries from the front of the queue. The hashes stay
// known until release so a resubmission cannot slip in while the block is
// being applied.
func (m *mempool) take(max int) []mempoolEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if max > 0 && n > max {
		n = max
	}
	out := make([]mempoolEntry, n)
	copy(out, m.entries[:n])
	m.entries = append(m.entries[:0:0], m.entries[n:]...)
	return out
}

// requeue puts entries taken for a block that was not committed back at the
// front of the queue, keeping their order.
func (m *mempool) requeue(entries []mempoolEntry) {
	if len(entries) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(append(make([]mempoolEntry, 0, len(entries)+len(m.entries)), entries...), m.entries...)
}

func (m *mempool) release(entries []mempoolEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		delete(m.known, entry.hash)
	}
}

func (m *mempool) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
