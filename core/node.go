package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"offerswap/core/events"
	"offerswap/core/genesis"
	ledgerstate "offerswap/core/state"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/bank"
	"offerswap/native/escrow"
	"offerswap/observability"
	telemetry "offerswap/observability/otel"
	"offerswap/storage"
	"offerswap/storage/trie"
)

var (
	ErrNotInitialised = errors.New("core: chain has no genesis block")
	ErrInvalidAmount  = errors.New("core: amount must be positive")
)

var (
	faucetProgram = crypto.NewProgramID("faucet")
	faucetSeeds   = [][]byte{[]byte("faucet")}
)

// Config tunes block production.
type Config struct {
	BlockInterval time.Duration
	// MaxBlockTxs caps the transactions included per block. Zero means no cap.
	MaxBlockTxs  int
	MempoolLimit int
	// StaleAfterBlocks is the age at which an untaken offer is reported. Zero
	// disables the report.
	StaleAfterBlocks uint64
	EventBuffer      int
}

// DefaultConfig returns the settings used by a development node.
func DefaultConfig() Config {
	return Config{
		BlockInterval:    time.Second,
		MaxBlockTxs:      1000,
		MempoolLimit:     10_000,
		StaleAfterBlocks: 86_400,
		EventBuffer:      256,
	}
}

// Node is the central controller: it owns the ledger state, produces blocks
// from the mempool and answers queries against the committed state.
type Node struct {
	db      storage.Database
	cfg     Config
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
	tracer  trace.Tracer
	now     func() time.Time

	stateMu sync.Mutex
	state   *StateProcessor
	chain   *Blockchain
	// full is signalled when the mempool holds a complete block.
	full chan struct{}

	mempool *mempool
	bus     *events.Bus

	waitMu  sync.Mutex
	waiters map[common.Hash][]chan *types.Receipt
}

// NewNode opens the chain stored in db. A fresh database must be initialised
// with InitGenesis before blocks can be produced.
func NewNode(db storage.Database, cfg Config, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	chain, err := NewBlockchain(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if header := chain.CurrentHeader(); header != nil {
		root = header.StateRoot
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	sp, err := NewStateProcessor(stateTrie)
	if err != nil {
		return nil, err
	}
	if !chain.Empty() {
		if err := sp.Manager().EnsureStateVersion(); err != nil {
			return nil, err
		}
		sp.SetHeight(chain.GetHeight())
	}
	return &Node{
		db:      db,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "node")),
		metrics: observability.Ledger(),
		tracer:  telemetry.Tracer("offerswap/core"),
		full:    make(chan struct{}, 1),
		now:     time.Now,
		state:   sp,
		chain:   chain,
		mempool: newMempool(cfg.MempoolLimit),
		bus:     events.NewBus(cfg.EventBuffer),
		waiters: make(map[common.Hash][]chan *types.Receipt),
	}, nil
}

// InitGenesis applies spec and commits it as block zero. It is a no-op when
// the chain already has a genesis block.
func (n *Node) InitGenesis(spec *genesis.GenesisSpec) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if !n.chain.Empty() {
		return nil
	}
	if err := genesis.Apply(spec, n.state.Manager()); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	root, err := n.state.Commit(0)
	if err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	txRoot, err := ComputeTxRoot(nil)
	if err != nil {
		return err
	}
	receiptRoot, err := ComputeReceiptRoot(nil)
	if err != nil {
		return err
	}
	header := &types.BlockHeader{
		Height:      0,
		Timestamp:   spec.GenesisTimestamp().Unix(),
		StateRoot:   root.Bytes(),
		TxRoot:      txRoot,
		ReceiptRoot: receiptRoot,
	}
	if err := n.chain.AddBlock(types.NewBlock(header, nil), nil); err != nil {
		return err
	}
	n.state.SetHeight(0)
	n.logger.Info("genesis committed",
		slog.String("state_root", root.Hex()),
		slog.Int("assets", len(spec.Assets)))
	return nil
}

// Events exposes the bus carrying the events of committed transactions.
func (n *Node) Events() *events.Bus { return n.bus }

// Chain returns the node's block store.
func (n *Node) Chain() *Blockchain { return n.chain }

// Height returns the height of the latest committed block.
func (n *Node) Height() uint64 { return n.chain.GetHeight() }

// Run produces a block every BlockInterval, or as soon as the mempool holds
// MaxBlockTxs transactions, until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	interval := n.cfg.BlockInterval
	if interval <= 0 {
		interval = DefaultConfig().BlockInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.bus.Close()
			return ctx.Err()
		case <-ticker.C:
		case <-n.full:
			ticker.Reset(interval)
		}
		if _, err := n.ProduceBlock(ctx); err != nil {
			n.logger.Error("block production failed", slog.Any("error", err))
		}
	}
}

// AddTransaction verifies the signature of tx and queues it for the next
// block. It returns the transaction hash under which the receipt will be
// stored.
func (n *Node) AddTransaction(tx *types.Transaction) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, fmt.Errorf("core: nil transaction")
	}
	if _, err := tx.Authority(); err != nil {
		return common.Hash{}, err
	}
	hash, err := tx.TxHash()
	if err != nil {
		return common.Hash{}, err
	}
	known, err := n.chain.HasReceipt(hash)
	if err != nil {
		return common.Hash{}, err
	}
	if known {
		return hash, ErrDuplicateTransaction
	}
	if err := n.mempool.add(hash, tx); err != nil {
		return hash, err
	}
	size := n.mempool.size()
	n.metrics.SetMempoolSize(size)
	if n.cfg.MaxBlockTxs > 0 && size >= n.cfg.MaxBlockTxs {
		select {
		case n.full <- struct{}{}:
		default:
		}
	}
	return hash, nil
}

// SubmitTransaction queues tx and waits until a block has recorded its
// receipt. A transaction that was already applied returns the stored receipt.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("core: nil transaction")
	}
	hash, err := tx.TxHash()
	if err != nil {
		return nil, err
	}
	wait := n.await(hash)
	defer n.cancelWait(hash, wait)

	if _, err := n.AddTransaction(tx); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			if receipt, rerr := n.chain.Receipt(hash); rerr == nil {
				return receipt, nil
			}
		} else {
			return nil, err
		}
	}
	select {
	case receipt := <-wait:
		return receipt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Receipt returns the stored receipt of a committed transaction.
func (n *Node) Receipt(hash common.Hash) (*types.Receipt, error) {
	return n.chain.Receipt(hash)
}

func (n *Node) await(hash common.Hash) chan *types.Receipt {
	ch := make(chan *types.Receipt, 1)
	n.waitMu.Lock()
	n.waiters[hash] = append(n.waiters[hash], ch)
	n.waitMu.Unlock()
	return ch
}

func (n *Node) cancelWait(hash common.Hash, ch chan *types.Receipt) {
	n.waitMu.Lock()
	defer n.waitMu.Unlock()
	list := n.waiters[hash]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(n.waiters, hash)
		return
	}
	n.waiters[hash] = list
}

func (n *Node) notify(receipt *types.Receipt) {
	n.waitMu.Lock()
	list := n.waiters[receipt.TxHash]
	delete(n.waiters, receipt.TxHash)
	n.waitMu.Unlock()
	for _, ch := range list {
		ch <- receipt
	}
}

// ProduceBlock applies the queued transactions on top of the tip and commits
// the result. Failed transactions are included with a failed receipt and
// leave no state behind. If the block cannot be committed the state is reset
// to the parent and the taken transactions go back to the front of the
// mempool. An empty mempool still yields a block so offer ages keep
// advancing.
func (n *Node) ProduceBlock(ctx context.Context) (*types.Block, error) {
	ctx, span := n.tracer.Start(ctx, "core.ProduceBlock")
	defer span.End()

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	parent := n.chain.CurrentHeader()
	if parent == nil {
		return nil, ErrNotInitialised
	}
	start := n.now()
	height := parent.Height + 1
	parentRoot := n.state.CurrentRoot()

	entries := n.mempool.take(n.cfg.MaxBlockTxs)
	committed := false
	defer func() {
		if committed {
			n.mempool.release(entries)
		} else {
			n.mempool.requeue(entries)
		}
	}()

	n.state.SetHeight(height)
	included := make([]*types.Transaction, 0, len(entries))
	receipts := make([]*types.Receipt, 0, len(entries))
	var replays []*types.Receipt
	inBlock := make(map[common.Hash]*types.Receipt, len(entries))
	for _, entry := range entries {
		if prior, ok := inBlock[entry.hash]; ok {
			replays = append(replays, prior)
			continue
		}
		if stored, err := n.chain.Receipt(entry.hash); err == nil {
			replays = append(replays, stored)
			continue
		}
		_, txSpan := n.tracer.Start(ctx, "core.ApplyTransaction", trace.WithAttributes(
			attribute.String("tx.hash", entry.hash.Hex()),
			attribute.String("tx.type", entry.tx.Type.String()),
		))
		receipt, err := n.state.ApplyTransaction(entry.tx)
		if receipt != nil {
			txSpan.SetAttributes(attribute.String("tx.code", receipt.Code))
		}
		txSpan.End()
		if err != nil {
			n.logger.Warn("dropping transaction", slog.String("tx", entry.hash.Hex()), slog.Any("error", err))
			continue
		}
		receipt.Index = uint32(len(included))
		included = append(included, entry.tx)
		receipts = append(receipts, receipt)
		inBlock[entry.hash] = receipt
	}

	rollback := func(cause error) error {
		n.state.SetHeight(parent.Height)
		if err := n.state.ResetToRoot(parentRoot); err != nil {
			return fmt.Errorf("%w (rollback failed: %v)", cause, err)
		}
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		return cause
	}

	txRoot, err := ComputeTxRoot(included)
	if err != nil {
		return nil, rollback(err)
	}
	receiptRoot, err := ComputeReceiptRoot(receipts)
	if err != nil {
		return nil, rollback(err)
	}
	root, err := n.state.Commit(height)
	if err != nil {
		return nil, rollback(fmt.Errorf("state commit failed: %w", err))
	}
	header := &types.BlockHeader{
		Height:      height,
		Timestamp:   n.now().Unix(),
		PrevHash:    n.chain.Tip(),
		StateRoot:   root.Bytes(),
		TxRoot:      txRoot,
		ReceiptRoot: receiptRoot,
	}
	block := types.NewBlock(header, included)
	if err := n.chain.AddBlock(block, receipts); err != nil {
		return nil, rollback(err)
	}
	committed = true

	span.SetAttributes(
		attribute.Int64("block.height", int64(height)),
		attribute.Int("block.txs", len(included)),
	)
	n.afterCommit(height, block, receipts, replays, n.now().Sub(start))
	return block, nil
}

func (n *Node) afterCommit(height uint64, block *types.Block, receipts, replays []*types.Receipt, elapsed time.Duration) {
	for _, receipt := range receipts {
		n.metrics.ObserveTransaction(receipt.Type.String(), receipt.Code)
		for _, evt := range receipt.Events {
			switch evt.Type {
			case escrow.EventTypeOfferMade:
				n.metrics.OfferMade()
			case escrow.EventTypeOfferTaken:
				n.metrics.OfferTaken()
			}
			n.bus.Publish(evt.Committed(height, receipt.TxHash.Hex()))
		}
		n.notify(receipt)
	}
	for _, receipt := range replays {
		n.notify(receipt)
	}
	n.metrics.ObserveBlock(height, elapsed)
	n.metrics.SetMempoolSize(n.mempool.size())
	n.reportOpenOffers(height)

	if len(block.Transactions) > 0 {
		n.logger.Info("block committed",
			slog.Uint64("height", height),
			slog.Int("txs", len(block.Transactions)),
			slog.Duration("elapsed", elapsed))
	}
}

// reportOpenOffers publishes the open offer gauges and warns once when an
// offer crosses the staleness threshold. Offers cannot be cancelled, so the
// warning is the only signal that funds sit locked in a vault.
func (n *Node) reportOpenOffers(height uint64) {
	offers, err := n.state.EscrowEngine.OpenOffers()
	if err != nil {
		n.logger.Error("list open offers", slog.Any("error", err))
		return
	}
	var oldest uint64
	for _, offer := range offers {
		age := offerAge(offer, height)
		if age > oldest {
			oldest = age
		}
		if n.cfg.StaleAfterBlocks > 0 && age == n.cfg.StaleAfterBlocks {
			n.logger.Warn("offer is stale",
				slog.String("offer", crypto.FormatAccount(offer.Address)),
				slog.String("maker", crypto.FormatAccount(offer.Maker)),
				slog.Uint64("id", offer.ID),
				slog.Uint64("age_blocks", age))
		}
	}
	n.metrics.SetOpenOffers(len(offers), oldest)
}

func offerAge(offer *escrow.Offer, height uint64) uint64 {
	if height < offer.OpenedAt {
		return 0
	}
	return height - offer.OpenedAt
}

// --- Queries against committed state ---

// Balance returns the units of asset held by owner. A missing holding reads
// as zero.
func (n *Node) Balance(owner, asset [20]byte) (*uint256.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Bank.Balance(owner, asset)
}

// Holding returns the holding stored at addr.
func (n *Node) Holding(addr [20]byte) (*bank.Holding, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Bank.Holding(addr)
}

// NativeBalance returns the native units available to addr for deposits.
func (n *Node) NativeBalance(addr [20]byte) (*uint256.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Manager().NativeBalance(addr)
}

// Assets lists the registered assets ordered by address.
func (n *Node) Assets() ([]*ledgerstate.AssetMetadata, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := n.state.Manager()
	addrs, err := manager.AssetList()
	if err != nil {
		return nil, err
	}
	out := make([]*ledgerstate.AssetMetadata, 0, len(addrs))
	for _, addr := range addrs {
		meta, err := manager.Asset(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// Offer returns the open offer stored at addr.
func (n *Node) Offer(addr [20]byte) (*escrow.Offer, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.EscrowEngine.Offer(addr)
}

// OpenOffers lists every offer still holding funds, oldest first.
func (n *Node) OpenOffers() ([]*escrow.Offer, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.EscrowEngine.OpenOffers()
}

// StaleOffers lists open offers at least minAge blocks old. A zero minAge
// falls back to the configured threshold.
func (n *Node) StaleOffers(minAge uint64) ([]*escrow.Offer, error) {
	if minAge == 0 {
		minAge = n.cfg.StaleAfterBlocks
	}
	offers, err := n.OpenOffers()
	if err != nil {
		return nil, err
	}
	height := n.Height()
	stale := offers[:0]
	for _, offer := range offers {
		if offerAge(offer, height) >= minAge {
			stale = append(stale, offer)
		}
	}
	return stale, nil
}

// DevMint issues amount units of asset to owner, opening the holding when
// needed. The faucet authority pays the holding deposit. The change is
// committed with the next block.
//
// The mint is not a transaction: no block or receipt records it, yet the
// next block's state root includes it. A chain that used the faucet cannot
// be rebuilt by replaying its blocks from genesis, so DevMint is for
// development networks only.
func (n *Node) DevMint(owner, asset [20]byte, amount *uint256.Int) (*bank.Holding, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	_, bump, err := crypto.FindDerivedAddress(faucetProgram, faucetSeeds)
	if err != nil {
		return nil, err
	}
	faucet, err := crypto.DerivedAuthority(faucetProgram, faucetSeeds, bump)
	if err != nil {
		return nil, err
	}
	holdingAddr, _, err := bank.HoldingAddress(owner, asset)
	if err != nil {
		return nil, err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := n.state.Manager()
	var holding *bank.Holding
	err = manager.Atomically(func() error {
		deposit, err := manager.DepositFor(bank.HoldingSpace)
		if err != nil {
			return err
		}
		if err := manager.CreditNative(faucet.Address(), deposit); err != nil {
			return err
		}
		if _, err := n.state.Bank.EnsureHolding(faucet, holdingAddr, owner, asset); err != nil {
			return err
		}
		// unspent deposit credit must not linger on the faucet
		if err := manager.SetNativeBalance(faucet.Address(), uint256.NewInt(0)); err != nil {
			return err
		}
		if err := n.state.Bank.Mint(holdingAddr, amount); err != nil {
			return err
		}
		holding, err = n.state.Bank.Holding(holdingAddr)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("dev mint",
		slog.String("owner", crypto.FormatAccount(owner)),
		slog.String("asset", crypto.FormatAsset(asset)),
		slog.String("amount", amount.Dec()))
	return holding, nil
}
