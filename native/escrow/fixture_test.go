package escrow

import (
	"github.com/holiman/uint256"

	"offerswap/core/state"
	"offerswap/crypto"
	"offerswap/native/bank"
	"offerswap/storage"
	"offerswap/storage/trie"
)

const (
	testRecordBase = 1_000
	testPerByte    = 10
	testNative     = 1_000_000
)

type fatalfer interface {
	Fatalf(format string, args ...interface{})
}

type fixture struct {
	t      fatalfer
	db     *storage.MemDB
	mgr    *state.Manager
	bank   *bank.Bank
	engine *Engine
	height uint64

	assetA, assetB [20]byte
}

func newFixture(t fatalfer) *fixture {
	db := storage.NewMemDB()
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	mgr := state.NewManager(tr)
	if err := mgr.SetDepositParams(state.DepositParams{RecordBase: testRecordBase, PerByte: testPerByte}); err != nil {
		t.Fatalf("deposit params: %v", err)
	}
	b := bank.New(mgr)
	f := &fixture{t: t, db: db, mgr: mgr, bank: b}
	f.engine = NewEngine(mgr, b)
	f.engine.SetHeightFunc(func() uint64 { return f.height })

	if f.assetA, err = b.RegisterAsset("TKA", 6); err != nil {
		t.Fatalf("register TKA: %v", err)
	}
	if f.assetB, err = b.RegisterAsset("TKB", 6); err != nil {
		t.Fatalf("register TKB: %v", err)
	}
	return f
}

func (f *fixture) newUser() *crypto.PrivateKey {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		f.t.Fatalf("generate key: %v", err)
	}
	if err := f.mgr.SetNativeBalance(key.Authority().Address(), uint256.NewInt(testNative)); err != nil {
		f.t.Fatalf("fund native: %v", err)
	}
	return key
}

// fund opens the user's holding of asset if needed and mints amount into it.
func (f *fixture) fund(key *crypto.PrivateKey, asset [20]byte, amount uint64) {
	owner := key.Authority().Address()
	addr, _, err := bank.HoldingAddress(owner, asset)
	if err != nil {
		f.t.Fatalf("holding address: %v", err)
	}
	if _, err := f.bank.EnsureHolding(key.Authority(), addr, owner, asset); err != nil {
		f.t.Fatalf("open holding: %v", err)
	}
	if err := f.bank.Mint(addr, uint256.NewInt(amount)); err != nil {
		f.t.Fatalf("mint: %v", err)
	}
}

func (f *fixture) balance(owner [20]byte, asset [20]byte) uint64 {
	amount, err := f.bank.Balance(owner, asset)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return amount.Uint64()
}

func (f *fixture) native(owner [20]byte) uint64 {
	amount, err := f.mgr.NativeBalance(owner)
	if err != nil {
		f.t.Fatalf("native balance: %v", err)
	}
	return amount.Uint64()
}

func (f *fixture) makeAccounts(maker *crypto.PrivateKey, id uint64) MakeOfferAccounts {
	accts, err := DeriveMakeOfferAccounts(maker.Authority().Address(), id, f.assetA, f.assetB)
	if err != nil {
		f.t.Fatalf("derive make accounts: %v", err)
	}
	return accts
}

func (f *fixture) takeAccounts(taker, maker *crypto.PrivateKey, id uint64) TakeOfferAccounts {
	accts, err := DeriveTakeOfferAccounts(taker.Authority().Address(), maker.Authority().Address(), id, f.assetA, f.assetB)
	if err != nil {
		f.t.Fatalf("derive take accounts: %v", err)
	}
	return accts
}

func (f *fixture) make(maker *crypto.PrivateKey, id, amountA, wantedB uint64) (*Offer, error) {
	return f.engine.MakeOffer(maker.Authority(), f.makeAccounts(maker, id), MakeOfferData{ID: id, AmountA: amountA, WantedB: wantedB})
}

func (f *fixture) take(taker, maker *crypto.PrivateKey, id uint64) (*Offer, error) {
	return f.engine.TakeOffer(taker.Authority(), f.takeAccounts(taker, maker, id))
}

func (f *fixture) exists(addr [20]byte) bool {
	ok, err := f.mgr.RecordExists(addr)
	if err != nil {
		f.t.Fatalf("record exists: %v", err)
	}
	return ok
}
