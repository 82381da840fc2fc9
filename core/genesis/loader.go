package genesis

import (
	"fmt"

	"offerswap/core/state"
	"offerswap/crypto"
	"offerswap/native/bank"
)

// ProgramID is the namespace of the authority that opens genesis holdings.
var ProgramID = crypto.NewProgramID("genesis")

var genesisSeeds = [][]byte{[]byte("genesis")}

// Apply writes the genesis ledger into manager. Iteration order is fixed so
// every node derives the same state root from the same spec.
func Apply(spec *GenesisSpec, manager *state.Manager) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return fmt.Errorf("state manager must not be nil")
	}
	if err := manager.SetStateVersion(state.StateVersion); err != nil {
		return err
	}
	if err := manager.SetDepositParams(state.DepositParams{
		RecordBase: spec.Deposits.RecordBase,
		PerByte:    spec.Deposits.PerByte,
	}); err != nil {
		return fmt.Errorf("deposit params: %w", err)
	}

	b := bank.New(manager)
	assets := make(map[string][20]byte, len(spec.Assets))
	for _, asset := range spec.Assets {
		addr, err := b.RegisterAsset(asset.Symbol, asset.Decimals)
		if err != nil {
			return fmt.Errorf("register asset %q: %w", asset.Symbol, err)
		}
		normalized, _ := bank.NormalizeSymbol(asset.Symbol)
		assets[normalized] = addr
	}

	for _, account := range sortedKeys(spec.NativeAlloc) {
		addr, err := crypto.ParseAddress(account)
		if err != nil {
			return err
		}
		amount, err := parseAmount(spec.NativeAlloc[account])
		if err != nil {
			return err
		}
		if err := manager.CreditNative(addr, amount); err != nil {
			return fmt.Errorf("native alloc %s: %w", account, err)
		}
	}

	// the genesis authority funds the deposit of every allocated holding
	_, bump, err := crypto.FindDerivedAddress(ProgramID, genesisSeeds)
	if err != nil {
		return err
	}
	payer, err := crypto.DerivedAuthority(ProgramID, genesisSeeds, bump)
	if err != nil {
		return err
	}
	deposit, err := manager.DepositFor(bank.HoldingSpace)
	if err != nil {
		return err
	}

	for _, account := range sortedKeys(spec.Alloc) {
		owner, err := crypto.ParseAddress(account)
		if err != nil {
			return err
		}
		for _, symbol := range sortedKeys(spec.Alloc[account]) {
			normalized, _ := bank.NormalizeSymbol(symbol)
			asset := assets[normalized]
			amount, err := parseAmount(spec.Alloc[account][symbol])
			if err != nil {
				return err
			}
			if err := manager.CreditNative(payer.Address(), deposit); err != nil {
				return err
			}
			holding, err := b.OpenHolding(payer, owner, asset)
			if err != nil {
				return fmt.Errorf("alloc %s %s: %w", account, normalized, err)
			}
			if err := b.Mint(holding.Address, amount); err != nil {
				return fmt.Errorf("alloc %s %s: %w", account, normalized, err)
			}
		}
	}
	return nil
}

// Asset returns the identity of symbol as registered by Apply.
func Asset(symbol string) ([20]byte, error) {
	return bank.AssetAddress(symbol)
}

