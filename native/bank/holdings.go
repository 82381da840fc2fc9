package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"offerswap/core/state"
	"offerswap/crypto"
)

// RegisterAsset adds an asset to the registry and returns its identity.
func (b *Bank) RegisterAsset(symbol string, decimals uint8) ([20]byte, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return [20]byte{}, err
	}
	addr, err := AssetAddress(normalized)
	if err != nil {
		return [20]byte{}, err
	}
	if err := b.state.RegisterAsset(addr, normalized, decimals); err != nil {
		return [20]byte{}, err
	}
	return addr, nil
}

// Asset loads a registered asset.
func (b *Bank) Asset(addr [20]byte) (*state.AssetMetadata, error) {
	meta, err := b.state.Asset(addr)
	if errors.Is(err, state.ErrUnknownAsset) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, crypto.FormatAsset(addr))
	}
	return meta, err
}

// Holding loads the holding stored at addr.
func (b *Bank) Holding(addr [20]byte) (*Holding, error) {
	rec, ok, err := b.state.Record(addr)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrHoldingNotFound, crypto.FormatAccount(addr))
	}
	holding := new(Holding)
	if err := rlp.DecodeBytes(rec.Data, holding); err != nil {
		return nil, fmt.Errorf("bank: decode holding %s: %w", crypto.FormatAccount(addr), err)
	}
	holding.Address = addr
	holding.Amount = amountOrZero(holding.Amount)
	return holding, nil
}

// HoldingOf loads owner's holding of asset, reporting whether it exists.
func (b *Bank) HoldingOf(owner, asset [20]byte) (*Holding, bool, error) {
	addr, _, err := HoldingAddress(owner, asset)
	if err != nil {
		return nil, false, err
	}
	holding, err := b.Holding(addr)
	if errors.Is(err, ErrHoldingNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return holding, true, nil
}

// Balance returns owner's balance of asset, zero when no holding exists.
func (b *Bank) Balance(owner, asset [20]byte) (*uint256.Int, error) {
	holding, ok, err := b.HoldingOf(owner, asset)
	if err != nil || !ok {
		return uint256.NewInt(0), err
	}
	return holding.Amount, nil
}

// VerifyHolding checks that addr is the holding address of owner and asset.
func VerifyHolding(addr, owner, asset [20]byte) error {
	expected, _, err := HoldingAddress(owner, asset)
	if err != nil {
		return err
	}
	if expected != addr {
		return fmt.Errorf("%w: %s", ErrHoldingMismatch, crypto.FormatAccount(addr))
	}
	return nil
}

func (b *Bank) store(h *Holding) error {
	encoded, err := rlp.EncodeToBytes(h)
	if err != nil {
		return err
	}
	return b.state.UpdateRecord(h.Address, ProgramID, encoded)
}

// OpenHolding creates an empty holding of asset for owner. The payer funds
// the storage deposit and must hold a valid authority.
func (b *Bank) OpenHolding(payer crypto.Authority, owner, asset [20]byte) (*Holding, error) {
	if !payer.Valid() {
		return nil, crypto.ErrUnusableAuthority
	}
	if _, err := b.Asset(asset); err != nil {
		return nil, err
	}
	addr, bump, err := HoldingAddress(owner, asset)
	if err != nil {
		return nil, err
	}
	holding := &Holding{Address: addr, Owner: owner, Asset: asset, Amount: uint256.NewInt(0), Bump: bump}
	encoded, err := rlp.EncodeToBytes(holding)
	if err != nil {
		return nil, err
	}
	if err := b.state.CreateRecord(addr, ProgramID, payer.Address(), HoldingSpace, encoded); err != nil {
		if errors.Is(err, state.ErrRecordExists) {
			return nil, fmt.Errorf("%w: %s", ErrHoldingExists, crypto.FormatAccount(addr))
		}
		if errors.Is(err, state.ErrInsufficientBalance) {
			return nil, fmt.Errorf("%w: holding deposit: %v", ErrInsufficientFunds, err)
		}
		return nil, err
	}
	b.emit(NewHoldingOpenedEvent(holding, payer.Address()))
	return holding, nil
}

// EnsureHolding returns the holding at addr, creating it when absent. addr
// must be the derived holding address of owner and asset.
func (b *Bank) EnsureHolding(payer crypto.Authority, addr, owner, asset [20]byte) (*Holding, error) {
	if err := VerifyHolding(addr, owner, asset); err != nil {
		return nil, err
	}
	holding, err := b.Holding(addr)
	if err == nil {
		return holding, nil
	}
	if !errors.Is(err, ErrHoldingNotFound) {
		return nil, err
	}
	return b.OpenHolding(payer, owner, asset)
}

// Transfer moves amount from one holding to another holding of the same
// asset. The authority must speak for the owner of the source holding.
func (b *Bank) Transfer(auth crypto.Authority, from, to [20]byte, amount *uint256.Int) error {
	amount = amountOrZero(amount)
	src, err := b.Holding(from)
	if err != nil {
		return err
	}
	if !auth.Is(src.Owner) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, crypto.FormatAccount(from))
	}
	dst, err := b.Holding(to)
	if err != nil {
		return err
	}
	if src.Asset != dst.Asset {
		return fmt.Errorf("%w: asset %s into %s", ErrHoldingMismatch, crypto.FormatAsset(src.Asset), crypto.FormatAsset(dst.Asset))
	}
	if src.Amount.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, src.Amount.Dec(), amount.Dec())
	}
	if from == to || amount.IsZero() {
		return nil
	}
	next, overflow := new(uint256.Int).AddOverflow(dst.Amount, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	src.Amount = new(uint256.Int).Sub(src.Amount, amount)
	dst.Amount = next
	if err := b.store(src); err != nil {
		return err
	}
	if err := b.store(dst); err != nil {
		return err
	}
	b.emit(NewTransferEvent(src, dst, amount))
	return nil
}

// CloseHolding removes an empty holding and refunds its deposit to the
// beneficiary. The refunded deposit is returned.
func (b *Bank) CloseHolding(auth crypto.Authority, addr, beneficiary [20]byte) (*uint256.Int, error) {
	holding, err := b.Holding(addr)
	if err != nil {
		return nil, err
	}
	if !auth.Is(holding.Owner) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, crypto.FormatAccount(addr))
	}
	if !holding.Amount.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrHoldingNotEmpty, holding.Amount.Dec())
	}
	refund, err := b.state.CloseRecord(addr, ProgramID, beneficiary)
	if err != nil {
		return nil, err
	}
	b.emit(NewHoldingClosedEvent(holding, beneficiary, refund))
	return refund, nil
}

// Mint issues new units of an asset into an existing holding. Only genesis
// and the development faucet mint.
func (b *Bank) Mint(addr [20]byte, amount *uint256.Int) error {
	amount = amountOrZero(amount)
	holding, err := b.Holding(addr)
	if err != nil {
		return err
	}
	if err := b.state.IncreaseSupply(holding.Asset, amount); err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(holding.Amount, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	holding.Amount = next
	if err := b.store(holding); err != nil {
		return err
	}
	b.emit(NewMintedEvent(holding, amount))
	return nil
}
