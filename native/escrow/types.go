package escrow

import (
	"fmt"

	"offerswap/crypto"
	"offerswap/native/bank"
)

// ProgramID is the namespace that owns offers and, through them, vaults.
var ProgramID = crypto.NewProgramID("escrow")

// OfferSpace is the storage reserved for an offer record.
const OfferSpace = 128

var offerSeed = []byte("offer")

// Offer records the terms of an open swap. The record lives at the address
// derived from (maker, id) and authorises release of the vault paired with
// it.
type Offer struct {
	Address  [20]byte `rlp:"-"`
	ID       uint64
	Maker    [20]byte
	AssetA   [20]byte
	AssetB   [20]byte
	WantedB  uint64
	Bump     uint8
	OpenedAt uint64
}

// Clone returns a copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	out := *o
	return &out
}

// OfferSeeds returns the derivation path of the offer made by maker with id.
func OfferSeeds(maker [20]byte, id uint64) [][]byte {
	return [][]byte{offerSeed, maker[:], crypto.Uint64Seed(id)}
}

// OfferAddress returns the deterministic address and bump of the offer made
// by maker with id.
func OfferAddress(maker [20]byte, id uint64) ([20]byte, uint8, error) {
	return crypto.FindDerivedAddress(ProgramID, OfferSeeds(maker, id))
}

// VaultAddress returns the holding that custodies asset A for offer. The
// offer address owns the holding, so only code able to re-derive the offer
// can move its contents.
func VaultAddress(offer, assetA [20]byte) ([20]byte, error) {
	addr, _, err := bank.HoldingAddress(offer, assetA)
	return addr, err
}

// Verify re-derives the offer address from its stored fields.
func (o *Offer) Verify() error {
	if err := crypto.VerifyDerivedAddress(ProgramID, OfferSeeds(o.Maker, o.ID), o.Bump, o.Address); err != nil {
		return fmt.Errorf("%w: offer %s: %v", ErrInvalidDerivation, crypto.FormatAccount(o.Address), err)
	}
	return nil
}

// authority returns the capability to move funds owned by the offer.
func (o *Offer) authority() (crypto.Authority, error) {
	return crypto.DerivedAuthority(ProgramID, OfferSeeds(o.Maker, o.ID), o.Bump)
}
