package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"offerswap/native/bank"
)

// MakeOfferRoles lists the account roles of a MakeOffer instruction in the
// order they appear in the transaction.
var MakeOfferRoles = []string{"maker", "asset_a", "asset_b", "maker_holding_a", "offer", "vault"}

// TakeOfferRoles lists the account roles of a TakeOffer instruction in the
// order they appear in the transaction.
var TakeOfferRoles = []string{"taker", "maker", "asset_a", "asset_b", "taker_holding_a", "taker_holding_b", "maker_holding_b", "offer", "vault"}

// MakeOfferData carries the arguments of a MakeOffer instruction.
type MakeOfferData struct {
	ID      uint64 `json:"id"`
	AmountA uint64 `json:"amountA"`
	WantedB uint64 `json:"wantedB"`
}

// Encode returns the RLP encoding carried in a transaction.
func (d MakeOfferData) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(&d)
}

// DecodeMakeOfferData parses instruction data produced by Encode.
func DecodeMakeOfferData(raw []byte) (MakeOfferData, error) {
	var d MakeOfferData
	if err := rlp.DecodeBytes(raw, &d); err != nil {
		return MakeOfferData{}, fmt.Errorf("%w: make offer data: %v", ErrMalformed, err)
	}
	return d, nil
}

// MakeOfferAccounts is the account set of a MakeOffer instruction.
type MakeOfferAccounts struct {
	Maker         [20]byte
	AssetA        [20]byte
	AssetB        [20]byte
	MakerHoldingA [20]byte
	Offer         [20]byte
	Vault         [20]byte
}

// List flattens the accounts in role order.
func (a MakeOfferAccounts) List() []common.Address {
	return []common.Address{a.Maker, a.AssetA, a.AssetB, a.MakerHoldingA, a.Offer, a.Vault}
}

// MakeOfferAccountsFromList is the inverse of List.
func MakeOfferAccountsFromList(list []common.Address) (MakeOfferAccounts, error) {
	if len(list) != len(MakeOfferRoles) {
		return MakeOfferAccounts{}, fmt.Errorf("%w: make offer expects %d accounts, got %d", ErrMalformed, len(MakeOfferRoles), len(list))
	}
	return MakeOfferAccounts{
		Maker:         list[0],
		AssetA:        list[1],
		AssetB:        list[2],
		MakerHoldingA: list[3],
		Offer:         list[4],
		Vault:         list[5],
	}, nil
}

// DeriveMakeOfferAccounts computes every address a MakeOffer by maker with id
// needs.
func DeriveMakeOfferAccounts(maker [20]byte, id uint64, assetA, assetB [20]byte) (MakeOfferAccounts, error) {
	holdingA, _, err := bank.HoldingAddress(maker, assetA)
	if err != nil {
		return MakeOfferAccounts{}, err
	}
	offer, _, err := OfferAddress(maker, id)
	if err != nil {
		return MakeOfferAccounts{}, err
	}
	vault, err := VaultAddress(offer, assetA)
	if err != nil {
		return MakeOfferAccounts{}, err
	}
	return MakeOfferAccounts{
		Maker:         maker,
		AssetA:        assetA,
		AssetB:        assetB,
		MakerHoldingA: holdingA,
		Offer:         offer,
		Vault:         vault,
	}, nil
}

// TakeOfferAccounts is the account set of a TakeOffer instruction.
type TakeOfferAccounts struct {
	Taker         [20]byte
	Maker         [20]byte
	AssetA        [20]byte
	AssetB        [20]byte
	TakerHoldingA [20]byte
	TakerHoldingB [20]byte
	MakerHoldingB [20]byte
	Offer         [20]byte
	Vault         [20]byte
}

// List flattens the accounts in role order.
func (a TakeOfferAccounts) List() []common.Address {
	return []common.Address{a.Taker, a.Maker, a.AssetA, a.AssetB, a.TakerHoldingA, a.TakerHoldingB, a.MakerHoldingB, a.Offer, a.Vault}
}

// TakeOfferAccountsFromList is the inverse of List.
func TakeOfferAccountsFromList(list []common.Address) (TakeOfferAccounts, error) {
	if len(list) != len(TakeOfferRoles) {
		return TakeOfferAccounts{}, fmt.Errorf("%w: take offer expects %d accounts, got %d", ErrMalformed, len(TakeOfferRoles), len(list))
	}
	return TakeOfferAccounts{
		Taker:         list[0],
		Maker:         list[1],
		AssetA:        list[2],
		AssetB:        list[3],
		TakerHoldingA: list[4],
		TakerHoldingB: list[5],
		MakerHoldingB: list[6],
		Offer:         list[7],
		Vault:         list[8],
	}, nil
}

// DeriveTakeOfferAccounts computes every address taker needs to fulfil the
// offer made by maker with id.
func DeriveTakeOfferAccounts(taker, maker [20]byte, id uint64, assetA, assetB [20]byte) (TakeOfferAccounts, error) {
	offer, _, err := OfferAddress(maker, id)
	if err != nil {
		return TakeOfferAccounts{}, err
	}
	vault, err := VaultAddress(offer, assetA)
	if err != nil {
		return TakeOfferAccounts{}, err
	}
	takerA, _, err := bank.HoldingAddress(taker, assetA)
	if err != nil {
		return TakeOfferAccounts{}, err
	}
	takerB, _, err := bank.HoldingAddress(taker, assetB)
	if err != nil {
		return TakeOfferAccounts{}, err
	}
	makerB, _, err := bank.HoldingAddress(maker, assetB)
	if err != nil {
		return TakeOfferAccounts{}, err
	}
	return TakeOfferAccounts{
		Taker:         taker,
		Maker:         maker,
		AssetA:        assetA,
		AssetB:        assetB,
		TakerHoldingA: takerA,
		TakerHoldingB: takerB,
		MakerHoldingB: makerB,
		Offer:         offer,
		Vault:         vault,
	}, nil
}
