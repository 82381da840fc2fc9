package escrow

import (
	"strconv"

	"github.com/holiman/uint256"

	"offerswap/core/types"
	"offerswap/crypto"
)

const (
	EventTypeOfferMade  = "escrow.offer.made"
	EventTypeOfferTaken = "escrow.offer.taken"
)

// NewOfferMadeEvent returns the canonical payload for a newly opened offer.
func NewOfferMadeEvent(o *Offer, amountA uint64) *types.Event {
	evt := newOfferEvent(EventTypeOfferMade, o)
	evt.Attributes["amountA"] = strconv.FormatUint(amountA, 10)
	return evt
}

// NewOfferTakenEvent returns the canonical payload for a fulfilled offer.
func NewOfferTakenEvent(o *Offer, taker [20]byte, released *uint256.Int) *types.Event {
	evt := newOfferEvent(EventTypeOfferTaken, o)
	evt.Attributes["taker"] = crypto.FormatAccount(taker)
	if released == nil {
		released = uint256.NewInt(0)
	}
	evt.Attributes["amountA"] = released.Dec()
	return evt
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := map[string]string{}
	if o != nil {
		attrs["offer"] = crypto.FormatAccount(o.Address)
		attrs["id"] = strconv.FormatUint(o.ID, 10)
		attrs["maker"] = crypto.FormatAccount(o.Maker)
		attrs["assetA"] = crypto.FormatAsset(o.AssetA)
		attrs["assetB"] = crypto.FormatAsset(o.AssetB)
		attrs["wantedB"] = strconv.FormatUint(o.WantedB, 10)
		attrs["openedAt"] = strconv.FormatUint(o.OpenedAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
