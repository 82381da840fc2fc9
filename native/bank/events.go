package bank

import (
	"github.com/holiman/uint256"

	"offerswap/core/types"
	"offerswap/crypto"
)

const (
	EventTypeHoldingOpened = "bank.holding.opened"
	EventTypeHoldingClosed = "bank.holding.closed"
	EventTypeTransfer      = "bank.transfer"
	EventTypeMinted        = "bank.minted"
)

// NewHoldingOpenedEvent describes a freshly created holding.
func NewHoldingOpenedEvent(h *Holding, payer [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeHoldingOpened,
		Attributes: map[string]string{
			"holding": crypto.FormatAccount(h.Address),
			"owner":   crypto.FormatAccount(h.Owner),
			"asset":   crypto.FormatAsset(h.Asset),
			"payer":   crypto.FormatAccount(payer),
		},
	}
}

// NewHoldingClosedEvent describes a closed holding and its deposit refund.
func NewHoldingClosedEvent(h *Holding, beneficiary [20]byte, refund *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeHoldingClosed,
		Attributes: map[string]string{
			"holding":     crypto.FormatAccount(h.Address),
			"owner":       crypto.FormatAccount(h.Owner),
			"beneficiary": crypto.FormatAccount(beneficiary),
			"refund":      amountOrZero(refund).Dec(),
		},
	}
}

func NewTransferEvent(from, to *Holding, amount *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"from":   crypto.FormatAccount(from.Owner),
			"to":     crypto.FormatAccount(to.Owner),
			"asset":  crypto.FormatAsset(from.Asset),
			"amount": amountOrZero(amount).Dec(),
		},
	}
}

func NewMintedEvent(h *Holding, amount *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMinted,
		Attributes: map[string]string{
			"owner":  crypto.FormatAccount(h.Owner),
			"asset":  crypto.FormatAsset(h.Asset),
			"amount": amountOrZero(amount).Dec(),
		},
	}
}
