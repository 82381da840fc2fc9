package escrow

import (
	"errors"

	"offerswap/core/state"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/bank"
)

var (
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	ErrAlreadyExists     = errors.New("escrow: offer already exists")
	ErrNotFound          = errors.New("escrow: offer not found")
	ErrInvalidDerivation = errors.New("escrow: address does not match derivation")
	ErrInvalidAsset      = errors.New("escrow: invalid asset")
	ErrInvalidAmount     = errors.New("escrow: invalid amount")
	ErrUnauthorized      = errors.New("escrow: unauthorized")
	ErrMalformed         = errors.New("escrow: malformed instruction")

	errNilState = errors.New("escrow engine: state not configured")
)

// Stable error codes recorded on receipts and returned over RPC.
const (
	CodeInsufficientFunds = "InsufficientFunds"
	CodeAlreadyExists     = "AlreadyExists"
	CodeNotFound          = "NotFound"
	CodeInvalidDerivation = "InvalidDerivation"
	CodeInvalidAsset      = "InvalidAsset"
	CodeInvalidAmount     = "InvalidAmount"
	CodeUnauthorized      = "Unauthorized"
	CodeMalformed         = "Malformed"
	CodeInternal          = "Internal"
)

var codes = []struct {
	code    string
	targets []error
}{
	{CodeInsufficientFunds, []error{ErrInsufficientFunds, bank.ErrInsufficientFunds, state.ErrInsufficientBalance}},
	{CodeAlreadyExists, []error{ErrAlreadyExists, bank.ErrHoldingExists, state.ErrRecordExists}},
	{CodeNotFound, []error{ErrNotFound, bank.ErrHoldingNotFound, state.ErrRecordNotFound}},
	{CodeInvalidDerivation, []error{ErrInvalidDerivation, bank.ErrHoldingMismatch, crypto.ErrAddressMismatch, crypto.ErrOnCurve}},
	{CodeInvalidAsset, []error{ErrInvalidAsset, bank.ErrUnknownAsset, bank.ErrInvalidSymbol}},
	{CodeInvalidAmount, []error{ErrInvalidAmount}},
	{CodeUnauthorized, []error{ErrUnauthorized, bank.ErrUnauthorized, crypto.ErrInvalidSignature, crypto.ErrUnusableAuthority}},
	{CodeMalformed, []error{ErrMalformed, bank.ErrMalformed, types.ErrMissingSignature}},
}

// Code classifies err into one of the stable error codes. A nil error yields
// the empty string.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range codes {
		for _, target := range entry.targets {
			if errors.Is(err, target) {
				return entry.code
			}
		}
	}
	return CodeInternal
}
