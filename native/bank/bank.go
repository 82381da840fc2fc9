// Package bank keeps fungible asset balances in holding records. Every
// holding is a storage record owned by the bank program and addressed
// deterministically from its owner and asset, so no registry is required to
// find one.
package bank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	"offerswap/core/events"
	"offerswap/core/state"
	"offerswap/core/types"
	"offerswap/crypto"
)

// ProgramID is the namespace that owns holdings and asset identities.
var ProgramID = crypto.NewProgramID("bank")

// HoldingSpace is the storage reserved for a holding record.
const HoldingSpace = 96

var assetSeed = []byte("asset")

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrUnknownAsset      = errors.New("bank: unknown asset")
	ErrInvalidSymbol     = errors.New("bank: invalid asset symbol")
	ErrHoldingNotFound   = errors.New("bank: holding not found")
	ErrHoldingExists     = errors.New("bank: holding already exists")
	ErrHoldingMismatch   = errors.New("bank: holding does not match owner and asset")
	ErrHoldingNotEmpty   = errors.New("bank: holding still carries a balance")
	ErrUnauthorized      = errors.New("bank: authority does not own holding")
	ErrBalanceOverflow   = errors.New("bank: balance overflow")
)

// Holding is the balance of one asset held on behalf of an owner. The owner
// is either a keypair address or a program-derived address.
type Holding struct {
	Address [20]byte `rlp:"-"`
	Owner   [20]byte
	Asset   [20]byte
	Amount  *uint256.Int
	Bump    uint8
}

// Clone returns a deep copy of the holding.
func (h *Holding) Clone() *Holding {
	if h == nil {
		return nil
	}
	out := *h
	out.Amount = amountOrZero(h.Amount).Clone()
	return &out
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}

// NormalizeSymbol canonicalises a ticker symbol. Compatibility forms such as
// full-width letters fold to the same symbol as their plain spelling.
func NormalizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(norm.NFKC.String(symbol)))
	if normalized == "" || len(normalized) > crypto.MaxSeedLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return normalized, nil
}

// AssetAddress returns the identity of the asset with the given symbol.
func AssetAddress(symbol string) ([20]byte, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return [20]byte{}, err
	}
	addr, _, err := crypto.FindDerivedAddress(ProgramID, [][]byte{assetSeed, []byte(normalized)})
	return addr, err
}

// HoldingSeeds returns the derivation path of the holding for owner and asset.
func HoldingSeeds(owner, asset [20]byte) [][]byte {
	return [][]byte{owner[:], asset[:]}
}

// HoldingAddress returns the deterministic address of owner's holding of
// asset together with its bump.
func HoldingAddress(owner, asset [20]byte) ([20]byte, uint8, error) {
	return crypto.FindDerivedAddress(ProgramID, HoldingSeeds(owner, asset))
}

// Bank moves asset balances between holdings stored in ledger state.
type Bank struct {
	state   *state.Manager
	emitter events.Emitter
}

// New returns a bank operating on manager.
func New(manager *state.Manager) *Bank {
	return &Bank{state: manager, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event sink. Passing nil discards events.
func (b *Bank) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

func (b *Bank) emit(evt *types.Event) {
	if b == nil || b.emitter == nil || evt == nil {
		return
	}
	b.emitter.Emit(events.Wrap(evt))
}
