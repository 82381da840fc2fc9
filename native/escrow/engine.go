package escrow

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"offerswap/core/events"
	"offerswap/core/state"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/bank"
)

var openOffersKey = []byte("escrow/open-offers")

// Engine executes the make/take swap protocol against ledger state. Every
// operation runs inside a state snapshot, so a failure leaves no trace.
type Engine struct {
	state    *state.Manager
	bank     *bank.Bank
	emitter  events.Emitter
	heightFn func() uint64
}

// NewEngine creates an escrow engine with a no-op emitter.
func NewEngine(manager *state.Manager, b *bank.Bank) *Engine {
	return &Engine{
		state:    manager,
		bank:     b,
		emitter:  events.NoopEmitter{},
		heightFn: func() uint64 { return 0 },
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeightFunc configures the source of the ledger height stamped on new
// offers.
func (e *Engine) SetHeightFunc(fn func() uint64) {
	if fn == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = fn
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(events.Wrap(event))
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.bank == nil {
		return errNilState
	}
	return nil
}

// Offer loads the open offer stored at addr.
func (e *Engine) Offer(addr [20]byte) (*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, ok, err := e.state.Record(addr)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, crypto.FormatAccount(addr))
	}
	offer := new(Offer)
	if err := rlp.DecodeBytes(rec.Data, offer); err != nil {
		return nil, fmt.Errorf("escrow: decode offer %s: %w", crypto.FormatAccount(addr), err)
	}
	offer.Address = addr
	return offer, nil
}

// OpenOffers returns every open offer ordered by the height it was made at.
func (e *Engine) OpenOffers() ([]*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var index [][]byte
	if err := e.state.KVGetList(openOffersKey, &index); err != nil {
		return nil, err
	}
	offers := make([]*Offer, 0, len(index))
	for _, raw := range index {
		var addr [20]byte
		copy(addr[:], raw)
		offer, err := e.Offer(addr)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].OpenedAt != offers[j].OpenedAt {
			return offers[i].OpenedAt < offers[j].OpenedAt
		}
		return bytes.Compare(offers[i].Address[:], offers[j].Address[:]) < 0
	})
	return offers, nil
}

// MakeOffer locks AmountA of asset A from the maker's holding into a new
// vault and persists the offer. Both records appear together or not at all.
func (e *Engine) MakeOffer(maker crypto.Authority, accts MakeOfferAccounts, data MakeOfferData) (*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !maker.Is(accts.Maker) {
		return nil, fmt.Errorf("%w: maker %s did not sign", ErrUnauthorized, crypto.FormatAccount(accts.Maker))
	}
	if data.AmountA == 0 {
		return nil, fmt.Errorf("%w: offered amount must be positive", ErrInvalidAmount)
	}
	if err := e.checkAssets(accts.AssetA, accts.AssetB); err != nil {
		return nil, err
	}

	offerAddr, bump, err := OfferAddress(accts.Maker, data.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDerivation, err)
	}
	if offerAddr != accts.Offer {
		return nil, fmt.Errorf("%w: offer %s", ErrInvalidDerivation, crypto.FormatAccount(accts.Offer))
	}
	vaultAddr, err := VaultAddress(offerAddr, accts.AssetA)
	if err != nil || vaultAddr != accts.Vault {
		return nil, fmt.Errorf("%w: vault %s", ErrInvalidDerivation, crypto.FormatAccount(accts.Vault))
	}
	if err := bank.VerifyHolding(accts.MakerHoldingA, accts.Maker, accts.AssetA); err != nil {
		return nil, fmt.Errorf("%w: maker holding: %v", ErrInvalidDerivation, err)
	}

	offer := &Offer{
		Address:  offerAddr,
		ID:       data.ID,
		Maker:    accts.Maker,
		AssetA:   accts.AssetA,
		AssetB:   accts.AssetB,
		WantedB:  data.WantedB,
		Bump:     bump,
		OpenedAt: e.heightFn(),
	}
	err = e.state.Atomically(func() error {
		exists, err := e.state.RecordExists(offerAddr)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, crypto.FormatAccount(offerAddr))
		}
		if _, err := e.bank.OpenHolding(maker, offerAddr, accts.AssetA); err != nil {
			if errors.Is(err, bank.ErrHoldingExists) {
				return fmt.Errorf("%w: vault %s", ErrAlreadyExists, crypto.FormatAccount(vaultAddr))
			}
			return fundsError(err)
		}
		if err := e.bank.Transfer(maker, accts.MakerHoldingA, vaultAddr, uint256.NewInt(data.AmountA)); err != nil {
			return fundsError(err)
		}
		encoded, err := rlp.EncodeToBytes(offer)
		if err != nil {
			return err
		}
		if err := e.state.CreateRecord(offerAddr, ProgramID, accts.Maker, OfferSpace, encoded); err != nil {
			return fundsError(err)
		}
		return e.state.KVAppend(openOffersKey, offerAddr[:])
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewOfferMadeEvent(offer, data.AmountA))
	return offer.Clone(), nil
}

// TakeOffer pays the maker, releases the vault to the taker and closes both
// vault and offer, refunding their deposits to the maker. The taker's
// receiving holding of A and the maker's holding of B are opened on demand
// at the taker's expense.
func (e *Engine) TakeOffer(taker crypto.Authority, accts TakeOfferAccounts) (*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !taker.Is(accts.Taker) {
		return nil, fmt.Errorf("%w: taker %s did not sign", ErrUnauthorized, crypto.FormatAccount(accts.Taker))
	}
	offer, err := e.Offer(accts.Offer)
	if err != nil {
		return nil, err
	}
	if err := offer.Verify(); err != nil {
		return nil, err
	}
	if offer.Maker != accts.Maker {
		return nil, fmt.Errorf("%w: maker %s does not match offer", ErrInvalidDerivation, crypto.FormatAccount(accts.Maker))
	}
	if offer.AssetA != accts.AssetA || offer.AssetB != accts.AssetB {
		return nil, fmt.Errorf("%w: assets do not match offer", ErrInvalidAsset)
	}
	vaultAddr, err := VaultAddress(offer.Address, offer.AssetA)
	if err != nil || vaultAddr != accts.Vault {
		return nil, fmt.Errorf("%w: vault %s", ErrInvalidDerivation, crypto.FormatAccount(accts.Vault))
	}
	for _, check := range []struct {
		addr, owner, asset [20]byte
	}{
		{accts.TakerHoldingA, accts.Taker, offer.AssetA},
		{accts.TakerHoldingB, accts.Taker, offer.AssetB},
		{accts.MakerHoldingB, offer.Maker, offer.AssetB},
	} {
		if err := bank.VerifyHolding(check.addr, check.owner, check.asset); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDerivation, err)
		}
	}
	vaultAuth, err := offer.authority()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDerivation, err)
	}

	var released *uint256.Int
	err = e.state.Atomically(func() error {
		vault, err := e.bank.Holding(vaultAddr)
		if err != nil {
			return fmt.Errorf("%w: vault %s", ErrNotFound, crypto.FormatAccount(vaultAddr))
		}
		if _, err := e.bank.Holding(accts.TakerHoldingB); err != nil {
			return fmt.Errorf("%w: taker holds no %s", ErrInsufficientFunds, crypto.FormatAsset(offer.AssetB))
		}
		if _, err := e.bank.EnsureHolding(taker, accts.MakerHoldingB, offer.Maker, offer.AssetB); err != nil {
			return fundsError(err)
		}
		if _, err := e.bank.EnsureHolding(taker, accts.TakerHoldingA, accts.Taker, offer.AssetA); err != nil {
			return fundsError(err)
		}

		// the maker is paid before custody is released
		if err := e.bank.Transfer(taker, accts.TakerHoldingB, accts.MakerHoldingB, uint256.NewInt(offer.WantedB)); err != nil {
			return fundsError(err)
		}
		released = vault.Amount.Clone()
		if err := e.bank.Transfer(vaultAuth, vaultAddr, accts.TakerHoldingA, released); err != nil {
			return err
		}
		if _, err := e.bank.CloseHolding(vaultAuth, vaultAddr, offer.Maker); err != nil {
			return err
		}
		if _, err := e.state.CloseRecord(offer.Address, ProgramID, offer.Maker); err != nil {
			return err
		}
		return e.state.KVRemove(openOffersKey, offer.Address[:])
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewOfferTakenEvent(offer, accts.Taker, released))
	return offer, nil
}

func (e *Engine) checkAssets(assetA, assetB [20]byte) error {
	if assetA == assetB {
		return fmt.Errorf("%w: offered and wanted asset are identical", ErrInvalidAsset)
	}
	for _, asset := range [][20]byte{assetA, assetB} {
		if _, err := e.bank.Asset(asset); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAsset, err)
		}
	}
	return nil
}

// fundsError maps balance shortfalls from the bank and the deposit ledger
// onto ErrInsufficientFunds.
func fundsError(err error) error {
	if errors.Is(err, bank.ErrInsufficientFunds) || errors.Is(err, state.ErrInsufficientBalance) {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	if errors.Is(err, bank.ErrHoldingNotFound) {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	return err
}
