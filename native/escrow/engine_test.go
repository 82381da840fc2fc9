package escrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"offerswap/core/events"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/bank"
)

const (
	holdingDeposit = testRecordBase + testPerByte*bank.HoldingSpace
	offerDeposit   = testRecordBase + testPerByte*OfferSpace
)

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	if payload, ok := events.Payload(evt); ok {
		r.events = append(r.events, payload)
	}
}

func TestMakeOfferLocksFundsInVault(t *testing.T) {
	f := newFixture(t)
	maker := f.newUser()
	f.fund(maker, f.assetA, 1000)
	makerAddr := maker.Authority().Address()
	nativeBefore := f.native(makerAddr)

	f.height = 12
	offer, err := f.make(maker, 1, 500, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(1), offer.ID)
	require.Equal(t, makerAddr, offer.Maker)
	require.Equal(t, uint64(200), offer.WantedB)
	require.Equal(t, uint64(12), offer.OpenedAt)

	accts := f.makeAccounts(maker, 1)
	require.Equal(t, accts.Offer, offer.Address)
	require.NoError(t, offer.Verify())

	require.Equal(t, uint64(500), f.balance(makerAddr, f.assetA))
	vault, err := f.bank.Holding(accts.Vault)
	require.NoError(t, err)
	require.Equal(t, uint64(500), vault.Amount.Uint64())
	require.Equal(t, offer.Address, vault.Owner)

	stored, err := f.engine.Offer(accts.Offer)
	require.NoError(t, err)
	require.Equal(t, offer, stored)

	require.Equal(t, nativeBefore-holdingDeposit-offerDeposit, f.native(makerAddr))
}

func TestTakeOfferSettlesSwap(t *testing.T) {
	f := newFixture(t)
	maker, taker := f.newUser(), f.newUser()
	f.fund(maker, f.assetA, 1000)
	f.fund(taker, f.assetB, 200)
	makerAddr, takerAddr := maker.Authority().Address(), taker.Authority().Address()
	makerNative := f.native(makerAddr)
	takerNative := f.native(takerAddr)

	_, err := f.make(maker, 1, 500, 200)
	require.NoError(t, err)

	emitter := &recordingEmitter{}
	f.engine.SetEmitter(emitter)
	taken, err := f.take(taker, maker, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), taken.ID)

	require.Equal(t, uint64(500), f.balance(takerAddr, f.assetA))
	require.Equal(t, uint64(0), f.balance(takerAddr, f.assetB))
	require.Equal(t, uint64(500), f.balance(makerAddr, f.assetA))
	require.Equal(t, uint64(200), f.balance(makerAddr, f.assetB))

	accts := f.takeAccounts(taker, maker, 1)
	require.False(t, f.exists(accts.Offer))
	require.False(t, f.exists(accts.Vault))

	// both deposits come back to the maker; the taker paid for the two
	// holdings opened on demand
	require.Equal(t, makerNative, f.native(makerAddr))
	require.Equal(t, takerNative-2*holdingDeposit, f.native(takerAddr))

	require.Len(t, emitter.events, 1)
	require.Equal(t, EventTypeOfferTaken, emitter.events[0].Type)
	require.Equal(t, "500", emitter.events[0].Attributes["amountA"])
	require.Equal(t, crypto.FormatAccount(takerAddr), emitter.events[0].Attributes["taker"])
}

func TestTakeOfferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	maker, taker := f.newUser(), f.newUser()
	f.fund(maker, f.assetA, 1000)
	f.fund(taker, f.assetB, 100)

	_, err := f.make(maker, 1, 500, 200)
	require.NoError(t, err)
	before := f.mgr.PendingRoot()

	_, err = f.take(taker, maker, 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, CodeInsufficientFunds, Code(err))
	require.Equal(t, before, f.mgr.PendingRoot())

	accts := f.takeAccounts(taker, maker, 1)
	require.True(t, f.exists(accts.Offer))
	vault, err := f.bank.Holding(accts.Vault)
	require.NoError(t, err)
	require.Equal(t, uint64(500), vault.Amount.Uint64())
	require.Equal(t, uint64(100), f.balance(taker.Authority().Address(), f.assetB))
}

func TestTakeOfferWithoutHoldingOfWantedAsset(t *testing.T) {
	f := newFixture(t)
	maker, taker := f.newUser(), f.newUser()
	f.fund(maker, f.assetA, 10)

	_, err := f.make(maker, 4, 10, 1)
	require.NoError(t, err)
	_, err = f.take(taker, maker, 4)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestMakeOfferDuplicateID(t *testing.T) {
	f := newFixture(t)
	maker := f.newUser()
	f.fund(maker, f.assetA, 1000)

	_, err := f.make(maker, 1, 500, 200)
	require.NoError(t, err)
	before := f.mgr.PendingRoot()

	_, err = f.make(maker, 1, 100, 50)
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, CodeAlreadyExists, Code(err))
	require.Equal(t, before, f.mgr.PendingRoot())

	vault, err := f.bank.Holding(f.makeAccounts(maker, 1).Vault)
	require.NoError(t, err)
	require.Equal(t, uint64(500), vault.Amount.Uint64())
}

func TestTakeOfferSucceedsAtMostOnce(t *testing.T) {
	f := newFixture(t)
	maker, first, second := f.newUser(), f.newUser(), f.newUser()
	f.fund(maker, f.assetA, 1000)
	f.fund(first, f.assetB, 200)
	f.fund(second, f.assetB, 200)

	_, err := f.make(maker, 9, 500, 200)
	require.NoError(t, err)
	_, err = f.take(first, maker, 9)
	require.NoError(t, err)

	_, err = f.take(second, maker, 9)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, uint64(0), f.balance(second.Authority().Address(), f.assetA))
	require.Equal(t, uint64(200), f.balance(second.Authority().Address(), f.assetB))

	// the identifier becomes reusable once the offer is closed
	_, err = f.make(maker, 9, 100, 1)
	require.NoError(t, err)
}

func TestMakeOfferValidation(t *testing.T) {
	f := newFixture(t)
	maker, other := f.newUser(), f.newUser()
	f.fund(maker, f.assetA, 100)

	tests := []struct {
		name   string
		mutate func(*MakeOfferAccounts, *MakeOfferData)
		auth   func() crypto.Authority
		want   error
	}{
		{
			name:   "zero amount",
			mutate: func(_ *MakeOfferAccounts, d *MakeOfferData) { d.AmountA = 0 },
			want:   ErrInvalidAmount,
		},
		{
			name:   "insufficient balance",
			mutate: func(_ *MakeOfferAccounts, d *MakeOfferData) { d.AmountA = 101 },
			want:   ErrInsufficientFunds,
		},
		{
			name:   "unknown asset",
			mutate: func(a *MakeOfferAccounts, _ *MakeOfferData) { a.AssetB = [20]byte{0xEE} },
			want:   ErrInvalidAsset,
		},
		{
			name:   "identical assets",
			mutate: func(a *MakeOfferAccounts, _ *MakeOfferData) { a.AssetB = a.AssetA },
			want:   ErrInvalidAsset,
		},
		{
			name:   "offer for another id",
			mutate: func(_ *MakeOfferAccounts, d *MakeOfferData) { d.ID = 2 },
			want:   ErrInvalidDerivation,
		},
		{
			name:   "foreign vault",
			mutate: func(a *MakeOfferAccounts, _ *MakeOfferData) { a.Vault = a.MakerHoldingA },
			want:   ErrInvalidDerivation,
		},
		{
			name:   "foreign source holding",
			mutate: func(a *MakeOfferAccounts, _ *MakeOfferData) { a.MakerHoldingA = a.Vault },
			want:   ErrInvalidDerivation,
		},
		{
			name:   "signer is not maker",
			mutate: func(*MakeOfferAccounts, *MakeOfferData) {},
			auth:   other.Authority,
			want:   ErrUnauthorized,
		},
		{
			name:   "no authority",
			mutate: func(*MakeOfferAccounts, *MakeOfferData) {},
			auth:   func() crypto.Authority { return crypto.Authority{} },
			want:   ErrUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accts := f.makeAccounts(maker, 1)
			data := MakeOfferData{ID: 1, AmountA: 50, WantedB: 5}
			tc.mutate(&accts, &data)
			auth := maker.Authority()
			if tc.auth != nil {
				auth = tc.auth()
			}
			before := f.mgr.PendingRoot()
			_, err := f.engine.MakeOffer(auth, accts, data)
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, before, f.mgr.PendingRoot())
		})
	}
}

func TestTakeOfferRejectsTamperedAccounts(t *testing.T) {
	f := newFixture(t)
	maker, taker, stranger := f.newUser(), f.newUser(), f.newUser()
	f.fund(maker, f.assetA, 1000)
	f.fund(maker, f.assetB, 1)
	f.fund(taker, f.assetB, 500)

	_, err := f.make(maker, 1, 500, 200)
	require.NoError(t, err)
	_, err = f.make(maker, 2, 100, 10)
	require.NoError(t, err)
	otherOffer := f.takeAccounts(taker, maker, 2)

	tests := []struct {
		name   string
		mutate func(*TakeOfferAccounts)
		auth   func() crypto.Authority
		want   error
	}{
		{
			name:   "vault of another offer",
			mutate: func(a *TakeOfferAccounts) { a.Vault = otherOffer.Vault },
			want:   ErrInvalidDerivation,
		},
		{
			name:   "wrong maker",
			mutate: func(a *TakeOfferAccounts) { a.Maker = stranger.Authority().Address() },
			want:   ErrInvalidDerivation,
		},
		{
			name: "payment redirected",
			mutate: func(a *TakeOfferAccounts) {
				redirected := f.takeAccounts(taker, stranger, 1)
				a.MakerHoldingB = redirected.MakerHoldingB
			},
			want: ErrInvalidDerivation,
		},
		{
			name:   "swapped assets",
			mutate: func(a *TakeOfferAccounts) { a.AssetA, a.AssetB = a.AssetB, a.AssetA },
			want:   ErrInvalidAsset,
		},
		{
			name:   "offer never made",
			mutate: func(a *TakeOfferAccounts) { a.Offer = f.takeAccounts(taker, maker, 77).Offer },
			want:   ErrNotFound,
		},
		{
			name:   "signer is not taker",
			mutate: func(*TakeOfferAccounts) {},
			auth:   stranger.Authority,
			want:   ErrUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accts := f.takeAccounts(taker, maker, 1)
			tc.mutate(&accts)
			auth := taker.Authority()
			if tc.auth != nil {
				auth = tc.auth()
			}
			before := f.mgr.PendingRoot()
			_, err := f.engine.TakeOffer(auth, accts)
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, before, f.mgr.PendingRoot())
		})
	}
}

func TestSelfTakeRoundTrips(t *testing.T) {
	f := newFixture(t)
	maker := f.newUser()
	f.fund(maker, f.assetA, 300)
	f.fund(maker, f.assetB, 50)
	addr := maker.Authority().Address()

	_, err := f.make(maker, 3, 300, 50)
	require.NoError(t, err)
	_, err = f.take(maker, maker, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(300), f.balance(addr, f.assetA))
	require.Equal(t, uint64(50), f.balance(addr, f.assetB))
}

func TestOpenOffersIndex(t *testing.T) {
	f := newFixture(t)
	maker, taker := f.newUser(), f.newUser()
	f.fund(maker, f.assetA, 100)
	f.fund(taker, f.assetB, 100)

	f.height = 5
	second, err := f.make(maker, 2, 10, 1)
	require.NoError(t, err)
	f.height = 3
	first, err := f.make(maker, 1, 10, 1)
	require.NoError(t, err)

	open, err := f.engine.OpenOffers()
	require.NoError(t, err)
	require.Len(t, open, 2)
	require.Equal(t, first.Address, open[0].Address)
	require.Equal(t, second.Address, open[1].Address)

	_, err = f.take(taker, maker, 1)
	require.NoError(t, err)
	open, err = f.engine.OpenOffers()
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, second.Address, open[0].Address)
}

func TestCode(t *testing.T) {
	require.Equal(t, "", Code(nil))
	require.Equal(t, CodeNotFound, Code(ErrNotFound))
	require.Equal(t, CodeInvalidDerivation, Code(crypto.ErrAddressMismatch))
	require.Equal(t, CodeInternal, Code(errors.New("disk on fire")))
}

func TestMakeOfferDataRoundTrip(t *testing.T) {
	data := MakeOfferData{ID: 42, AmountA: 500, WantedB: 200}
	raw, err := data.Encode()
	require.NoError(t, err)
	decoded, err := DecodeMakeOfferData(raw)
	require.NoError(t, err)
	require.Equal(t, data, decoded)

	_, err = DecodeMakeOfferData([]byte{0xff})
	require.ErrorIs(t, err, ErrMalformed)

	accts, err := DeriveTakeOfferAccounts([20]byte{1}, [20]byte{2}, 42, [20]byte{3}, [20]byte{4})
	require.NoError(t, err)
	parsed, err := TakeOfferAccountsFromList(accts.List())
	require.NoError(t, err)
	require.Equal(t, accts, parsed)
	_, err = TakeOfferAccountsFromList(accts.List()[:3])
	require.ErrorIs(t, err, ErrMalformed)
}
