package crypto

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func TestFindDerivedAddressIsDeterministic(t *testing.T) {
	program := NewProgramID("escrow")
	seeds := [][]byte{[]byte("offer"), bytes.Repeat([]byte{0x11}, 20), Uint64Seed(1)}

	first, bump, err := FindDerivedAddress(program, seeds)
	require.NoError(t, err)
	second, bump2, err := FindDerivedAddress(program, seeds)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, bump, bump2)

	recreated, err := CreateDerivedAddress(program, seeds, bump)
	require.NoError(t, err)
	require.Equal(t, first, recreated)
	require.NoError(t, VerifyDerivedAddress(program, seeds, bump, first))
}

func TestDerivedAddressDependsOnEverySeed(t *testing.T) {
	program := NewProgramID("escrow")
	maker := bytes.Repeat([]byte{0x11}, 20)
	base, _, err := FindDerivedAddress(program, [][]byte{[]byte("offer"), maker, Uint64Seed(1)})
	require.NoError(t, err)

	otherID, _, err := FindDerivedAddress(program, [][]byte{[]byte("offer"), maker, Uint64Seed(2)})
	require.NoError(t, err)
	require.NotEqual(t, base, otherID)

	otherProgram, _, err := FindDerivedAddress(NewProgramID("bank"), [][]byte{[]byte("offer"), maker, Uint64Seed(1)})
	require.NoError(t, err)
	require.NotEqual(t, base, otherProgram)
}

func TestFindDerivedAddressSkipsCurvePoints(t *testing.T) {
	program := NewProgramID("escrow")
	// Walk enough seed values that at least one first candidate lands on the curve.
	skipped := false
	for i := uint64(0); i < 64 && !skipped; i++ {
		seeds := [][]byte{Uint64Seed(i)}
		_, bump, err := FindDerivedAddress(program, seeds)
		require.NoError(t, err)
		if bump < 255 {
			skipped = true
			_, err := CreateDerivedAddress(program, seeds, 255)
			require.ErrorIs(t, err, ErrOnCurve)
		}
	}
	require.True(t, skipped, "expected at least one bump to be skipped")
}

func TestVerifyDerivedAddressRejectsWrongBump(t *testing.T) {
	program := NewProgramID("escrow")
	seeds := [][]byte{[]byte("offer"), Uint64Seed(7)}
	addr, bump, err := FindDerivedAddress(program, seeds)
	require.NoError(t, err)

	if bump == 0 {
		t.Skip("no lower bump to try")
	}
	err = VerifyDerivedAddress(program, seeds, bump-1, addr)
	if err == nil {
		t.Fatalf("bump %d unexpectedly verified", bump-1)
	}
	if !errors.Is(err, ErrAddressMismatch) && !errors.Is(err, ErrOnCurve) {
		t.Fatalf("unexpected error for bump %d: %v", bump-1, err)
	}
}

func TestSeedLimits(t *testing.T) {
	program := NewProgramID("escrow")
	_, _, err := FindDerivedAddress(program, [][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)})
	require.ErrorIs(t, err, ErrSeedTooLong)

	seeds := make([][]byte, MaxSeeds)
	_, _, err = FindDerivedAddress(program, seeds)
	require.ErrorIs(t, err, ErrTooManySeeds)
}

func TestDerivedAuthority(t *testing.T) {
	program := NewProgramID("escrow")
	seeds := [][]byte{[]byte("offer"), Uint64Seed(9)}
	addr, bump, err := FindDerivedAddress(program, seeds)
	require.NoError(t, err)

	auth, err := DerivedAuthority(program, seeds, bump)
	require.NoError(t, err)
	require.True(t, auth.Derived())
	require.True(t, auth.Is(addr))

	var zero Authority
	require.False(t, zero.Valid())
	require.False(t, zero.Is([20]byte{}))
}

func TestRecoverAuthority(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	digest := bytes.Repeat([]byte{0x42}, 32)
	sig, err := key.Sign(digest)
	require.NoError(t, err)

	auth, err := RecoverAuthority(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.Authority().Address(), auth.Address())
	require.False(t, auth.Derived())

	_, err = RecoverAuthority(digest, sig[:64])
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestAddressRoundTrip(t *testing.T) {
	raw := [20]byte{1, 2, 3, 4, 5}
	parsed, err := ParseAddress(FormatAccount(raw))
	require.NoError(t, err)
	require.Equal(t, raw, parsed)

	parsed, err = ParseAddress(FormatAsset(raw))
	require.NoError(t, err)
	require.Equal(t, raw, parsed)

	parsed, err = ParseAddress("0x0102030405000000000000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, raw, parsed)

	_, err = ParseAddress("")
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	KeystoreScryptN, KeystoreScryptP = keystore.LightScryptN, keystore.LightScryptP
	defer func() {
		KeystoreScryptN, KeystoreScryptP = keystore.StandardScryptN, keystore.StandardScryptP
	}()

	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "maker.keystore")
	require.NoError(t, SaveToKeystore(path, key, "secret"))

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
