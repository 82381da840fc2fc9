package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seeds in a derivation path.
	MaxSeeds = 16
	// MaxSeedLength bounds the size of a single seed.
	MaxSeedLength = 32

	derivationMarker = "ProgramDerivedAddress"
)

var (
	ErrTooManySeeds      = errors.New("crypto: too many derivation seeds")
	ErrSeedTooLong       = errors.New("crypto: derivation seed too long")
	ErrOnCurve           = errors.New("crypto: derived digest lies on the secp256k1 curve")
	ErrNoViableBump      = errors.New("crypto: unable to find a viable derivation bump")
	ErrAddressMismatch   = errors.New("crypto: address does not match derivation")
	ErrInvalidSignature  = errors.New("crypto: invalid signature")
	ErrUnusableAuthority = errors.New("crypto: authority not initialised")
)

// ProgramID names the namespace a derived address belongs to. Addresses
// derived under one program can never collide with another program's.
type ProgramID [20]byte

// NewProgramID returns the identifier of the named program namespace.
func NewProgramID(name string) ProgramID {
	var id ProgramID
	copy(id[:], ethcrypto.Keccak256([]byte("program:"+name))[12:])
	return id
}

// Address returns the program identifier as a raw address.
func (p ProgramID) Address() [20]byte { return [20]byte(p) }

func (p ProgramID) String() string { return FormatAccount([20]byte(p)) }

// Uint64Seed encodes v as an 8-byte little-endian seed.
func Uint64Seed(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

func checkSeeds(seeds [][]byte) error {
	// one slot is reserved for the bump
	if len(seeds) >= MaxSeeds {
		return ErrTooManySeeds
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d has %d bytes", ErrSeedTooLong, i, len(seed))
		}
	}
	return nil
}

func derivationDigest(program ProgramID, seeds [][]byte, bump byte) []byte {
	parts := make([][]byte, 0, len(seeds)+3)
	parts = append(parts, seeds...)
	parts = append(parts, []byte{bump}, program[:], []byte(derivationMarker))
	return ethcrypto.Keccak256(parts...)
}

// onCurve reports whether digest is the x-coordinate of a secp256k1 point,
// i.e. whether some private key could plausibly control it.
func onCurve(digest []byte) bool {
	compressed := make([]byte, 0, 33)
	compressed = append(compressed, 0x02)
	compressed = append(compressed, digest...)
	_, err := ethcrypto.DecompressPubkey(compressed)
	return err == nil
}

// CreateDerivedAddress computes the address for the seed sequence and bump.
// Digests that land on the curve are rejected.
func CreateDerivedAddress(program ProgramID, seeds [][]byte, bump byte) ([20]byte, error) {
	var out [20]byte
	if err := checkSeeds(seeds); err != nil {
		return out, err
	}
	digest := derivationDigest(program, seeds, bump)
	if onCurve(digest) {
		return out, ErrOnCurve
	}
	copy(out[:], digest[12:])
	return out, nil
}

// FindDerivedAddress searches bumps from 255 downward and returns the first
// viable address together with its bump.
func FindDerivedAddress(program ProgramID, seeds [][]byte) ([20]byte, byte, error) {
	if err := checkSeeds(seeds); err != nil {
		return [20]byte{}, 0, err
	}
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateDerivedAddress(program, seeds, byte(bump))
		if err == nil {
			return addr, byte(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return [20]byte{}, 0, err
		}
	}
	return [20]byte{}, 0, ErrNoViableBump
}

// VerifyDerivedAddress checks that addr is the derivation of seeds and bump.
func VerifyDerivedAddress(program ProgramID, seeds [][]byte, bump byte, addr [20]byte) error {
	expected, err := CreateDerivedAddress(program, seeds, bump)
	if err != nil {
		return err
	}
	if expected != addr {
		return ErrAddressMismatch
	}
	return nil
}
