package crypto

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type authorityKind uint8

const (
	authorityNone authorityKind = iota
	authoritySigner
	authorityDerived
)

// Authority is the capability to move funds held by an address. It can only
// be obtained by recovering a valid signature, by holding the private key, or
// by re-deriving a program address from its seed sequence. It is never read
// from state.
type Authority struct {
	addr [20]byte
	kind authorityKind
}

// Address returns the address the authority speaks for.
func (a Authority) Address() [20]byte { return a.addr }

// Valid reports whether the authority was produced by one of the constructors.
func (a Authority) Valid() bool { return a.kind != authorityNone }

// Derived reports whether the authority belongs to a program-derived address.
func (a Authority) Derived() bool { return a.kind == authorityDerived }

// Is reports whether the authority speaks for addr.
func (a Authority) Is(addr [20]byte) bool { return a.Valid() && a.addr == addr }

func (a Authority) String() string {
	if !a.Valid() {
		return "<none>"
	}
	return FormatAccount(a.addr)
}

// RecoverAuthority recovers the signer of digest from a 65-byte recoverable
// signature.
func RecoverAuthority(digest, sig []byte) (Authority, error) {
	if len(sig) != 65 {
		return Authority{}, ErrInvalidSignature
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return Authority{}, ErrInvalidSignature
	}
	var addr [20]byte
	copy(addr[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return Authority{addr: addr, kind: authoritySigner}, nil
}

// DerivedAuthority re-derives the program address for seeds and bump and
// returns the authority to sign on its behalf.
func DerivedAuthority(program ProgramID, seeds [][]byte, bump byte) (Authority, error) {
	addr, err := CreateDerivedAddress(program, seeds, bump)
	if err != nil {
		return Authority{}, err
	}
	return Authority{addr: addr, kind: authorityDerived}, nil
}
