package types

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"offerswap/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeTransfer      TxType = 0x01 // Move an asset between two holdings
	TxTypeCreateHolding TxType = 0x02 // Open an empty holding
	TxTypeMakeOffer     TxType = 0x10 // Lock asset A and publish an offer
	TxTypeTakeOffer     TxType = 0x11 // Fulfil an open offer
)

func (t TxType) String() string {
	switch t {
	case TxTypeTransfer:
		return "transfer"
	case TxTypeCreateHolding:
		return "create_holding"
	case TxTypeMakeOffer:
		return "make_offer"
	case TxTypeTakeOffer:
		return "take_offer"
	default:
		return "unknown"
	}
}

var ErrMissingSignature = errors.New("types: transaction is not signed")

// Transaction is a signed instruction. Accounts lists every address the
// instruction touches, ordered by the instruction's role list; Data carries
// the RLP encoded instruction arguments.
type Transaction struct {
	Type     TxType           `json:"type"`
	Nonce    uint64           `json:"nonce"`
	Accounts []common.Address `json:"accounts"`
	Data     hexutil.Bytes    `json:"data"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	authority *crypto.Authority
}

// Hash returns the keccak256 digest of the unsigned transaction fields. The
// digest identifies the transaction and is the message that gets signed.
func (tx *Transaction) Hash() ([]byte, error) {
	payload := struct {
		Type     TxType
		Nonce    uint64
		Accounts []common.Address
		Data     []byte
	}{tx.Type, tx.Nonce, tx.Accounts, tx.Data}

	b, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(b), nil
}

// TxHash returns Hash as a fixed-size value.
func (tx *Transaction) TxHash() (common.Hash, error) {
	h, err := tx.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(h), nil
}

// Sign signs the transaction with privKey.
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := ethcrypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.authority = nil
	return nil
}

// Authority recovers the signer of the transaction.
func (tx *Transaction) Authority() (crypto.Authority, error) {
	if tx.authority != nil {
		return *tx.authority, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return crypto.Authority{}, ErrMissingSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return crypto.Authority{}, err
	}
	if tx.R.BitLen() > 256 || tx.S.BitLen() > 256 || tx.V.Uint64() < 27 {
		return crypto.Authority{}, crypto.ErrInvalidSignature
	}
	sig := make([]byte, 65)
	tx.R.FillBytes(sig[:32])
	tx.S.FillBytes(sig[32:64])
	sig[64] = byte(tx.V.Uint64() - 27)
	auth, err := crypto.RecoverAuthority(hash, sig)
	if err != nil {
		return crypto.Authority{}, err
	}
	tx.authority = &auth
	return auth, nil
}

// Account returns the address in role slot i.
func (tx *Transaction) Account(i int) ([20]byte, bool) {
	if i < 0 || i >= len(tx.Accounts) {
		return [20]byte{}, false
	}
	return [20]byte(tx.Accounts[i]), true
}
