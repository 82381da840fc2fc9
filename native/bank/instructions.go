package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

var ErrMalformed = errors.New("bank: malformed instruction")

// TransferRoles lists the accounts of a Transfer instruction.
var TransferRoles = []string{"from_holding", "to_holding"}

// CreateHoldingRoles lists the accounts of a CreateHolding instruction. The
// owner must be the signer.
var CreateHoldingRoles = []string{"owner", "asset"}

// TransferData carries the arguments of a Transfer instruction.
type TransferData struct {
	Amount uint64 `json:"amount"`
}

func (d TransferData) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(&d)
}

func DecodeTransferData(raw []byte) (TransferData, error) {
	var d TransferData
	if err := rlp.DecodeBytes(raw, &d); err != nil {
		return TransferData{}, fmt.Errorf("%w: transfer data: %v", ErrMalformed, err)
	}
	return d, nil
}

// TransferAccounts returns the transaction account list for a transfer.
func TransferAccounts(from, to [20]byte) []common.Address {
	return []common.Address{from, to}
}

// CreateHoldingAccounts returns the transaction account list for opening
// owner's holding of asset.
func CreateHoldingAccounts(owner, asset [20]byte) []common.Address {
	return []common.Address{owner, asset}
}

func expectAccounts(list []common.Address, roles []string) error {
	if len(list) != len(roles) {
		return fmt.Errorf("%w: expected %d accounts, got %d", ErrMalformed, len(roles), len(list))
	}
	return nil
}

// ParseTransferAccounts validates and unpacks a Transfer account list.
func ParseTransferAccounts(list []common.Address) (from, to [20]byte, err error) {
	if err := expectAccounts(list, TransferRoles); err != nil {
		return from, to, err
	}
	return list[0], list[1], nil
}

// ParseCreateHoldingAccounts validates and unpacks a CreateHolding account
// list.
func ParseCreateHoldingAccounts(list []common.Address) (owner, asset [20]byte, err error) {
	if err := expectAccounts(list, CreateHoldingRoles); err != nil {
		return owner, asset, err
	}
	return list[0], list[1], nil
}
