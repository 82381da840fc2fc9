package state

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("state: insufficient native balance")
	ErrBalanceOverflow     = errors.New("state: native balance overflow")
)

var nativeBalancePrefix = []byte("native:")

func nativeBalanceKey(addr [20]byte) []byte {
	return prefixedKey(nativeBalancePrefix, addr[:])
}

// NativeBalance returns the native balance of addr. Native units pay for the
// storage deposits attached to ledger records.
func (m *Manager) NativeBalance(addr [20]byte) (*uint256.Int, error) {
	balance := new(uint256.Int)
	ok, err := m.KVGet(nativeBalanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return uint256.NewInt(0), nil
	}
	return balance, nil
}

// SetNativeBalance overwrites the native balance of addr.
func (m *Manager) SetNativeBalance(addr [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return m.KVDelete(nativeBalanceKey(addr))
	}
	return m.KVPut(nativeBalanceKey(addr), amount)
}

// CreditNative adds amount to the native balance of addr.
func (m *Manager) CreditNative(addr [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := m.NativeBalance(addr)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	return m.SetNativeBalance(addr, next)
}

// DebitNative subtracts amount from the native balance of addr.
func (m *Manager) DebitNative(addr [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := m.NativeBalance(addr)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance.Dec(), amount.Dec())
	}
	return m.SetNativeBalance(addr, new(uint256.Int).Sub(balance, amount))
}
