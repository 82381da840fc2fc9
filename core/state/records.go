package state

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"offerswap/crypto"
)

var (
	ErrRecordExists   = errors.New("state: record already exists")
	ErrRecordNotFound = errors.New("state: record not found")
	ErrRecordOwner    = errors.New("state: record owned by another program")
	ErrRecordTooLarge = errors.New("state: record data exceeds reserved space")
)

var (
	recordPrefix     = []byte("record:")
	depositParamsKey = []byte("params/deposit")
)

// DepositParams prices the storage reserved by a record. The deposit is
// charged on creation and refunded in full when the record is closed.
type DepositParams struct {
	RecordBase uint64
	PerByte    uint64
}

// Record is a program-owned ledger entry with a reserved storage deposit.
type Record struct {
	Owner   crypto.ProgramID
	Space   uint64
	Deposit *uint256.Int
	Data    []byte
}

func recordKey(addr [20]byte) []byte {
	return prefixedKey(recordPrefix, addr[:])
}

// SetDepositParams stores the storage pricing used by CreateRecord.
func (m *Manager) SetDepositParams(p DepositParams) error {
	return m.KVPut(depositParamsKey, &p)
}

// DepositParams returns the storage pricing, zero when unset.
func (m *Manager) DepositParams() (DepositParams, error) {
	var p DepositParams
	if _, err := m.KVGet(depositParamsKey, &p); err != nil {
		return DepositParams{}, err
	}
	return p, nil
}

// DepositFor returns the deposit reserved for a record of the given space.
func (m *Manager) DepositFor(space uint64) (*uint256.Int, error) {
	p, err := m.DepositParams()
	if err != nil {
		return nil, err
	}
	deposit := new(uint256.Int).Mul(uint256.NewInt(p.PerByte), uint256.NewInt(space))
	return deposit.Add(deposit, uint256.NewInt(p.RecordBase)), nil
}

// Record loads the record stored at addr.
func (m *Manager) Record(addr [20]byte) (*Record, bool, error) {
	rec := new(Record)
	ok, err := m.KVGet(recordKey(addr), rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	if rec.Deposit == nil {
		rec.Deposit = uint256.NewInt(0)
	}
	return rec, true, nil
}

// RecordExists reports whether a record is stored at addr.
func (m *Manager) RecordExists(addr [20]byte) (bool, error) {
	return m.KVGet(recordKey(addr), nil)
}

// CreateRecord reserves space at addr for owner, charging the deposit to the
// payer's native balance.
func (m *Manager) CreateRecord(addr [20]byte, owner crypto.ProgramID, payer [20]byte, space uint64, data []byte) error {
	if uint64(len(data)) > space {
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, len(data), space)
	}
	exists, err := m.RecordExists(addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrRecordExists, crypto.FormatAccount(addr))
	}
	deposit, err := m.DepositFor(space)
	if err != nil {
		return err
	}
	if err := m.DebitNative(payer, deposit); err != nil {
		return err
	}
	rec := &Record{Owner: owner, Space: space, Deposit: deposit, Data: append([]byte(nil), data...)}
	return m.KVPut(recordKey(addr), rec)
}

// UpdateRecord replaces the data of an existing record owned by owner.
func (m *Manager) UpdateRecord(addr [20]byte, owner crypto.ProgramID, data []byte) error {
	rec, ok, err := m.Record(addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, crypto.FormatAccount(addr))
	}
	if rec.Owner != owner {
		return ErrRecordOwner
	}
	if uint64(len(data)) > rec.Space {
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, len(data), rec.Space)
	}
	rec.Data = append([]byte(nil), data...)
	return m.KVPut(recordKey(addr), rec)
}

// CloseRecord deletes the record at addr and refunds its deposit to the
// beneficiary. The refunded amount is returned.
func (m *Manager) CloseRecord(addr [20]byte, owner crypto.ProgramID, beneficiary [20]byte) (*uint256.Int, error) {
	rec, ok, err := m.Record(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, crypto.FormatAccount(addr))
	}
	if rec.Owner != owner {
		return nil, ErrRecordOwner
	}
	if err := m.KVDelete(recordKey(addr)); err != nil {
		return nil, err
	}
	if err := m.CreditNative(beneficiary, rec.Deposit); err != nil {
		return nil, err
	}
	return rec.Deposit, nil
}
