package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrAssetExists  = errors.New("state: asset already registered")
	ErrUnknownAsset = errors.New("state: asset not registered")
	ErrSupply       = errors.New("state: asset supply out of range")
)

var (
	assetPrefix  = []byte("asset:")
	assetListKey = []byte("asset-list")
)

// AssetMetadata describes a registered asset. The address is the asset's
// identity; the symbol is informational.
type AssetMetadata struct {
	Address  [20]byte
	Symbol   string
	Decimals uint8
	Supply   *uint256.Int
}

func assetKey(addr [20]byte) []byte {
	return prefixedKey(assetPrefix, addr[:])
}

// RegisterAsset records a new asset with zero supply.
func (m *Manager) RegisterAsset(addr [20]byte, symbol string, decimals uint8) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("asset symbol must not be empty")
	}
	if addr == ([20]byte{}) {
		return fmt.Errorf("asset %s: address must not be zero", normalized)
	}
	if ok, err := m.KVGet(assetKey(addr), nil); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, normalized)
	}
	meta := &AssetMetadata{Address: addr, Symbol: normalized, Decimals: decimals, Supply: uint256.NewInt(0)}
	if err := m.KVPut(assetKey(addr), meta); err != nil {
		return err
	}
	return m.KVAppend(assetListKey, addr[:])
}

// Asset loads the metadata registered for addr.
func (m *Manager) Asset(addr [20]byte) (*AssetMetadata, error) {
	meta := new(AssetMetadata)
	ok, err := m.KVGet(assetKey(addr), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownAsset
	}
	if meta.Supply == nil {
		meta.Supply = uint256.NewInt(0)
	}
	return meta, nil
}

// AssetList returns every registered asset address in ascending byte order.
func (m *Manager) AssetList() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(assetListKey, &raw); err != nil {
		return nil, err
	}
	sort.Slice(raw, func(i, j int) bool { return bytes.Compare(raw[i], raw[j]) < 0 })
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

// IncreaseSupply records newly issued units of an asset.
func (m *Manager) IncreaseSupply(addr [20]byte, amount *uint256.Int) error {
	meta, err := m.Asset(addr)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(meta.Supply, amount)
	if overflow {
		return fmt.Errorf("%w: %s", ErrSupply, meta.Symbol)
	}
	meta.Supply = next
	return m.KVPut(assetKey(addr), meta)
}
