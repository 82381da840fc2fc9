package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"offerswap/crypto"
	"offerswap/native/bank"
)

// GenesisSpec describes the initial ledger: the registered assets, storage
// deposit pricing and the opening balances.
type GenesisSpec struct {
	GenesisTime string                       `json:"genesisTime" yaml:"genesisTime"`
	Assets      []AssetSpec                  `json:"assets" yaml:"assets"`
	Deposits    DepositSpec                  `json:"deposits" yaml:"deposits"`
	NativeAlloc map[string]string            `json:"nativeAlloc,omitempty" yaml:"nativeAlloc,omitempty"` // addr -> amount
	Alloc       map[string]map[string]string `json:"alloc,omitempty" yaml:"alloc,omitempty"`             // addr -> symbol -> amount

	genesisTimestamp time.Time
}

type AssetSpec struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// DepositSpec prices record storage in native units.
type DepositSpec struct {
	RecordBase uint64 `json:"recordBase" yaml:"recordBase"`
	PerByte    uint64 `json:"perByte" yaml:"perByte"`
}

// LoadGenesisSpec reads a genesis file. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON. Unknown fields are rejected.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates raw. ext selects the format.
func ParseGenesisSpec(raw []byte, ext string) (*GenesisSpec, error) {
	var spec GenesisSpec
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	symbols := make(map[string]struct{}, len(s.Assets))
	for i := range s.Assets {
		normalized, err := bank.NormalizeSymbol(s.Assets[i].Symbol)
		if err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if _, exists := symbols[normalized]; exists {
			return fmt.Errorf("assets[%d]: duplicate symbol %q", i, s.Assets[i].Symbol)
		}
		symbols[normalized] = struct{}{}
	}

	for _, account := range sortedKeys(s.NativeAlloc) {
		if _, err := crypto.ParseAddress(account); err != nil {
			return fmt.Errorf("nativeAlloc[%q]: %w", account, err)
		}
		if _, err := parseAmount(s.NativeAlloc[account]); err != nil {
			return fmt.Errorf("nativeAlloc[%q]: %w", account, err)
		}
	}

	for _, account := range sortedKeys(s.Alloc) {
		if _, err := crypto.ParseAddress(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		seen := make(map[string]struct{})
		for _, symbol := range sortedKeys(s.Alloc[account]) {
			if _, err := parseAmount(s.Alloc[account][symbol]); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
			normalized, err := bank.NormalizeSymbol(symbol)
			if err != nil {
				return fmt.Errorf("alloc[%q]: %w", account, err)
			}
			if _, ok := symbols[normalized]; !ok {
				return fmt.Errorf("alloc[%q][%q]: undefined asset", account, symbol)
			}
			if _, dup := seen[normalized]; dup {
				return fmt.Errorf("alloc[%q]: duplicate asset %q", account, symbol)
			}
			seen[normalized] = struct{}{}
		}
	}
	return nil
}

func parseGenesisTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("genesisTime: %w", err)
	}
	return parsed.UTC(), nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
