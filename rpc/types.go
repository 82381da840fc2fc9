package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"offerswap/core/state"
	"offerswap/crypto"
	"offerswap/indexer"
	"offerswap/native/bank"
	"offerswap/native/escrow"
)

// HoldingResult renders a holding for RPC consumers.
type HoldingResult struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Bump    uint8  `json:"bump"`
}

// BalanceResult is the amount of one asset held by an owner.
type BalanceResult struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type AssetResult struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Supply   string `json:"supply"`
}

// OfferResult renders an open offer together with the amount locked in its
// vault and its age in blocks.
type OfferResult struct {
	Address  string `json:"address"`
	ID       uint64 `json:"id"`
	Maker    string `json:"maker"`
	AssetA   string `json:"assetA"`
	AssetB   string `json:"assetB"`
	WantedB  uint64 `json:"wantedB"`
	Bump     uint8  `json:"bump"`
	OpenedAt uint64 `json:"openedAt"`
	Age      uint64 `json:"age"`
	Vault    string `json:"vault"`
	Locked   string `json:"locked"`
}

// DerivedAddressesResult lists the addresses a client needs to build offer
// instructions. The account lists are in instruction role order.
type DerivedAddressesResult struct {
	Offer         string   `json:"offer"`
	OfferBump     uint8    `json:"offerBump"`
	Vault         string   `json:"vault"`
	MakerHoldingA string   `json:"makerHoldingA"`
	MakeAccounts  []string `json:"makeAccounts"`
	TakeAccounts  []string `json:"takeAccounts,omitempty"`
}

type SubmitResult struct {
	Hash string `json:"hash"`
}

type DeriveParams struct {
	Maker  string `json:"maker"`
	ID     uint64 `json:"id"`
	AssetA string `json:"assetA"`
	AssetB string `json:"assetB"`
	Taker  string `json:"taker,omitempty"`
}

type DevMintParams struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func holdingResult(h *bank.Holding) HoldingResult {
	return HoldingResult{
		Address: crypto.FormatAccount(h.Address),
		Owner:   crypto.FormatAccount(h.Owner),
		Asset:   crypto.FormatAsset(h.Asset),
		Amount:  amountString(h.Amount),
		Bump:    h.Bump,
	}
}

func assetResult(meta *state.AssetMetadata) AssetResult {
	return AssetResult{
		Address:  crypto.FormatAsset(meta.Address),
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		Supply:   amountString(meta.Supply),
	}
}

func offerResult(o *escrow.Offer, vault [20]byte, locked *uint256.Int, height uint64) OfferResult {
	var age uint64
	if height > o.OpenedAt {
		age = height - o.OpenedAt
	}
	return OfferResult{
		Address:  crypto.FormatAccount(o.Address),
		ID:       o.ID,
		Maker:    crypto.FormatAccount(o.Maker),
		AssetA:   crypto.FormatAsset(o.AssetA),
		AssetB:   crypto.FormatAsset(o.AssetB),
		WantedB:  o.WantedB,
		Bump:     o.Bump,
		OpenedAt: o.OpenedAt,
		Age:      age,
		Vault:    crypto.FormatAccount(vault),
		Locked:   amountString(locked),
	}
}

func accountList(list []common.Address) []string {
	out := make([]string, len(list))
	for i, addr := range list {
		out[i] = crypto.FormatAccount(addr)
	}
	return out
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func decodeParam(params []json.RawMessage, i int, out interface{}) error {
	if i >= len(params) {
		return fmt.Errorf("missing parameter %d", i)
	}
	if err := json.Unmarshal(params[i], out); err != nil {
		return fmt.Errorf("parameter %d: %w", i, err)
	}
	return nil
}

func addressParam(params []json.RawMessage, i int) ([20]byte, error) {
	var raw string
	if err := decodeParam(params, i, &raw); err != nil {
		return [20]byte{}, err
	}
	return crypto.ParseAddress(raw)
}

// parseAsset accepts an asset address or a registered symbol.
func parseAsset(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if addr, err := crypto.ParseAddress(trimmed); err == nil {
		return addr, nil
	}
	return bank.AssetAddress(trimmed)
}

func assetParam(params []json.RawMessage, i int) ([20]byte, error) {
	var raw string
	if err := decodeParam(params, i, &raw); err != nil {
		return [20]byte{}, err
	}
	return parseAsset(raw)
}

// ParseTxHash decodes a 0x-prefixed 32 byte transaction hash.
func ParseTxHash(raw string) (common.Hash, error) {
	decoded, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid transaction hash: %w", err)
	}
	if len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("transaction hash must be %d bytes", common.HashLength)
	}
	return common.BytesToHash(decoded), nil
}

func optionalUint(params []json.RawMessage, i int) (uint64, error) {
	if i >= len(params) {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(params[i], &n); err != nil {
		var s string
		if err := json.Unmarshal(params[i], &s); err != nil {
			return 0, fmt.Errorf("parameter %d must be an unsigned integer", i)
		}
		n = json.Number(s)
	}
	return strconv.ParseUint(n.String(), 10, 64)
}

// OfferHistoryResult is an indexed offer, open or taken.
type OfferHistoryResult struct {
	Address  string `json:"address"`
	ID       uint64 `json:"id"`
	Maker    string `json:"maker"`
	AssetA   string `json:"assetA"`
	AssetB   string `json:"assetB"`
	AmountA  string `json:"amountA"`
	WantedB  uint64 `json:"wantedB"`
	OpenedAt uint64 `json:"openedAt"`
	MadeTx   string `json:"madeTx"`
	State    string `json:"state"`
	Taker    string `json:"taker,omitempty"`
	TakenAt  uint64 `json:"takenAt,omitempty"`
	TakenTx  string `json:"takenTx,omitempty"`
}

func offerHistoryResult(o indexer.Offer) OfferHistoryResult {
	return OfferHistoryResult{
		Address:  o.Address,
		ID:       uint64(o.OfferID),
		Maker:    o.Maker,
		AssetA:   o.AssetA,
		AssetB:   o.AssetB,
		AmountA:  o.AmountA,
		WantedB:  uint64(o.WantedB),
		OpenedAt: uint64(o.OpenedAt),
		MadeTx:   o.MadeTx,
		State:    string(o.State),
		Taker:    o.Taker,
		TakenAt:  uint64(o.TakenAt),
		TakenTx:  o.TakenTx,
	}
}
