package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"offerswap/crypto"
	"offerswap/native/escrow"
)

// offerView resolves the vault of o and the amount it holds.
func (s *Server) offerView(o *escrow.Offer, height uint64) (OfferResult, *RPCError) {
	vault, err := escrow.VaultAddress(o.Address, o.AssetA)
	if err != nil {
		return OfferResult{}, serverError(err)
	}
	locked := uint256.NewInt(0)
	holding, err := s.node.Holding(vault)
	switch {
	case err == nil:
		locked = holding.Amount
	case escrow.Code(err) != escrow.CodeNotFound:
		return OfferResult{}, serverError(err)
	}
	return offerResult(o, vault, locked, height), nil
}

// handleGetOffer accepts either the offer address or the maker and offer id.
func (s *Server) handleGetOffer(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	var addr [20]byte
	var err error
	if len(params) >= 2 {
		maker, perr := addressParam(params, 0)
		if perr != nil {
			return nil, invalidParams("maker: %v", perr)
		}
		id, perr := optionalUint(params, 1)
		if perr != nil {
			return nil, invalidParams("id: %v", perr)
		}
		addr, _, err = escrow.OfferAddress(maker, id)
		if err != nil {
			return nil, domainError(err)
		}
	} else {
		addr, err = addressParam(params, 0)
		if err != nil {
			return nil, invalidParams("offer: %v", err)
		}
	}
	height := s.node.Height()
	offer, err := s.node.Offer(addr)
	if err != nil {
		return nil, domainError(err)
	}
	view, rpcErr := s.offerView(offer, height)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return view, nil
}

func (s *Server) handleDeriveAddresses(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	var p DeriveParams
	if err := decodeParam(params, 0, &p); err != nil {
		return nil, invalidParams("%v", err)
	}
	maker, err := crypto.ParseAddress(p.Maker)
	if err != nil {
		return nil, invalidParams("maker: %v", err)
	}
	assetA, err := parseAsset(p.AssetA)
	if err != nil {
		return nil, invalidParams("assetA: %v", err)
	}
	assetB, err := parseAsset(p.AssetB)
	if err != nil {
		return nil, invalidParams("assetB: %v", err)
	}
	if assetA == assetB {
		return nil, domainError(fmt.Errorf("%w: offered and wanted asset are identical", escrow.ErrInvalidAsset))
	}
	makeAccts, err := escrow.DeriveMakeOfferAccounts(maker, p.ID, assetA, assetB)
	if err != nil {
		return nil, domainError(err)
	}
	_, bump, err := escrow.OfferAddress(maker, p.ID)
	if err != nil {
		return nil, domainError(err)
	}
	result := DerivedAddressesResult{
		Offer:         crypto.FormatAccount(makeAccts.Offer),
		OfferBump:     bump,
		Vault:         crypto.FormatAccount(makeAccts.Vault),
		MakerHoldingA: crypto.FormatAccount(makeAccts.MakerHoldingA),
		MakeAccounts:  accountList(makeAccts.List()),
	}
	if p.Taker != "" {
		taker, err := crypto.ParseAddress(p.Taker)
		if err != nil {
			return nil, invalidParams("taker: %v", err)
		}
		take, err := escrow.DeriveTakeOfferAccounts(taker, maker, p.ID, assetA, assetB)
		if err != nil {
			return nil, domainError(err)
		}
		result.TakeAccounts = accountList(take.List())
	}
	return result, nil
}

func (s *Server) listOffers(offers []*escrow.Offer) (interface{}, *RPCError) {
	height := s.node.Height()
	out := make([]OfferResult, 0, len(offers))
	for _, offer := range offers {
		view, rpcErr := s.offerView(offer, height)
		if rpcErr != nil {
			return nil, rpcErr
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Server) handleListOffers(context.Context, []json.RawMessage) (interface{}, *RPCError) {
	offers, err := s.node.OpenOffers()
	if err != nil {
		return nil, serverError(err)
	}
	return s.listOffers(offers)
}

// handleListStaleOffers lists open offers at least minAge blocks old. Without
// a parameter the node's configured threshold applies.
func (s *Server) handleListStaleOffers(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	minAge, err := optionalUint(params, 0)
	if err != nil {
		return nil, invalidParams("minAge: %v", err)
	}
	offers, err := s.node.StaleOffers(minAge)
	if err != nil {
		return nil, serverError(err)
	}
	return s.listOffers(offers)
}

