package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/holiman/uint256"

	"offerswap/core"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/escrow"
)

// domainError maps a ledger error to its RPC form. The stable error code
// travels in the data field.
func domainError(err error) *RPCError {
	code := escrow.Code(err)
	switch code {
	case escrow.CodeInternal:
		return serverError(err)
	case escrow.CodeNotFound:
		return &RPCError{Code: codeNotFound, Message: err.Error(), Data: code}
	default:
		return &RPCError{Code: codeInvalidParams, Message: err.Error(), Data: code}
	}
}

func submissionError(err error) *RPCError {
	switch {
	case errors.Is(err, core.ErrMempoolFull):
		return &RPCError{Code: codeTxRejected, Message: err.Error(), Data: "MempoolFull"}
	case errors.Is(err, core.ErrDuplicateTransaction):
		return &RPCError{Code: codeTxRejected, Message: err.Error(), Data: "Duplicate"}
	case errors.Is(err, context.DeadlineExceeded):
		return &RPCError{Code: codeServerError, Message: "timed out waiting for block inclusion"}
	}
	if code := escrow.Code(err); code != escrow.CodeInternal {
		return &RPCError{Code: codeTxRejected, Message: err.Error(), Data: code}
	}
	return serverError(err)
}

func (s *Server) handleChainHeight(context.Context, []json.RawMessage) (interface{}, *RPCError) {
	return s.node.Height(), nil
}

// handleSendTransaction submits a signed transaction and waits for its
// receipt.
func (s *Server) handleSendTransaction(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	tx := new(types.Transaction)
	if err := decodeParam(params, 0, tx); err != nil {
		return nil, invalidParams("invalid transaction: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()
	receipt, err := s.node.SubmitTransaction(ctx, tx)
	if err != nil {
		return nil, submissionError(err)
	}
	return receipt, nil
}

// handleSubmitTransaction queues a signed transaction and returns its hash
// without waiting.
func (s *Server) handleSubmitTransaction(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	tx := new(types.Transaction)
	if err := decodeParam(params, 0, tx); err != nil {
		return nil, invalidParams("invalid transaction: %v", err)
	}
	hash, err := s.node.AddTransaction(tx)
	if err != nil {
		return nil, submissionError(err)
	}
	return SubmitResult{Hash: hash.Hex()}, nil
}

func (s *Server) handleGetReceipt(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	var raw string
	if err := decodeParam(params, 0, &raw); err != nil {
		return nil, invalidParams("%v", err)
	}
	hash, err := ParseTxHash(raw)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	receipt, err := s.node.Receipt(hash)
	if errors.Is(err, core.ErrReceiptNotFound) {
		return nil, &RPCError{Code: codeNotFound, Message: "receipt not found"}
	}
	if err != nil {
		return nil, serverError(err)
	}
	return receipt, nil
}

func (s *Server) handleGetBalance(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	owner, err := addressParam(params, 0)
	if err != nil {
		return nil, invalidParams("owner: %v", err)
	}
	asset, err := assetParam(params, 1)
	if err != nil {
		return nil, invalidParams("asset: %v", err)
	}
	amount, err := s.node.Balance(owner, asset)
	if err != nil {
		return nil, domainError(err)
	}
	return BalanceResult{
		Owner:  crypto.FormatAccount(owner),
		Asset:  crypto.FormatAsset(asset),
		Amount: amountString(amount),
	}, nil
}

func (s *Server) handleGetHolding(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	addr, err := addressParam(params, 0)
	if err != nil {
		return nil, invalidParams("holding: %v", err)
	}
	holding, err := s.node.Holding(addr)
	if err != nil {
		return nil, domainError(err)
	}
	return holdingResult(holding), nil
}

func (s *Server) handleGetNativeBalance(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	addr, err := addressParam(params, 0)
	if err != nil {
		return nil, invalidParams("address: %v", err)
	}
	amount, err := s.node.NativeBalance(addr)
	if err != nil {
		return nil, serverError(err)
	}
	return BalanceResult{Owner: crypto.FormatAccount(addr), Amount: amountString(amount)}, nil
}

func (s *Server) handleListAssets(context.Context, []json.RawMessage) (interface{}, *RPCError) {
	assets, err := s.node.Assets()
	if err != nil {
		return nil, serverError(err)
	}
	out := make([]AssetResult, 0, len(assets))
	for _, meta := range assets {
		out = append(out, assetResult(meta))
	}
	return out, nil
}

func (s *Server) handleDevMint(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	var p DevMintParams
	if err := decodeParam(params, 0, &p); err != nil {
		return nil, invalidParams("%v", err)
	}
	owner, err := crypto.ParseAddress(p.Owner)
	if err != nil {
		return nil, invalidParams("owner: %v", err)
	}
	asset, err := parseAsset(p.Asset)
	if err != nil {
		return nil, invalidParams("asset: %v", err)
	}
	amount, err := uint256.FromDecimal(p.Amount)
	if err != nil {
		return nil, invalidParams("amount: %v", err)
	}
	holding, err := s.node.DevMint(owner, asset, amount)
	if errors.Is(err, core.ErrInvalidAmount) {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error(), Data: escrow.CodeInvalidAmount}
	}
	if err != nil {
		return nil, domainError(err)
	}
	return holdingResult(holding), nil
}
