package types

import "github.com/ethereum/go-ethereum/common"

// ReceiptStatus reports the outcome of a transaction.
type ReceiptStatus uint8

const (
	ReceiptFailed  ReceiptStatus = 0
	ReceiptSuccess ReceiptStatus = 1
)

// Receipt records the result of applying a transaction. Failed transactions
// carry the stable error code and leave no state behind.
type Receipt struct {
	TxHash      common.Hash   `json:"txHash"`
	Type        TxType        `json:"type"`
	Signer      string        `json:"signer,omitempty"`
	BlockHeight uint64        `json:"blockHeight"`
	Index       uint32        `json:"index"`
	Status      ReceiptStatus `json:"status"`
	Code        string        `json:"code,omitempty"`
	Error       string        `json:"error,omitempty"`
	Events      []Event       `json:"events,omitempty"`
}

// Succeeded reports whether the transaction was applied.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptSuccess
}
