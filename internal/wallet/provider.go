// Package wallet is the explicit chain handle passed to every action. It
// reads contract state, submits transactions from the configured signer and
// waits for receipts within a bounded window.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/chedda-agent/internal/id"
)

// TxRequest is a contract call to be signed and broadcast.
type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Reader is the read-only subset of Provider.
type Reader interface {
	Network() id.Network
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type Provider interface {
	Reader
	Address() common.Address
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// CodeReader reports deployed bytecode at an address.
type CodeReader interface {
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
}
