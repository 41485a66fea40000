package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// HashSigner produces Safe-compatible owner signatures over a 32-byte hash.
type HashSigner interface {
	Address() common.Address
	SignHash(hash common.Hash) ([]byte, error)
}
