// Package storage defines the persistence contracts for multisig wallets and
// agents. Implementations live in sqlite, postgres and memory.
package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type MultisigStore interface {
	// FindByPair returns ErrNotFound when the pair has no multisig.
	FindByPair(ctx context.Context, network string, agent, user common.Address) (*MultisigWallet, error)
	// FindByUser lists every multisig a user co-owns, oldest first.
	FindByUser(ctx context.Context, network string, user common.Address) ([]*MultisigWallet, error)
	// Insert returns ErrDuplicate when the pair already has a multisig.
	Insert(ctx context.Context, m *MultisigWallet) error
}

type AgentStore interface {
	// Register returns ErrDuplicate when the id is taken.
	Register(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
}

// Store is the full persistence surface opened by the CLI.
type Store interface {
	MultisigStore
	AgentStore
	Close() error
}
