package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu        sync.RWMutex
	multisigs map[string]*storage.MultisigWallet // keyed by storage.PairKey
	agents    map[string]*storage.Agent
}

func New() *Store {
	return &Store{
		multisigs: make(map[string]*storage.MultisigWallet),
		agents:    make(map[string]*storage.Agent),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) FindByPair(_ context.Context, network string, agent, user common.Address) (*storage.MultisigWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.multisigs[storage.PairKey(network, agent, user)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyMultisig(m), nil
}

func (s *Store) FindByUser(_ context.Context, network string, user common.Address) ([]*storage.MultisigWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.MultisigWallet, 0)
	for _, m := range s.multisigs {
		if strings.EqualFold(m.Network, network) && m.UserAddress == user {
			out = append(out, copyMultisig(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Insert(_ context.Context, m *storage.MultisigWallet) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storage.PairKey(m.Network, m.AgentAddress, m.UserAddress)
	if _, exists := s.multisigs[key]; exists {
		return storage.ErrDuplicate
	}
	s.multisigs[key] = copyMultisig(m)
	return nil
}

func (s *Store) Register(_ context.Context, a *storage.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[a.ID]; exists {
		return storage.ErrDuplicate
	}
	agentCopy := *a
	s.agents[a.ID] = &agentCopy
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*storage.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	agentCopy := *a
	return &agentCopy, nil
}

func (s *Store) Close() error { return nil }

func copyMultisig(m *storage.MultisigWallet) *storage.MultisigWallet {
	c := *m
	c.Owners = append([]common.Address(nil), m.Owners...)
	return &c
}
