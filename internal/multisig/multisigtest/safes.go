// Package multisigtest simulates Safe v1.4.1 contracts on a wallettest.Chain
// and an in-memory Safe Transaction Service.
package multisigtest

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	"github.com/ggonzalez94/chedda-agent/internal/multisig"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
	"github.com/ggonzalez94/chedda-agent/internal/wallet/wallettest"
)

// ProxyCreationCode stands in for the factory's proxy bytecode.
var ProxyCreationCode = common.FromHex("0x608060405234801561001057600080fd5b5060405161017138038061017183398101604081905261002f916100b9565b")

type safeState struct {
	owners    []common.Address
	threshold int
	nonce     uint64
}

// Execution is an inner call a Safe performed.
type Execution struct {
	Safe       common.Address
	To         common.Address
	Data       []byte
	SafeTxHash common.Hash
}

type Safes struct {
	mu        sync.Mutex
	chain     *wallettest.Chain
	contracts registry.SafeDeployment
	safes     map[common.Address]*safeState
	executed  []Execution
	deploys   int
}

// Install registers the proxy factory on chain.
func Install(chain *wallettest.Chain, contracts registry.SafeDeployment) *Safes {
	s := &Safes{chain: chain, contracts: contracts, safes: make(map[common.Address]*safeState)}
	chain.HandleRead(contracts.ProxyFactory, calldata.SafeProxyFactoryABI, "proxyCreationCode", func([]any) ([]any, error) {
		return []any{ProxyCreationCode}, nil
	})
	chain.HandleSend(contracts.ProxyFactory, calldata.SafeProxyFactoryABI, "createProxyWithNonce", s.createProxy)
	return s
}

// Deploys counts successful proxy deployments.
func (s *Safes) Deploys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deploys
}

func (s *Safes) Executed() []Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Execution(nil), s.executed...)
}

func (s *Safes) Owners(safe common.Address) []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.safes[safe]; ok {
		return append([]common.Address(nil), st.owners...)
	}
	return nil
}

func (s *Safes) Threshold(safe common.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.safes[safe]; ok {
		return st.threshold
	}
	return 0
}

// SetNonce moves a Safe's nonce, as if other transactions had executed.
func (s *Safes) SetNonce(safe common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.safes[safe]; ok {
		st.nonce = nonce
	}
}

func (s *Safes) createProxy(_ common.Address, args []any) ([]*types.Log, error) {
	singleton := args[0].(common.Address)
	initializer := args[1].([]byte)
	saltNonce := args[2].(*big.Int)
	if len(initializer) < 4 {
		return nil, errors.New("empty initializer")
	}
	setup, err := calldata.SafeABI.Methods["setup"].Inputs.Unpack(initializer[4:])
	if err != nil {
		return nil, err
	}
	proxy := multisig.PredictAddress(s.contracts.ProxyFactory, singleton, ProxyCreationCode, initializer, saltNonce)

	s.mu.Lock()
	if _, exists := s.safes[proxy]; exists {
		s.mu.Unlock()
		return nil, errors.New("Create2 call failed")
	}
	s.safes[proxy] = &safeState{
		owners:    setup[0].([]common.Address),
		threshold: int(setup[1].(*big.Int).Int64()),
	}
	s.deploys++
	s.chain.SetCode(proxy, []byte{0x60, 0x80})
	s.mu.Unlock()

	s.chain.HandleRead(proxy, calldata.SafeABI, "nonce", func([]any) ([]any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return []any{new(big.Int).SetUint64(s.safes[proxy].nonce)}, nil
	})
	s.chain.HandleRead(proxy, calldata.SafeABI, "getOwners", func([]any) ([]any, error) {
		return []any{s.Owners(proxy)}, nil
	})
	s.chain.HandleRead(proxy, calldata.SafeABI, "getThreshold", func([]any) ([]any, error) {
		return []any{big.NewInt(int64(s.Threshold(proxy)))}, nil
	})
	s.chain.HandleSend(proxy, calldata.SafeABI, "execTransaction", func(_ common.Address, args []any) ([]*types.Log, error) {
		return nil, s.exec(proxy, args)
	})

	event := calldata.SafeProxyFactoryABI.Events["ProxyCreation"]
	data, err := event.Inputs.NonIndexed().Pack(singleton)
	if err != nil {
		return nil, err
	}
	return []*types.Log{{
		Address: s.contracts.ProxyFactory,
		Topics:  []common.Hash{event.ID, common.BytesToHash(proxy.Bytes())},
		Data:    data,
	}}, nil
}

func (s *Safes) exec(safe common.Address, args []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.safes[safe]
	tx := multisig.SafeTx{
		To:             args[0].(common.Address),
		Value:          args[1].(*big.Int),
		Data:           args[2].([]byte),
		Operation:      args[3].(uint8),
		SafeTxGas:      args[4].(*big.Int),
		BaseGas:        args[5].(*big.Int),
		GasPrice:       args[6].(*big.Int),
		GasToken:       args[7].(common.Address),
		RefundReceiver: args[8].(common.Address),
		Nonce:          new(big.Int).SetUint64(st.nonce),
	}
	sigs := args[9].([]byte)
	hash, err := multisig.TxHash(s.chain.Network().ChainID, safe, tx)
	if err != nil {
		return err
	}
	if len(sigs) < 65*st.threshold {
		return errors.New("GS020")
	}
	var last common.Address
	for i := 0; i < st.threshold; i++ {
		signer, err := Recover(hash, sigs[i*65:(i+1)*65])
		if err != nil {
			return err
		}
		if bytes.Compare(signer.Bytes(), last.Bytes()) <= 0 || !contains(st.owners, signer) {
			return fmt.Errorf("GS026: bad signer %s", signer.Hex())
		}
		last = signer
	}
	st.nonce++
	s.executed = append(s.executed, Execution{Safe: safe, To: tx.To, Data: tx.Data, SafeTxHash: hash})
	return nil
}

// Recover returns the owner behind a Safe signature. v 31/32 marks an
// eth_sign signature over the prefixed hash.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}
	raw := append([]byte(nil), sig...)
	digest := hash.Bytes()
	switch v := raw[64]; {
	case v > 30:
		digest = accounts.TextHash(hash.Bytes())
		raw[64] = v - 31
	case v >= 27:
		raw[64] = v - 27
	}
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func contains(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
