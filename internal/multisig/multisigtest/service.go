package multisigtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/multisig"
	"github.com/ggonzalez94/chedda-agent/internal/safeapi"
)

// Service is an in-memory Safe Transaction Service. Like the real service
// it recomputes the SafeTx hash and rejects signatures from non-owners.
type Service struct {
	mu    sync.Mutex
	safes *Safes
	txs   map[common.Hash]*safeapi.Transaction
}

func NewService(safes *Safes) *Service {
	return &Service{safes: safes, txs: make(map[common.Hash]*safeapi.Transaction)}
}

func (s *Service) ProposeTransaction(_ context.Context, safe common.Address, req safeapi.ProposeRequest) error {
	tx := multisig.SafeTx{
		To:             common.HexToAddress(req.To),
		Value:          mustBig(req.Value),
		Data:           common.FromHex(req.Data),
		Operation:      req.Operation,
		SafeTxGas:      mustBig(req.SafeTxGas),
		BaseGas:        mustBig(req.BaseGas),
		GasPrice:       mustBig(req.GasPrice),
		GasToken:       common.HexToAddress(req.GasToken),
		RefundReceiver: common.HexToAddress(req.RefundReceiver),
		Nonce:          new(big.Int).SetUint64(req.Nonce),
	}
	hash, err := multisig.TxHash(s.safes.chain.Network().ChainID, safe, tx)
	if err != nil {
		return err
	}
	if hash.Hex() != common.HexToHash(req.ContractTransactionHash).Hex() {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("contractTransactionHash %s does not match %s", req.ContractTransactionHash, hash.Hex()))
	}
	signer, err := Recover(hash, common.FromHex(req.Signature))
	if err != nil || signer != common.HexToAddress(req.Sender) || !contains(s.safes.Owners(safe), signer) {
		return clierr.New(clierr.CodeUsage, "signature does not belong to a safe owner")
	}
	data := req.Data
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[hash] = &safeapi.Transaction{
		Safe:                  safe.Hex(),
		To:                    req.To,
		Value:                 req.Value,
		Data:                  &data,
		Operation:             req.Operation,
		SafeTxGas:             json.Number(req.SafeTxGas),
		BaseGas:               json.Number(req.BaseGas),
		GasPrice:              req.GasPrice,
		GasToken:              req.GasToken,
		RefundReceiver:        req.RefundReceiver,
		Nonce:                 json.Number(strconv.FormatUint(req.Nonce, 10)),
		SafeTxHash:            hash.Hex(),
		ConfirmationsRequired: s.safes.Threshold(safe),
		Confirmations:         []safeapi.Confirmation{{Owner: signer.Hex(), Signature: req.Signature}},
	}
	return nil
}

func (s *Service) PendingTransactions(_ context.Context, safe common.Address) ([]safeapi.Transaction, error) {
	s.sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]safeapi.Transaction, 0)
	for _, tx := range s.txs {
		if tx.IsExecuted || common.HexToAddress(tx.Safe) != safe {
			continue
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := out[i].Nonce.Int64()
		b, _ := out[j].Nonce.Int64()
		return a < b
	})
	return out, nil
}

func (s *Service) ConfirmTransaction(_ context.Context, safeTxHash common.Hash, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[safeTxHash]
	if !ok {
		return clierr.New(clierr.CodeUnavailable, "not found")
	}
	signer, err := Recover(safeTxHash, signature)
	if err != nil || !contains(s.safes.Owners(common.HexToAddress(tx.Safe)), signer) {
		return clierr.New(clierr.CodeUsage, "signature does not belong to a safe owner")
	}
	for _, c := range tx.Confirmations {
		if common.HexToAddress(c.Owner) == signer {
			return nil
		}
	}
	tx.Confirmations = append(tx.Confirmations, safeapi.Confirmation{Owner: signer.Hex(), Signature: hexutil.Encode(signature)})
	return nil
}

func (s *Service) GetTransaction(_ context.Context, safeTxHash common.Hash) (*safeapi.Transaction, error) {
	s.sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[safeTxHash]
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "not found")
	}
	out := *tx
	return &out, nil
}

// Proposals returns every stored transaction.
func (s *Service) Proposals() []safeapi.Transaction {
	s.sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]safeapi.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, *tx)
	}
	return out
}

// sync marks transactions the chain has executed.
func (s *Service) sync() {
	executed := s.safes.Executed()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range executed {
		if tx, ok := s.txs[e.SafeTxHash]; ok {
			tx.IsExecuted = true
		}
	}
}

func mustBig(v string) *big.Int {
	out, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return new(big.Int)
	}
	return out
}
