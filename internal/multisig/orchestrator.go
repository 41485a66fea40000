// Package multisig provisions one Safe per (agent, user) pair and drives
// proposals through the Safe Transaction Service. The user's signature is
// never produced here; execution happens only once the service reports
// enough owner confirmations.
package multisig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/chedda-agent/internal/cache"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution/signer"
	"github.com/ggonzalez94/chedda-agent/internal/httpx"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/logging"
	"github.com/ggonzalez94/chedda-agent/internal/metrics"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
	"github.com/ggonzalez94/chedda-agent/internal/safeapi"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/ggonzalez94/chedda-agent/internal/wallet"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

var log = logging.Logger("multisig")

const (
	DefaultThreshold = 3
	proxyCodeTTL     = 30 * 24 * time.Hour
)

// Chain is the coordinator's chain handle: it deploys Safes and executes
// fully confirmed transactions.
type Chain interface {
	wallet.Provider
	wallet.CodeReader
}

// Service is the subset of the Safe Transaction Service the orchestrator uses.
type Service interface {
	ProposeTransaction(ctx context.Context, safe common.Address, req safeapi.ProposeRequest) error
	PendingTransactions(ctx context.Context, safe common.Address) ([]safeapi.Transaction, error)
	ConfirmTransaction(ctx context.Context, safeTxHash common.Hash, signature []byte) error
	GetTransaction(ctx context.Context, safeTxHash common.Hash) (*safeapi.Transaction, error)
}

type Config struct {
	Network         id.Network
	Contracts       registry.SafeDeployment
	Threshold       int
	LookupCacheSize int
	ConflictRetries uint64
	Origin          string
}

type Orchestrator struct {
	cfg         Config
	chain       Chain
	coordinator signer.HashSigner
	store       storage.MultisigStore
	service     Service
	constants   *cache.Store
	lookups     *lru.Cache
	creates     singleflight.Group
	now         func() time.Time
}

// New wires an orchestrator. constants may be nil, in which case the proxy
// creation code is read from chain on every deployment.
func New(cfg Config, chain Chain, coordinator signer.HashSigner, store storage.MultisigStore, service Service, constants *cache.Store) (*Orchestrator, error) {
	if chain == nil || coordinator == nil || store == nil || service == nil {
		return nil, clierr.New(clierr.CodeInternal, "multisig orchestrator requires chain, coordinator, store and service")
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Threshold < 1 || cfg.Threshold > 3 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("multisig threshold must be between 1 and 3, got %d", cfg.Threshold))
	}
	if cfg.Contracts == (registry.SafeDeployment{}) {
		d, ok := registry.SafeContracts(cfg.Network.ChainID)
		if !ok {
			return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no Safe deployment known for %s", cfg.Network.CAIP2))
		}
		cfg.Contracts = d
	}
	if cfg.LookupCacheSize <= 0 {
		cfg.LookupCacheSize = 1024
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = 5
	}
	lookups, err := lru.New(cfg.LookupCacheSize)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "create lookup cache", err)
	}
	return &Orchestrator{
		cfg:         cfg,
		chain:       chain,
		coordinator: coordinator,
		store:       store,
		service:     service,
		constants:   constants,
		lookups:     lookups,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (o *Orchestrator) Network() id.Network { return o.cfg.Network }

func (o *Orchestrator) Threshold() int { return o.cfg.Threshold }

// Owners returns the fixed owner order for a pair.
func (o *Orchestrator) Owners(agent, user common.Address) []common.Address {
	return []common.Address{agent, user, o.coordinator.Address()}
}

// Lookup returns the multisig for a pair or storage.ErrNotFound.
func (o *Orchestrator) Lookup(ctx context.Context, agent, user common.Address) (*storage.MultisigWallet, error) {
	key := storage.PairKey(o.cfg.Network.Slug, agent, user)
	if v, ok := o.lookups.Get(key); ok {
		metrics.LookupCacheHits.Inc()
		return v.(*storage.MultisigWallet), nil
	}
	m, err := o.store.FindByPair(ctx, o.cfg.Network.Slug, agent, user)
	if err != nil {
		return nil, err
	}
	o.lookups.Add(key, m)
	return m, nil
}

// FindByUser lists the multisigs a user co-owns on this network.
func (o *Orchestrator) FindByUser(ctx context.Context, user common.Address) ([]*storage.MultisigWallet, error) {
	return o.store.FindByUser(ctx, o.cfg.Network.Slug, user)
}

// Predict returns the counterfactual Safe address for a pair.
func (o *Orchestrator) Predict(ctx context.Context, agent, user common.Address) (common.Address, error) {
	initializer, err := o.initializer(agent, user)
	if err != nil {
		return common.Address{}, err
	}
	code, err := o.proxyCreationCode(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return PredictAddress(o.cfg.Contracts.ProxyFactory, o.cfg.Contracts.Singleton, code, initializer, SaltNonce(agent, user)), nil
}

// ResolveOrCreate returns the pair's multisig, deploying it first when none
// exists. Concurrent calls for one pair in this process share a single
// creation; across processes the store's unique key decides the winner and
// losers read the winner's row.
func (o *Orchestrator) ResolveOrCreate(ctx context.Context, agentID string, agent, user common.Address) (*storage.MultisigWallet, error) {
	if err := o.validatePair(agent, user); err != nil {
		return nil, err
	}
	if m, err := o.Lookup(ctx, agent, user); err == nil {
		return m, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, clierr.Wrap(clierr.CodeMultisigCreation, "look up multisig", err)
	}

	key := storage.PairKey(o.cfg.Network.Slug, agent, user)
	v, err, _ := o.creates.Do(key, func() (any, error) {
		if m, err := o.Lookup(ctx, agent, user); err == nil {
			return m, nil
		}
		return o.create(ctx, agentID, agent, user)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.MultisigWallet), nil
}

func (o *Orchestrator) validatePair(agent, user common.Address) error {
	if agent == (common.Address{}) || user == (common.Address{}) {
		return clierr.New(clierr.CodeInvalidAddress, "agent and user addresses are required")
	}
	coordinator := o.coordinator.Address()
	if agent == user || agent == coordinator || user == coordinator {
		return clierr.New(clierr.CodeInvalidAddress, "agent, user and coordinator must be distinct owners")
	}
	return nil
}

func (o *Orchestrator) create(ctx context.Context, agentID string, agent, user common.Address) (*storage.MultisigWallet, error) {
	initializer, err := o.initializer(agent, user)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeMultisigCreation, "encode safe setup", err)
	}
	creationCode, err := o.proxyCreationCode(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeMultisigCreation, "read proxy creation code", err)
	}
	salt := SaltNonce(agent, user)
	predicted := PredictAddress(o.cfg.Contracts.ProxyFactory, o.cfg.Contracts.Singleton, creationCode, initializer, salt)

	source := "existing"
	deployHash := ""
	deployed, err := o.hasCode(ctx, predicted)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeMultisigCreation, "check predicted safe", err)
	}
	if !deployed {
		hash, err := o.deploy(ctx, initializer, salt, predicted)
		if err != nil {
			// A concurrent deployment of the same pair makes ours revert on
			// the CREATE2 collision; the Safe is there either way.
			if exists, codeErr := o.hasCode(ctx, predicted); codeErr != nil || !exists {
				return nil, clierr.Wrap(clierr.CodeMultisigCreation, fmt.Sprintf("deploy multisig for agent %s and user %s", agent.Hex(), user.Hex()), err)
			}
		} else {
			source = "deployed"
			deployHash = hash.Hex()
		}
	}

	record := &storage.MultisigWallet{
		Network:          o.cfg.Network.Slug,
		Address:          predicted,
		AgentAddress:     agent,
		UserAddress:      user,
		Owners:           o.Owners(agent, user),
		Threshold:        o.cfg.Threshold,
		AgentID:          agentID,
		SaltNonce:        salt.String(),
		DeploymentTxHash: deployHash,
		CreatedAt:        o.now(),
	}
	if err := o.store.Insert(ctx, record); err != nil {
		if !errors.Is(err, storage.ErrDuplicate) {
			return nil, clierr.Wrap(clierr.CodeMultisigCreation, "persist multisig", err)
		}
		winner, readErr := o.readAfterConflict(ctx, agent, user)
		if readErr != nil {
			return nil, clierr.Wrap(clierr.CodeMultisigCreation, "read multisig after conflict", readErr)
		}
		record = winner
		source = "store"
	}
	o.lookups.Add(storage.PairKey(o.cfg.Network.Slug, agent, user), record)
	metrics.MultisigCreated.WithLabelValues(source).Inc()
	log.Infow("multisig resolved", "safe", record.Address.Hex(), "agent", agent.Hex(), "user", user.Hex(), "source", source, "tx", deployHash)
	return record, nil
}

func (o *Orchestrator) deploy(ctx context.Context, initializer []byte, salt *big.Int, predicted common.Address) (common.Hash, error) {
	data, err := calldata.EncodeCreateProxyWithNonce(o.cfg.Contracts.Singleton, initializer, salt)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := o.chain.SendTransaction(ctx, wallet.TxRequest{To: o.cfg.Contracts.ProxyFactory, Data: data})
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := o.chain.WaitForTransactionReceipt(ctx, hash)
	if err != nil {
		return hash, err
	}
	if proxy, ok := proxyFromReceipt(receipt, o.cfg.Contracts.ProxyFactory); ok && proxy != predicted {
		return hash, clierr.New(clierr.CodeMultisigCreation, fmt.Sprintf("factory deployed %s, expected %s", proxy.Hex(), predicted.Hex()))
	}
	return hash, nil
}

func proxyFromReceipt(receipt *types.Receipt, factory common.Address) (common.Address, bool) {
	if receipt == nil {
		return common.Address{}, false
	}
	eventID := calldata.SafeProxyFactoryABI.Events["ProxyCreation"].ID
	for _, l := range receipt.Logs {
		if l == nil || l.Address != factory || len(l.Topics) < 2 || l.Topics[0] != eventID {
			continue
		}
		return common.BytesToAddress(l.Topics[1].Bytes()), true
	}
	return common.Address{}, false
}

func (o *Orchestrator) readAfterConflict(ctx context.Context, agent, user common.Address) (*storage.MultisigWallet, error) {
	var found *storage.MultisigWallet
	op := func() error {
		m, err := o.store.FindByPair(ctx, o.cfg.Network.Slug, agent, user)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		found = m
		return nil
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 50 * time.Millisecond
	exp.MaxInterval = time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(exp, o.cfg.ConflictRetries), ctx)); err != nil {
		return nil, err
	}
	return found, nil
}

func (o *Orchestrator) initializer(agent, user common.Address) ([]byte, error) {
	return calldata.EncodeSafeSetup(o.Owners(agent, user), big.NewInt(int64(o.cfg.Threshold)), o.cfg.Contracts.FallbackHandler)
}

func (o *Orchestrator) proxyCreationCode(ctx context.Context) ([]byte, error) {
	key := cache.Key(strconv.FormatInt(o.cfg.Network.ChainID, 10), o.cfg.Contracts.ProxyFactory.Hex(), "proxyCreationCode")
	return o.constants.Remember(ctx, key, proxyCodeTTL, func(ctx context.Context) ([]byte, error) {
		out, err := wallet.Call(ctx, o.chain, calldata.SafeProxyFactoryABI, o.cfg.Contracts.ProxyFactory, "proxyCreationCode")
		if err != nil {
			return nil, err
		}
		code, ok := out[0].([]byte)
		if !ok || len(code) == 0 {
			return nil, clierr.New(clierr.CodeChainCall, "factory returned empty proxy creation code")
		}
		return code, nil
	})
}

func (o *Orchestrator) hasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := o.chain.CodeAt(ctx, addr)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (o *Orchestrator) safeNonce(ctx context.Context, safe common.Address) (uint64, error) {
	out, err := wallet.Call(ctx, o.chain, calldata.SafeABI, safe, "nonce")
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, clierr.New(clierr.CodeChainCall, "unexpected safe nonce")
	}
	return n.Uint64(), nil
}

func (o *Orchestrator) isOwner(ctx context.Context, safe, owner common.Address) (bool, error) {
	out, err := wallet.Call(ctx, o.chain, calldata.SafeABI, safe, "getOwners")
	if err != nil {
		return false, err
	}
	owners, ok := out[0].([]common.Address)
	if !ok {
		return false, clierr.New(clierr.CodeChainCall, "unexpected safe owners")
	}
	for _, addr := range owners {
		if addr == owner {
			return true, nil
		}
	}
	return false, nil
}

// Propose wraps call as a Safe transaction with value 0 and operation Call,
// signs its hash with the coordinator and submits it to the service. The
// nonce is the on-chain Safe nonce, moved past proposals already queued.
func (o *Orchestrator) Propose(ctx context.Context, safe common.Address, call calldata.Response) (*Proposal, error) {
	onChain, err := o.safeNonce(ctx, safe)
	if err != nil {
		return nil, err
	}
	nonce := onChain
	pending, err := o.service.PendingTransactions(ctx, safe)
	if err != nil {
		return nil, err
	}
	for _, tx := range pending {
		if n, err := parseUint(tx.Nonce.String()); err == nil && n >= nonce {
			nonce = n + 1
		}
	}

	p := &Proposal{
		SafeAddress:           safe,
		To:                    call.To,
		Value:                 new(big.Int),
		Data:                  hexutil.Bytes(call.Data),
		Operation:             OperationCall,
		SafeTxGas:             new(big.Int),
		BaseGas:               new(big.Int),
		GasPrice:              new(big.Int),
		Nonce:                 nonce,
		ConfirmationsRequired: o.cfg.Threshold,
	}
	hash, err := TxHash(o.cfg.Network.ChainID, safe, p.SafeTx())
	if err != nil {
		return nil, err
	}
	p.TxHash = hash
	sig, err := o.coordinator.SignHash(hash)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign safe transaction", err)
	}
	p.Signatures = []Signature{{Signer: o.coordinator.Address(), Signature: sig}}

	req := safeapi.ProposeRequest{
		To:                      p.To.Hex(),
		Value:                   p.Value.String(),
		Data:                    hexutil.Encode(p.Data),
		Operation:               p.Operation,
		SafeTxGas:               "0",
		BaseGas:                 "0",
		GasPrice:                "0",
		GasToken:                p.GasToken.Hex(),
		RefundReceiver:          p.RefundReceiver.Hex(),
		Nonce:                   p.Nonce,
		ContractTransactionHash: hash.Hex(),
		Sender:                  o.coordinator.Address().Hex(),
		Signature:               hexutil.Encode(sig),
		Origin:                  o.cfg.Origin,
	}
	err = o.service.ProposeTransaction(ctx, safe, req)
	metrics.ProposalsTotal.WithLabelValues("propose", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	p.refreshStatus()
	log.Infow("safe transaction proposed", "safe", safe.Hex(), "safeTxHash", hash.Hex(), "nonce", nonce, "to", call.To.Hex())
	return p, nil
}

// Pending returns the unexecuted proposals of safe, lowest nonce first.
func (o *Orchestrator) Pending(ctx context.Context, safe common.Address) ([]*Proposal, error) {
	onChain, err := o.safeNonce(ctx, safe)
	if err != nil {
		return nil, err
	}
	txs, err := o.service.PendingTransactions(ctx, safe)
	if err != nil {
		return nil, err
	}
	out := make([]*Proposal, 0, len(txs))
	for _, tx := range txs {
		p, err := fromService(tx, onChain)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "decode pending transaction", err)
		}
		out = append(out, p)
	}
	sortByNonce(out)
	return out, nil
}

// Proposal fetches one proposal by its Safe transaction hash.
func (o *Orchestrator) Proposal(ctx context.Context, safeTxHash common.Hash) (*Proposal, error) {
	tx, err := o.service.GetTransaction(ctx, safeTxHash)
	if httpx.IsNotFound(err) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("no proposal with hash %s", safeTxHash.Hex()))
	}
	if err != nil {
		return nil, err
	}
	onChain, err := o.safeNonce(ctx, common.HexToAddress(tx.Safe))
	if err != nil {
		return nil, err
	}
	p, err := fromService(*tx, onChain)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode transaction", err)
	}
	return p, nil
}

// Confirm adds owner's signature to the oldest live proposal of safe and
// executes it once confirmations reach the requirement. owner must already
// be a Safe owner; it is never the user's key.
func (o *Orchestrator) Confirm(ctx context.Context, safe common.Address, owner signer.HashSigner) (*Proposal, error) {
	pending, err := o.Pending(ctx, safe)
	if err != nil {
		return nil, err
	}
	var p *Proposal
	for _, candidate := range pending {
		if candidate.Status == ProposalProposed || candidate.Status == ProposalConfirmed {
			p = candidate
			break
		}
	}
	if p == nil {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("no pending proposals for %s", safe.Hex()))
	}
	local, err := TxHash(o.cfg.Network.ChainID, safe, p.SafeTx())
	if err != nil {
		return nil, err
	}
	if local != p.TxHash {
		return nil, clierr.New(clierr.CodeBlocked, fmt.Sprintf("service hash %s does not match proposal fields (%s)", p.TxHash.Hex(), local.Hex()))
	}

	if !p.SignedBy(owner.Address()) {
		ok, err := o.isOwner(ctx, safe, owner.Address())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("%s is not an owner of %s", owner.Address().Hex(), safe.Hex()))
		}
		sig, err := owner.SignHash(p.TxHash)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "sign safe transaction", err)
		}
		err = o.service.ConfirmTransaction(ctx, p.TxHash, sig)
		metrics.ProposalsTotal.WithLabelValues("confirm", metrics.Outcome(err)).Inc()
		if err != nil {
			return nil, err
		}
		p.Signatures = append(p.Signatures, Signature{Signer: owner.Address(), Signature: sig})
		p.refreshStatus()
	}

	if p.Status != ProposalConfirmed {
		return p, nil
	}
	if _, err := o.Execute(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// Execute submits execTransaction for a fully confirmed proposal.
func (o *Orchestrator) Execute(ctx context.Context, p *Proposal) (common.Hash, error) {
	if p.ConfirmationsRequired <= 0 || len(p.Signatures) < p.ConfirmationsRequired {
		return common.Hash{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("proposal %s has %d of %d confirmations", p.TxHash.Hex(), len(p.Signatures), p.ConfirmationsRequired))
	}
	data, err := calldata.EncodeExecTransaction(calldata.ExecArgs{
		To:             p.To,
		Value:          p.Value,
		Data:           p.Data,
		Operation:      p.Operation,
		SafeTxGas:      p.SafeTxGas,
		BaseGas:        p.BaseGas,
		GasPrice:       p.GasPrice,
		GasToken:       p.GasToken,
		RefundReceiver: p.RefundReceiver,
		Signatures:     p.PackedSignatures(),
	})
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := o.chain.SendTransaction(ctx, wallet.TxRequest{To: p.SafeAddress, Data: data})
	if err != nil {
		return common.Hash{}, err
	}
	_, err = o.chain.WaitForTransactionReceipt(ctx, hash)
	metrics.ProposalsTotal.WithLabelValues("execute", metrics.Outcome(err)).Inc()
	if err != nil {
		return hash, err
	}
	p.Status = ProposalExecuted
	p.ExecutionTxHash = hash.Hex()
	log.Infow("safe transaction executed", "safe", p.SafeAddress.Hex(), "safeTxHash", p.TxHash.Hex(), "tx", hash.Hex())
	return hash, nil
}

func sortByNonce(ps []*Proposal) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Nonce != ps[j].Nonce {
			return ps[i].Nonce < ps[j].Nonce
		}
		return bytes.Compare(ps[i].TxHash.Bytes(), ps[j].TxHash.Bytes()) < 0
	})
}

func parseUint(v string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}
