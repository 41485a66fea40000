package app

import (
	"context"
	"fmt"

	"github.com/ggonzalez94/chedda-agent/internal/actions"
	"github.com/ggonzalez94/chedda-agent/internal/cache"
	"github.com/ggonzalez94/chedda-agent/internal/config"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution"
	"github.com/ggonzalez94/chedda-agent/internal/execution/signer"
	"github.com/ggonzalez94/chedda-agent/internal/httpx"
	"github.com/ggonzalez94/chedda-agent/internal/multisig"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
	"github.com/ggonzalez94/chedda-agent/internal/safeapi"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/ggonzalez94/chedda-agent/internal/storage/postgres"
	"github.com/ggonzalez94/chedda-agent/internal/storage/sqlite"
	"github.com/ggonzalez94/chedda-agent/internal/version"
	"github.com/ggonzalez94/chedda-agent/internal/wallet"
	"go.uber.org/multierr"
)

// resources are opened on first use by a command and closed once by Run.
type resources struct {
	store       storage.Store
	cache       *cache.Store
	cacheFailed bool
	journal     *execution.Store
	chains      []*wallet.EVM
	coordinator *signer.LocalSigner
	coordChain  *wallet.EVM
	orch        *multisig.Orchestrator
}

func (s *runtimeState) close() error {
	var err error
	for _, c := range s.chains {
		c.Close()
	}
	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}
	if s.cache != nil {
		err = multierr.Append(err, s.cache.Close())
	}
	if s.journal != nil {
		err = multierr.Append(err, s.journal.Close())
	}
	return err
}

func (s *runtimeState) openStore(ctx context.Context) (storage.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	var (
		store storage.Store
		err   error
	)
	switch s.settings.StoreDriver {
	case config.StoreDriverPostgres:
		store, err = postgres.Open(ctx, s.settings.PostgresDSN)
	default:
		store, err = sqlite.Open(s.settings.StorePath, s.settings.StoreLockPath)
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("open %s store", s.settings.StoreDriver), err)
	}
	s.store = store
	return store, nil
}

func (s *runtimeState) openJournal() (*execution.Store, error) {
	if s.journal != nil {
		return s.journal, nil
	}
	journal, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open action journal", err)
	}
	s.journal = journal
	return journal, nil
}

// openCache returns nil when caching is disabled or the cache cannot be
// opened; callers fall back to reading from chain.
func (s *runtimeState) openCache() *cache.Store {
	if s.cache != nil || s.cacheFailed || !s.settings.CacheEnabled {
		return s.cache
	}
	c, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
	if err != nil {
		s.cacheFailed = true
		log.Warnw("cache unavailable", "path", s.settings.CachePath, "err", err)
		return nil
	}
	s.cache = c
	return c
}

func (s *runtimeState) dial(ctx context.Context, txSigner signer.Signer) (*wallet.EVM, error) {
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.network)
	if err != nil {
		return nil, err
	}
	opts := wallet.DefaultOptions()
	if s.settings.PollInterval > 0 {
		opts.PollInterval = s.settings.PollInterval
	}
	if s.settings.ReceiptTimeout > 0 {
		opts.ReceiptTimeout = s.settings.ReceiptTimeout
	}
	if s.settings.GasMultiplier > 1 {
		opts.GasMultiplier = s.settings.GasMultiplier
	}
	evm, err := wallet.Dial(ctx, rpcURL, s.network, txSigner, opts)
	if err != nil {
		return nil, err
	}
	s.chains = append(s.chains, evm)
	return evm, nil
}

func (s *runtimeState) agentSigner() (*signer.LocalSigner, error) {
	sig, err := signer.NewLocalSignerFromEnv(signer.AgentKeyEnv, s.settings.KeySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load agent key", err)
	}
	return sig, nil
}

// agentWallet dials the agent's chain handle. Without an agent key the
// handle is read-only.
func (s *runtimeState) agentWallet(ctx context.Context) (*wallet.EVM, error) {
	sig, err := s.agentSigner()
	if err != nil {
		s.warn("agent key not configured; transactions cannot be signed")
		log.Debugw("agent key unavailable", "err", err)
		return s.dial(ctx, nil)
	}
	return s.dial(ctx, sig)
}

func (s *runtimeState) orchestrator(ctx context.Context) (*multisig.Orchestrator, error) {
	if s.orch != nil {
		return s.orch, nil
	}
	coordinator, err := signer.NewLocalSignerFromEnv(signer.CoordinatorKeyEnv, s.settings.KeySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load coordinator key", err)
	}
	serviceURL := s.settings.SafeServiceURL
	if serviceURL == "" {
		var ok bool
		serviceURL, ok = registry.SafeServiceURL(s.network.ChainID)
		if !ok {
			return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no Safe Transaction Service known for %s", s.network.CAIP2))
		}
	}
	if !registry.IsAllowedSafeServiceURL(s.network.ChainID, serviceURL) {
		return nil, clierr.New(clierr.CodeBlocked, fmt.Sprintf("safe service url %s is not allowed for %s", serviceURL, s.network.CAIP2))
	}
	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := s.dial(ctx, coordinator)
	if err != nil {
		return nil, err
	}
	service := safeapi.New(httpx.New(s.settings.Timeout, s.settings.Retries), serviceURL)
	orch, err := multisig.New(multisig.Config{
		Network:   s.network,
		Threshold: s.settings.MultisigThreshold,
		Origin:    version.Origin(),
	}, chain, coordinator, store, service, s.openCache())
	if err != nil {
		return nil, err
	}
	s.coordinator = coordinator
	s.coordChain = chain
	s.orch = orch
	return orch, nil
}

// dispatcher builds the action dispatcher. A missing RPC endpoint or
// coordinator key degrades it to calldata-only or direct mode with a warning.
func (s *runtimeState) dispatcher(ctx context.Context) (*actions.Dispatcher, error) {
	journal, err := s.openJournal()
	if err != nil {
		return nil, err
	}
	deps := actions.Deps{
		Network:        s.network,
		Journal:        journal,
		EnabledActions: s.settings.EnableActions,
	}
	evm, err := s.agentWallet(ctx)
	if err != nil {
		s.warn("chain unavailable; only calldata actions can run")
		log.Warnw("dial rpc", "err", err)
		return actions.New(deps), nil
	}
	deps.Wallet = evm
	if orch, err := s.orchestrator(ctx); err != nil {
		s.warn("multisig custody unavailable; supply returns calldata for direct submission")
		log.Debugw("custody unavailable", "err", err)
	} else {
		deps.Custody = orch
	}
	return actions.New(deps), nil
}
