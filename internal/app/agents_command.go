package app

import (
	"errors"
	"strings"

	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/model"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
	"github.com/ggonzalez94/chedda-agent/internal/server"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newAgentsCommand() *cobra.Command {
	root := &cobra.Command{Use: "agents", Short: "Agent registry commands"}

	var agentID, name, address string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register an agent and its wallet address",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := id.ValidateAddress(address)
			if err != nil {
				return clierr.Wrap(clierr.CodeInvalidAddress, "--address", err)
			}
			store, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			agent := &storage.Agent{
				ID:        strings.TrimSpace(agentID),
				Name:      strings.TrimSpace(name),
				Address:   addr,
				CreatedAt: s.runner.now().UTC(),
			}
			if agent.ID == "" {
				agent.ID = uuid.NewString()
			}
			err = store.Register(cmd.Context(), agent)
			switch {
			case errors.Is(err, storage.ErrDuplicate):
				return clierr.New(clierr.CodeUsage, "Agent already exists")
			case err != nil:
				return clierr.Wrap(clierr.CodeUnavailable, "register agent", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), agent, "")
		},
	}
	register.Flags().StringVar(&agentID, "id", "", "Agent id (generated when empty)")
	register.Flags().StringVar(&name, "name", "", "Display name")
	register.Flags().StringVar(&address, "address", "", "Agent wallet address")
	_ = register.MarkFlagRequired("address")

	get := &cobra.Command{
		Use:   "get <agent-id>",
		Short: "Show a registered agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			agent, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if errors.Is(err, storage.ErrNotFound) {
				return clierr.New(clierr.CodeUsage, "Agent not found")
			}
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "get agent", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), agent, "")
		},
	}

	root.AddCommand(register, get)
	return root
}

func (s *runtimeState) newVaultsCommand() *cobra.Command {
	root := &cobra.Command{Use: "vaults", Short: "Lending vault registry"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List investment categories and their vaults on the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			vaults := registry.Vaults(s.network.Slug)
			out := make([]model.VaultEntry, 0, len(vaults))
			for _, v := range vaults {
				token, err := registry.VaultToken(s.network.Slug, v)
				if err != nil {
					return err
				}
				out = append(out, model.VaultEntry{
					Network:      s.network.Slug,
					Category:     v.Category,
					Vault:        v.Address.Hex(),
					DepositToken: token.Symbol,
					TokenAddress: token.Address.Hex(),
					Decimals:     token.Decimals,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, "")
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve actions, multisig and agent endpoints over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := s.openStore(ctx)
			if err != nil {
				return err
			}
			d, err := s.dispatcher(ctx)
			if err != nil {
				return err
			}
			deps := server.Deps{
				Network:    s.network,
				Dispatcher: d,
				Agents:     store,
				Timeout:    s.settings.ReceiptTimeout + s.settings.Timeout,
			}
			if orch, err := s.orchestrator(ctx); err == nil {
				deps.Wallets = orch
			} else {
				log.Warnw("wallet routes disabled", "err", err)
			}
			addr := listen
			if addr == "" {
				addr = s.settings.ListenAddr
			}
			return server.New(deps).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides server.listen)")
	return cmd
}
