package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution/signer"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/model"
	"github.com/ggonzalez94/chedda-agent/internal/multisig"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/spf13/cobra"
)

type pairFlags struct {
	agent string
	user  string
}

func (p *pairFlags) bind(cmd *cobra.Command, agentRequired bool) {
	cmd.Flags().StringVar(&p.agent, "agent", "", "Agent wallet address")
	cmd.Flags().StringVar(&p.user, "user", "", "User wallet address")
	if agentRequired {
		_ = cmd.MarkFlagRequired("agent")
	}
	_ = cmd.MarkFlagRequired("user")
}

func (p pairFlags) parse() (common.Address, common.Address, error) {
	user, err := id.ValidateAddress(p.user)
	if err != nil {
		return common.Address{}, common.Address{}, clierr.Wrap(clierr.CodeInvalidAddress, "--user", err)
	}
	if strings.TrimSpace(p.agent) == "" {
		return common.Address{}, user, nil
	}
	agent, err := id.ValidateAddress(p.agent)
	if err != nil {
		return common.Address{}, common.Address{}, clierr.Wrap(clierr.CodeInvalidAddress, "--agent", err)
	}
	return agent, user, nil
}

func parseSafe(raw string) (common.Address, error) {
	safe, err := id.ValidateAddress(raw)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInvalidAddress, "--safe", err)
	}
	return safe, nil
}

func (s *runtimeState) newMultisigCommand() *cobra.Command {
	root := &cobra.Command{Use: "multisig", Short: "Per-user Safe multisig commands"}

	var createPair pairFlags
	var agentID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Return the pair's Safe, deploying it when none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, user, err := createPair.parse()
			if err != nil {
				return err
			}
			orch, err := s.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			m, err := orch.ResolveOrCreate(cmd.Context(), strings.TrimSpace(agentID), agent, user)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), m, "")
		},
	}
	createPair.bind(create, true)
	create.Flags().StringVar(&agentID, "agent-id", "", "Registered agent id recorded with the Safe")

	var getPair pairFlags
	get := &cobra.Command{
		Use:   "get",
		Short: "Look up the Safe of a pair, or every Safe of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, user, err := getPair.parse()
			if err != nil {
				return err
			}
			store, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			if agent == (common.Address{}) {
				items, err := store.FindByUser(cmd.Context(), s.network.Slug, user)
				if err != nil {
					return clierr.Wrap(clierr.CodeUnavailable, "list multisigs", err)
				}
				return s.emitSuccess(path, items, "")
			}
			m, err := store.FindByPair(cmd.Context(), s.network.Slug, agent, user)
			if errors.Is(err, storage.ErrNotFound) {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("no multisig for agent %s and user %s on %s", agent.Hex(), user.Hex(), s.network.Slug))
			}
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "look up multisig", err)
			}
			return s.emitSuccess(path, m, "")
		},
	}
	getPair.bind(get, false)

	var predictPair pairFlags
	predict := &cobra.Command{
		Use:   "predict",
		Short: "Compute the counterfactual Safe address of a pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, user, err := predictPair.parse()
			if err != nil {
				return err
			}
			orch, err := s.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			addr, err := orch.Predict(cmd.Context(), agent, user)
			if err != nil {
				return err
			}
			code, err := s.coordChain.CodeAt(cmd.Context(), addr)
			if err != nil {
				return err
			}
			owners := orch.Owners(agent, user)
			out := model.MultisigPrediction{
				Network:   s.network.Slug,
				Address:   addr.Hex(),
				Owners:    make([]string, 0, len(owners)),
				Threshold: orch.Threshold(),
				SaltNonce: multisig.SaltNonce(agent, user).String(),
				Deployed:  len(code) > 0,
			}
			for _, o := range owners {
				out.Owners = append(out.Owners, o.Hex())
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, "")
		},
	}
	predictPair.bind(predict, true)

	var pendingSafe string
	pending := &cobra.Command{
		Use:   "pending",
		Short: "List unexecuted proposals of a Safe, lowest nonce first",
		RunE: func(cmd *cobra.Command, args []string) error {
			safe, err := parseSafe(pendingSafe)
			if err != nil {
				return err
			}
			orch, err := s.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			items, err := orch.Pending(cmd.Context(), safe)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, "")
		},
	}
	pending.Flags().StringVar(&pendingSafe, "safe", "", "Safe address")
	_ = pending.MarkFlagRequired("safe")

	var confirmSafe, as string
	confirm := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm the oldest pending proposal and execute it once fully confirmed",
		RunE: func(cmd *cobra.Command, args []string) error {
			safe, err := parseSafe(confirmSafe)
			if err != nil {
				return err
			}
			orch, err := s.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			var owner signer.HashSigner
			switch strings.ToLower(strings.TrimSpace(as)) {
			case "", "coordinator":
				owner = s.coordinator
			case "agent":
				agent, err := s.agentSigner()
				if err != nil {
					return err
				}
				owner = agent
			default:
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("--as must be coordinator or agent, got %q", as))
			}
			p, err := orch.Confirm(cmd.Context(), safe, owner)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), p, "")
		},
	}
	confirm.Flags().StringVar(&confirmSafe, "safe", "", "Safe address")
	confirm.Flags().StringVar(&as, "as", "coordinator", "Owner key to confirm with: coordinator or agent")
	_ = confirm.MarkFlagRequired("safe")

	var hash string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show one proposal by its Safe transaction hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(hash)
			if len(common.FromHex(raw)) != common.HashLength {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("--hash must be a 32-byte hex value, got %q", hash))
			}
			orch, err := s.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			p, err := orch.Proposal(cmd.Context(), common.HexToHash(raw))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), p, "")
		},
	}
	status.Flags().StringVar(&hash, "hash", "", "Safe transaction hash")
	_ = status.MarkFlagRequired("hash")

	root.AddCommand(create, get, predict, pending, confirm, status)
	return root
}
