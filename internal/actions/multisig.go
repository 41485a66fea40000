package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
)

func multisigActions() []*Action {
	return []*Action{
		{
			Name:        "create_multisig",
			Description: "Create (or return the existing) multisig shared by the agent, the user and the coordinator.",
			Mutating:    true,
			Schema: Schema{
				{Name: "agentId", Type: TypeString, Required: true, Description: "The ID of the agent"},
				{Name: "agentAddress", Type: TypeAddress, Description: "The address of the agent; defaults to the agent wallet"},
				{Name: "userAddress", Type: TypeAddress, Required: true, Description: "The address of the user"},
			},
			run: createMultisig,
		},
		{
			Name:        "get_multisig_details",
			Description: "Look up the multisig shared by the agent and a user.",
			Schema: Schema{
				{Name: "userAddress", Type: TypeAddress, Required: true, Description: "The address of the user"},
				{Name: "agentAddress", Type: TypeAddress, Description: "The address of the agent; defaults to the agent wallet"},
			},
			run: getMultisigDetails,
		},
	}
}

func (d *Dispatcher) pair(args Args) (common.Address, common.Address, error) {
	user, err := parseAddress("userAddress", args.String("userAddress"))
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if raw := args.String("agentAddress"); raw != "" {
		agent, err := parseAddress("agentAddress", raw)
		return agent, user, err
	}
	agent, err := d.agentAddress()
	if err != nil {
		return common.Address{}, common.Address{}, clierr.New(clierr.CodeUsage, "agentAddress is required when no agent wallet is configured")
	}
	return agent, user, nil
}

func (d *Dispatcher) custody() (Custody, error) {
	if d.deps.Custody == nil {
		return nil, clierr.New(clierr.CodeUnsupported, "multisig custody is not configured")
	}
	return d.deps.Custody, nil
}

func createMultisig(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	custody, err := d.custody()
	if err != nil {
		return Result{}, err
	}
	agent, user, err := d.pair(args)
	if err != nil {
		return Result{}, err
	}
	m, err := custody.ResolveOrCreate(ctx, args.String("agentId"), agent, user)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Status:  StatusConfirmed,
		Message: fmt.Sprintf("Multisig for agent %s and user %s is %s", agent.Hex(), user.Hex(), m.Address.Hex()),
		Data:    m,
	}, nil
}

func getMultisigDetails(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	custody, err := d.custody()
	if err != nil {
		return Result{}, err
	}
	agent, user, err := d.pair(args)
	if err != nil {
		return Result{}, err
	}
	m, err := custody.Lookup(ctx, agent, user)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{
			Status:  StatusMessage,
			Message: fmt.Sprintf("No multisig exists yet for agent %s and user %s", agent.Hex(), user.Hex()),
		}, nil
	}
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeUnavailable, "look up multisig", err)
	}
	return Result{Status: StatusComputed, Message: m.Address.Hex(), Data: m}, nil
}
