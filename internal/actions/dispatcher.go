// Package actions is the named operation surface offered to an agent
// runtime. Each action declares an input schema, resolves contracts through
// the registry and either reads chain state, returns unsigned calldata,
// submits from the agent wallet or routes the call through the pair's
// multisig.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/logging"
	"github.com/ggonzalez94/chedda-agent/internal/metrics"
	"github.com/ggonzalez94/chedda-agent/internal/multisig"
	"github.com/ggonzalez94/chedda-agent/internal/policy"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/ggonzalez94/chedda-agent/internal/wallet"
)

var log = logging.Logger("actions")

// Custody resolves the multisig of an (agent, user) pair and proposes calls
// through it. *multisig.Orchestrator implements it.
type Custody interface {
	Lookup(ctx context.Context, agent, user common.Address) (*storage.MultisigWallet, error)
	ResolveOrCreate(ctx context.Context, agentID string, agent, user common.Address) (*storage.MultisigWallet, error)
	Propose(ctx context.Context, safe common.Address, call calldata.Response) (*multisig.Proposal, error)
}

var _ Custody = (*multisig.Orchestrator)(nil)

type Status string

const (
	StatusComputed  Status = "computed"
	StatusEncoded   Status = "encoded"
	StatusConfirmed Status = "confirmed"
	StatusProposed  Status = "proposed"
	// StatusMessage marks a corrective message for the end user.
	StatusMessage Status = "message"
)

// Result is what an action hands back to the agent runtime.
type Result struct {
	Action   string `json:"action"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Data     any    `json:"data,omitempty"`
	ActionID string `json:"action_id,omitempty"`
}

// Deps are the collaborators handed to every handler. Wallet is the agent
// wallet; Custody and Journal are optional. Network applies when no wallet
// is configured, for actions that only build calldata.
type Deps struct {
	Network        id.Network
	Wallet         wallet.Provider
	Custody        Custody
	Journal        execution.Journal
	EnabledActions []string
}

type handler func(ctx context.Context, d *Dispatcher, args Args) (Result, error)

// Action is a named operation with its declared input.
type Action struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Mutating    bool   `json:"mutating"`
	Schema      Schema `json:"schema"`
	run         handler

	// signs marks actions that broadcast from the agent wallet themselves.
	signs bool
}

type Dispatcher struct {
	deps    Deps
	actions map[string]*Action
}

func New(deps Deps) *Dispatcher {
	d := &Dispatcher{deps: deps, actions: make(map[string]*Action)}
	for _, group := range [][]*Action{erc20Actions(), lendingActions(), infoActions(), multisigActions()} {
		for _, a := range group {
			d.actions[a.Name] = a
		}
	}
	return d
}

// List returns every action sorted by name.
func (d *Dispatcher) List() []Action {
	out := make([]Action, 0, len(d.actions))
	for _, a := range d.actions {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Dispatcher) Lookup(name string) (Action, bool) {
	a, ok := d.actions[name]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

// RunJSON decodes a JSON object and runs the named action.
func (d *Dispatcher) RunJSON(ctx context.Context, name string, body []byte) (Result, error) {
	input := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&input); err != nil {
			return Result{}, clierr.Wrap(clierr.CodeUsage, "action input must be a JSON object", err)
		}
	}
	return d.Run(ctx, name, input)
}

// Run validates input and executes the named action. Address and amount
// validation failures come back as a StatusMessage result with a nil error
// so the runtime can relay them verbatim; every other failure is returned.
func (d *Dispatcher) Run(ctx context.Context, name string, input map[string]any) (res Result, err error) {
	action, ok := d.actions[name]
	if !ok {
		return Result{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q", name))
	}
	if err := policy.CheckActionAllowed(d.deps.EnabledActions, name); err != nil {
		return Result{}, err
	}

	started := time.Now()
	defer func() {
		metrics.ActionDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
		metrics.ActionsTotal.WithLabelValues(name, metrics.Outcome(err)).Inc()
	}()

	args, err := action.Schema.Decode(input)
	if err != nil {
		return Result{}, err
	}
	if action.signs && d.deps.Wallet == nil {
		return Result{}, clierr.New(clierr.CodeSigner, fmt.Sprintf("action %s requires a wallet", name))
	}
	res, err = action.run(ctx, d, args)
	if err != nil {
		if cErr, ok := clierr.As(err); ok && clierr.IsValidation(err) {
			log.Debugw("action input rejected", "action", name, "reason", cErr.Message)
			return Result{Action: name, Status: StatusMessage, Message: cErr.Message}, nil
		}
		log.Warnw("action failed", "action", name, "err", err)
		return Result{}, err
	}
	res.Action = name
	log.Infow("action completed", "action", name, "status", res.Status, "elapsed", time.Since(started))
	return res, nil
}

func (d *Dispatcher) network() string {
	if d.deps.Wallet == nil {
		return d.deps.Network.Slug
	}
	return d.deps.Wallet.Network().Slug
}

func (d *Dispatcher) reader() (wallet.Reader, error) {
	if d.deps.Wallet == nil {
		return nil, clierr.New(clierr.CodeUsage, "no chain connection configured")
	}
	return d.deps.Wallet, nil
}

// agentAddress is the signing agent wallet. A read-only chain handle reports
// the zero address and does not count.
func (d *Dispatcher) agentAddress() (common.Address, error) {
	if d.deps.Wallet == nil || d.deps.Wallet.Address() == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeSigner, "no agent wallet is configured; set CHEDDA_PRIVATE_KEY or another agent key source")
	}
	return d.deps.Wallet.Address(), nil
}

// amountContext prefixes an invalid amount with what the action was about to
// do, keeping the code so the dispatcher still relays it as a message.
func amountContext(err error, format string, args ...any) error {
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeInvalidAmount {
		return err
	}
	return clierr.Wrap(clierr.CodeInvalidAmount, fmt.Sprintf(format, args...)+": "+cErr.Message, cErr.Cause)
}

// withContext keeps err's code and prefixes it with what was being done.
func withContext(err error, msg string) error {
	if cErr, ok := clierr.As(err); ok {
		return clierr.Wrap(cErr.Code, msg, err)
	}
	return clierr.Wrap(clierr.CodeInternal, msg, err)
}
