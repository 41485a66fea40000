package actions

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
)

const (
	invalidWalletMessage = "The provided wallet address is invalid. Please provide a valid Ethereum address in the format 0x... (42 characters long)"
	missingWalletFormat  = "Please provide your wallet address to %s. The address should be in the format 0x... (42 characters long)"
)

const supplyDescription = `Supply assets to a Chedda Finance lending vault through the multisig shared by the agent and the user.
Categories: cb-assets (USDC), base-meme (WETH), eth-gaming (WETH), base-gaming (USDC), eth-defi (USDC), weth-stables (WETH).
The proposal is signed by the coordinator; the user must add their own signature at the returned multisig address.
Check get_pool_info for current rates.`

// SupplyProposal is the supply_to_vault result when routed through a multisig.
type SupplyProposal struct {
	Multisig        common.Address    `json:"multisig"`
	Category        string            `json:"category"`
	Vault           common.Address    `json:"vault"`
	Token           string            `json:"token"`
	Amount          string            `json:"amount"`
	UseAsCollateral bool              `json:"use_as_collateral"`
	SafeTxHash      string            `json:"safe_tx_hash"`
	Nonce           uint64            `json:"nonce"`
	Call            calldata.Response `json:"call"`
}

func categoryEnum() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, n := range registry.Networks() {
		for _, c := range registry.Categories(n) {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

func categoryField(desc string) Field {
	return Field{Name: "category", Type: TypeCategory, Required: true, Enum: categoryEnum(), Description: desc}
}

func lendingActions() []*Action {
	return []*Action{
		{
			Name:        "supply_to_vault",
			Description: supplyDescription,
			Mutating:    true,
			Schema: Schema{
				categoryField("The investment category you want to invest in"),
				{Name: "amount", Type: TypeAmount, Required: true, Description: "The amount to supply, in deposit token units"},
				{Name: "useAsCollateral", Type: TypeBool, Default: false, Description: "Whether to use the supplied amount as collateral"},
				{Name: "account", Type: TypeAddress, Description: "The user's wallet address"},
				{Name: "agentId", Type: TypeString, Description: "The ID of the agent, recorded with a new multisig"},
			},
			run: supply,
		},
		{
			Name:        "withdraw_from_vault",
			Description: "Build calldata that withdraws assets from a lending vault to the user's wallet.",
			Schema: Schema{
				categoryField("The investment category to withdraw from"),
				{Name: "amount", Type: TypeAmount, Required: true, Description: "The amount to withdraw, in deposit token units"},
				{Name: "account", Type: TypeAddress, Description: "The user's wallet address, used as receiver and owner"},
			},
			run: withdraw,
		},
		{
			Name:        "borrow_from_vault",
			Description: "Build calldata that borrows assets from a lending vault.",
			Schema: Schema{
				categoryField("The investment category to borrow from"),
				{Name: "amount", Type: TypeAmount, Required: true, Description: "The amount to borrow, in deposit token units"},
			},
			run: borrow,
		},
		{
			Name:        "repay_to_vault",
			Description: "Build calldata that repays borrowed assets to a lending vault.",
			Schema: Schema{
				categoryField("The investment category to repay to"),
				{Name: "amount", Type: TypeAmount, Required: true, Description: "The amount to repay, in deposit token units"},
			},
			run: repay,
		},
	}
}

// vaultAmount resolves the vault of category and scales amount by its
// deposit token decimals. On an amount error the resolved vault and token are
// still returned so callers can describe the failure.
func vaultAmount(network, category, amount string) (registry.Vault, registry.Token, *big.Int, error) {
	vault, err := registry.ResolveVault(network, category)
	if err != nil {
		return registry.Vault{}, registry.Token{}, nil, err
	}
	token, err := registry.VaultToken(network, vault)
	if err != nil {
		return registry.Vault{}, registry.Token{}, nil, err
	}
	scaled, err := id.ScaleAmount(amount, token.Decimals)
	if err != nil {
		return vault, token, nil, err
	}
	return vault, token, scaled, nil
}

// userAccount returns the corrective message when account is missing.
func userAccount(args Args, purpose string) (common.Address, string, error) {
	raw := args.String("account")
	if raw == "" {
		return common.Address{}, fmt.Sprintf(missingWalletFormat, purpose), nil
	}
	addr, err := id.ValidateAddress(raw)
	if err != nil {
		return common.Address{}, "", clierr.New(clierr.CodeInvalidAddress, invalidWalletMessage)
	}
	return addr, "", nil
}

func supply(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	account, msg, err := userAccount(args, "supply assets")
	if err != nil || msg != "" {
		return Result{Status: StatusMessage, Message: msg}, err
	}
	category := args.String("category")
	amount := id.NormalizeDecimal(args.String("amount"))
	vault, token, scaled, err := vaultAmount(d.network(), category, amount)
	if err != nil {
		return Result{}, amountContext(err, "Cannot supply %s %s to %s vault %s from %s", amount, token.Symbol, category, vault.Address.Hex(), account.Hex())
	}
	collateral := args.Bool("useAsCollateral")

	if d.deps.Custody == nil {
		data, err := calldata.EncodeSupply(scaled, account, collateral)
		if err != nil {
			return Result{}, err
		}
		return encoded(calldata.Response{
			To:          vault.Address,
			Data:        data,
			Description: fmt.Sprintf("Supply %s %s to %s vault from %s", amount, token.Symbol, category, account.Hex()),
		}), nil
	}

	agent, err := d.agentAddress()
	if err != nil {
		return Result{}, withContext(err, fmt.Sprintf("supply %s %s to %s vault from %s through a multisig", amount, token.Symbol, category, account.Hex()))
	}
	agentID := args.String("agentId")
	if agentID == "" {
		agentID = agent.Hex()
	}
	safe, err := d.deps.Custody.ResolveOrCreate(ctx, agentID, agent, account)
	if err != nil {
		return Result{}, withContext(err, fmt.Sprintf("supply %s %s to %s vault from %s: resolve multisig", amount, token.Symbol, category, account.Hex()))
	}
	data, err := calldata.EncodeSupply(scaled, safe.Address, collateral)
	if err != nil {
		return Result{}, err
	}
	call := calldata.Response{
		To:          vault.Address,
		Data:        data,
		Description: fmt.Sprintf("Supply %s %s to %s vault from %s", amount, token.Symbol, category, account.Hex()),
	}
	proposal, err := d.deps.Custody.Propose(ctx, safe.Address, call)
	if err != nil {
		return Result{}, withContext(err, fmt.Sprintf("supply %s %s to %s vault from %s: propose through multisig %s", amount, token.Symbol, category, account.Hex(), safe.Address.Hex()))
	}
	return Result{
		Status:  StatusProposed,
		Message: fmt.Sprintf("Supply %s %s to %s vault from %s. You should sign the transaction with your wallet too at multisig address %s", amount, token.Symbol, category, account.Hex(), safe.Address.Hex()),
		Data: SupplyProposal{
			Multisig:        safe.Address,
			Category:        category,
			Vault:           vault.Address,
			Token:           token.Symbol,
			Amount:          amount,
			UseAsCollateral: collateral,
			SafeTxHash:      proposal.TxHash.Hex(),
			Nonce:           proposal.Nonce,
			Call:            call,
		},
	}, nil
}

func withdraw(_ context.Context, d *Dispatcher, args Args) (Result, error) {
	account, msg, err := userAccount(args, "withdraw assets")
	if err != nil || msg != "" {
		return Result{Status: StatusMessage, Message: msg}, err
	}
	category := args.String("category")
	amount := id.NormalizeDecimal(args.String("amount"))
	vault, token, scaled, err := vaultAmount(d.network(), category, amount)
	if err != nil {
		return Result{}, amountContext(err, "Cannot withdraw %s %s from %s vault %s to %s", amount, token.Symbol, category, vault.Address.Hex(), account.Hex())
	}
	data, err := calldata.EncodeWithdraw(scaled, account, account)
	if err != nil {
		return Result{}, err
	}
	return encoded(calldata.Response{
		To:          vault.Address,
		Data:        data,
		Description: fmt.Sprintf("Withdraw %s %s from %s vault to %s", amount, token.Symbol, category, account.Hex()),
	}), nil
}

func borrow(_ context.Context, d *Dispatcher, args Args) (Result, error) {
	category := args.String("category")
	amount := id.NormalizeDecimal(args.String("amount"))
	vault, token, scaled, err := vaultAmount(d.network(), category, amount)
	if err != nil {
		return Result{}, amountContext(err, "Cannot borrow %s %s from %s vault %s", amount, token.Symbol, category, vault.Address.Hex())
	}
	data, err := calldata.EncodeBorrow(scaled)
	if err != nil {
		return Result{}, err
	}
	return encoded(calldata.Response{
		To:          vault.Address,
		Data:        data,
		Description: fmt.Sprintf("Borrow %s %s from %s vault", amount, token.Symbol, category),
	}), nil
}

func repay(_ context.Context, d *Dispatcher, args Args) (Result, error) {
	category := args.String("category")
	amount := id.NormalizeDecimal(args.String("amount"))
	vault, token, scaled, err := vaultAmount(d.network(), category, amount)
	if err != nil {
		return Result{}, amountContext(err, "Cannot repay %s %s to %s vault %s", amount, token.Symbol, category, vault.Address.Hex())
	}
	data, err := calldata.EncodeRepay(scaled)
	if err != nil {
		return Result{}, err
	}
	return encoded(calldata.Response{
		To:          vault.Address,
		Data:        data,
		Description: fmt.Sprintf("Repay %s %s to %s vault", amount, token.Symbol, category),
	}), nil
}
