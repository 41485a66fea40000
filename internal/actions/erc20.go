package actions

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
	"github.com/ggonzalez94/chedda-agent/internal/wallet"
	"golang.org/x/sync/errgroup"
)

// Balance is the get_balance result.
type Balance struct {
	Token   common.Address `json:"token"`
	Symbol  string         `json:"symbol,omitempty"`
	Account common.Address `json:"account"`
	Balance string         `json:"balance"`
	Raw     string         `json:"raw"`
}

// TransferReceipt is the transfer result.
type TransferReceipt struct {
	Token       common.Address `json:"token"`
	Destination common.Address `json:"destination"`
	Amount      string         `json:"amount"`
	TxHash      string         `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
}

func erc20Actions() []*Action {
	return []*Action{
		{
			Name:        "get_balance",
			Description: "Get the agent wallet balance of an ERC20 token by contract address.",
			Schema: Schema{
				{Name: "contractAddress", Type: TypeAddress, Required: true, Description: "The contract address of the token to get the balance for"},
			},
			run: getBalance,
		},
		{
			Name:        "transfer",
			Description: "Transfer an ERC20 token from the agent wallet to another onchain address and wait for confirmation.",
			Mutating:    true,
			signs:       true,
			Schema: Schema{
				{Name: "amount", Type: TypeAmount, Required: true, Description: "The amount of the asset to transfer, in token units"},
				{Name: "contractAddress", Type: TypeAddress, Required: true, Description: "The contract address of the token to transfer"},
				{Name: "destination", Type: TypeAddress, Required: true, Description: "The address to transfer the funds to"},
			},
			run: transfer,
		},
		{
			Name:        "generate_transfer_calldata",
			Description: "Generate calldata for an ERC20 token transfer without executing it.",
			Schema: Schema{
				{Name: "symbol", Type: TypeString, Required: true, Description: "The symbol of the token to transfer"},
				{Name: "amount", Type: TypeAmount, Required: true, Description: "The amount to transfer, in token units"},
				{Name: "destination", Type: TypeAddress, Required: true, Description: "The destination to transfer the funds to"},
			},
			run: generateTransferCalldata,
		},
		{
			Name:        "generate_swap_calldata",
			Description: "Generate calldata for swapExactTokensForTokens on a router without executing it.",
			Schema: Schema{
				{Name: "routerAddress", Type: TypeAddress, Required: true, Description: "The address of the swap router (e.g., Uniswap)"},
				{Name: "amountIn", Type: TypeUint, Required: true, Description: "The amount of input tokens in base units"},
				{Name: "amountOutMin", Type: TypeUint, Required: true, Description: "The minimum amount of output tokens in base units"},
				{Name: "path", Type: TypeAddressList, Required: true, Description: "The token swap path"},
				{Name: "recipient", Type: TypeAddress, Required: true, Description: "The address receiving swapped tokens"},
				{Name: "deadline", Type: TypeUint, Required: true, Description: "Transaction deadline as a unix timestamp"},
			},
			run: generateSwapCalldata,
		},
	}
}

func parseAddress(field, value string) (common.Address, error) {
	addr, err := id.ValidateAddress(value)
	if err != nil {
		return common.Address{}, clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("The provided %s %q is not a valid address. Please provide an Ethereum address in the format 0x... (42 characters long)", field, value))
	}
	return addr, nil
}

// tokenDecimals prefers the registry and falls back to the token contract.
func tokenDecimals(ctx context.Context, r wallet.Reader, token common.Address) (int, string, error) {
	if t, ok := registry.TokenByAddress(r.Network().Slug, token); ok {
		return t.Decimals, t.Symbol, nil
	}
	out, err := wallet.Call(ctx, r, calldata.ERC20ABI, token, "decimals")
	if err != nil {
		return 0, "", err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, "", clierr.New(clierr.CodeChainCall, fmt.Sprintf("unexpected decimals from %s", token.Hex()))
	}
	return int(dec), "", nil
}

func getBalance(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	r, err := d.reader()
	if err != nil {
		return Result{}, err
	}
	token, err := parseAddress("contractAddress", args.String("contractAddress"))
	if err != nil {
		return Result{}, err
	}
	account, err := d.agentAddress()
	if err != nil {
		return Result{}, err
	}

	var (
		raw      *big.Int
		decimals int
		symbol   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := wallet.Call(gctx, r, calldata.ERC20ABI, token, "balanceOf", account)
		if err != nil {
			return err
		}
		raw = out[0].(*big.Int)
		return nil
	})
	g.Go(func() error {
		var err error
		decimals, symbol, err = tokenDecimals(gctx, r, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, withContext(err, fmt.Sprintf("get balance of %s for %s", token.Hex(), account.Hex()))
	}
	balance := id.DisplayAmount(raw, decimals)
	return Result{
		Status:  StatusComputed,
		Message: balance,
		Data:    Balance{Token: token, Symbol: symbol, Account: account, Balance: balance, Raw: raw.String()},
	}, nil
}

func transfer(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	if _, err := d.agentAddress(); err != nil {
		return Result{}, err
	}
	token, err := parseAddress("contractAddress", args.String("contractAddress"))
	if err != nil {
		return Result{}, err
	}
	destination, err := parseAddress("destination", args.String("destination"))
	if err != nil {
		return Result{}, err
	}
	amount := args.String("amount")
	decimals, _, err := tokenDecimals(ctx, d.deps.Wallet, token)
	if err != nil {
		return Result{}, withContext(err, fmt.Sprintf("read decimals of %s", token.Hex()))
	}
	scaled, err := id.ScaleAmount(amount, decimals)
	if err != nil {
		return Result{}, amountContext(err, "Cannot transfer %s of %s to %s", amount, token.Hex(), destination.Hex())
	}
	data, err := calldata.EncodeTransfer(destination, scaled)
	if err != nil {
		return Result{}, err
	}

	action := execution.NewAction(execution.NewActionID(), "transfer", d.deps.Wallet.Network())
	action.Metadata = map[string]any{"amount": amount, "destination": destination.Hex()}
	description := fmt.Sprintf("Transfer %s of %s to %s", amount, token.Hex(), destination.Hex())
	if err := action.Encode(token, data, nil, description); err != nil {
		return Result{}, clierr.Wrap(clierr.CodeInternal, "encode transfer action", err)
	}
	if d.deps.Journal != nil {
		if err := d.deps.Journal.Save(action); err != nil {
			return Result{}, clierr.Wrap(clierr.CodeInternal, "journal transfer", err)
		}
	}

	receipt, err := execution.Submit(ctx, d.deps.Journal, &action, d.deps.Wallet)
	if err != nil {
		return Result{}, withContext(err, fmt.Sprintf("transfer of %s of %s to %s failed (action %s)", amount, token.Hex(), destination.Hex(), action.ActionID))
	}
	out := TransferReceipt{Token: token, Destination: destination, Amount: amount, TxHash: action.TxHash}
	if receipt != nil && receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return Result{
		Status:   StatusConfirmed,
		Message:  fmt.Sprintf("Transferred %s of %s to %s.\nTransaction hash for the transfer: %s", amount, token.Hex(), destination.Hex(), action.TxHash),
		Data:     out,
		ActionID: action.ActionID,
	}, nil
}

func generateTransferCalldata(_ context.Context, d *Dispatcher, args Args) (Result, error) {
	destination, err := parseAddress("destination", args.String("destination"))
	if err != nil {
		return Result{}, err
	}
	token, err := registry.ResolveToken(d.network(), args.String("symbol"))
	if err != nil {
		return Result{}, err
	}
	amount := args.String("amount")
	scaled, err := id.ScaleAmount(amount, token.Decimals)
	if err != nil {
		return Result{}, amountContext(err, "Cannot build a transfer of %s %s to %s", amount, token.Symbol, destination.Hex())
	}
	data, err := calldata.EncodeTransfer(destination, scaled)
	if err != nil {
		return Result{}, err
	}
	return encoded(calldata.Response{
		To:          token.Address,
		Data:        data,
		Description: fmt.Sprintf("Transfer %s %s to %s", id.NormalizeDecimal(amount), token.Symbol, destination.Hex()),
	}), nil
}

func generateSwapCalldata(_ context.Context, _ *Dispatcher, args Args) (Result, error) {
	router, err := parseAddress("routerAddress", args.String("routerAddress"))
	if err != nil {
		return Result{}, err
	}
	recipient, err := parseAddress("recipient", args.String("recipient"))
	if err != nil {
		return Result{}, err
	}
	rawPath := args.Strings("path")
	path := make([]common.Address, 0, len(rawPath))
	for _, p := range rawPath {
		addr, err := parseAddress("path", p)
		if err != nil {
			return Result{}, err
		}
		path = append(path, addr)
	}
	amountIn, err := id.ParseBaseUnits(args.String("amountIn"), "amountIn")
	if err != nil {
		return Result{}, err
	}
	amountOutMin, err := id.ParseBaseUnits(args.String("amountOutMin"), "amountOutMin")
	if err != nil {
		return Result{}, err
	}
	deadline, err := id.ParseBaseUnits(args.String("deadline"), "deadline")
	if err != nil {
		return Result{}, err
	}
	data, err := calldata.EncodeSwapExactTokensForTokens(amountIn, amountOutMin, path, recipient, deadline)
	if err != nil {
		return Result{}, err
	}
	return encoded(calldata.Response{
		To:          router,
		Data:        data,
		Description: fmt.Sprintf("Swap %s of %s for at least %s of %s to %s", amountIn, path[0].Hex(), amountOutMin, path[len(path)-1].Hex(), recipient.Hex()),
	}), nil
}

func encoded(resp calldata.Response) Result {
	return Result{Status: StatusEncoded, Message: resp.Description, Data: resp}
}
