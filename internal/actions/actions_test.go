package actions_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ggonzalez94/chedda-agent/internal/actions"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution"
	"github.com/ggonzalez94/chedda-agent/internal/execution/signer"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/multisig"
	"github.com/ggonzalez94/chedda-agent/internal/multisig/multisigtest"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
	"github.com/ggonzalez94/chedda-agent/internal/storage/memory"
	"github.com/ggonzalez94/chedda-agent/internal/wallet/wallettest"
)

const userAddr = "0x1111111111111111111111111111111111111111"

var agentAddr = common.HexToAddress("0x000000000000000000000000000000000000a9e7")

func baseSepolia(t *testing.T) id.Network {
	t.Helper()
	n, err := id.ParseNetwork("base-sepolia")
	if err != nil {
		t.Fatalf("ParseNetwork failed: %v", err)
	}
	return n
}

func mustVault(t *testing.T, category string) registry.Vault {
	t.Helper()
	v, err := registry.ResolveVault("base-sepolia", category)
	if err != nil {
		t.Fatalf("ResolveVault failed: %v", err)
	}
	return v
}

func wei(v string) *big.Int {
	out, _ := new(big.Int).SetString(v, 10)
	return out
}

// stubViews answers every lending view on vault with the given values.
func stubViews(chain *wallettest.Chain, vault common.Address, values map[string]*big.Int) {
	for method := range calldata.LendingPoolViewABI.Methods {
		v, ok := values[method]
		if !ok {
			v = new(big.Int)
		}
		chain.HandleRead(vault, calldata.LendingPoolViewABI, method, func([]any) ([]any, error) {
			return []any{v}, nil
		})
	}
}

func run(t *testing.T, d *actions.Dispatcher, name string, input map[string]any) actions.Result {
	t.Helper()
	res, err := d.Run(context.Background(), name, input)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return res
}

func TestGenerateTransferCalldataScalesByTokenDecimals(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	res := run(t, d, "generate_transfer_calldata", map[string]any{
		"symbol":      "usdc",
		"amount":      "1.5",
		"destination": userAddr,
		"unexpected":  true,
	})
	resp := res.Data.(calldata.Response)
	usdc, _ := registry.ResolveToken("base-sepolia", "USDC")
	if resp.To != usdc.Address {
		t.Fatalf("unexpected target %s", resp.To.Hex())
	}
	to, amount, err := calldata.DecodeTransfer(resp.Data)
	if err != nil {
		t.Fatalf("DecodeTransfer failed: %v", err)
	}
	if to != common.HexToAddress(userAddr) || amount.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("unexpected decoded transfer %s %s", to.Hex(), amount)
	}
}

func TestGenerateSwapCalldataUsesBaseUnits(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	res := run(t, d, "generate_swap_calldata", map[string]any{
		"routerAddress": "0x2626664c2603336E57B271c5C0b26F421741e481",
		"amountIn":      "1000",
		"amountOutMin":  "990",
		"path":          []any{"0x036CbD53842c5426634e7929541eC2318f3dCF7e", "0x4200000000000000000000000000000000000006"},
		"recipient":     userAddr,
		"deadline":      "1700000000",
	})
	swap, err := calldata.DecodeSwapExactTokensForTokens(res.Data.(calldata.Response).Data)
	if err != nil {
		t.Fatalf("decode swap failed: %v", err)
	}
	if swap.AmountIn.Int64() != 1000 || swap.AmountOutMin.Int64() != 990 || len(swap.Path) != 2 {
		t.Fatalf("unexpected swap args %+v", swap)
	}
}

func TestInvalidAddressBecomesMessage(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	res, err := d.Run(context.Background(), "generate_transfer_calldata", map[string]any{
		"symbol": "USDC", "amount": "1", "destination": "vitalik.eth",
	})
	if err != nil {
		t.Fatalf("expected message result, got error %v", err)
	}
	if res.Status != actions.StatusMessage || !strings.Contains(res.Message, "destination") {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = d.Run(context.Background(), "withdraw_from_vault", map[string]any{
		"category": "eth-defi", "amount": "1", "account": "0x123",
	})
	if err != nil {
		t.Fatalf("expected message result, got error %v", err)
	}
	if res.Message != "The provided wallet address is invalid. Please provide a valid Ethereum address in the format 0x... (42 characters long)" {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestInvalidAmountBecomesMessage(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	res, err := d.Run(context.Background(), "borrow_from_vault", map[string]any{"category": "eth-defi", "amount": "-3"})
	if err != nil {
		t.Fatalf("expected message result, got error %v", err)
	}
	if res.Status != actions.StatusMessage || !strings.Contains(res.Message, "non-negative") {
		t.Fatalf("unexpected result %+v", res)
	}
	defi := mustVault(t, "eth-defi")
	if !strings.Contains(res.Message, "Cannot borrow -3 USDC from eth-defi vault "+defi.Address.Hex()) {
		t.Fatalf("expected category and vault in message, got %q", res.Message)
	}

	res, err = d.Run(context.Background(), "withdraw_from_vault", map[string]any{"category": "cb-assets", "amount": "abc", "account": userAddr})
	if err != nil {
		t.Fatalf("expected message result, got error %v", err)
	}
	cb := mustVault(t, "cb-assets")
	for _, want := range []string{"withdraw abc", "cb-assets", cb.Address.Hex(), common.HexToAddress(userAddr).Hex(), "not numeric"} {
		if !strings.Contains(res.Message, want) {
			t.Fatalf("expected %q in message, got %q", want, res.Message)
		}
	}

	res, err = d.Run(context.Background(), "generate_transfer_calldata", map[string]any{"symbol": "USDC", "amount": "1e2000000000", "destination": userAddr})
	if err != nil {
		t.Fatalf("expected message result, got error %v", err)
	}
	if res.Status != actions.StatusMessage || !strings.Contains(res.Message, "USDC") || !strings.Contains(res.Message, "overflows uint256") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerateSwapCalldataRejectsEmptyPath(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	_, err := d.Run(context.Background(), "generate_swap_calldata", map[string]any{
		"routerAddress": "0x2626664c2603336E57B271c5C0b26F421741e481",
		"amountIn":      "1000",
		"amountOutMin":  "990",
		"path":          []any{},
		"recipient":     userAddr,
		"deadline":      "1700000000",
	})
	if !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for empty path, got %v", err)
	}
}

func TestUnknownVaultPropagates(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	_, err := d.Run(context.Background(), "repay_to_vault", map[string]any{"category": "moon", "amount": "1"})
	if !clierr.IsCode(err, clierr.CodeUnknownVault) {
		t.Fatalf("expected unknown vault, got %v", err)
	}
	_, err = d.Run(context.Background(), "generate_transfer_calldata", map[string]any{"symbol": "DOGE", "amount": "1", "destination": userAddr})
	if !clierr.IsCode(err, clierr.CodeUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
}

func TestLendingCalldataDescriptions(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	vault := mustVault(t, "base-meme")

	res := run(t, d, "withdraw_from_vault", map[string]any{"category": "base-meme", "amount": "0.5", "account": userAddr})
	resp := res.Data.(calldata.Response)
	if resp.To != vault.Address {
		t.Fatalf("unexpected vault %s", resp.To.Hex())
	}
	want := "Withdraw 0.5 WETH from base-meme vault to " + common.HexToAddress(userAddr).Hex()
	if resp.Description != want {
		t.Fatalf("unexpected description %q", resp.Description)
	}
	amount, receiver, owner, err := calldata.DecodeWithdraw(resp.Data)
	if err != nil {
		t.Fatalf("DecodeWithdraw failed: %v", err)
	}
	if amount.Cmp(wei("500000000000000000")) != 0 || receiver != owner {
		t.Fatalf("unexpected withdraw args %s %s %s", amount, receiver.Hex(), owner.Hex())
	}

	res = run(t, d, "borrow_from_vault", map[string]any{"category": "eth-defi", "amount": "10"})
	if got := res.Data.(calldata.Response).Description; got != "Borrow 10 USDC from eth-defi vault" {
		t.Fatalf("unexpected borrow description %q", got)
	}
	res = run(t, d, "repay_to_vault", map[string]any{"category": "eth-defi", "amount": "10"})
	if got := res.Data.(calldata.Response).Description; got != "Repay 10 USDC to eth-defi vault" {
		t.Fatalf("unexpected repay description %q", got)
	}
}

func TestWithdrawWithoutAccountAsksForIt(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	res := run(t, d, "withdraw_from_vault", map[string]any{"category": "eth-defi", "amount": "1"})
	if res.Status != actions.StatusMessage || !strings.HasPrefix(res.Message, "Please provide your wallet address to withdraw assets.") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGetPoolInfoFormatsReads(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	vault := mustVault(t, "eth-defi")
	stubViews(chain, vault.Address, map[string]*big.Int{
		"baseSupplyAPY": wei("52500000000000000"),
		"baseBorrowAPY": wei("81200000000000000"),
		"supplied":      big.NewInt(1_500_000),
		"borrowed":      big.NewInt(375_000),
		"supplyCap":     big.NewInt(999),
	})
	d := actions.New(actions.Deps{Wallet: chain})
	info := run(t, d, "get_pool_info", map[string]any{"category": "eth-defi"}).Data.(actions.PoolInfo)
	if info.TotalSupplied != "1500000" || info.Formatted.TotalSupplied != "1.50M" {
		t.Fatalf("unexpected supplied %+v", info)
	}
	if info.Formatted.TotalBorrowed != "375.00K" || info.Formatted.SupplyCap != "999" {
		t.Fatalf("unexpected formatting %+v", info.Formatted)
	}
	if info.Formatted.SupplyAPY != "5.25%" || info.Formatted.BorrowAPY != "8.12%" {
		t.Fatalf("unexpected apy %+v", info.Formatted)
	}
	if info.UtilizationRate != "25.00%" || info.DepositToken != "USDC" {
		t.Fatalf("unexpected pool info %+v", info)
	}
}

func TestGetPortfolioWithoutPositions(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	for _, v := range registry.Vaults("base-sepolia") {
		stubViews(chain, v.Address, nil)
	}
	d := actions.New(actions.Deps{Wallet: chain})
	info := run(t, d, "get_portfolio", map[string]any{"account": userAddr}).Data.(actions.PortfolioInfo)
	if len(info.Positions) != 0 || info.OverallHealth != "0" || info.Formatted.OverallHealth != "0.00" {
		t.Fatalf("unexpected empty portfolio %+v", info)
	}
	res := run(t, d, "get_portfolio", map[string]any{"account": userAddr})
	if res.Message != "No active positions" || res.Data.(actions.PortfolioInfo).Formatted.HealthStatus != res.Message {
		t.Fatalf("unexpected empty portfolio message %q", res.Message)
	}
}

func TestGetPortfolioAggregatesActivePositions(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	for _, v := range registry.Vaults("base-sepolia") {
		switch v.Category {
		case "eth-defi":
			stubViews(chain, v.Address, map[string]*big.Int{
				"accountHealth":           wei("3000000000000000000"),
				"assetBalance":            big.NewInt(2000),
				"accountCollateralAmount": big.NewInt(2000),
			})
		case "base-meme":
			stubViews(chain, v.Address, map[string]*big.Int{
				"accountHealth":         wei("1000000000000000000"),
				"accountAssetsBorrowed": big.NewInt(500),
			})
		default:
			// Health without supply or debt is not an active position.
			stubViews(chain, v.Address, map[string]*big.Int{"accountHealth": wei("9000000000000000000")})
		}
	}
	d := actions.New(actions.Deps{Wallet: chain})
	info := run(t, d, "get_portfolio", map[string]any{"account": userAddr}).Data.(actions.PortfolioInfo)
	if len(info.Positions) != 2 {
		t.Fatalf("expected 2 active positions, got %d", len(info.Positions))
	}
	if info.TotalSupplied != "2000" || info.TotalBorrowed != "500" || info.TotalCollateral != "2000" {
		t.Fatalf("unexpected totals %+v", info)
	}
	if info.OverallHealth != "2000000000000000000" || info.Formatted.HealthStatus != "Excellent" || info.Formatted.OverallHealth != "2.00" {
		t.Fatalf("unexpected health %+v", info)
	}
}

func TestGetAccountInfoBucketsHealth(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	vault := mustVault(t, "cb-assets")
	stubViews(chain, vault.Address, map[string]*big.Int{
		"accountHealth": wei("999999999999999999"),
		"assetBalance":  big.NewInt(10),
	})
	d := actions.New(actions.Deps{Wallet: chain})
	info := run(t, d, "get_account_info", map[string]any{"category": "cb-assets", "account": userAddr}).Data.(actions.AccountInfo)
	if info.Formatted.HealthStatus != "At Risk" || info.Formatted.RiskLevel != "Very High" {
		t.Fatalf("unexpected bucket %+v", info.Formatted)
	}
}

type memJournal struct {
	saved []execution.Action
}

func (j *memJournal) Save(a execution.Action) error {
	j.saved = append(j.saved, a)
	return nil
}

func (j *memJournal) last() execution.Action {
	return j.saved[len(j.saved)-1]
}

func TestTransferSubmitsAndJournals(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	usdc, _ := registry.ResolveToken("base-sepolia", "USDC")
	var sent *big.Int
	chain.HandleSend(usdc.Address, calldata.ERC20ABI, "transfer", func(_ common.Address, args []any) ([]*types.Log, error) {
		sent = args[1].(*big.Int)
		return nil, nil
	})
	journal := &memJournal{}
	d := actions.New(actions.Deps{Wallet: chain, Journal: journal})

	res := run(t, d, "transfer", map[string]any{"amount": "2.5", "contractAddress": usdc.Address.Hex(), "destination": userAddr})
	if res.Status != actions.StatusConfirmed || !strings.Contains(res.Message, "Transaction hash for the transfer: 0x") {
		t.Fatalf("unexpected result %+v", res)
	}
	if sent == nil || sent.Int64() != 2_500_000 {
		t.Fatalf("unexpected transferred amount %v", sent)
	}
	if got := journal.last(); got.Status != execution.ActionStatusConfirmed || got.ActionID != res.ActionID {
		t.Fatalf("unexpected journal entry %+v", got)
	}
}

func TestTransferRevertIsReportedWithContext(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	usdc, _ := registry.ResolveToken("base-sepolia", "USDC")
	chain.HandleSend(usdc.Address, calldata.ERC20ABI, "transfer", func(common.Address, []any) ([]*types.Log, error) {
		return nil, errors.New("ERC20: transfer amount exceeds balance")
	})
	journal := &memJournal{}
	d := actions.New(actions.Deps{Wallet: chain, Journal: journal})

	_, err := d.Run(context.Background(), "transfer", map[string]any{"amount": "1", "contractAddress": usdc.Address.Hex(), "destination": userAddr})
	if !clierr.IsCode(err, clierr.CodeReverted) {
		t.Fatalf("expected revert error, got %v", err)
	}
	if !strings.Contains(err.Error(), "transfer of 1 of "+usdc.Address.Hex()) || !strings.Contains(err.Error(), common.HexToAddress(userAddr).Hex()) {
		t.Fatalf("expected amount, token and destination in error, got %v", err)
	}
	if journal.last().Status != execution.ActionStatusFailed {
		t.Fatalf("expected failed journal entry, got %s", journal.last().Status)
	}
}

func TestTransferRequiresWallet(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	_, err := d.Run(context.Background(), "transfer", map[string]any{"amount": "1", "contractAddress": userAddr, "destination": userAddr})
	if !clierr.IsCode(err, clierr.CodeSigner) {
		t.Fatalf("expected signer error, got %v", err)
	}
}

func TestGetBalanceWithoutAgentKey(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), common.Address{})
	weth, _ := registry.ResolveToken("base-sepolia", "WETH")
	chain.HandleRead(weth.Address, calldata.ERC20ABI, "balanceOf", func(args []any) ([]any, error) {
		t.Errorf("balanceOf queried for %s", args[0].(common.Address).Hex())
		return []any{big.NewInt(5)}, nil
	})
	d := actions.New(actions.Deps{Wallet: chain})
	_, err := d.Run(context.Background(), "get_balance", map[string]any{"contractAddress": weth.Address.Hex()})
	if !clierr.IsCode(err, clierr.CodeSigner) {
		t.Fatalf("expected signer error for read-only wallet, got %v", err)
	}
	_, err = d.Run(context.Background(), "transfer", map[string]any{"amount": "1", "contractAddress": weth.Address.Hex(), "destination": userAddr})
	if !clierr.IsCode(err, clierr.CodeSigner) {
		t.Fatalf("expected signer error for transfer from read-only wallet, got %v", err)
	}
}

func TestGetBalanceUsesRegistryDecimals(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	weth, _ := registry.ResolveToken("base-sepolia", "WETH")
	chain.HandleRead(weth.Address, calldata.ERC20ABI, "balanceOf", func(args []any) ([]any, error) {
		if args[0].(common.Address) != agentAddr {
			t.Errorf("balance read for unexpected account %s", args[0].(common.Address).Hex())
		}
		return []any{wei("1250000000000000000")}, nil
	})
	d := actions.New(actions.Deps{Wallet: chain})
	res := run(t, d, "get_balance", map[string]any{"contractAddress": weth.Address.Hex()})
	if res.Message != "1.25" {
		t.Fatalf("unexpected balance %q", res.Message)
	}
}

func TestRunRejectsUnknownAndBlockedActions(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t), EnabledActions: []string{"get_pool_info"}})
	if _, err := d.Run(context.Background(), "launch_rocket", nil); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, err := d.Run(context.Background(), "borrow_from_vault", map[string]any{"category": "eth-defi", "amount": "1"}); !clierr.IsCode(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if _, err := d.RunJSON(context.Background(), "get_pool_info", []byte(`[1,2]`)); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for non-object input, got %v", err)
	}
}

func TestListIsSortedAndComplete(t *testing.T) {
	d := actions.New(actions.Deps{})
	list := d.List()
	if len(list) != 13 {
		t.Fatalf("expected 13 actions, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name >= list[i].Name {
			t.Fatalf("actions not sorted: %s before %s", list[i-1].Name, list[i].Name)
		}
	}
}

type supplyEnv struct {
	chain    *wallettest.Chain
	safes    *multisigtest.Safes
	service  *multisigtest.Service
	store    *memory.Store
	orch     *multisig.Orchestrator
	dispatch *actions.Dispatcher
}

func newSupplyEnv(t *testing.T) *supplyEnv {
	t.Helper()
	network := baseSepolia(t)
	contracts, _ := registry.SafeContracts(network.ChainID)
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	coordinator, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: hexutil.Encode(crypto.FromECDSA(key))})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	// One chain handle serves both the agent wallet reads and the
	// coordinator's deployments in this test.
	chain := wallettest.New(network, coordinator.Address())
	safes := multisigtest.Install(chain, contracts)
	service := multisigtest.NewService(safes)
	store := memory.New()
	orchestrator, err := multisig.New(multisig.Config{Network: network}, chain, coordinator, store, service, nil)
	if err != nil {
		t.Fatalf("multisig.New failed: %v", err)
	}
	agentWallet := &agentView{Chain: chain}
	return &supplyEnv{
		chain:    chain,
		safes:    safes,
		service:  service,
		store:    store,
		orch:     orchestrator,
		dispatch: actions.New(actions.Deps{Wallet: agentWallet, Custody: orchestrator}),
	}
}

// agentView reports the agent address while delegating chain access.
type agentView struct {
	*wallettest.Chain
}

func (agentView) Address() common.Address { return agentAddr }

func TestSupplyWithoutMultisigCreatesAndProposes(t *testing.T) {
	env := newSupplyEnv(t)
	vault := mustVault(t, "eth-defi")

	res := run(t, env.dispatch, "supply_to_vault", map[string]any{
		"category":        "eth-defi",
		"amount":          "100",
		"useAsCollateral": true,
		"account":         userAddr,
		"agentId":         "agent-7",
	})
	if res.Status != actions.StatusProposed {
		t.Fatalf("unexpected status %s", res.Status)
	}
	proposal := res.Data.(actions.SupplyProposal)
	user := common.HexToAddress(userAddr)
	wantMsg := "Supply 100 USDC to eth-defi vault from " + user.Hex() + ". You should sign the transaction with your wallet too at multisig address " + proposal.Multisig.Hex()
	if res.Message != wantMsg {
		t.Fatalf("unexpected message %q", res.Message)
	}

	if env.safes.Deploys() != 1 {
		t.Fatalf("expected one Safe deployment, got %d", env.safes.Deploys())
	}
	stored, err := env.store.FindByPair(context.Background(), "base-sepolia", agentAddr, user)
	if err != nil {
		t.Fatalf("FindByPair failed: %v", err)
	}
	if stored.Address != proposal.Multisig || stored.AgentID != "agent-7" {
		t.Fatalf("unexpected stored multisig %+v", stored)
	}
	if env.chain.SentTo(vault.Address) != 0 {
		t.Fatal("supply must never be broadcast directly")
	}
	if len(env.safes.Executed()) != 0 {
		t.Fatal("proposal must wait for the user's signature")
	}

	proposals := env.service.Proposals()
	if len(proposals) != 1 {
		t.Fatalf("expected one proposal, got %d", len(proposals))
	}
	if common.HexToAddress(proposals[0].To) != vault.Address || len(proposals[0].Confirmations) != 1 {
		t.Fatalf("unexpected proposal %+v", proposals[0])
	}
	amount, receiver, collateral, err := calldata.DecodeSupply(common.FromHex(*proposals[0].Data))
	if err != nil {
		t.Fatalf("DecodeSupply failed: %v", err)
	}
	if amount.Int64() != 100_000_000 || receiver != proposal.Multisig || !collateral {
		t.Fatalf("unexpected supply args %s %s %v", amount, receiver.Hex(), collateral)
	}
}

func TestSupplyReusesExistingMultisig(t *testing.T) {
	env := newSupplyEnv(t)
	input := map[string]any{"category": "base-meme", "amount": "0.1", "account": userAddr}
	first := run(t, env.dispatch, "supply_to_vault", input).Data.(actions.SupplyProposal)
	second := run(t, env.dispatch, "supply_to_vault", input).Data.(actions.SupplyProposal)
	if first.Multisig != second.Multisig || env.safes.Deploys() != 1 {
		t.Fatalf("expected the pair's multisig to be reused")
	}
	if second.Nonce != first.Nonce+1 {
		t.Fatalf("expected queued nonce %d, got %d", first.Nonce+1, second.Nonce)
	}
}

func TestSupplyWithoutAccountAsksForIt(t *testing.T) {
	env := newSupplyEnv(t)
	res := run(t, env.dispatch, "supply_to_vault", map[string]any{"category": "eth-defi", "amount": "1"})
	want := "Please provide your wallet address to supply assets. The address should be in the format 0x... (42 characters long)"
	if res.Status != actions.StatusMessage || res.Message != want {
		t.Fatalf("unexpected result %+v", res)
	}
	if env.safes.Deploys() != 0 {
		t.Fatal("no multisig should be created without an account")
	}
}

func TestGetMultisigDetails(t *testing.T) {
	env := newSupplyEnv(t)
	res := run(t, env.dispatch, "get_multisig_details", map[string]any{"userAddress": userAddr})
	if res.Status != actions.StatusMessage {
		t.Fatalf("expected not-found message, got %+v", res)
	}
	created := run(t, env.dispatch, "create_multisig", map[string]any{"agentId": "agent-1", "userAddress": userAddr})
	res = run(t, env.dispatch, "get_multisig_details", map[string]any{"userAddress": userAddr, "agentAddress": agentAddr.Hex()})
	if res.Status != actions.StatusComputed || res.Message != created.Message[strings.LastIndex(created.Message, " ")+1:] {
		t.Fatalf("unexpected details %+v", res)
	}
}

func TestSupplyThroughCustodyNeedsAgentKey(t *testing.T) {
	env := newSupplyEnv(t)
	readOnly := wallettest.New(baseSepolia(t), common.Address{})
	d := actions.New(actions.Deps{Wallet: readOnly, Custody: env.orch})
	_, err := d.Run(context.Background(), "supply_to_vault", map[string]any{"category": "eth-defi", "amount": "1", "account": userAddr})
	if !clierr.IsCode(err, clierr.CodeSigner) {
		t.Fatalf("expected signer error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no agent wallet is configured") {
		t.Fatalf("unexpected error %v", err)
	}
	if len(env.chain.Sent()) != 0 {
		t.Fatal("no Safe may be deployed without an agent wallet")
	}
}

func TestSupplyWithoutChainReturnsCalldata(t *testing.T) {
	d := actions.New(actions.Deps{Network: baseSepolia(t)})
	res := run(t, d, "supply_to_vault", map[string]any{"category": "cb-assets", "amount": "2.5", "account": userAddr})
	if res.Status != actions.StatusEncoded {
		t.Fatalf("expected calldata-only supply, got %+v", res)
	}
	if res.Data.(calldata.Response).To != mustVault(t, "cb-assets").Address {
		t.Fatalf("unexpected target %+v", res.Data)
	}
}

func TestSupplyWithoutCustodyReturnsCalldata(t *testing.T) {
	chain := wallettest.New(baseSepolia(t), agentAddr)
	d := actions.New(actions.Deps{Wallet: chain})
	res := run(t, d, "supply_to_vault", map[string]any{"category": "eth-defi", "amount": "1", "account": userAddr})
	if res.Status != actions.StatusEncoded {
		t.Fatalf("expected plain calldata without custody, got %+v", res)
	}
	_, receiver, _, err := calldata.DecodeSupply(res.Data.(calldata.Response).Data)
	if err != nil || receiver != common.HexToAddress(userAddr) {
		t.Fatalf("unexpected receiver %s (%v)", receiver.Hex(), err)
	}
	if len(chain.Sent()) != 0 {
		t.Fatal("calldata actions must not broadcast")
	}
}
