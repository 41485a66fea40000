package actions

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
	"github.com/ggonzalez94/chedda-agent/internal/wallet"
	"golang.org/x/sync/errgroup"
)

type PoolInfo struct {
	Category        string         `json:"category"`
	Vault           common.Address `json:"vault"`
	DepositToken    string         `json:"deposit_token"`
	SupplyAPY       string         `json:"supply_apy"`
	BorrowAPY       string         `json:"borrow_apy"`
	TotalSupplied   string         `json:"total_supplied"`
	TotalBorrowed   string         `json:"total_borrowed"`
	SupplyCap       string         `json:"supply_cap"`
	UtilizationRate string         `json:"utilization_rate"`
	Formatted       PoolFormatted  `json:"formatted"`
}

type PoolFormatted struct {
	SupplyAPY     string `json:"supply_apy"`
	BorrowAPY     string `json:"borrow_apy"`
	TotalSupplied string `json:"total_supplied"`
	TotalBorrowed string `json:"total_borrowed"`
	SupplyCap     string `json:"supply_cap"`
}

type AccountInfo struct {
	Category     string           `json:"category"`
	Vault        common.Address   `json:"vault"`
	Account      common.Address   `json:"account"`
	DepositToken string           `json:"deposit_token"`
	HealthFactor string           `json:"health_factor"`
	Supplied     string           `json:"supplied"`
	Borrowed     string           `json:"borrowed"`
	Collateral   string           `json:"collateral"`
	Formatted    AccountFormatted `json:"formatted"`
}

type AccountFormatted struct {
	HealthFactor string `json:"health_factor"`
	HealthStatus string `json:"health_status"`
	RiskLevel    string `json:"risk_level"`
	Supplied     string `json:"supplied"`
	Borrowed     string `json:"borrowed"`
	Collateral   string `json:"collateral"`
}

// PortfolioInfo aggregates the active positions of an account across every
// vault of the network.
type PortfolioInfo struct {
	Account         common.Address     `json:"account"`
	Positions       []AccountInfo      `json:"positions"`
	TotalSupplied   string             `json:"total_supplied"`
	TotalBorrowed   string             `json:"total_borrowed"`
	TotalCollateral string             `json:"total_collateral"`
	OverallHealth   string             `json:"overall_health"`
	Formatted       PortfolioFormatted `json:"formatted"`
}

type PortfolioFormatted struct {
	TotalSupplied   string `json:"total_supplied"`
	TotalBorrowed   string `json:"total_borrowed"`
	TotalCollateral string `json:"total_collateral"`
	OverallHealth   string `json:"overall_health"`
	HealthStatus    string `json:"health_status"`
	RiskLevel       string `json:"risk_level"`
}

func infoActions() []*Action {
	return []*Action{
		{
			Name:        "get_pool_info",
			Description: "Get detailed information about a Chedda Finance lending pool including APY, total supply and utilization.",
			Schema: Schema{
				categoryField("The investment category to get information about"),
			},
			run: getPoolInfo,
		},
		{
			Name:        "get_account_info",
			Description: "Get the health factor, supplied, borrowed and collateral amounts of an account in a lending pool.",
			Schema: Schema{
				categoryField("The investment category to get account information from"),
				{Name: "account", Type: TypeAddress, Description: "The account address to get information about"},
			},
			run: getAccountInfo,
		},
		{
			Name:        "get_portfolio",
			Description: "Aggregate an account's positions across every Chedda lending vault.",
			Schema: Schema{
				{Name: "account", Type: TypeAddress, Description: "The account address to summarize"},
			},
			run: getPortfolio,
		},
	}
}

// viewCall is one lending pool view read; out receives the result.
type viewCall struct {
	vault  common.Address
	method string
	args   []any
	out    **big.Int
}

// readViews issues every call concurrently and fails on the first error.
func readViews(ctx context.Context, r wallet.Reader, calls []viewCall) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range calls {
		g.Go(func() error {
			out, err := wallet.Call(gctx, r, calldata.LendingPoolViewABI, c.vault, c.method, c.args...)
			if err != nil {
				return err
			}
			v, ok := out[0].(*big.Int)
			if !ok {
				return clierr.New(clierr.CodeChainCall, fmt.Sprintf("unexpected %s result from %s", c.method, c.vault.Hex()))
			}
			*c.out = v
			return nil
		})
	}
	return g.Wait()
}

func getPoolInfo(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	r, err := d.reader()
	if err != nil {
		return Result{}, err
	}
	category := args.String("category")
	vault, err := registry.ResolveVault(d.network(), category)
	if err != nil {
		return Result{}, err
	}
	var supplyAPY, borrowAPY, supplied, borrowed, supplyCap *big.Int
	err = readViews(ctx, r, []viewCall{
		{vault: vault.Address, method: "baseSupplyAPY", out: &supplyAPY},
		{vault: vault.Address, method: "baseBorrowAPY", out: &borrowAPY},
		{vault: vault.Address, method: "supplied", out: &supplied},
		{vault: vault.Address, method: "borrowed", out: &borrowed},
		{vault: vault.Address, method: "supplyCap", out: &supplyCap},
	})
	if err != nil {
		return Result{}, withContext(err, fmt.Sprintf("read pool info of %s vault %s", category, vault.Address.Hex()))
	}
	info := PoolInfo{
		Category:        vault.Category,
		Vault:           vault.Address,
		DepositToken:    vault.DepositTokenSymbol,
		SupplyAPY:       supplyAPY.String(),
		BorrowAPY:       borrowAPY.String(),
		TotalSupplied:   supplied.String(),
		TotalBorrowed:   borrowed.String(),
		SupplyCap:       supplyCap.String(),
		UtilizationRate: UtilizationRate(supplied, borrowed),
		Formatted: PoolFormatted{
			SupplyAPY:     FormatAPY(supplyAPY),
			BorrowAPY:     FormatAPY(borrowAPY),
			TotalSupplied: FormatCompact(supplied),
			TotalBorrowed: FormatCompact(borrowed),
			SupplyCap:     FormatCompact(supplyCap),
		},
	}
	return Result{Status: StatusComputed, Data: info}, nil
}

// readAccount reads the four per-account views of one vault.
func readAccount(ctx context.Context, r wallet.Reader, vault registry.Vault, account common.Address) (AccountInfo, error) {
	var health, supplied, borrowed, collateral *big.Int
	err := readViews(ctx, r, accountCalls(vault, account, &health, &supplied, &borrowed, &collateral))
	if err != nil {
		return AccountInfo{}, err
	}
	return accountInfo(vault, account, health, supplied, borrowed, collateral), nil
}

func accountCalls(vault registry.Vault, account common.Address, health, supplied, borrowed, collateral **big.Int) []viewCall {
	args := []any{account}
	return []viewCall{
		{vault: vault.Address, method: "accountHealth", args: args, out: health},
		{vault: vault.Address, method: "assetBalance", args: args, out: supplied},
		{vault: vault.Address, method: "accountAssetsBorrowed", args: args, out: borrowed},
		{vault: vault.Address, method: "accountCollateralAmount", args: args, out: collateral},
	}
}

func accountInfo(vault registry.Vault, account common.Address, health, supplied, borrowed, collateral *big.Int) AccountInfo {
	status, risk := HealthBucket(health)
	return AccountInfo{
		Category:     vault.Category,
		Vault:        vault.Address,
		Account:      account,
		DepositToken: vault.DepositTokenSymbol,
		HealthFactor: health.String(),
		Supplied:     supplied.String(),
		Borrowed:     borrowed.String(),
		Collateral:   collateral.String(),
		Formatted: AccountFormatted{
			HealthFactor: FormatHealth(health),
			HealthStatus: status,
			RiskLevel:    risk,
			Supplied:     FormatCompact(supplied),
			Borrowed:     FormatCompact(borrowed),
			Collateral:   FormatCompact(collateral),
		},
	}
}

func getAccountInfo(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	account, msg, err := userAccount(args, "check account information")
	if err != nil || msg != "" {
		return Result{Status: StatusMessage, Message: msg}, err
	}
	r, err := d.reader()
	if err != nil {
		return Result{}, err
	}
	category := args.String("category")
	vault, err := registry.ResolveVault(d.network(), category)
	if err != nil {
		return Result{}, err
	}
	info, err := readAccount(ctx, r, vault, account)
	if err != nil {
		return Result{}, withContext(err, fmt.Sprintf("read account %s in %s vault %s", account.Hex(), category, vault.Address.Hex()))
	}
	return Result{Status: StatusComputed, Data: info}, nil
}

func getPortfolio(ctx context.Context, d *Dispatcher, args Args) (Result, error) {
	account, msg, err := userAccount(args, "view your portfolio")
	if err != nil || msg != "" {
		return Result{Status: StatusMessage, Message: msg}, err
	}
	r, err := d.reader()
	if err != nil {
		return Result{}, err
	}
	vaults := registry.Vaults(d.network())
	reads := make([][4]*big.Int, len(vaults))
	calls := make([]viewCall, 0, 4*len(vaults))
	for i, v := range vaults {
		calls = append(calls, accountCalls(v, account, &reads[i][0], &reads[i][1], &reads[i][2], &reads[i][3])...)
	}
	if err := readViews(ctx, r, calls); err != nil {
		return Result{}, withContext(err, fmt.Sprintf("read portfolio of %s", account.Hex()))
	}

	positions := make([]AccountInfo, 0, len(vaults))
	totalSupplied, totalBorrowed, totalCollateral, healthSum := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	for i, v := range vaults {
		health, supplied, borrowed, collateral := reads[i][0], reads[i][1], reads[i][2], reads[i][3]
		if supplied.Sign() == 0 && borrowed.Sign() == 0 {
			continue
		}
		positions = append(positions, accountInfo(v, account, health, supplied, borrowed, collateral))
		totalSupplied.Add(totalSupplied, supplied)
		totalBorrowed.Add(totalBorrowed, borrowed)
		totalCollateral.Add(totalCollateral, collateral)
		healthSum.Add(healthSum, health)
	}
	overall := new(big.Int)
	status, risk := "No active positions", "None"
	if len(positions) > 0 {
		overall.Quo(healthSum, big.NewInt(int64(len(positions))))
		status, risk = HealthBucket(overall)
	}
	info := PortfolioInfo{
		Account:         account,
		Positions:       positions,
		TotalSupplied:   totalSupplied.String(),
		TotalBorrowed:   totalBorrowed.String(),
		TotalCollateral: totalCollateral.String(),
		OverallHealth:   overall.String(),
		Formatted: PortfolioFormatted{
			TotalSupplied:   FormatCompact(totalSupplied),
			TotalBorrowed:   FormatCompact(totalBorrowed),
			TotalCollateral: FormatCompact(totalCollateral),
			OverallHealth:   FormatHealth(overall),
			HealthStatus:    status,
			RiskLevel:       risk,
		},
	}
	msg = status
	if len(positions) > 0 {
		msg = fmt.Sprintf("%d active positions across %d vaults", len(positions), len(vaults))
	}
	return Result{
		Status:  StatusComputed,
		Message: msg,
		Data:    info,
	}, nil
}
