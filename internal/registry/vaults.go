package registry

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"gopkg.in/yaml.v3"
)

// Token is an ERC20 registered for a network.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals int            `json:"decimals"`
}

// Vault is a lending pool keyed by investment category.
type Vault struct {
	Category           string         `json:"category"`
	Address            common.Address `json:"address"`
	DepositTokenSymbol string         `json:"deposit_token"`
}

type networkTable struct {
	tokens     map[string]Token
	vaults     map[string]Vault
	categories []string
}

//go:embed vaults.yaml
var vaultsYAML []byte

var tables = mustLoadTables(vaultsYAML)

type tableFile map[string]struct {
	Tokens []struct {
		Symbol   string `yaml:"symbol"`
		Address  string `yaml:"address"`
		Decimals int    `yaml:"decimals"`
	} `yaml:"tokens"`
	Vaults []struct {
		Category     string `yaml:"category"`
		Address      string `yaml:"address"`
		DepositToken string `yaml:"deposit_token"`
	} `yaml:"vaults"`
}

func mustLoadTables(buf []byte) map[string]networkTable {
	out, err := loadTables(buf)
	if err != nil {
		panic(err)
	}
	return out
}

func loadTables(buf []byte) (map[string]networkTable, error) {
	var raw tableFile
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("parse vault registry: %w", err)
	}
	out := make(map[string]networkTable, len(raw))
	for network, entry := range raw {
		table := networkTable{
			tokens: make(map[string]Token, len(entry.Tokens)),
			vaults: make(map[string]Vault, len(entry.Vaults)),
		}
		for _, t := range entry.Tokens {
			if !common.IsHexAddress(t.Address) {
				return nil, fmt.Errorf("network %s: invalid token address %q", network, t.Address)
			}
			symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
			table.tokens[symbol] = Token{Address: common.HexToAddress(t.Address), Symbol: symbol, Decimals: t.Decimals}
		}
		for _, v := range entry.Vaults {
			if !common.IsHexAddress(v.Address) {
				return nil, fmt.Errorf("network %s: invalid vault address %q", network, v.Address)
			}
			symbol := strings.ToUpper(strings.TrimSpace(v.DepositToken))
			if _, ok := table.tokens[symbol]; !ok {
				return nil, fmt.Errorf("network %s: vault %s references unregistered token %s", network, v.Category, symbol)
			}
			category := strings.ToLower(strings.TrimSpace(v.Category))
			table.vaults[category] = Vault{Category: category, Address: common.HexToAddress(v.Address), DepositTokenSymbol: symbol}
			table.categories = append(table.categories, category)
		}
		sort.Strings(table.categories)
		out[strings.ToLower(network)] = table
	}
	return out, nil
}

// Networks lists network slugs that carry a registry table.
func Networks() []string {
	out := make([]string, 0, len(tables))
	for n := range tables {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func ResolveVault(network, category string) (Vault, error) {
	table := tables[strings.ToLower(strings.TrimSpace(network))]
	v, ok := table.vaults[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return Vault{}, clierr.New(clierr.CodeUnknownVault, fmt.Sprintf("unknown vault category %q on network %s", category, network))
	}
	return v, nil
}

func ResolveToken(network, symbol string) (Token, error) {
	table := tables[strings.ToLower(strings.TrimSpace(network))]
	t, ok := table.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, clierr.New(clierr.CodeUnknownToken, fmt.Sprintf("unknown token %q on network %s", symbol, network))
	}
	return t, nil
}

// VaultToken resolves the deposit token of a vault.
func VaultToken(network string, v Vault) (Token, error) {
	return ResolveToken(network, v.DepositTokenSymbol)
}

func TokenByAddress(network string, addr common.Address) (Token, bool) {
	for _, t := range tables[strings.ToLower(strings.TrimSpace(network))].tokens {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}

// Categories returns the sorted vault categories registered for a network.
func Categories(network string) []string {
	table := tables[strings.ToLower(strings.TrimSpace(network))]
	return append([]string(nil), table.categories...)
}

// Vaults returns every vault registered for a network in category order.
func Vaults(network string) []Vault {
	table := tables[strings.ToLower(strings.TrimSpace(network))]
	out := make([]Vault, 0, len(table.categories))
	for _, c := range table.categories {
		out = append(out, table.vaults[c])
	}
	return out
}
