package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Network identifies an EVM chain by its agent-facing slug.
type Network struct {
	Name    string
	Slug    string
	CAIP2   string
	ChainID int64
}

var networkBySlug = map[string]Network{
	"base-sepolia": {Name: "Base Sepolia", Slug: "base-sepolia", CAIP2: "eip155:84532", ChainID: 84532},
	"base":         {Name: "Base", Slug: "base", CAIP2: "eip155:8453", ChainID: 8453},
	"base-mainnet": {Name: "Base", Slug: "base", CAIP2: "eip155:8453", ChainID: 8453},
}

var networkByID = map[int64]Network{
	84532: networkBySlug["base-sepolia"],
	8453:  networkBySlug["base"],
}

func ParseNetwork(input string) (Network, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Network{}, clierr.New(clierr.CodeUsage, "network is required")
	}
	norm := strings.ToLower(raw)
	if n, ok := networkBySlug[norm]; ok {
		return n, nil
	}
	if eip155ChainPattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if chainID, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if n, ok := networkByID[chainID]; ok {
			return n, nil
		}
	}
	return Network{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported network: %s", input))
}

// NetworkByChainID resolves a chain id reported by an RPC endpoint.
func NetworkByChainID(chainID int64) (Network, bool) {
	n, ok := networkByID[chainID]
	return n, ok
}

// ValidateAddress accepts only 0x-prefixed 40-hex-digit strings.
func ValidateAddress(candidate string) (common.Address, error) {
	raw := strings.TrimSpace(candidate)
	if !evmAddressPattern.MatchString(raw) {
		return common.Address{}, clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("invalid address %q", candidate))
	}
	return common.HexToAddress(raw), nil
}
