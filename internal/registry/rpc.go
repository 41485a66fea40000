package registry

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
)

// Public endpoints used when neither --rpc-url nor CHEDDA_RPC_URL is set.
// They are rate limited and fine for reads; production agents should bring
// their own.
var defaultRPCByChainID = map[int64]string{
	8453:  "https://mainnet.base.org",
	84532: "https://sepolia.base.org",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

// ResolveRPCURL prefers override and falls back to the network's public
// endpoint.
func ResolveRPCURL(override string, network id.Network) (string, error) {
	if v := strings.TrimSpace(override); v != "" {
		return v, nil
	}
	if value, ok := DefaultRPCURL(network.ChainID); ok {
		return value, nil
	}
	return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("no default rpc for %s (%s); set --rpc-url or CHEDDA_RPC_URL", network.Slug, network.CAIP2))
}
