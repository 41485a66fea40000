package registry

import (
	"net"
	"net/url"
	"strings"
)

// Safe Transaction Service endpoints by chain ID.
var safeServiceByChainID = map[int64]string{
	8453:  "https://safe-transaction-base.safe.global",
	84532: "https://safe-transaction-base-sepolia.safe.global",
}

func SafeServiceURL(chainID int64) (string, bool) {
	v, ok := safeServiceByChainID[chainID]
	return v, ok
}

// IsAllowedSafeServiceURL accepts the canonical service host for the chain over
// https, or any loopback endpoint (local service instances and tests).
func IsAllowedSafeServiceURL(chainID int64, endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	if isLoopbackHost(parsed.Hostname()) {
		scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
		return scheme == "" || scheme == "http" || scheme == "https"
	}
	if !strings.EqualFold(strings.TrimSpace(parsed.Scheme), "https") {
		return false
	}
	allowedRaw, ok := SafeServiceURL(chainID)
	if !ok {
		return false
	}
	allowed, err := url.Parse(allowedRaw)
	if err != nil {
		return false
	}
	if !strings.EqualFold(parsed.Hostname(), allowed.Hostname()) {
		return false
	}
	return normalizedURLPort(parsed) == normalizedURLPort(allowed)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func normalizedURLPort(parsed *url.URL) string {
	if parsed == nil {
		return ""
	}
	if port := strings.TrimSpace(parsed.Port()); port != "" {
		return port
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
