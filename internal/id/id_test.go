package id

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

func TestParseNetworkVariants(t *testing.T) {
	for _, input := range []string{"base-sepolia", "BASE-SEPOLIA", "84532", "eip155:84532"} {
		n, err := ParseNetwork(input)
		if err != nil {
			t.Fatalf("ParseNetwork(%s) failed: %v", input, err)
		}
		if n.ChainID != 84532 || n.Slug != "base-sepolia" {
			t.Fatalf("unexpected network for %s: %+v", input, n)
		}
	}
	if _, err := ParseNetwork("solana"); err == nil {
		t.Fatal("expected unsupported network error")
	}
}

func TestValidateAddress(t *testing.T) {
	addr, err := ValidateAddress("0x00000000000000000000000000000000000000aA")
	if err != nil {
		t.Fatalf("ValidateAddress failed: %v", err)
	}
	if addr != common.HexToAddress("0x00000000000000000000000000000000000000aa") {
		t.Fatalf("unexpected address %s", addr.Hex())
	}
	for _, bad := range []string{"", "0x123", "vitalik.eth", "00000000000000000000000000000000000000aa00", "0xZZ000000000000000000000000000000000000aa"} {
		_, err := ValidateAddress(bad)
		if !clierr.IsCode(err, clierr.CodeInvalidAddress) {
			t.Fatalf("expected invalid address for %q, got %v", bad, err)
		}
	}
}
