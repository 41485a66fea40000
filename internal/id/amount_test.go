package id

import (
	"math/big"
	"strings"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

func TestScaleAmountExact(t *testing.T) {
	cases := []struct {
		human    string
		decimals int
		want     string
	}{
		{"100", 6, "100000000"},
		{"1.25", 6, "1250000"},
		{"0.000001", 6, "1"},
		{"0.1", 18, "100000000000000000"},
		{"123456789.123456789123456789", 18, "123456789123456789123456789"},
		{"7", 0, "7"},
	}
	for _, tc := range cases {
		got, err := ScaleAmount(tc.human, tc.decimals)
		if err != nil {
			t.Fatalf("ScaleAmount(%s, %d) failed: %v", tc.human, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ScaleAmount(%s, %d) = %s, want %s", tc.human, tc.decimals, got, tc.want)
		}
	}
}

func TestScaleAmountRoundsAtPrecision(t *testing.T) {
	got, err := ScaleAmount("1.0000005", 6)
	if err != nil {
		t.Fatalf("ScaleAmount failed: %v", err)
	}
	if got.String() != "1000001" {
		t.Fatalf("expected half-up rounding, got %s", got)
	}
}

func TestScaleAmountDisplayRoundTrip(t *testing.T) {
	for _, decimals := range []int{0, 6, 8, 18} {
		for _, human := range []string{"0", "1", "42", "1000000", "3.5", "0.25"} {
			if decimals == 0 && strings.Contains(human, ".") {
				continue
			}
			scaled, err := ScaleAmount(human, decimals)
			if err != nil {
				t.Fatalf("ScaleAmount(%s, %d) failed: %v", human, decimals, err)
			}
			if got := DisplayAmount(scaled, decimals); got != human {
				t.Fatalf("DisplayAmount(ScaleAmount(%s, %d)) = %s", human, decimals, got)
			}
		}
	}
}

func TestScaleAmountRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "-1", "abc", "1.2.3", "1e80", "1e2000000000", "123456789e2147483000"} {
		_, err := ScaleAmount(input, 18)
		if err == nil {
			t.Fatalf("expected error for %q", input)
		}
		if !clierr.IsCode(err, clierr.CodeInvalidAmount) {
			t.Fatalf("expected invalid amount code for %q, got %v", input, err)
		}
	}
}

func TestScaleAmountExtremeExponentsReturnQuickly(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := ScaleAmount("1e2000000000", 18); !clierr.IsCode(err, clierr.CodeInvalidAmount) {
			t.Errorf("expected invalid amount for huge exponent, got %v", err)
		}
		v, err := ScaleAmount("1e-2000000000", 18)
		if err != nil || v.Sign() != 0 {
			t.Errorf("expected tiny amount to scale to zero, got %v err=%v", v, err)
		}
		v, err = ScaleAmount("0e2000000000", 6)
		if err != nil || v.Sign() != 0 {
			t.Errorf("expected zero with huge exponent to scale to zero, got %v err=%v", v, err)
		}
		if got := NormalizeDecimal("1e2000000000"); got != "1e2000000000" {
			t.Errorf("expected huge exponent left as written, got %d chars", len(got))
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ScaleAmount did not return for an extreme exponent")
	}
}

func TestScaleAmountBoundaryDigits(t *testing.T) {
	maxUint := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	v, err := ScaleAmount(maxUint, 0)
	if err != nil {
		t.Fatalf("expected max uint256 to scale: %v", err)
	}
	if v.String() != maxUint {
		t.Fatalf("unexpected value %s", v)
	}
	if _, err := ScaleAmount("115792089237316195423570985008687907853269984665640564039457584007913129639936", 0); !clierr.IsCode(err, clierr.CodeInvalidAmount) {
		t.Fatalf("expected overflow just past uint256, got %v", err)
	}
	v, err = ScaleAmount("0.04", 0)
	if err != nil || v.Sign() != 0 {
		t.Fatalf("expected 0.04 to round to zero, got %v err=%v", v, err)
	}
}

func TestParseBaseUnits(t *testing.T) {
	v, err := ParseBaseUnits("1000", "amountIn")
	if err != nil {
		t.Fatalf("ParseBaseUnits failed: %v", err)
	}
	if v.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected value %s", v)
	}
	if _, err := ParseBaseUnits("1.5", "amountIn"); err == nil {
		t.Fatal("expected integer error")
	}
	if _, err := ParseBaseUnits("-3", "amountIn"); err == nil {
		t.Fatal("expected sign error")
	}
}

func TestNormalizeDecimal(t *testing.T) {
	if got := NormalizeDecimal("0100.500"); got != "100.5" {
		t.Fatalf("unexpected normalized value %s", got)
	}
}
