package actions

import (
	"math/big"
	"testing"
)

func mustBig(t *testing.T, v string) *big.Int {
	t.Helper()
	out, ok := new(big.Int).SetString(v, 10)
	if !ok {
		t.Fatalf("bad big int %q", v)
	}
	return out
}

func TestFormatCompactThresholds(t *testing.T) {
	cases := map[string]string{
		"1500000": "1.50M",
		"1000000": "1.00M",
		"2500":    "2.50K",
		"999999":  "1000.00K",
		"999":     "999",
		"0":       "0",
	}
	for in, want := range cases {
		if got := FormatCompact(mustBig(t, in)); got != want {
			t.Fatalf("FormatCompact(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestUtilizationRate(t *testing.T) {
	if got := UtilizationRate(big.NewInt(0), big.NewInt(10)); got != "0%" {
		t.Fatalf("expected 0%%, got %s", got)
	}
	if got := UtilizationRate(big.NewInt(1000), big.NewInt(250)); got != "25.00%" {
		t.Fatalf("expected 25.00%%, got %s", got)
	}
	if got := UtilizationRate(big.NewInt(3), big.NewInt(1)); got != "33.33%" {
		t.Fatalf("expected 33.33%%, got %s", got)
	}
}

func TestFormatAPY(t *testing.T) {
	// 5.25% as an 1e18-scaled fraction.
	if got := FormatAPY(mustBig(t, "52500000000000000")); got != "5.25%" {
		t.Fatalf("unexpected apy %s", got)
	}
}

func TestHealthBucket(t *testing.T) {
	cases := []struct {
		raw    string
		status string
		risk   string
	}{
		{"2000000000000000000", "Excellent", "Very Low"},
		{"1500000000000000000", "Strong", "Low"},
		{"1200000000000000000", "Good", "Moderate"},
		{"1100000000000000000", "Moderate", "High"},
		{"1000000000000000000", "Caution", "High"},
		{"999999999999999999", "At Risk", "Very High"},
		{"0", "At Risk", "Very High"},
	}
	for _, tc := range cases {
		status, risk := HealthBucket(mustBig(t, tc.raw))
		if status != tc.status || risk != tc.risk {
			t.Fatalf("HealthBucket(%s) = %s/%s, want %s/%s", tc.raw, status, risk, tc.status, tc.risk)
		}
	}
	if got := FormatHealth(big.NewInt(0)); got != "0.00" {
		t.Fatalf("expected 0.00, got %s", got)
	}
}
