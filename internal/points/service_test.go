package points

import (
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
)

func TestBonusForLevel(t *testing.T) {
	tests := []struct {
		name       string
		base       int64
		multiplier string
		want       int64
	}{
		{"full level", 50, "1.0", 50},
		{"half level", 50, "0.5", 25},
		{"quarter rounds up", 50, "0.25", 13},
		{"tenth", 50, "0.1", 5},
		{"twentieth rounds up", 50, "0.05", 3},
		{"rounds down below half", 100, "0.004", 0},
		{"zero multiplier", 100, "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := decimal.NewFromString(tt.multiplier)
			if err != nil {
				t.Fatalf("bad multiplier: %v", err)
			}
			if got := BonusForLevel(tt.base, m); got != tt.want {
				t.Errorf("BonusForLevel(%d, %s) = %d, want %d", tt.base, tt.multiplier, got, tt.want)
			}
		})
	}
}

func TestBonusForLevelScalesLinearlyWithWholeMultipliers(t *testing.T) {
	f := func(base int16, k uint8) bool {
		b := int64(base)
		m := decimal.NewFromInt(int64(k % 10))
		return BonusForLevel(b, m) == b*int64(k%10)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestChainPayoutSum(t *testing.T) {
	// Σ round(B·mᵢ) по цепочке из пяти уровней
	base := int64(50)
	multipliers := []string{"1.0", "0.5", "0.25", "0.1", "0.05"}

	var total int64
	for _, ms := range multipliers {
		m, _ := decimal.NewFromString(ms)
		total += BonusForLevel(base, m)
	}
	// 50 + 25 + 13 + 5 + 3
	if total != 96 {
		t.Errorf("chain payout = %d, want 96", total)
	}
}
