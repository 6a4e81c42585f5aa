package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestExtendFrom(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		days    int
		want    time.Time
	}{
		{"future base keeps remainder", now.AddDate(0, 0, 10), 30, now.AddDate(0, 0, 40)},
		{"expired base restarts from now", now.AddDate(0, 0, -5), 30, now.AddDate(0, 0, 30)},
		{"exactly now", now, 7, now.AddDate(0, 0, 7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtendFrom(tt.expires, now, tt.days)
			if !got.Equal(tt.want) {
				t.Errorf("ExtendFrom = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtendFromIsAdditiveInTheFuture(t *testing.T) {
	// Два продления подряд из будущего дают сумму дней
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	base := now.AddDate(0, 0, 3)

	step1 := ExtendFrom(base, now, 30)
	step2 := ExtendFrom(step1, now, 90)
	if want := base.AddDate(0, 0, 120); !step2.Equal(want) {
		t.Errorf("chained extension = %v, want %v", step2, want)
	}
}

func TestProrateRefundDays(t *testing.T) {
	tests := []struct {
		name       string
		tariffDays int
		refund     string
		original   string
		want       int
	}{
		{"third of 3m", 90, "90.00", "270.00", 30},
		{"full refund", 30, "199.00", "199.00", 30},
		{"half", 30, "99.50", "199.00", 15},
		{"rounds", 30, "100.00", "199.00", 15},
		{"zero refund", 30, "0.00", "199.00", 0},
		{"zero original is a no-op", 30, "100.00", "0.00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refund, _ := decimal.NewFromString(tt.refund)
			original, _ := decimal.NewFromString(tt.original)
			if got := ProrateRefundDays(tt.tariffDays, refund, original); got != tt.want {
				t.Errorf("ProrateRefundDays(%d, %s, %s) = %d, want %d",
					tt.tariffDays, tt.refund, tt.original, got, tt.want)
			}
		})
	}
}

func TestPriorYookassaPayment(t *testing.T) {
	tests := []struct {
		name      string
		lastEvent string
		currentId string
		wantId    string
		wantOk    bool
	}{
		{"different prior payment", "yookassa_payment_succeeded_abc", "def", "abc", true},
		{"same payment is not prior", "yookassa_payment_succeeded_abc", "abc", "", false},
		{"non-card event", "tribute_new_subscription_42", "abc", "", false},
		{"promo event", "promo_code_1_user_2_use_3", "abc", "", false},
		{"empty suffix", "yookassa_payment_succeeded_", "abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := priorYookassaPayment(tt.lastEvent, tt.currentId)
			if id != tt.wantId || ok != tt.wantOk {
				t.Errorf("priorYookassaPayment(%q, %q) = (%q, %v), want (%q, %v)",
					tt.lastEvent, tt.currentId, id, ok, tt.wantId, tt.wantOk)
			}
		})
	}
}

func TestEventNameBuilders(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{YookassaPaidEvent("2e8b4e7f"), "yookassa_payment_succeeded_2e8b4e7f"},
		{YookassaRefundEvent("r-1"), "yookassa_refund_succeeded_r-1"},
		{YookassaCanceledEvent("2e8b4e7f"), "yookassa_payment_canceled_2e8b4e7f"},
		{HeleketPaidEvent("uuid-1"), "heleket_payment_paid_uuid-1"},
		{TributeSubscriptionEvent(991), "tribute_new_subscription_991"},
		{TributeDonationEvent(17), "tribute_new_donation_17"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("event name = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTariffCodeFromPeriod(t *testing.T) {
	tests := []struct {
		period string
		want   string
	}{
		{"yookassa_1m", "1m"},
		{"heleket_forever", "forever"},
		{"admin_1y", "1y"},
		{"1m", "1m"},
		// Промо-периоды не содержат кода тарифа
		{"promo_code", ""},
		{"promo_15", ""},
	}
	for _, tt := range tests {
		if got := tariffCodeFromPeriod(tt.period); got != tt.want {
			t.Errorf("tariffCodeFromPeriod(%q) = %q, want %q", tt.period, got, tt.want)
		}
	}
}

func TestFallbackTariffDays(t *testing.T) {
	want := map[string]int{"1m": 30, "3m": 90, "6m": 180, "1y": 365, "forever": 3650}
	for code, days := range want {
		if fallbackTariffDays[code] != days {
			t.Errorf("fallbackTariffDays[%q] = %d, want %d", code, fallbackTariffDays[code], days)
		}
	}
}
