package handler

import (
	"testing"

	"maxnet-vpn-bot/internal/database"
)

func TestCallbackParam(t *testing.T) {
	tests := []struct {
		data string
		key  string
		want string
	}{
		{"tariff?code=1m", "code", "1m"},
		{"pay_yookassa?code=forever", "code", "forever"},
		{"tariff?code=1m&x=y", "x", "y"},
		{"tariff?code=1m", "missing", ""},
		{"tariff", "code", ""},
		{"", "code", ""},
	}
	for _, tt := range tests {
		if got := callbackParam(tt.data, tt.key); got != tt.want {
			t.Errorf("callbackParam(%q, %q) = %q, want %q", tt.data, tt.key, got, tt.want)
		}
	}
}

func TestSafeCallbackDataPassesThrough(t *testing.T) {
	data := "tariff?code=1m"
	if got := SafeCallbackData(data); got != data {
		t.Errorf("SafeCallbackData modified data: %q", got)
	}
}

func TestParseAdminPromoCommand(t *testing.T) {
	promo, err := parseAdminPromoCommand([]string{"/admin_promo", "30", "5", "WELCOME30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if promo.ExtraDays != 30 {
		t.Errorf("ExtraDays = %d, want 30", promo.ExtraDays)
	}
	// Scope должен совпадать со словарём схемы, иначе колонка засоряется
	if promo.TariffScope != database.PromoScopeAll {
		t.Errorf("TariffScope = %q, want %q", promo.TariffScope, database.PromoScopeAll)
	}
	if promo.MaxUses == nil || *promo.MaxUses != 5 || !promo.IsMultiUse {
		t.Errorf("MaxUses = %v, IsMultiUse = %v, want 5 and true", promo.MaxUses, promo.IsMultiUse)
	}
	if promo.Code != "WELCOME30" {
		t.Errorf("Code = %q, want WELCOME30", promo.Code)
	}

	promo, err = parseAdminPromoCommand([]string{"/admin_promo", "7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if promo.Code == "" {
		t.Error("generated code must not be empty")
	}
	if promo.MaxUses != nil || promo.IsMultiUse {
		t.Error("single-arg promo must have no usage limit")
	}

	for _, args := range [][]string{
		{"/admin_promo"},
		{"/admin_promo", "0"},
		{"/admin_promo", "abc"},
		{"/admin_promo", "30", "0"},
		{"/admin_promo", "30", "xyz"},
	} {
		if _, err := parseAdminPromoCommand(args); err == nil {
			t.Errorf("parseAdminPromoCommand(%v) must fail", args)
		}
	}
}

func TestPromoErrorText(t *testing.T) {
	known := []error{
		database.ErrPromoNotFound,
		database.ErrPromoInactive,
		database.ErrPromoNotStarted,
		database.ErrPromoExpired,
		database.ErrPromoGlobalLimit,
		database.ErrPromoPerUserLimit,
		database.ErrPromoWrongUser,
		database.ErrPromoTariffScope,
	}
	for _, err := range known {
		if promoErrorText(err) == "" {
			t.Errorf("promoErrorText(%v) is empty", err)
		}
	}
	if promoErrorText(database.ErrZeroDelta) != "" {
		t.Error("unexpected error must map to empty string")
	}
}
