package tribute

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "tribute-secret"
	body := []byte(`{"name":"new_subscription","payload":{"telegram_user_id":1}}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	if !verifySignature(body, good, secret) {
		t.Error("valid signature rejected")
	}
	if verifySignature(body, good, "wrong-secret") {
		t.Error("signature accepted with wrong secret")
	}
	if verifySignature([]byte(`{"name":"tampered"}`), good, secret) {
		t.Error("signature accepted for tampered body")
	}
	if verifySignature(body, "deadbeef", secret) {
		t.Error("garbage signature accepted")
	}
}

func TestPeriodToTariffCode(t *testing.T) {
	tests := []struct {
		period string
		want   string
	}{
		{"monthly", "1m"},
		{"Monthly", "1m"},
		{"quarterly", "3m"},
		{"3-months", "3m"},
		{"halfyearly", "6m"},
		{"yearly", "1y"},
		{"annual", "1y"},
		{"unknown", "1m"},
		{"", "1m"},
	}
	for _, tt := range tests {
		if got := periodToTariffCode(tt.period); got != tt.want {
			t.Errorf("periodToTariffCode(%q) = %q, want %q", tt.period, got, tt.want)
		}
	}
}
