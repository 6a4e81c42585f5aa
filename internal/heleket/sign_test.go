package heleket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testKey = "payment-key-123"

func signedBody(t *testing.T, payload map[string]any) []byte {
	t.Helper()
	sign, err := SignPayload(payload, testKey)
	if err != nil {
		t.Fatalf("SignPayload: %v", err)
	}
	payload["sign"] = sign
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestVerifyBodyRoundTrip(t *testing.T) {
	body := signedBody(t, map[string]any{
		"type":     "payment",
		"uuid":     "8b5e3e6e-1",
		"status":   "paid",
		"is_final": true,
		"amount":   "15.00",
	})

	payload, err := VerifyBody(body, testKey)
	if err != nil {
		t.Fatalf("VerifyBody: %v", err)
	}
	if payload["uuid"] != "8b5e3e6e-1" {
		t.Errorf("uuid = %v", payload["uuid"])
	}
}

func TestVerifyBodyIsKeySensitive(t *testing.T) {
	body := signedBody(t, map[string]any{"uuid": "x"})

	if _, err := VerifyBody(body, "other-key"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyBodyRejectsTamperedPayload(t *testing.T) {
	body := signedBody(t, map[string]any{"uuid": "x", "amount": "15.00"})

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	payload["amount"] = "0.01"
	tampered, _ := json.Marshal(payload)

	if _, err := VerifyBody(tampered, testKey); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyBodyRejectsMissingSign(t *testing.T) {
	body, _ := json.Marshal(map[string]any{"uuid": "x"})
	if _, err := VerifyBody(body, testKey); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestSignPayloadEscapesSlashes(t *testing.T) {
	// Полезная нагрузка со слэшем и без должны давать разные подписи,
	// и подпись со слэшем должна совпадать при повторном вычислении
	withSlash, err := SignPayload(map[string]any{"url": "https://example.com/pay"}, testKey)
	if err != nil {
		t.Fatal(err)
	}
	again, err := SignPayload(map[string]any{"url": "https://example.com/pay"}, testKey)
	if err != nil {
		t.Fatal(err)
	}
	if withSlash != again {
		t.Error("signature is not deterministic")
	}
}

func TestIsEffectivelyPaid(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		isFinal bool
		want    bool
	}{
		{"final paid", "paid", true, true},
		{"final paid_over", "paid_over", true, true},
		{"non-final paid", "paid", false, false},
		{"final cancel", "cancel", true, false},
		{"intermediate check", "check", false, false},
		{"final fail", "fail", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &WebhookPayload{Status: tt.status, IsFinal: tt.isFinal}
			if got := isEffectivelyPaid(p); got != tt.want {
				t.Errorf("isEffectivelyPaid(%s, final=%v) = %v, want %v",
					tt.status, tt.isFinal, got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		realIP     string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"x-real-ip wins", "31.133.220.8", "1.2.3.4", "5.6.7.8:1234", "31.133.220.8"},
		{"first forwarded", "", "31.133.220.8, 10.0.0.1", "5.6.7.8:1234", "31.133.220.8"},
		{"remote addr fallback", "", "", "31.133.220.8:443", "31.133.220.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/heleket/webhook", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
