package heleket

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/payment"
	"maxnet-vpn-bot/internal/wireguard"
)

// WebhookPayload — тело вебхука после проверки подписи.
type WebhookPayload struct {
	Type           string `json:"type"`
	UUID           string `json:"uuid"`
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	IsFinal        bool   `json:"is_final"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	AdditionalData string `json:"additional_data"`
}

type additionalData struct {
	TelegramUserID string `json:"telegram_user_id"`
	TariffCode     string `json:"tariff_code"`
}

type WebhookHandler struct {
	payments *payment.PaymentService
}

func NewWebhookHandler(payments *payment.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// clientIP достаёт адрес источника: X-Real-IP, первый X-Forwarded-For,
// иначе RemoteAddr.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isEffectivelyPaid — финальное уведомление со статусом оплаты.
// Промежуточные статусы (check, process, confirm_check) игнорируются.
func isEffectivelyPaid(p *WebhookPayload) bool {
	return p.IsFinal && (p.Status == "paid" || p.Status == "paid_over")
}

func (wh *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !config.HeleketDisableIPCheck() {
		ip := clientIP(r)
		if ip != config.HeleketTrustedIP() {
			slog.Warn("Heleket webhook: untrusted source ip", "ip", ip)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !config.HeleketDisableSignatureCheck() {
		if _, err := VerifyBody(rawBody, config.HeleketApiPaymentKey()); err != nil {
			slog.Warn("Heleket webhook: signature check failed", "error", err)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if payload.UUID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !isEffectivelyPaid(&payload) {
		slog.Info("Heleket webhook: non-final or unpaid status",
			"uuid", payload.UUID, "status", payload.Status, "isFinal", payload.IsFinal)
		writeOk(w, "ignored")
		return
	}

	var extra additionalData
	if err := json.Unmarshal([]byte(payload.AdditionalData), &extra); err != nil {
		slog.Error("Heleket webhook: bad additional_data", "uuid", payload.UUID, "error", err)
		writeOk(w, "rejected: bad additional_data")
		return
	}
	telegramId, err := strconv.ParseInt(extra.TelegramUserID, 10, 64)
	if err != nil || extra.TariffCode == "" {
		slog.Error("Heleket webhook: incomplete additional_data", "uuid", payload.UUID)
		writeOk(w, "rejected: incomplete additional_data")
		return
	}

	ev := payment.Event{
		TelegramUserID: telegramId,
		TariffCode:     extra.TariffCode,
		EventName:      payment.HeleketPaidEvent(payload.UUID),
		ChannelName:    payment.ChannelHeleket,
		PeriodTag:      "heleket_" + extra.TariffCode,
		Source:         "heleket",
		PaymentID:      payload.UUID,
	}

	_, err = wh.payments.ProcessPaidEvent(r.Context(), ev)
	switch {
	case err == nil:
		writeOk(w, "ok")
	case errors.Is(err, payment.ErrAlreadyProcessed):
		writeOk(w, "already processed")
	case errors.Is(err, payment.ErrUnknownTariff):
		slog.Error("Heleket webhook: unknown tariff", "uuid", payload.UUID, "tariffCode", extra.TariffCode)
		writeOk(w, "unknown tariff")
	case errors.Is(err, wireguard.ErrGatewayDown):
		http.Error(w, "vpn gateway unavailable", http.StatusServiceUnavailable)
	default:
		slog.Error("Heleket webhook: processing failed", "uuid", payload.UUID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeOk(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, msg)
}
