package yookassa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"maxnet-vpn-bot/internal/payment"
	"maxnet-vpn-bot/internal/wireguard"
)

type WebhookHandler struct {
	client   YookassaAPI
	payments *payment.PaymentService
}

func NewWebhookHandler(client YookassaAPI, payments *payment.PaymentService) *WebhookHandler {
	return &WebhookHandler{client: client, payments: payments}
}

// verifyPaid — предикат доверия платежу из независимого GET. Вебхук не
// подписан, поэтому телу уведомления не верим ни в чём, кроме id.
func verifyPaid(p *Payment) error {
	if p.Status != "succeeded" {
		return fmt.Errorf("payment status is %q", p.Status)
	}
	if !p.Paid {
		return errors.New("payment is not paid")
	}
	if p.Amount.Currency != "RUB" {
		return fmt.Errorf("unexpected currency %q", p.Amount.Currency)
	}
	if !zeroIfNil(p.RefundedAmount).IsZero() {
		return errors.New("payment has refunds")
	}
	if _, err := p.Metadata.TelegramID(); err != nil {
		return fmt.Errorf("bad telegram_user_id in metadata: %w", err)
	}
	if p.Metadata.TariffCode == "" {
		return errors.New("empty tariff_code in metadata")
	}
	return nil
}

// metadataMatches сверяет метаданные уведомления с метаданными из API.
// Расхождение — признак подделки тела вебхука.
func metadataMatches(webhook, api Metadata) bool {
	return webhook.TelegramUserID == api.TelegramUserID &&
		webhook.TariffCode == api.TariffCode
}

func (wh *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var notification WebhookNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		slog.Warn("YooKassa webhook: malformed body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch notification.Event {
	case EventPaymentSucceeded:
		wh.handlePaymentSucceeded(ctx, w, notification.Object)
	case EventRefundSucceeded:
		wh.handleRefundSucceeded(ctx, w, notification.Object)
	case EventPaymentCanceled:
		wh.handlePaymentCanceled(ctx, w, notification.Object)
	default:
		slog.Info("YooKassa webhook: ignoring event", "event", notification.Event)
		writeOk(w, "ignored")
	}
}

func (wh *WebhookHandler) handlePaymentSucceeded(ctx context.Context, w http.ResponseWriter, object json.RawMessage) {
	var webhookPayment Payment
	if err := json.Unmarshal(object, &webhookPayment); err != nil || webhookPayment.ID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Независимая верификация: состояние платежа берём только из API
	apiPayment, err := wh.client.GetPayment(ctx, webhookPayment.ID)
	if err != nil {
		slog.Error("YooKassa webhook: failed to fetch payment", "paymentId", webhookPayment.ID, "error", err)
		http.Error(w, "payment verification failed", http.StatusBadGateway)
		return
	}

	if err := verifyPaid(apiPayment); err != nil {
		slog.Warn("YooKassa webhook: payment rejected", "paymentId", apiPayment.ID, "reason", err)
		writeOk(w, "rejected: "+err.Error())
		return
	}
	if !metadataMatches(webhookPayment.Metadata, apiPayment.Metadata) &&
		(webhookPayment.Metadata.TelegramUserID != "" || webhookPayment.Metadata.TariffCode != "") {
		slog.Warn("YooKassa webhook: metadata mismatch", "paymentId", apiPayment.ID)
		writeOk(w, "rejected: metadata mismatch")
		return
	}

	telegramId, _ := apiPayment.Metadata.TelegramID()
	ev := payment.Event{
		TelegramUserID:   telegramId,
		TelegramUserName: apiPayment.Metadata.TelegramUserName,
		TariffCode:       apiPayment.Metadata.TariffCode,
		EventName:        payment.YookassaPaidEvent(apiPayment.ID),
		ChannelName:      payment.ChannelYookassa,
		PeriodTag:        "yookassa_" + apiPayment.Metadata.TariffCode,
		Source:           "yookassa",
		PaymentID:        apiPayment.ID,
		CreatedAt:        apiPayment.CreatedAt,
	}

	_, err = wh.payments.ProcessPaidEvent(ctx, ev)
	switch {
	case err == nil:
		writeOk(w, "ok")
	case errors.Is(err, payment.ErrAlreadyProcessed):
		writeOk(w, "already processed")
	case errors.Is(err, payment.ErrStaleEvent):
		writeOk(w, "stale event")
	case errors.Is(err, payment.ErrUnknownTariff):
		slog.Error("YooKassa webhook: unknown tariff", "paymentId", apiPayment.ID, "tariffCode", ev.TariffCode)
		writeOk(w, "unknown tariff")
	case errors.Is(err, wireguard.ErrGatewayDown):
		http.Error(w, "vpn gateway unavailable", http.StatusServiceUnavailable)
	default:
		slog.Error("YooKassa webhook: processing failed", "paymentId", apiPayment.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (wh *WebhookHandler) handleRefundSucceeded(ctx context.Context, w http.ResponseWriter, object json.RawMessage) {
	var refund Refund
	if err := json.Unmarshal(object, &refund); err != nil || refund.ID == "" || refund.PaymentID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Исходная сумма — из API, сумма возврата — из объекта возврата
	original, err := wh.client.GetPayment(ctx, refund.PaymentID)
	if err != nil {
		slog.Error("YooKassa webhook: failed to fetch refunded payment", "paymentId", refund.PaymentID, "error", err)
		http.Error(w, "payment verification failed", http.StatusBadGateway)
		return
	}

	err = wh.payments.ProcessRefund(ctx, refund.PaymentID, refund.ID, refund.Amount.Value, original.Amount.Value)
	switch {
	case err == nil:
		writeOk(w, "ok")
	case errors.Is(err, payment.ErrAlreadyProcessed):
		writeOk(w, "already processed")
	default:
		slog.Error("YooKassa webhook: refund failed", "refundId", refund.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (wh *WebhookHandler) handlePaymentCanceled(ctx context.Context, w http.ResponseWriter, object json.RawMessage) {
	var canceled Payment
	if err := json.Unmarshal(object, &canceled); err != nil || canceled.ID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	err := wh.payments.CancelPending(ctx, canceled.ID)
	switch {
	case err == nil:
		writeOk(w, "ok")
	case errors.Is(err, payment.ErrAlreadyProcessed):
		writeOk(w, "already processed")
	default:
		slog.Error("YooKassa webhook: cancel failed", "paymentId", canceled.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeOk(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, msg)
}
