package tribute

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/payment"
)

const (
	NewSubscription       = "new_subscription"
	NewDonation           = "new_donation"
	CancelledSubscription = "cancelled_subscription"
	TestHook              = ""
)

// Донат продлевает на фиксированный срок, тарифа у него нет
const donationDays = 30

type Webhook struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Payload   Payload   `json:"payload"`
}

type Payload struct {
	SubscriptionName  string    `json:"subscription_name"`
	SubscriptionID    int64     `json:"subscription_id"`
	PeriodID          int64     `json:"period_id"`
	Period            string    `json:"period"`
	Price             int64     `json:"price"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	UserID            int64     `json:"user_id"`
	TelegramUserID    int64     `json:"telegram_user_id"`
	ChannelID         int64     `json:"channel_id"`
	ChannelName       string    `json:"channel_name"`
	ExpiresAt         time.Time `json:"expires_at"`
	DonationRequestID int64     `json:"donation_request_id"`
	Message           string    `json:"message"`
}

type Client struct {
	payments *payment.PaymentService
}

func NewClient(payments *payment.PaymentService) *Client {
	return &Client{payments: payments}
}

func (c *Client) WebHookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second*60)
		defer cancel()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			slog.Error("webhook: read body error", "error", err)
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		signature := r.Header.Get("trbt-signature")
		if signature == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		if !verifySignature(body, signature, config.TributeWebhookSecret()) {
			slog.Warn("webhook: bad signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var wh Webhook
		if err := json.Unmarshal(body, &wh); err != nil {
			slog.Error("webhook: unmarshal error", "error", err, "payload", string(body))
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		switch wh.Name {
		case NewSubscription:
			err = c.newSubscriptionHandler(ctx, wh)
		case NewDonation:
			err = c.newDonationHandler(ctx, wh)
		case CancelledSubscription:
			err = c.cancelSubscriptionHandler(ctx, wh)
		case TestHook:
			slog.Info("Tribute webhook working")
		default:
			slog.Info("Tribute webhook: ignoring event", "name", wh.Name)
		}

		if errors.Is(err, payment.ErrAlreadyProcessed) {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err != nil {
			slog.Error("webhook: handler error", "name", wh.Name, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func verifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) newSubscriptionHandler(ctx context.Context, wh Webhook) error {
	tariffCode := periodToTariffCode(wh.Payload.Period)

	ev := payment.Event{
		TelegramUserID: wh.Payload.TelegramUserID,
		TariffCode:     tariffCode,
		EventName:      payment.TributeSubscriptionEvent(wh.Payload.SubscriptionID),
		ChannelName:    payment.ChannelTribute,
		PeriodTag:      "tribute_" + tariffCode,
		Source:         "tribute",
		TributeUserID:  wh.Payload.UserID,
		SubscriptionID: wh.Payload.SubscriptionID,
		PeriodID:       wh.Payload.PeriodID,
		ChannelID:      wh.Payload.ChannelID,
		CreatedAt:      wh.CreatedAt,
	}

	_, err := c.payments.ProcessPaidEvent(ctx, ev)
	return err
}

// Донат без привязки к тарифу: фиксированные 30 дней от времени события.
func (c *Client) newDonationHandler(ctx context.Context, wh Webhook) error {
	if wh.Payload.DonationRequestID == 0 {
		return fmt.Errorf("donation without donation_request_id")
	}

	ev := payment.Event{
		TelegramUserID: wh.Payload.TelegramUserID,
		EventName:      payment.TributeDonationEvent(wh.Payload.DonationRequestID),
		ChannelName:    payment.ChannelTribute,
		PeriodTag:      "tribute_donation",
		Source:         "tribute",
		TributeUserID:  wh.Payload.UserID,
		ChannelID:      wh.Payload.ChannelID,
		Days:           donationDays,
		CreatedAt:      wh.CreatedAt,
	}

	_, err := c.payments.ProcessPaidEvent(ctx, ev)
	return err
}

func (c *Client) cancelSubscriptionHandler(ctx context.Context, wh Webhook) error {
	eventName := fmt.Sprintf("tribute_cancelled_subscription_%d", wh.Payload.SubscriptionID)
	return c.payments.DeactivateAllForUser(ctx, wh.Payload.TelegramUserID, eventName)
}

func periodToTariffCode(period string) string {
	switch strings.ToLower(period) {
	case "monthly":
		return "1m"
	case "quarterly", "3-month", "3months", "3-months", "q":
		return "3m"
	case "halfyearly":
		return "6m"
	case "yearly", "annual", "y":
		return "1y"
	default:
		return "1m"
	}
}
