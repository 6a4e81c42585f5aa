package yookassa

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
	EventRefundSucceeded  = "refund.succeeded"
)

// WebhookNotification — тело уведомления ЮKassa. Object разбирается вторым
// проходом в зависимости от event.
type WebhookNotification struct {
	Type   string          `json:"type"`
	Event  string          `json:"event"`
	Object json.RawMessage `json:"object"`
}

type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// Metadata — наши поля, проставленные при создании платежа. ЮKassa хранит
// значения строками.
type Metadata struct {
	TelegramUserID   string `json:"telegram_user_id"`
	TariffCode       string `json:"tariff_code"`
	TelegramUserName string `json:"telegram_user_name"`
}

func (m Metadata) TelegramID() (int64, error) {
	return strconv.ParseInt(m.TelegramUserID, 10, 64)
}

type Payment struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	Paid           bool          `json:"paid"`
	Test           bool          `json:"test"`
	Amount         Amount        `json:"amount"`
	RefundedAmount *Amount       `json:"refunded_amount,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Description    string        `json:"description,omitempty"`
	Metadata       Metadata      `json:"metadata"`
	Confirmation   *Confirmation `json:"confirmation,omitempty"`
}

type Refund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Status    string    `json:"status"`
	Amount    Amount    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type PaymentRequest struct {
	Amount       Amount         `json:"amount"`
	Capture      bool           `json:"capture"`
	Description  string         `json:"description"`
	Confirmation *Confirmation  `json:"confirmation,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
