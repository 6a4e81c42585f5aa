package yookassa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/database"
)

type YookassaAPI interface {
	CreatePayment(ctx context.Context, request PaymentRequest, idempotencyKey string) (*Payment, error)
	GetPayment(ctx context.Context, paymentId string) (*Payment, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
}

func NewClient(baseURL, shopId, secretKey string) *Client {
	auth := fmt.Sprintf("%s:%s", shopId, secretKey)
	encodedAuth := base64.StdEncoding.EncodeToString([]byte(auth))

	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    baseURL,
		authHeader: fmt.Sprintf("Basic %s", encodedAuth),
	}
}

// CreateInvoice создаёт платёж за тариф с redirect-подтверждением.
// В metadata уходит всё, что нужно вебхуку для построения события.
func (c *Client) CreateInvoice(ctx context.Context, tariff *database.Tariff, telegramId int64, username string) (*Payment, error) {
	if tariff.PriceRub == nil {
		return nil, fmt.Errorf("tariff %s has no rub price", tariff.Code)
	}

	request := PaymentRequest{
		Amount: Amount{
			Value:    *tariff.PriceRub,
			Currency: "RUB",
		},
		Capture:     true,
		Description: fmt.Sprintf("Подписка MaxNet VPN: %s", tariff.Title),
		Confirmation: &Confirmation{
			Type:      "redirect",
			ReturnURL: config.YookassaReturnURL(),
		},
		Metadata: map[string]any{
			"telegram_user_id":   strconv.FormatInt(telegramId, 10),
			"tariff_code":        tariff.Code,
			"telegram_user_name": username,
		},
	}

	payment, err := c.CreatePayment(ctx, request, uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

func (c *Client) CreatePayment(ctx context.Context, request PaymentRequest, idempotencyKey string) (*Payment, error) {
	paymentURL := fmt.Sprintf("%s/payments", c.baseURL)

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", paymentURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Idempotence-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error while reading invoice resp: %w", err)
		}
		return nil, fmt.Errorf("API return error. Status: %d, Body: %s", resp.StatusCode, string(body))
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &payment, nil
}

// GetPayment запрашивает платёж из API — источник истины для верификации
// вебхуков. Ретраи с экспоненциальной задержкой на 429 и 5xx.
func (c *Client) GetPayment(ctx context.Context, paymentId string) (*Payment, error) {
	paymentURL := fmt.Sprintf("%s/payments/%s", c.baseURL, paymentId)

	maxRetries := 5
	baseDelay := time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", paymentURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", c.authHeader)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			payment := new(Payment)
			err := json.NewDecoder(resp.Body).Decode(payment)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
			return payment, nil
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusInternalServerError ||
			resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout {
			retryDelay := baseDelay * time.Duration(1<<attempt)
			slog.Warn("YooKassa returned retryable status",
				"status", resp.StatusCode, "retryIn", retryDelay, "attempt", attempt+1)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("exceeded maximum retries due to server errors")
}

// PaymentCreatedAt отдаёт created_at платежа для защиты от устаревших повторов.
func (c *Client) PaymentCreatedAt(ctx context.Context, paymentId string) (time.Time, error) {
	payment, err := c.GetPayment(ctx, paymentId)
	if err != nil {
		return time.Time{}, err
	}
	return payment.CreatedAt, nil
}

// zeroIfNil упрощает проверку refunded_amount: отсутствие поля значит ноль.
func zeroIfNil(a *Amount) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	return a.Value
}
