package heleket

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"maxnet-vpn-bot/internal/database"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	merchantId string
	apiKey     string
}

func NewClient(baseURL, merchantId, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    baseURL,
		merchantId: merchantId,
		apiKey:     apiKey,
	}
}

type InvoiceRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	OrderID        string `json:"order_id"`
	AdditionalData string `json:"additional_data,omitempty"`
}

type InvoiceResult struct {
	UUID    string `json:"uuid"`
	OrderID string `json:"order_id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
}

type invoiceResponse struct {
	State  int           `json:"state"`
	Result InvoiceResult `json:"result"`
}

// CreateInvoice выставляет криптосчёт за тариф. Контекст события кладётся в
// additional_data и вернётся в вебхуке как есть.
func (c *Client) CreateInvoice(ctx context.Context, tariff *database.Tariff, telegramId int64) (*InvoiceResult, error) {
	if tariff.PriceUsd == nil {
		return nil, fmt.Errorf("tariff %s has no usd price", tariff.Code)
	}

	additional, err := json.Marshal(map[string]string{
		"telegram_user_id": strconv.FormatInt(telegramId, 10),
		"tariff_code":      tariff.Code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal additional data: %w", err)
	}

	request := InvoiceRequest{
		Amount:         tariff.PriceUsd.StringFixed(2),
		Currency:       "USD",
		OrderID:        uuid.New().String(),
		AdditionalData: string(additional),
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/payment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", c.merchantId)
	req.Header.Set("sign", c.requestSign(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error while reading invoice resp: %w", err)
		}
		return nil, fmt.Errorf("API return error. Status: %d, Body: %s", resp.StatusCode, string(respBody))
	}

	var parsed invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Result.URL == "" {
		return nil, fmt.Errorf("invoice response has no payment url")
	}
	return &parsed.Result, nil
}

// requestSign — подпись API-запроса: md5(base64(body) + api key).
func (c *Client) requestSign(body []byte) string {
	encoded := base64.StdEncoding.EncodeToString(body)
	hash := md5.Sum([]byte(encoded + c.apiKey))
	return hex.EncodeToString(hash[:])
}
