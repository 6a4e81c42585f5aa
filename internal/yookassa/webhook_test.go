package yookassa

import (
	"testing"

	"github.com/shopspring/decimal"
)

func paidPayment() *Payment {
	return &Payment{
		ID:     "2e8b4e7f",
		Status: "succeeded",
		Paid:   true,
		Amount: Amount{Value: decimal.RequireFromString("199.00"), Currency: "RUB"},
		Metadata: Metadata{
			TelegramUserID: "123456789",
			TariffCode:     "1m",
		},
	}
}

func TestVerifyPaidAcceptsGoodPayment(t *testing.T) {
	if err := verifyPaid(paidPayment()); err != nil {
		t.Fatalf("verifyPaid: %v", err)
	}
}

func TestVerifyPaidRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Payment)
	}{
		{"pending status", func(p *Payment) { p.Status = "pending" }},
		{"canceled status", func(p *Payment) { p.Status = "canceled" }},
		{"not paid", func(p *Payment) { p.Paid = false }},
		{"wrong currency", func(p *Payment) { p.Amount.Currency = "USD" }},
		{"has refunds", func(p *Payment) {
			p.RefundedAmount = &Amount{Value: decimal.RequireFromString("50.00"), Currency: "RUB"}
		}},
		{"non-numeric telegram id", func(p *Payment) { p.Metadata.TelegramUserID = "abc" }},
		{"empty telegram id", func(p *Payment) { p.Metadata.TelegramUserID = "" }},
		{"empty tariff code", func(p *Payment) { p.Metadata.TariffCode = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paidPayment()
			tt.mutate(p)
			if err := verifyPaid(p); err == nil {
				t.Error("verifyPaid accepted a payment it should reject")
			}
		})
	}
}

func TestVerifyPaidIgnoresZeroRefundedAmount(t *testing.T) {
	p := paidPayment()
	p.RefundedAmount = &Amount{Value: decimal.Zero, Currency: "RUB"}
	if err := verifyPaid(p); err != nil {
		t.Errorf("zero refunded_amount must not reject: %v", err)
	}
}

func TestMetadataMatches(t *testing.T) {
	api := Metadata{TelegramUserID: "1", TariffCode: "1m"}

	if !metadataMatches(Metadata{TelegramUserID: "1", TariffCode: "1m"}, api) {
		t.Error("identical metadata must match")
	}
	if metadataMatches(Metadata{TelegramUserID: "2", TariffCode: "1m"}, api) {
		t.Error("different telegram id must not match")
	}
	if metadataMatches(Metadata{TelegramUserID: "1", TariffCode: "3m"}, api) {
		t.Error("different tariff must not match")
	}
}
