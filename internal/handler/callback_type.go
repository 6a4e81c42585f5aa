package handler

import "log/slog"

const (
	CallbackStart       = "start"
	CallbackBuy         = "buy"
	CallbackTariff      = "tariff"
	CallbackPayYookassa = "pay_yookassa"
	CallbackPayHeleket  = "pay_heleket"
	CallbackPayPoints   = "pay_points"
	CallbackMySub       = "my_sub"
	CallbackResendConf  = "resend_conf"
	CallbackPromo       = "promo"
	CallbackReferral    = "referral"
	CallbackTrial       = "trial"
)

// MaxCallbackDataLength — лимит Telegram на callback_data (64 байта)
const MaxCallbackDataLength = 64

// SafeCallbackData проверяет длину callback_data: Telegram молча обрезает
// всё сверх лимита, что ломает парсинг.
func SafeCallbackData(data string) string {
	if len(data) > MaxCallbackDataLength {
		slog.Error("Callback data exceeds Telegram limit, will be truncated",
			"length", len(data),
			"maxLength", MaxCallbackDataLength,
			"data", data)
	} else if len(data) > 55 {
		slog.Warn("Callback data is close to Telegram limit",
			"length", len(data),
			"maxLength", MaxCallbackDataLength,
			"data", data)
	}
	return data
}
