package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/internal/payment"
)

// AdminHTTP обслуживает служебные эндпоинты для оператора. Аутентификации
// нет намеренно: порт закрыт файрволом и доступен только локально.
type AdminHTTP struct {
	subscriptionRepo *database.SubscriptionRepository
	payments         *payment.PaymentService
}

func NewAdminHTTP(subscriptionRepo *database.SubscriptionRepository, payments *payment.PaymentService) *AdminHTTP {
	return &AdminHTTP{subscriptionRepo: subscriptionRepo, payments: payments}
}

func (a *AdminHTTP) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/subscriptions", a.listSubscriptions)
	mux.HandleFunc("/admin/subscriptions/", a.subscriptionAction)
}

type subscriptionView struct {
	ID             int64     `json:"id"`
	TelegramUserID int64     `json:"telegram_user_id"`
	ChannelName    string    `json:"channel_name"`
	Period         string    `json:"period"`
	VpnIP          string    `json:"vpn_ip"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastEventName  string    `json:"last_event_name"`
}

func (a *AdminHTTP) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	subs, err := a.subscriptionRepo.FindLast(r.Context(), 50)
	if err != nil {
		slog.Error("Admin http: list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]subscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, subscriptionView{
			ID:             s.ID,
			TelegramUserID: s.TelegramUserID,
			ChannelName:    s.ChannelName,
			Period:         s.Period,
			VpnIP:          s.VpnIP,
			Active:         s.Active,
			CreatedAt:      s.CreatedAt,
			ExpiresAt:      s.ExpiresAt,
			LastEventName:  s.LastEventName,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		slog.Error("Admin http: encode failed", "error", err)
	}
}

// subscriptionAction — POST /admin/subscriptions/{id}/deactivate
func (a *AdminHTTP) subscriptionAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/admin/subscriptions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "deactivate" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	subId, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "bad subscription id", http.StatusBadRequest)
		return
	}

	eventName := fmt.Sprintf("admin_deactivate_%d_%d", subId, time.Now().UnixNano())
	sub, err := a.payments.Deactivate(r.Context(), subId, eventName)
	if err != nil {
		slog.Error("Admin http: deactivate failed", "subscriptionId", subId, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if sub == nil {
		http.Error(w, "not found or already inactive", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":%d,"active":false}`, sub.ID)
}
