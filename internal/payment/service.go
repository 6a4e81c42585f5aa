package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/internal/points"
	"maxnet-vpn-bot/internal/wireguard"
	"maxnet-vpn-bot/utils"

	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	ErrAlreadyProcessed = errors.New("event already processed")
	ErrUnknownTariff    = errors.New("unknown tariff code")
	ErrStaleEvent       = errors.New("stale payment event")
	ErrNoReferrer       = errors.New("user has no referrer")
)

// Каналы подписок — человекочитаемые имена источников в строке подписки.
const (
	ChannelYookassa      = "YooKassa"
	ChannelHeleket       = "Heleket"
	ChannelTribute       = "Tribute"
	ChannelAdmin         = "Admin manual"
	ChannelPromo         = "Promo code"
	ChannelPoints        = "Points balance"
	ChannelReferralTrial = "Referral trial"
)

// Жёсткий fallback на случай недоступности каталога тарифов.
var fallbackTariffDays = map[string]int{
	"1m":      30,
	"3m":      90,
	"6m":      180,
	"1y":      365,
	"forever": 3650,
}

const (
	yookassaPaidPrefix     = "yookassa_payment_succeeded_"
	yookassaRefundPrefix   = "yookassa_refund_succeeded_"
	yookassaCanceledPrefix = "yookassa_payment_canceled_"
	heleketPaidPrefix      = "heleket_payment_paid_"
	tributeSubPrefix       = "tribute_new_subscription_"
	tributeDonationPrefix  = "tribute_new_donation_"
)

func YookassaPaidEvent(paymentId string) string    { return yookassaPaidPrefix + paymentId }
func YookassaRefundEvent(refundId string) string   { return yookassaRefundPrefix + refundId }
func YookassaCanceledEvent(paymentId string) string { return yookassaCanceledPrefix + paymentId }
func HeleketPaidEvent(uuid string) string          { return heleketPaidPrefix + uuid }
func TributeSubscriptionEvent(subId int64) string  { return fmt.Sprintf("%s%d", tributeSubPrefix, subId) }
func TributeDonationEvent(donationId int64) string { return fmt.Sprintf("%s%d", tributeDonationPrefix, donationId) }

// Event — каноническое событие после верификации провайдера.
// Дальше контроллер провайдеро-независим.
type Event struct {
	TelegramUserID   int64
	TelegramUserName string
	TariffCode       string
	EventName        string
	ChannelName      string
	PeriodTag        string
	Source           string
	PaymentID        string
	Days             int // 0 — взять из тарифа
	TributeUserID    int64
	SubscriptionID   int64
	PeriodID         int64
	ChannelID        int64
	CreatedAt        time.Time // таймстемп провайдера, если он его дал
}

// Outcome — результат применения события.
type Outcome struct {
	Kind           string // created / extended / revived
	SubscriptionID int64
	ExpiresAt      time.Time
	ConfigText     string
}

// Messenger — минимальная поверхность Telegram, нужная контроллеру.
type Messenger interface {
	SendText(ctx context.Context, chatId int64, text string) error
	SendFile(ctx context.Context, chatId int64, filename string, content []byte, caption string) error
}

// PriorPaymentChecker отдаёт created_at прежнего платежа для защиты от
// устаревших повторов карточных вебхуков.
type PriorPaymentChecker interface {
	PaymentCreatedAt(ctx context.Context, paymentId string) (time.Time, error)
}

type PaymentService struct {
	pool             *pgxpool.Pool
	subscriptionRepo *database.SubscriptionRepository
	tariffRepo       *database.TariffRepository
	promoRepo        *database.PromoRepository
	pointsRepo       *database.PointsRepository
	referralRepo     *database.ReferralRepository
	pointsService    *points.Service
	wg               *wireguard.Manager
	messenger        Messenger
	priorChecker     PriorPaymentChecker
}

func NewPaymentService(
	pool *pgxpool.Pool,
	subscriptionRepo *database.SubscriptionRepository,
	tariffRepo *database.TariffRepository,
	promoRepo *database.PromoRepository,
	pointsRepo *database.PointsRepository,
	referralRepo *database.ReferralRepository,
	pointsService *points.Service,
	wg *wireguard.Manager,
	messenger Messenger,
) *PaymentService {
	return &PaymentService{
		pool:             pool,
		subscriptionRepo: subscriptionRepo,
		tariffRepo:       tariffRepo,
		promoRepo:        promoRepo,
		pointsRepo:       pointsRepo,
		referralRepo:     referralRepo,
		pointsService:    pointsService,
		wg:               wg,
		messenger:        messenger,
	}
}

func (ps *PaymentService) SetPriorPaymentChecker(c PriorPaymentChecker) {
	ps.priorChecker = c
}

// ExtendFrom — арифметика продления: max(старый срок, сейчас) + дни.
// Два продления из будущего складываются в сумму дней.
func ExtendFrom(oldExpires, now time.Time, days int) time.Time {
	base := oldExpires
	if now.After(base) {
		base = now
	}
	return base.AddDate(0, 0, days)
}

// ProrateRefundDays считает дни к откату пропорционально сумме возврата.
func ProrateRefundDays(tariffDays int, refundAmount, originalAmount decimal.Decimal) int {
	if originalAmount.IsZero() || !refundAmount.IsPositive() {
		return 0
	}
	days := decimal.NewFromInt(int64(tariffDays)).Mul(refundAmount).Div(originalAmount)
	return int(days.Round(0).IntPart())
}

// priorYookassaPayment извлекает id прежнего карточного платежа из
// last_event_name, если он отличается от текущего.
func priorYookassaPayment(lastEventName, currentPaymentId string) (string, bool) {
	if !strings.HasPrefix(lastEventName, yookassaPaidPrefix) {
		return "", false
	}
	prior := strings.TrimPrefix(lastEventName, yookassaPaidPrefix)
	if prior == "" || prior == currentPaymentId {
		return "", false
	}
	return prior, true
}

// ResolveTariffDays переводит код тарифа в длительность. При недоступном
// каталоге срабатывает зашитая таблица.
func (ps *PaymentService) ResolveTariffDays(ctx context.Context, code string) (int, error) {
	tariff, err := ps.tariffRepo.FindByCode(ctx, code)
	if err != nil {
		slog.Error("Tariff catalogue unavailable, using fallback", "tariffCode", code, "error", err)
		if days, ok := fallbackTariffDays[code]; ok {
			return days, nil
		}
		return 0, ErrUnknownTariff
	}
	if tariff == nil || !tariff.IsActive {
		if days, ok := fallbackTariffDays[code]; ok && tariff == nil {
			return days, nil
		}
		return 0, ErrUnknownTariff
	}
	return tariff.DurationDays, nil
}

// ProcessPaidEvent применяет оплатное событие: гейт идемпотентности, затем
// продление активной подписки, оживление прежней или создание новой.
func (ps *PaymentService) ProcessPaidEvent(ctx context.Context, ev Event) (*Outcome, error) {
	processed, err := ps.subscriptionRepo.EventAlreadyProcessed(ctx, ev.EventName)
	if err != nil {
		return nil, fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		slog.Info("Event already processed", "eventName", ev.EventName)
		return nil, ErrAlreadyProcessed
	}

	days := ev.Days
	if days == 0 {
		days, err = ps.ResolveTariffDays(ctx, ev.TariffCode)
		if err != nil {
			return nil, err
		}
	}

	current, err := ps.subscriptionRepo.FindLatestActive(ctx, ev.TelegramUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current subscription: %w", err)
	}

	var outcome *Outcome
	if current != nil {
		outcome, err = ps.extend(ctx, current, ev, days)
	} else {
		outcome, err = ps.provision(ctx, ev, days)
	}
	if err != nil {
		return nil, err
	}

	ps.notifyAdmin(ctx, ev, outcome)
	ps.creditReferrals(ctx, ev, outcome)
	return outcome, nil
}

func (ps *PaymentService) extend(ctx context.Context, current *database.Subscription, ev Event, days int) (*Outcome, error) {
	if ev.Source == "yookassa" && ps.priorChecker != nil {
		if priorId, ok := priorYookassaPayment(current.LastEventName, ev.PaymentID); ok && !ev.CreatedAt.IsZero() {
			priorCreated, err := ps.priorChecker.PaymentCreatedAt(ctx, priorId)
			if err != nil {
				slog.Warn("Failed to check prior payment, proceeding", "priorPaymentId", priorId, "error", err)
			} else if !ev.CreatedAt.After(priorCreated) {
				slog.Warn("Dropping stale payment event", "eventName", ev.EventName)
				return nil, ErrStaleEvent
			}
		}
	}

	newExpires := ExtendFrom(current.ExpiresAt, time.Now(), days)
	if err := ps.subscriptionRepo.UpdateExpiration(ctx, current.ID, newExpires, ev.EventName); err != nil {
		// Параллельная доставка того же вебхука проиграла гонку за строку
		if errors.Is(err, database.ErrEventAlreadyApplied) {
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}

	slog.Info("Subscription extended", "subscriptionId", current.ID,
		"telegramId", utils.MaskHalfInt64(ev.TelegramUserID), "until", newExpires)

	ps.sendText(ctx, ev.TelegramUserID,
		fmt.Sprintf("Подписка продлена до %s.", newExpires.Format("02.01.2006 15:04")))

	return &Outcome{Kind: "extended", SubscriptionID: current.ID, ExpiresAt: newExpires}, nil
}

// provision — T-Create / T-Revive-Reuse. Вся выдача IP и вставка строки идут
// в одной транзакции под advisory-блокировкой аллокатора; пир добавляется до
// коммита, чтобы строка без связности была невозможна.
func (ps *PaymentService) provision(ctx context.Context, ev Event, days int) (*Outcome, error) {
	previous, err := ps.subscriptionRepo.FindLatestAny(ctx, ev.TelegramUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous subscription: %w", err)
	}

	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin provisioning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", config.IPAllocLockId()); err != nil {
		return nil, fmt.Errorf("failed to acquire ip allocation lock: %w", err)
	}

	deactivated, err := ps.subscriptionRepo.DeactivateAllActive(ctx, tx, ev.TelegramUserID, ev.EventName+"_replaced")
	if err != nil {
		return nil, err
	}
	for _, old := range deactivated {
		if old.WgPublicKey != "" {
			if err := ps.wg.RemovePeer(ctx, old.WgPublicKey); err != nil {
				slog.Error("Failed to remove replaced peer", "subscriptionId", old.ID, "error", err)
			}
		}
	}

	used, err := ps.subscriptionRepo.UsedActiveIPs(ctx, tx)
	if err != nil {
		return nil, err
	}

	// Оживление: прежняя строка с целыми ключами и свободным адресом
	revive := previous != nil && previous.HasWireguardIdentity() && !used[previous.VpnIP]

	var privKey, pubKey, ip string
	if revive {
		privKey, pubKey, ip = previous.WgPrivateKey, previous.WgPublicKey, previous.VpnIP
	} else {
		privKey, pubKey, err = ps.wg.GenerateKeypair(ctx)
		if err != nil {
			return nil, err
		}
		ip, err = wireguard.AllocateIP(config.WGNetworkPrefix(), config.WGClientIPStart(), used)
		if err != nil {
			return nil, err
		}
	}

	ipCIDR := fmt.Sprintf("%s/%d", ip, config.WGNetworkCIDR())
	if err := ps.wg.AddPeer(ctx, pubKey, ipCIDR, ev.TelegramUserID); err != nil {
		return nil, err
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	expiresAt := createdAt.AddDate(0, 0, days)

	sub := &database.Subscription{
		TributeUserID:    ev.TributeUserID,
		TelegramUserID:   ev.TelegramUserID,
		TelegramUserName: ev.TelegramUserName,
		SubscriptionID:   ev.SubscriptionID,
		PeriodID:         ev.PeriodID,
		Period:           ev.PeriodTag,
		ChannelID:        ev.ChannelID,
		ChannelName:      ev.ChannelName,
		VpnIP:            ip,
		WgPrivateKey:     privKey,
		WgPublicKey:      pubKey,
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
		LastEventName:    ev.EventName,
	}

	id, err := ps.subscriptionRepo.Insert(ctx, tx, sub)
	if err != nil {
		// Пир уже добавлен: осиротевшую запись найдёт реконсиляция по маркеру
		slog.Error("Insert failed after peer add, possible orphan peer",
			"publicKey", pubKey, "telegramId", utils.MaskHalfInt64(ev.TelegramUserID))
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit provisioning: %w", err)
	}

	outcome := &Outcome{SubscriptionID: id, ExpiresAt: expiresAt}
	if revive {
		outcome.Kind = "revived"
		slog.Info("Subscription revived", "subscriptionId", id,
			"telegramId", utils.MaskHalfInt64(ev.TelegramUserID), "ip", ip)
		ps.sendText(ctx, ev.TelegramUserID,
			fmt.Sprintf("Подписка активна до %s. Прежний конфиг снова работает.", expiresAt.Format("02.01.2006 15:04")))
	} else {
		outcome.Kind = "created"
		outcome.ConfigText = wireguard.BuildClientConfig(privKey, ip,
			config.WGClientDNS(), config.WGServerPublicKey(), config.WGServerEndpoint())
		slog.Info("Subscription created", "subscriptionId", id,
			"telegramId", utils.MaskHalfInt64(ev.TelegramUserID), "ip", ip)
		ps.sendConfig(ctx, ev.TelegramUserID, outcome.ConfigText, expiresAt)
	}
	return outcome, nil
}

// Deactivate — T-Deactivate: условно гасит строку и снимает пира.
func (ps *PaymentService) Deactivate(ctx context.Context, subscriptionId int64, eventName string) (*database.Subscription, error) {
	sub, err := ps.subscriptionRepo.DeactivateById(ctx, subscriptionId, eventName)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	if sub.WgPublicKey != "" {
		if err := ps.wg.RemovePeer(ctx, sub.WgPublicKey); err != nil {
			slog.Error("Failed to remove peer on deactivation", "subscriptionId", sub.ID, "error", err)
		}
	}
	slog.Info("Subscription deactivated", "subscriptionId", sub.ID, "eventName", eventName)
	return sub, nil
}

// Activate — обратная операция для админки: включает строку и возвращает пира.
func (ps *PaymentService) Activate(ctx context.Context, subscriptionId int64, eventName string) (*database.Subscription, error) {
	sub, err := ps.subscriptionRepo.ActivateById(ctx, subscriptionId, eventName)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	if sub.WgPublicKey != "" && sub.VpnIP != "" {
		ipCIDR := fmt.Sprintf("%s/%d", sub.VpnIP, config.WGNetworkCIDR())
		if err := ps.wg.AddPeer(ctx, sub.WgPublicKey, ipCIDR, sub.TelegramUserID); err != nil {
			slog.Error("Failed to re-add peer on activation", "subscriptionId", sub.ID, "error", err)
		}
	}
	return sub, nil
}

// DeactivateAllForUser гасит все активные подписки пользователя (отмена Tribute).
func (ps *PaymentService) DeactivateAllForUser(ctx context.Context, telegramId int64, eventName string) error {
	subs, err := ps.subscriptionRepo.FindActiveByTelegramId(ctx, telegramId)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if _, err := ps.Deactivate(ctx, sub.ID, eventName); err != nil {
			return err
		}
	}
	return nil
}

// ProcessRefund — T-Refund-Shorten. Ключ идемпотентности — id возврата,
// а не платежа: успех платежа остаётся тем событием, что породило строку.
func (ps *PaymentService) ProcessRefund(ctx context.Context, originalPaymentId, refundId string, refundAmount, originalAmount decimal.Decimal) error {
	refundEvent := YookassaRefundEvent(refundId)

	processed, err := ps.subscriptionRepo.EventAlreadyProcessed(ctx, refundEvent)
	if err != nil {
		return err
	}
	if processed {
		return ErrAlreadyProcessed
	}

	sub, err := ps.subscriptionRepo.FindByEventName(ctx, YookassaPaidEvent(originalPaymentId))
	if err != nil {
		return err
	}
	if sub == nil {
		slog.Warn("Refund for unknown payment", "paymentId", originalPaymentId)
		return nil
	}

	tariffDays, err := ps.ResolveTariffDays(ctx, tariffCodeFromPeriod(sub.Period))
	if err != nil {
		return err
	}

	daysToRevert := ProrateRefundDays(tariffDays, refundAmount, originalAmount)
	if daysToRevert <= 0 {
		return nil
	}

	newExpires := sub.ExpiresAt.AddDate(0, 0, -daysToRevert)
	if !newExpires.After(time.Now()) {
		_, err := ps.Deactivate(ctx, sub.ID, refundEvent)
		return err
	}

	if err := ps.subscriptionRepo.UpdateExpiration(ctx, sub.ID, newExpires, refundEvent); err != nil {
		if errors.Is(err, database.ErrEventAlreadyApplied) {
			return ErrAlreadyProcessed
		}
		return err
	}
	slog.Info("Subscription shortened by refund", "subscriptionId", sub.ID,
		"daysReverted", daysToRevert, "until", newExpires)

	ps.sendText(ctx, sub.TelegramUserID,
		fmt.Sprintf("По возврату срок подписки сокращён до %s.", newExpires.Format("02.01.2006 15:04")))
	return nil
}

// CancelPending — T-Cancel-Pending: payment.canceled по уже выданному платежу.
func (ps *PaymentService) CancelPending(ctx context.Context, paymentId string) error {
	cancelEvent := YookassaCanceledEvent(paymentId)

	processed, err := ps.subscriptionRepo.EventAlreadyProcessed(ctx, cancelEvent)
	if err != nil {
		return err
	}
	if processed {
		return ErrAlreadyProcessed
	}

	sub, err := ps.subscriptionRepo.FindByEventName(ctx, YookassaPaidEvent(paymentId))
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	_, err = ps.Deactivate(ctx, sub.ID, cancelEvent)
	return err
}

// ApplyPromo применяет промокод: продление активной подписки или floating
// usage с последующим созданием/оживлением строки.
func (ps *PaymentService) ApplyPromo(ctx context.Context, telegramId int64, code string) (*Outcome, error) {
	result, err := ps.promoRepo.ApplyToLatest(ctx, telegramId, code)
	if err == nil {
		ps.sendText(ctx, telegramId,
			fmt.Sprintf("Промокод применён: +%d дн. Подписка до %s.",
				result.ExtraDays, result.NewExpiresAt.Format("02.01.2006 15:04")))
		return &Outcome{Kind: "extended", SubscriptionID: result.SubscriptionID, ExpiresAt: result.NewExpiresAt}, nil
	}
	if !errors.Is(err, database.ErrPromoNoActiveSubscription) {
		return nil, err
	}

	result, err = ps.promoRepo.ApplyWithoutSubscription(ctx, telegramId, code)
	if err != nil {
		return nil, err
	}

	ev := Event{
		TelegramUserID: telegramId,
		TariffCode:     "",
		EventName:      fmt.Sprintf("promo_code_%d_user_%d_use_%d_sub", result.PromoID, telegramId, result.UsageID),
		ChannelName:    ChannelPromo,
		PeriodTag:      "promo_code",
		Source:         "manual",
		Days:           result.ExtraDays,
	}
	outcome, err := ps.provision(ctx, ev, result.ExtraDays)
	if err != nil {
		return nil, err
	}
	if err := ps.promoRepo.AttachUsageSubscription(ctx, result.UsageID, outcome.SubscriptionID); err != nil {
		slog.Error("Failed to attach promo usage", "usageId", result.UsageID, "error", err)
	}
	return outcome, nil
}

// PayWithPoints — оплата тарифа баллами: продление одной транзакцией или
// списание плюс оживление/создание строки.
func (ps *PaymentService) PayWithPoints(ctx context.Context, telegramId int64, tariffCode string) (*Outcome, int64, error) {
	result, err := ps.pointsRepo.PayForTariff(ctx, telegramId, tariffCode)
	if err == nil {
		ps.sendText(ctx, telegramId,
			fmt.Sprintf("Оплачено баллами. Подписка до %s. Баланс: %d.",
				result.NewExpiresAt.Format("02.01.2006 15:04"), result.NewBalance))
		return &Outcome{Kind: "extended", SubscriptionID: result.SubscriptionID, ExpiresAt: result.NewExpiresAt}, result.NewBalance, nil
	}
	if !errors.Is(err, database.ErrNoActiveSubscription) {
		return nil, 0, err
	}

	txId, durationDays, cost, newBalance, err := ps.pointsRepo.ChargeForTariff(ctx, telegramId, tariffCode)
	if err != nil {
		return nil, 0, err
	}

	ev := Event{
		TelegramUserID: telegramId,
		TariffCode:     tariffCode,
		EventName:      fmt.Sprintf("points_%d", txId),
		ChannelName:    ChannelPoints,
		PeriodTag:      "points_" + tariffCode,
		Source:         "points",
		Days:           durationDays,
	}
	outcome, err := ps.provision(ctx, ev, durationDays)
	if err != nil {
		// Баллы уже списаны, строка не создана — возвращаем проводкой
		if _, refundErr := ps.pointsRepo.AddPoints(ctx, database.AddPointsParams{
			TelegramUserID: telegramId,
			Delta:          cost,
			Reason:         "admin",
			Source:         "manual",
			Meta:           map[string]any{"revert_of_tx": txId},
		}); refundErr != nil {
			slog.Error("Failed to revert points charge", "txId", txId, "error", refundErr)
		}
		return nil, 0, err
	}
	return outcome, newBalance, nil
}

// GrantReferralTrial выдаёт пробную подписку приглашённому пользователю.
func (ps *PaymentService) GrantReferralTrial(ctx context.Context, telegramId int64) (*Outcome, error) {
	referrer, err := ps.referralRepo.FindReferrer(ctx, telegramId)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, ErrNoReferrer
	}

	days := config.ReferralTrialDays()
	ev := Event{
		TelegramUserID: telegramId,
		EventName:      fmt.Sprintf("referral_trial_%d", telegramId),
		ChannelName:    ChannelReferralTrial,
		PeriodTag:      fmt.Sprintf("referral_trial_%dd", days),
		Source:         "manual",
		Days:           days,
	}

	processed, err := ps.subscriptionRepo.EventAlreadyProcessed(ctx, ev.EventName)
	if err != nil {
		return nil, err
	}
	if processed {
		return nil, ErrAlreadyProcessed
	}

	current, err := ps.subscriptionRepo.FindLatestActive(ctx, telegramId)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, ErrAlreadyProcessed
	}

	return ps.provision(ctx, ev, days)
}

// AdminAddSubscription — ручная выдача подписки оператором.
func (ps *PaymentService) AdminAddSubscription(ctx context.Context, telegramId int64, tariffCode string) (*Outcome, error) {
	days, err := ps.ResolveTariffDays(ctx, tariffCode)
	if err != nil {
		return nil, err
	}

	ev := Event{
		TelegramUserID: telegramId,
		TariffCode:     tariffCode,
		EventName:      fmt.Sprintf("admin_add_%d_%d", telegramId, time.Now().UnixNano()),
		ChannelName:    ChannelAdmin,
		PeriodTag:      "admin_" + tariffCode,
		Source:         "manual",
		Days:           days,
	}
	return ps.ProcessPaidEvent(ctx, ev)
}

func (ps *PaymentService) creditReferrals(ctx context.Context, ev Event, outcome *Outcome) {
	switch ev.Source {
	case "yookassa", "heleket", "tribute":
	default:
		return
	}
	ps.pointsService.ApplyReferralRewards(ctx, ev.TelegramUserID, outcome.SubscriptionID,
		ev.TariffCode, ev.Source, ev.PaymentID)
}

func (ps *PaymentService) notifyAdmin(ctx context.Context, ev Event, outcome *Outcome) {
	text := fmt.Sprintf("Платёж: %s, тариф %s, пользователь %d %s (%s), подписка #%d до %s",
		ev.ChannelName, ev.TariffCode, ev.TelegramUserID,
		utils.UsernameForDisplay(&ev.TelegramUserName, true), outcome.Kind,
		outcome.SubscriptionID, outcome.ExpiresAt.Format("02.01.2006"))
	if err := ps.messenger.SendText(ctx, config.GetAdminTelegramId(), text); err != nil {
		slog.Error("Failed to notify admin", "error", err)
	}
}

func (ps *PaymentService) sendText(ctx context.Context, telegramId int64, text string) {
	if err := ps.messenger.SendText(ctx, telegramId, text); err != nil {
		slog.Error("Failed to send message", "telegramId", utils.MaskHalfInt64(telegramId), "error", err)
	}
}

func (ps *PaymentService) sendConfig(ctx context.Context, telegramId int64, configText string, expiresAt time.Time) {
	caption := fmt.Sprintf("Ваш конфиг WireGuard. Подписка до %s.\n"+
		"Импортируйте файл в приложение WireGuard и включите туннель.",
		expiresAt.Format("02.01.2006 15:04"))
	if err := ps.messenger.SendFile(ctx, telegramId, "maxnet-vpn.conf", []byte(configText), caption); err != nil {
		slog.Error("Failed to send config", "telegramId", utils.MaskHalfInt64(telegramId), "error", err)
		// Фолбэк текстом, если документ не ушёл
		ps.sendText(ctx, telegramId, "Конфигурация:\n\n"+configText)
	}
}

// tariffCodeFromPeriod достаёт код тарифа из тега периода (yookassa_1m → 1m).
// Промо-периоды кода тарифа не несут.
func tariffCodeFromPeriod(periodTag string) string {
	if strings.HasPrefix(periodTag, "promo_") {
		return ""
	}
	idx := strings.LastIndex(periodTag, "_")
	if idx < 0 || idx == len(periodTag)-1 {
		return periodTag
	}
	return periodTag[idx+1:]
}
