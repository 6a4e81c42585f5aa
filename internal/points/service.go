package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/utils"
)

const maxReferralDepth = 5

type Service struct {
	pointsRepo   *database.PointsRepository
	referralRepo *database.ReferralRepository
	tariffRepo   *database.TariffRepository
}

func NewService(
	pointsRepo *database.PointsRepository,
	referralRepo *database.ReferralRepository,
	tariffRepo *database.TariffRepository,
) *Service {
	return &Service{
		pointsRepo:   pointsRepo,
		referralRepo: referralRepo,
		tariffRepo:   tariffRepo,
	}
}

// LevelAward — итог начисления одному рефереру; ошибки уровня изолированы.
type LevelAward struct {
	Level      int
	ReferrerID int64
	Bonus      int64
	Err        error
}

// BonusForLevel считает бонус уровня: round(base * multiplier).
func BonusForLevel(base int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(base).Mul(multiplier).Round(0).IntPart()
}

// Upline строит цепочку рефереров плательщика, не глубже maxReferralDepth.
// Обход останавливается на первом отсутствующем звене и на повторе (циклы
// запрещены на записи, но обход от них не зависит).
func (s *Service) Upline(ctx context.Context, payerId int64) ([]int64, error) {
	var chain []int64
	seen := map[int64]bool{payerId: true}

	current := payerId
	for len(chain) < maxReferralDepth {
		referrer, err := s.referralRepo.FindReferrer(ctx, current)
		if err != nil {
			return chain, err
		}
		if referrer == nil || seen[*referrer] {
			break
		}
		chain = append(chain, *referrer)
		seen[*referrer] = true
		current = *referrer
	}
	return chain, nil
}

// ApplyReferralRewards начисляет бонусы аплайну после оплатного события.
// Никогда не роняет платёж: все ошибки фиксируются в результатах по уровням.
func (s *Service) ApplyReferralRewards(ctx context.Context, payerId, subscriptionId int64, tariffCode, paymentSource, paymentId string) []LevelAward {
	profile, err := s.referralRepo.GetProfile(ctx, payerId)
	if err != nil {
		slog.Error("Referral rewards: failed to load payer profile",
			"telegramId", utils.MaskHalfInt64(payerId), "error", err)
		return nil
	}
	if profile != nil && profile.IsReferralBlocked {
		slog.Info("Referral rewards skipped: payer_referral_blocked",
			"telegramId", utils.MaskHalfInt64(payerId))
		return nil
	}

	tariff, err := s.tariffRepo.FindByCode(ctx, tariffCode)
	if err != nil {
		slog.Error("Referral rewards: failed to load tariff", "tariffCode", tariffCode, "error", err)
		return nil
	}
	if tariff == nil || !tariff.IsActive || !tariff.RefEnabled || tariff.RefBaseBonusPoints <= 0 {
		return nil
	}

	chain, err := s.Upline(ctx, payerId)
	if err != nil {
		slog.Error("Referral rewards: failed to build upline",
			"telegramId", utils.MaskHalfInt64(payerId), "error", err)
	}
	if len(chain) == 0 {
		return nil
	}

	levels, err := s.referralRepo.GetLevels(ctx)
	if err != nil {
		slog.Error("Referral rewards: failed to load levels", "error", err)
		return nil
	}

	var awards []LevelAward
	for i, referrerId := range chain {
		level := i + 1
		cfg, ok := levels[level]
		if !ok || !cfg.IsActive || !cfg.Multiplier.IsPositive() {
			continue
		}

		bonus := BonusForLevel(tariff.RefBaseBonusPoints, cfg.Multiplier)
		if bonus <= 0 {
			continue
		}

		award := LevelAward{Level: level, ReferrerID: referrerId, Bonus: bonus}
		lvl := level
		_, err := s.pointsRepo.AddPoints(ctx, database.AddPointsParams{
			TelegramUserID:        referrerId,
			Delta:                 bonus,
			Reason:                fmt.Sprintf("ref_level_%d", level),
			Source:                paymentSource,
			RelatedSubscriptionID: &subscriptionId,
			RelatedPaymentID:      &paymentId,
			Level:                 &lvl,
			Meta:                  map[string]any{"tariff_code": tariffCode, "payer_id": payerId},
		})
		if err != nil {
			award.Err = err
			slog.Error("Referral rewards: failed to credit level",
				"level", level, "referrerId", utils.MaskHalfInt64(referrerId), "error", err)
		} else {
			slog.Info("Referral bonus credited",
				"level", level, "referrerId", utils.MaskHalfInt64(referrerId), "bonus", bonus)
		}
		awards = append(awards, award)
	}
	return awards
}

// RegisterReferralStart привязывает приглашённого к владельцу кода из
// deep-link /start. Повтор — ErrAlreadyHasReferrer, не ошибка для вызывающего.
func (s *Service) RegisterReferralStart(ctx context.Context, invitedId int64, code string) error {
	rc, err := s.referralRepo.FindActiveCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to resolve referral code: %w", err)
	}
	if rc == nil {
		return database.ErrReferralCodeNotFound
	}
	return s.referralRepo.InsertReferral(ctx, invitedId, rc.ReferrerTelegramUserID)
}

type ReferralInfo struct {
	Code            string
	InvitedPerLevel [maxReferralDepth]int
	PaidPerLevel    [maxReferralDepth]int
}

// GetOrCreateReferralInfo возвращает активный код реферера (создавая REF<id>
// при отсутствии, с числовым суффиксом при коллизии) и статистику по уровням.
func (s *Service) GetOrCreateReferralInfo(ctx context.Context, telegramId int64) (*ReferralInfo, error) {
	rc, err := s.referralRepo.FindActiveCodeByReferrer(ctx, telegramId)
	if err != nil {
		return nil, err
	}

	info := &ReferralInfo{}
	if rc != nil {
		info.Code = rc.Code
	} else {
		code := fmt.Sprintf("REF%d", telegramId)
		for suffix := 0; ; suffix++ {
			candidate := code
			if suffix > 0 {
				candidate = fmt.Sprintf("%s_%d", code, suffix)
			}
			err := s.referralRepo.InsertCode(ctx, candidate, telegramId)
			if err == nil {
				info.Code = candidate
				break
			}
			if !errors.Is(err, database.ErrCodeTaken) {
				return nil, err
			}
		}
	}

	// BFS по графу рефералов, уровень за уровнем
	frontier := []int64{telegramId}
	for level := 0; level < maxReferralDepth; level++ {
		referred, err := s.referralRepo.FindReferredBy(ctx, frontier)
		if err != nil {
			return nil, err
		}
		if len(referred) == 0 {
			break
		}
		info.InvitedPerLevel[level] = len(referred)

		paid, err := s.referralRepo.FilterPaidUsers(ctx, referred)
		if err != nil {
			return nil, err
		}
		info.PaidPerLevel[level] = len(paid)

		frontier = referred
	}
	return info, nil
}
