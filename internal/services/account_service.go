// Package services – AccountService
//
// This file implements the user-profile lifecycle: lazy creation on first
// interaction, the cached read-through projection, referral attribution,
// top-ups, and withdrawal requests with manager assignment.
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/cache"
	"github.com/cur1osus/sunobot/internal/domain"
	"github.com/cur1osus/sunobot/internal/repo"
)

// AccountService covers everything about a user except the spendable-credit
// arithmetic, which lives in CreditService.
type AccountService struct {
	DB      *gorm.DB
	Cache   *cache.UserCache
	Credits *CreditService
	Log     zerolog.Logger

	// ReferralBonus is the referral balance granted to the referrer per
	// successfully attributed signup.
	ReferralBonus int
}

// GetProfile returns the user's projection, creating the database row lazily
// on first interaction. Cache hit -> return; miss -> upsert the relational
// row, refresh the projection with the configured TTL, return.
func (s *AccountService) GetProfile(ctx context.Context, telegramID int64, name string, username *string) (*domain.User, error) {
	if cached, err := s.Cache.Get(ctx, telegramID); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		// Cache backend trouble is not fatal; fall through to the database.
		s.Log.Warn().Err(err).Int64("telegram_id", telegramID).Msg("user cache read failed")
	}

	u, err := repo.UpsertUser(ctx, s.DB, telegramID, name, username)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Set(ctx, u); err != nil {
		s.Log.Warn().Err(err).Int64("telegram_id", telegramID).Msg("user cache write failed")
	}
	return u, nil
}

// ApplyReferral attributes the user to referrerID, first write wins, and
// grants the referrer their bonus. Self-referrals, repeat attributions, and
// unknown referrers return ErrReferralRejected.
func (s *AccountService) ApplyReferral(ctx context.Context, telegramID, referrerID int64) error {
	if referrerID == telegramID {
		return ErrReferralRejected
	}
	if _, err := repo.GetUserByTelegramID(ctx, s.DB, referrerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrReferralRejected
		}
		return err
	}

	ok, err := repo.SetReferrer(ctx, s.DB, telegramID, referrerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReferralRejected
	}
	if err := s.Cache.Invalidate(ctx, telegramID); err != nil {
		s.Log.Warn().Err(err).Int64("telegram_id", telegramID).Msg("cache invalidation failed")
	}

	if s.ReferralBonus > 0 {
		granted, err := s.Credits.AddReferralBalance(ctx, referrerID, s.ReferralBonus)
		if err != nil {
			return err
		}
		if granted {
			referrer, err := repo.GetUserByTelegramID(ctx, s.DB, referrerID)
			if err != nil {
				return err
			}
			bonus := &domain.Transaction{
				UserID:  referrer.ID,
				Type:    domain.TxTypeReferralBonus,
				Amount:  s.ReferralBonus,
				Status:  domain.TxStatusSuccess,
				Payload: uuid.NewString(),
			}
			if err := repo.CreateTransaction(ctx, s.DB, bonus); err != nil {
				// The balance is already granted; the audit row is
				// best-effort.
				s.Log.Warn().Err(err).Int64("referrer_id", referrerID).Msg("referral bonus audit row failed")
			}
		}
	}
	return nil
}

// TopUp credits purchased generation credits and records the success
// transaction in one go. The charge ids come from the payment update.
func (s *AccountService) TopUp(ctx context.Context, telegramID int64, credits, amount int, currency, method, plan string, telegramChargeID, providerChargeID *string) error {
	u, err := repo.GetUserByTelegramID(ctx, s.DB, telegramID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := s.Credits.Add(ctx, telegramID, credits); err != nil {
		return err
	}
	tx := &domain.Transaction{
		UserID:           u.ID,
		Type:             domain.TxTypeTopup,
		Method:           method,
		Plan:             plan,
		Amount:           amount,
		Currency:         currency,
		Credits:          credits,
		Status:           domain.TxStatusSuccess,
		Payload:          uuid.NewString(),
		TelegramChargeID: telegramChargeID,
		ProviderChargeID: providerChargeID,
	}
	return repo.CreateTransaction(ctx, s.DB, tx)
}

// RequestWithdrawal debits the user's referral balance and opens a pending
// withdrawal-request transaction. When managerIDs is non-empty the request
// is immediately assigned to the least-loaded manager.
func (s *AccountService) RequestWithdrawal(ctx context.Context, telegramID int64, amount int, managerIDs []int64) (*domain.Transaction, error) {
	u, err := repo.GetUserByTelegramID(ctx, s.DB, telegramID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	ok, err := s.Credits.Withdraw(ctx, telegramID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	tx := &domain.Transaction{
		UserID:  u.ID,
		Type:    domain.TxTypeWithdrawRequest,
		Amount:  amount,
		Status:  domain.TxStatusPending,
		Payload: uuid.NewString(),
	}
	if err := repo.CreateTransaction(ctx, s.DB, tx); err != nil {
		// The balance debit already happened; give it back so the user is
		// not left short with no open request.
		if rerr := s.refundBalance(ctx, telegramID, amount); rerr != nil {
			s.Log.Error().Err(rerr).Int64("telegram_id", telegramID).Msg("withdrawal rollback failed")
		}
		return nil, err
	}

	if manager := PickManager(managerIDs, s.loads(ctx, managerIDs)); manager != 0 {
		if _, err := repo.AssignTransaction(ctx, s.DB, tx.ID, manager); err == nil {
			tx.Status = domain.TxStatusAssigned
			tx.ManagerID = &manager
		}
	}
	return tx, nil
}

// PickManager chooses the manager with the fewest open assignments,
// preferring earlier entries on ties. Returns 0 when no managers are
// configured.
func PickManager(managerIDs []int64, loads map[int64]int64) int64 {
	if len(managerIDs) == 0 {
		return 0
	}
	best := managerIDs[0]
	for _, id := range managerIDs[1:] {
		if loads[id] < loads[best] {
			best = id
		}
	}
	return best
}

func (s *AccountService) loads(ctx context.Context, managerIDs []int64) map[int64]int64 {
	loads, err := repo.ManagerLoads(ctx, s.DB, managerIDs)
	if err != nil {
		s.Log.Warn().Err(err).Msg("manager load query failed")
		return map[int64]int64{}
	}
	return loads
}

func (s *AccountService) refundBalance(ctx context.Context, telegramID int64, amount int) error {
	ok, err := repo.AddReferralBalance(ctx, s.DB, telegramID, amount)
	if err != nil {
		return err
	}
	if ok {
		_ = s.Cache.Invalidate(ctx, telegramID)
	}
	return nil
}
