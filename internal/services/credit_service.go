// Package services – CreditService
//
// This file implements the credit ledger. Every operation is a single
// guarded UPDATE against the users table, committed before the user's cache
// projection is invalidated. The strict commit-then-invalidate order is what
// keeps a stale cache write from racing ahead of the transaction: the worst
// case after a crash between the two steps is a projection that expires via
// its TTL, never a balance the database does not have.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/cache"
	"github.com/cur1osus/sunobot/internal/repo"
)

// CreditService owns the per-user credit and referral balances.
type CreditService struct {
	DB    *gorm.DB
	Cache *cache.UserCache
}

// Charge debits amount credits if and only if the user's balance covers it
// at the moment of the atomic update. Returns false (and leaves the ledger
// untouched) on insufficient funds; amount <= 0 is a no-op success.
func (s *CreditService) Charge(ctx context.Context, telegramID int64, amount int) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	ok, err := repo.ChargeCredits(ctx, s.DB, telegramID, amount)
	if err != nil || !ok {
		return false, err
	}
	s.invalidate(ctx, telegramID)
	return true, nil
}

// Refund returns amount credits unconditionally. Used when a charged
// generation ends in ERROR or TIMEOUT; the captured task cost makes the
// refund exact regardless of later price changes.
func (s *CreditService) Refund(ctx context.Context, telegramID int64, amount int) error {
	if amount <= 0 {
		return nil
	}
	if err := repo.AddCredits(ctx, s.DB, telegramID, amount); err != nil {
		return err
	}
	s.invalidate(ctx, telegramID)
	return nil
}

// Add credits the user's balance for a purchased top-up. Same semantics as
// Refund.
func (s *CreditService) Add(ctx context.Context, telegramID int64, amount int) error {
	return s.Refund(ctx, telegramID, amount)
}

// Deduct removes amount credits, floored at zero. Admin-only corrections.
func (s *CreditService) Deduct(ctx context.Context, telegramID int64, amount int) error {
	if amount <= 0 {
		return nil
	}
	if err := repo.DeductCredits(ctx, s.DB, telegramID, amount); err != nil {
		return err
	}
	s.invalidate(ctx, telegramID)
	return nil
}

// AddReferralBalance credits the referrer's withdrawable balance. Returns
// false when the referrer row no longer exists.
func (s *CreditService) AddReferralBalance(ctx context.Context, referrerID int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	ok, err := repo.AddReferralBalance(ctx, s.DB, referrerID, amount)
	if err != nil || !ok {
		return false, err
	}
	s.invalidate(ctx, referrerID)
	return true, nil
}

// Withdraw debits the referral balance with the same guarded-update pattern
// as Charge.
func (s *CreditService) Withdraw(ctx context.Context, telegramID int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	ok, err := repo.WithdrawBalance(ctx, s.DB, telegramID, amount)
	if err != nil || !ok {
		return false, err
	}
	s.invalidate(ctx, telegramID)
	return true, nil
}

// invalidate drops the cached projection after a successful commit. A failed
// delete is tolerable: the entry is TTL-bounded and the database remains the
// source of truth.
func (s *CreditService) invalidate(ctx context.Context, telegramID int64) {
	if s.Cache != nil {
		_ = s.Cache.Invalidate(ctx, telegramID)
	}
}
