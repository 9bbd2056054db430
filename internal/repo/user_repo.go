// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model,
// including the guarded balance updates the credit ledger is built on.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition.
//
// Error semantics:
//   - When a user is not found, read functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Conditional updates (ChargeCredits, WithdrawBalance) report
//     insufficient funds through their bool result, not an error: the WHERE
//     guard simply matches zero rows and the balance is left untouched.
//   - On other DB errors the raw gorm error is propagated; callers must
//     treat it as "operation did not happen".
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUserByID fetches a user by internal primary key.
// Returns ErrNotFound if no such user exists.
func GetUserByID(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByTelegramID fetches a user by the stable Telegram id.
// Returns ErrNotFound if no such user exists.
func GetUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "telegram_id = ?", telegramID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates the user row on first interaction or refreshes the
// mutable profile fields (name, username, last-active) on subsequent ones.
//
// If another row already holds the same username (the previous owner renamed
// or deleted their account), that stale claim is cleared first so the unique
// handle follows its current owner.
func UpsertUser(ctx context.Context, db *gorm.DB, telegramID int64, name string, username *string) (*domain.User, error) {
	now := time.Now().UTC()

	var out *domain.User
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if username != nil && *username != "" {
			if err := tx.Model(&domain.User{}).
				Where("username = ? AND telegram_id <> ?", *username, telegramID).
				Update("username", nil).Error; err != nil {
				return err
			}
		}

		var u domain.User
		err := tx.First(&u, "telegram_id = ?", telegramID).Error
		switch {
		case err == nil:
			u.Name = name
			u.Username = username
			u.LastActive = now
			if err := tx.Model(&domain.User{}).Where("id = ?", u.ID).
				Updates(map[string]any{"name": name, "username": username, "last_active": now}).Error; err != nil {
				return err
			}
		case err == gorm.ErrRecordNotFound:
			u = domain.User{
				TelegramID:   telegramID,
				Name:         name,
				Username:     username,
				Credits:      2,
				Role:         domain.RoleUser,
				RegisteredAt: now,
				LastActive:   now,
			}
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
		default:
			return err
		}
		out = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChargeCredits atomically decrements the user's credits by amount, but only
// if the current balance covers it. The single guarded UPDATE is the
// serialization point: two concurrent charges cannot both succeed on an
// insufficient balance.
//
// Returns (true, nil) when the debit happened, (false, nil) when funds were
// insufficient or the user does not exist. Amount <= 0 is a no-op success.
func ChargeCredits(ctx context.Context, db *gorm.DB, telegramID int64, amount int) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ? AND credits >= ?", telegramID, amount).
		Update("credits", gorm.Expr("credits - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddCredits unconditionally increments the user's credits by amount. Used
// both for refunds and purchased top-ups. Amount <= 0 is a no-op.
func AddCredits(ctx context.Context, db *gorm.DB, telegramID int64, amount int) error {
	if amount <= 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ?", telegramID).
		Update("credits", gorm.Expr("credits + ?", amount)).Error
}

// DeductCredits decrements the user's credits by amount, floored at zero.
// Used for admin-forced corrections; never drives the balance negative.
func DeductCredits(ctx context.Context, db *gorm.DB, telegramID int64, amount int) error {
	if amount <= 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ?", telegramID).
		Update("credits", gorm.Expr("MAX(credits - ?, 0)", amount)).Error
}

// AddReferralBalance increments the referrer's withdrawable balance.
// Returns false when the referrer row no longer exists (nothing to credit).
func AddReferralBalance(ctx context.Context, db *gorm.DB, referrerID int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ?", referrerID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// WithdrawBalance decrements the referral balance with the same guarded
// pattern as ChargeCredits: it succeeds only if the balance covers amount.
func WithdrawBalance(ctx context.Context, db *gorm.DB, telegramID int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ? AND balance >= ?", telegramID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetReferrer records who referred the user, first write wins: the guarded
// UPDATE only matches while referrer_id is still NULL, so a second referral
// link can never overwrite the original one.
func SetReferrer(ctx context.Context, db *gorm.DB, telegramID, referrerID int64) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ? AND referrer_id IS NULL", telegramID).
		Update("referrer_id", referrerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
