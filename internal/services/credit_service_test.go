package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cur1osus/sunobot/internal/cache"
	"github.com/cur1osus/sunobot/internal/domain"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.User{}, &domain.Transaction{}, &domain.UsageEvent{}, &domain.MusicTask{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestCache() *cache.UserCache {
	return &cache.UserCache{Store: cache.NewMemory(), TTL: time.Minute}
}

func seedUser(t *testing.T, db *gorm.DB, telegramID int64, credits, balance int) *domain.User {
	t.Helper()
	u := &domain.User{
		TelegramID:   telegramID,
		Name:         fmt.Sprintf("user-%d", telegramID),
		Credits:      credits,
		Balance:      balance,
		Role:         domain.RoleUser,
		RegisteredAt: time.Now().UTC(),
		LastActive:   time.Now().UTC(),
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %d: %v", telegramID, err)
	}
	// GORM drops zero values for columns with a schema default (credits
	// would land as 2); force the requested balances explicitly.
	if err := db.Model(u).Updates(map[string]any{"credits": credits, "balance": balance}).Error; err != nil {
		t.Fatalf("seed balances for %d: %v", telegramID, err)
	}
	u.Credits, u.Balance = credits, balance
	return u
}

func userCredits(t *testing.T, db *gorm.DB, telegramID int64) (credits, balance int) {
	t.Helper()
	var u domain.User
	if err := db.Where("telegram_id = ?", telegramID).First(&u).Error; err != nil {
		t.Fatalf("load user %d: %v", telegramID, err)
	}
	return u.Credits, u.Balance
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func TestCharge_DebitsAndInvalidatesCache(t *testing.T) {
	db := newServiceDB(t)
	uc := newTestCache()
	svc := &CreditService{DB: db, Cache: uc}
	ctx := context.Background()

	u := seedUser(t, db, 100, 5, 0)
	if err := uc.Set(ctx, u); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	ok, err := svc.Charge(ctx, 100, 2)
	if err != nil || !ok {
		t.Fatalf("Charge: ok=%v err=%v", ok, err)
	}
	if credits, _ := userCredits(t, db, 100); credits != 3 {
		t.Fatalf("credits = %d, want 3", credits)
	}
	// The stale projection must be gone after the commit.
	if cached, _ := uc.Get(ctx, 100); cached != nil {
		t.Fatalf("cache not invalidated: %+v", cached)
	}
}

func TestCharge_InsufficientLeavesLedgerAndCache(t *testing.T) {
	db := newServiceDB(t)
	uc := newTestCache()
	svc := &CreditService{DB: db, Cache: uc}
	ctx := context.Background()

	u := seedUser(t, db, 100, 1, 0)
	uc.Set(ctx, u)

	ok, err := svc.Charge(ctx, 100, 2)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if ok {
		t.Fatal("charge succeeded on insufficient credits")
	}
	if credits, _ := userCredits(t, db, 100); credits != 1 {
		t.Fatalf("credits = %d, want untouched 1", credits)
	}
	// A refused charge commits nothing, so the projection stays valid.
	if cached, _ := uc.Get(ctx, 100); cached == nil {
		t.Fatal("cache dropped although nothing changed")
	}
}

func TestChargeRefund_ConservesCredits(t *testing.T) {
	db := newServiceDB(t)
	svc := &CreditService{DB: db, Cache: newTestCache()}
	ctx := context.Background()

	seedUser(t, db, 100, 5, 0)
	if ok, err := svc.Charge(ctx, 100, 2); err != nil || !ok {
		t.Fatalf("Charge: ok=%v err=%v", ok, err)
	}
	if err := svc.Refund(ctx, 100, 2); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if credits, _ := userCredits(t, db, 100); credits != 5 {
		t.Fatalf("credits = %d, want conserved 5", credits)
	}
}

func TestDeduct_FlooredAtZero(t *testing.T) {
	db := newServiceDB(t)
	svc := &CreditService{DB: db, Cache: newTestCache()}
	ctx := context.Background()

	seedUser(t, db, 100, 3, 0)
	if err := svc.Deduct(ctx, 100, 10); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if credits, _ := userCredits(t, db, 100); credits != 0 {
		t.Fatalf("credits = %d, want floor 0", credits)
	}
}

func TestWithdraw_GuardedByBalance(t *testing.T) {
	db := newServiceDB(t)
	svc := &CreditService{DB: db, Cache: newTestCache()}
	ctx := context.Background()

	seedUser(t, db, 100, 0, 50)
	if ok, err := svc.Withdraw(ctx, 100, 80); err != nil || ok {
		t.Fatalf("overdraw: ok=%v err=%v", ok, err)
	}
	if ok, err := svc.Withdraw(ctx, 100, 50); err != nil || !ok {
		t.Fatalf("full withdraw: ok=%v err=%v", ok, err)
	}
	if _, balance := userCredits(t, db, 100); balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
}

func TestAddReferralBalance_MissingReferrer(t *testing.T) {
	db := newServiceDB(t)
	svc := &CreditService{DB: db, Cache: newTestCache()}

	ok, err := svc.AddReferralBalance(context.Background(), 999, 10)
	if err != nil {
		t.Fatalf("AddReferralBalance: %v", err)
	}
	if ok {
		t.Fatal("granted a bonus to a nonexistent referrer")
	}
}

func TestCreditService_NilCacheIsSafe(t *testing.T) {
	db := newServiceDB(t)
	svc := &CreditService{DB: db}
	ctx := context.Background()

	seedUser(t, db, 100, 5, 0)
	if ok, err := svc.Charge(ctx, 100, 1); err != nil || !ok {
		t.Fatalf("Charge without cache: ok=%v err=%v", ok, err)
	}
}
