package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cur1osus/sunobot/internal/domain"
)

func strptr(s string) *string { return &s }

func TestUserCache_RoundTrip(t *testing.T) {
	c := &UserCache{Store: NewMemory(), TTL: time.Minute}
	ctx := context.Background()

	u := &domain.User{ID: 7, TelegramID: 555, Username: strptr("alice"), Credits: 4, Balance: 120}
	if err := c.Set(ctx, u); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := c.Get(ctx, 555)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a hit")
	}
	if got.ID != u.ID || got.Credits != u.Credits || got.Balance != u.Balance {
		t.Fatalf("projection mismatch: %+v", got)
	}
	if got.Username == nil || *got.Username != "alice" {
		t.Fatalf("username = %v, want alice", got.Username)
	}
}

func TestUserCache_MissIsNilNil(t *testing.T) {
	c := &UserCache{Store: NewMemory(), TTL: time.Minute}

	got, err := c.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}
}

func TestUserCache_CorruptEntrySelfHeals(t *testing.T) {
	store := NewMemory()
	c := &UserCache{Store: store, TTL: time.Minute}
	ctx := context.Background()

	if err := store.SetEx(ctx, c.Key(9), []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("SetEx: %v", err)
	}

	got, err := c.Get(ctx, 9)
	if err != nil || got != nil {
		t.Fatalf("corrupt entry = (%+v, %v), want miss", got, err)
	}
	// The broken entry must be gone, not left to fail every read.
	if _, err := store.Get(ctx, c.Key(9)); err != ErrMiss {
		t.Fatalf("corrupt entry still present: %v", err)
	}
}

func TestUserCache_InvalidateDropsEntry(t *testing.T) {
	c := &UserCache{Store: NewMemory(), TTL: time.Minute}
	ctx := context.Background()

	if err := c.Set(ctx, &domain.User{ID: 1, TelegramID: 42}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Invalidate(ctx, 42); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	got, err := c.Get(ctx, 42)
	if err != nil || got != nil {
		t.Fatalf("expected miss after invalidate, got (%+v, %v)", got, err)
	}
}

func TestMemory_TTLExpires(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SetEx(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("SetEx: %v", err)
	}
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("fresh entry: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := m.Get(ctx, "k"); err != ErrMiss {
		t.Fatalf("expired entry err = %v, want ErrMiss", err)
	}
}

func TestUserCacheKey(t *testing.T) {
	var c UserCache
	if got := c.Key(123); got != "UserProfile:123" {
		t.Fatalf("Key = %q", got)
	}
}
