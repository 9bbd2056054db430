package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cur1osus/sunobot/internal/domain"
)

// UserCache is the read-through projection of a User row, keyed by the
// Telegram user id. Entries live for a bounded TTL and are deleted on any
// ledger or profile mutation; the next read re-hydrates from the database.
//
// A corrupt entry self-heals: it is deleted and reported as a miss rather
// than surfaced as an error.
type UserCache struct {
	Store Store
	TTL   time.Duration
}

// Key builds the cache key for a Telegram user id.
func (UserCache) Key(telegramID int64) string {
	return fmt.Sprintf("UserProfile:%d", telegramID)
}

// Get returns the cached projection, or (nil, nil) on a miss.
func (c *UserCache) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	data, err := c.Store.Get(ctx, c.Key(telegramID))
	if err == ErrMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		// Stale or corrupt entry; drop it and fall back to the database.
		_ = c.Store.Del(ctx, c.Key(telegramID))
		return nil, nil
	}
	return &u, nil
}

// Set stores the projection with the configured TTL.
func (c *UserCache) Set(ctx context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.Store.SetEx(ctx, c.Key(u.TelegramID), data, c.TTL)
}

// Invalidate removes the projection. Called strictly after a successful
// database commit, never before.
func (c *UserCache) Invalidate(ctx context.Context, telegramID int64) error {
	return c.Store.Del(ctx, c.Key(telegramID))
}
