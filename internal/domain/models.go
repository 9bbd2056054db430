// Package domain defines the persistence models for users, music generation
// tasks, transactions, and usage events. These types are mapped with GORM and
// form the core data layer of the bot.
package domain

import (
	"time"
)

// User represents a person interacting with the bot. The Telegram user id is
// the stable external identity; the autoincrement ID is internal.
//
// Fields:
//   - ID: internal numeric primary key.
//   - TelegramID: stable Telegram user id (unique).
//   - Credits: spendable generation balance; never negative (enforced by
//     guarded updates, see repo.ChargeCredits).
//   - Balance: referral-earnings balance, withdrawable; never negative.
//   - ReferrerID: Telegram id of the referring user, set at most once.
//   - Role: "user", "admin", or "support"; gates privileged commands.
//   - RegisteredAt / LastActive: lifecycle timestamps.
type User struct {
	ID           int64     `json:"id"           gorm:"primaryKey;autoIncrement"`
	TelegramID   int64     `json:"telegram_id"  gorm:"uniqueIndex;not null"`
	Name         string    `json:"name"         gorm:"type:varchar(100);not null"`
	Username     *string   `json:"username,omitempty" gorm:"type:varchar(100);index"`
	Credits      int       `json:"credits"      gorm:"not null;default:2"`
	Balance      int       `json:"balance"      gorm:"not null;default:0"`
	ReferrerID   *int64    `json:"referrer_id,omitempty"`
	Role         UserRole  `json:"role"         gorm:"type:varchar(50);not null;default:'user'"`
	RegisteredAt time.Time `json:"registered_at"`
	LastActive   time.Time `json:"last_active"`

	// Owned aggregates; rows are removed together with the user.
	Transactions []Transaction `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	UsageEvents  []UsageEvent  `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	MusicTasks   []MusicTask   `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// MusicTask is one outstanding or completed request to produce a song.
//
// The external TaskID assigned by the generation provider is immutable and
// globally unique. CreditsCost is captured at creation time so a later refund
// is exact even if pricing changes. Rows are mutated exclusively by the
// poller after the initial insert and are never deleted; terminal rows serve
// as the "my tracks" history.
//
// Status only moves forward (see TaskStatus); a retryable poll error keeps
// the task in "processing" while Errors increments.
type MusicTask struct {
	ID           int64      `json:"id"            gorm:"primaryKey;autoIncrement"`
	UserID       int64      `json:"user_id"       gorm:"not null;index"`
	TaskID       string     `json:"task_id"       gorm:"type:varchar(100);uniqueIndex;not null"`
	ChatID       int64      `json:"chat_id"       gorm:"not null"`
	FilenameBase string     `json:"filename_base" gorm:"type:varchar(200);not null"`
	Status       TaskStatus `json:"status"        gorm:"type:varchar(50);not null;default:'pending';index"`
	Errors       int        `json:"errors"        gorm:"not null;default:0"`
	CreditsCost  int        `json:"credits_cost"  gorm:"not null;default:2"`
	PollTimeout  int        `json:"poll_timeout"  gorm:"not null;default:600"` // seconds
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	AudioFileIDs *string    `json:"audio_file_ids,omitempty" gorm:"type:text"` // JSON array of platform file ids
	Lyrics       *string    `json:"lyrics,omitempty"         gorm:"type:text"`
	TopicKey     *string    `json:"topic_key,omitempty"      gorm:"type:varchar(50)"`
	Style        *string    `json:"style,omitempty"          gorm:"type:varchar(100)"`
	PromptSource *string    `json:"prompt_source,omitempty"  gorm:"type:varchar(50)"`
	Prompt       *string    `json:"prompt,omitempty"         gorm:"type:text"`
	CustomMode   bool       `json:"custom_mode"   gorm:"not null;default:false"`
	Instrumental bool       `json:"instrumental"  gorm:"not null;default:false"`
	CreatedAt    time.Time  `json:"created_at"    gorm:"index"`
	UpdatedAt    time.Time  `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MusicTask.
func (MusicTask) TableName() string { return "music_tasks" }

// Transaction is an immutable record of a balance-affecting event: a top-up,
// a referral bonus, or a withdrawal request. Top-ups and bonuses are created
// already in "success"; withdrawal requests progress
// pending -> assigned -> completed|failed.
type Transaction struct {
	ID               int64             `json:"id"      gorm:"primaryKey;autoIncrement"`
	UserID           int64             `json:"user_id" gorm:"not null;index"`
	ManagerID        *int64            `json:"manager_id,omitempty" gorm:"index"`
	Type             TransactionType   `json:"type"    gorm:"type:varchar(50);not null;default:'topup'"`
	Method           string            `json:"method"  gorm:"type:varchar(50)"`
	Plan             string            `json:"plan"    gorm:"type:varchar(20)"`
	Amount           int               `json:"amount"  gorm:"not null"`
	Currency         string            `json:"currency" gorm:"type:varchar(10)"`
	Credits          int               `json:"credits" gorm:"not null"`
	Status           TransactionStatus `json:"status"  gorm:"type:varchar(50);not null;default:'success';index"`
	Payload          string            `json:"payload" gorm:"type:varchar(200)"`
	TelegramChargeID *string           `json:"telegram_charge_id,omitempty" gorm:"type:varchar(200)"`
	ProviderChargeID *string           `json:"provider_charge_id,omitempty" gorm:"type:varchar(200)"`
	Details          *string           `json:"details,omitempty" gorm:"type:varchar(255)"`
	CreatedAt        time.Time         `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// UsageEvent is an append-only record of a billable action, kept for
// analytics. Rows are never updated or deleted.
type UsageEvent struct {
	ID        int64          `json:"id"         gorm:"primaryKey;autoIncrement"`
	UserID    int64          `json:"user_id"    gorm:"not null;index"`
	EventType UsageEventType `json:"event_type" gorm:"type:varchar(50);not null"`
	CreatedAt time.Time      `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UsageEvent.
func (UsageEvent) TableName() string { return "usage_events" }
