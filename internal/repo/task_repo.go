// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the MusicTask
// model: creation, the due-task scan the poller is built on, claim/advance
// state updates, and the "my tracks" listing queries.
//
// Concurrency notes:
//   - ClaimTask commits last_polled_at (and the PENDING -> PROCESSING flip)
//     before any remote call is made, so a task is visibly "in flight" and a
//     concurrent scan within the same poll interval cannot re-select it.
//   - All status writes go through guarded single-row UPDATEs; a task in a
//     terminal state never matches the guard again, which is what makes
//     re-polling a terminal task a no-op.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/domain"
)

// CreateTask inserts a new MusicTask in "pending". CreditsCost and the
// payload snapshot are captured here and treated as immutable afterwards.
func CreateTask(ctx context.Context, db *gorm.DB, task *domain.MusicTask) error {
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(task).Error
}

// ListDueTasks selects up to limit non-terminal tasks whose last poll is
// older than interval (or that were never polled), oldest first for
// fairness. Terminal tasks never match.
func ListDueTasks(ctx context.Context, db *gorm.DB, now time.Time, interval time.Duration, limit int) ([]domain.MusicTask, error) {
	cutoff := now.Add(-interval)
	var out []domain.MusicTask
	err := db.WithContext(ctx).
		Where("status IN ?", []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing}).
		Where("last_polled_at IS NULL OR last_polled_at < ?", cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimTask marks the task as in flight: it stamps last_polled_at and flips
// PENDING to PROCESSING in one guarded UPDATE that only matches non-terminal
// rows. Returns false when the task was already terminal (claim refused).
func ClaimTask(ctx context.Context, db *gorm.DB, taskID int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.MusicTask{}).
		Where("id = ? AND status IN ?", taskID,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing}).
		Updates(map[string]any{
			"last_polled_at": now,
			"status":         domain.TaskStatusProcessing,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementTaskErrors bumps the consecutive-error counter and returns the
// new value so the caller can compare it against the ceiling.
func IncrementTaskErrors(ctx context.Context, db *gorm.DB, taskID int64) (int, error) {
	err := db.WithContext(ctx).Model(&domain.MusicTask{}).
		Where("id = ?", taskID).
		Update("errors", gorm.Expr("errors + 1")).Error
	if err != nil {
		return 0, err
	}
	var t domain.MusicTask
	if err := db.WithContext(ctx).Select("errors").First(&t, "id = ?", taskID).Error; err != nil {
		return 0, err
	}
	return t.Errors, nil
}

// MarkTaskStatus advances the task to status. The guard excludes terminal
// rows, so a task can reach a terminal state at most once; the bool result
// reports whether this call was the one that moved it.
func MarkTaskStatus(ctx context.Context, db *gorm.DB, taskID int64, status domain.TaskStatus) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.MusicTask{}).
		Where("id = ? AND status IN ?", taskID,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing}).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveTaskResults persists delivered artifact ids and extracted lyrics.
// Either field is written only when not already set, so a re-delivery can
// never overwrite the first recorded result.
func SaveTaskResults(ctx context.Context, db *gorm.DB, taskID int64, audioFileIDs, lyrics *string) error {
	updates := map[string]any{}
	if audioFileIDs != nil && *audioFileIDs != "" {
		updates["audio_file_ids"] = gorm.Expr("COALESCE(audio_file_ids, ?)", *audioFileIDs)
	}
	if lyrics != nil && *lyrics != "" {
		updates["lyrics"] = gorm.Expr("COALESCE(lyrics, ?)", *lyrics)
	}
	if len(updates) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.MusicTask{}).
		Where("id = ?", taskID).
		Updates(updates).Error
}

// GetTask fetches a task by internal id. Returns ErrNotFound if missing.
func GetTask(ctx context.Context, db *gorm.DB, taskID int64) (*domain.MusicTask, error) {
	var t domain.MusicTask
	if err := db.WithContext(ctx).First(&t, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetUserTask fetches a single task by internal id, enforcing ownership.
// Returns ErrNotFound when the task does not exist or belongs to another user.
func GetUserTask(ctx context.Context, db *gorm.DB, userID, taskID int64) (*domain.MusicTask, error) {
	var t domain.MusicTask
	if err := db.WithContext(ctx).First(&t, "id = ? AND user_id = ?", taskID, userID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CountUserTasks returns the total number of tasks owned by the user.
func CountUserTasks(ctx context.Context, db *gorm.DB, userID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.MusicTask{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListUserTasksPage returns a page of the user's tasks, newest first.
// The caller computes offset and limit (e.g. (page-1)*pageSize).
func ListUserTasksPage(ctx context.Context, db *gorm.DB, userID int64, offset, limit int) ([]domain.MusicTask, error) {
	var out []domain.MusicTask
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
