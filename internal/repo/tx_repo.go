// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers the immutable Transaction audit records,
// append-only UsageEvent rows, and the withdrawal assignment queries.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/domain"
)

// CreateTransaction inserts an immutable balance-event record.
func CreateTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(tx).Error
}

// CreateUsageEvent appends a billable-action record for analytics.
func CreateUsageEvent(ctx context.Context, db *gorm.DB, userID int64, eventType domain.UsageEventType) error {
	ev := &domain.UsageEvent{
		UserID:    userID,
		EventType: eventType,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(ev).Error
}

// ManagerLoads returns, per manager id, how many withdrawal requests are
// currently assigned to them. Managers with no open assignments are absent
// from the map.
func ManagerLoads(ctx context.Context, db *gorm.DB, managerIDs []int64) (map[int64]int64, error) {
	loads := make(map[int64]int64, len(managerIDs))
	if len(managerIDs) == 0 {
		return loads, nil
	}
	type row struct {
		ManagerID int64
		N         int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Select("manager_id, COUNT(id) AS n").
		Where("manager_id IN ? AND status = ?", managerIDs, domain.TxStatusAssigned).
		Group("manager_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		loads[r.ManagerID] = r.N
	}
	return loads, nil
}

// AssignTransaction moves a pending withdrawal request to "assigned" for the
// given manager. The guard keeps the transition one-way: an already assigned
// or finished request is never reassigned here.
func AssignTransaction(ctx context.Context, db *gorm.DB, txID, managerID int64) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", txID, domain.TxStatusPending).
		Updates(map[string]any{
			"manager_id": managerID,
			"status":     domain.TxStatusAssigned,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CloseTransaction finishes an assigned withdrawal request as completed or
// failed.
func CloseTransaction(ctx context.Context, db *gorm.DB, txID int64, status domain.TransactionStatus) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", txID, domain.TxStatusAssigned).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
