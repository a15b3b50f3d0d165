// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/barrier-gateway/internal/domain"
)

// TransactionsStats returns aggregate metadata for ledger rows matching f:
// the total number of rows, the greatest ID, and the latest sent_at among
// them. Together these change whenever a row is appended or marked sent.
//
// When nothing matches, count is 0 and the other values are zero/nil.
func TransactionsStats(ctx context.Context, db *gorm.DB, f TransactionFilter) (count int64, maxID uint, lastSent *time.Time, err error) {
	q := applyFilter(db.WithContext(ctx).Model(&domain.Transaction{}), f)

	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}

	var idRow struct{ ID uint }
	if err = q.Session(&gorm.Session{}).Select("id").Order("id DESC").Limit(1).Scan(&idRow).Error; err != nil {
		return 0, 0, nil, err
	}

	// Avoid MAX() -> TEXT in SQLite.
	var sentRow struct{ SentAt *time.Time }
	if err = q.Session(&gorm.Session{}).Select("sent_at").Where("sent_at IS NOT NULL").Order("sent_at DESC").Limit(1).Scan(&sentRow).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, idRow.ID, sentRow.SentAt, nil
}
