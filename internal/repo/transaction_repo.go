// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the ledger functions for the
// Transaction model.
//
// The ledger is append-only: rows are inserted by ingestion and mutated only
// by MarkSent. All timestamps are stored in UTC so that SQLite's textual
// datetime comparison orders them correctly.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/barrier-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrAlreadySent is returned by MarkSent when the row was already marked.
var ErrAlreadySent = errors.New("transaction already sent")

// TransactionFilter narrows ListTransactionsPage/CountTransactions.
type TransactionFilter struct {
	LaneID *int
	Sent   *bool
	Plate  string
}

// CreateTransaction inserts t and returns it with its assigned ID. Zero
// Created/ObservedAt values are filled with the current UTC time.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) (*domain.Transaction, error) {
	now := time.Now().UTC()
	if t.Created.IsZero() {
		t.Created = now
	}
	t.Created = t.Created.UTC()
	if t.ObservedAt.IsZero() {
		t.ObservedAt = t.Created
	}
	t.ObservedAt = t.ObservedAt.UTC()
	t.Sent = false
	t.SentAt = nil
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// NextTransaction returns the earliest row on laneID that sorts after the
// (after, afterID) watermark in (created, id) order, or ErrNotFound. Rows
// sharing a created instant are visited one by one. afterID 0 is a pure time
// watermark: every row created at that instant is skipped.
func NextTransaction(ctx context.Context, db *gorm.DB, laneID int, after time.Time, afterID uint) (*domain.Transaction, error) {
	var t domain.Transaction
	at := after.UTC()
	q := db.WithContext(ctx).Where("lane_id = ?", laneID)
	if afterID == 0 {
		q = q.Where("created > ?", at)
	} else {
		q = q.Where("(created > ? OR (created = ? AND id > ?))", at, at, afterID)
	}
	err := q.
		Order("created ASC, id ASC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkSent flips sent false→true for id. It returns ErrNotFound for an
// unknown id and ErrAlreadySent when the row was marked before.
func MarkSent(ctx context.Context, db *gorm.DB, id uint, at time.Time) error {
	at = at.UTC()
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]any{"sent": true, "sent_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := GetTransaction(ctx, db, id); err != nil {
		return err
	}
	return ErrAlreadySent
}

// GetTransaction fetches a row by ID.
func GetTransaction(ctx context.Context, db *gorm.DB, id uint) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTransactions returns the number of rows matching f.
func CountTransactions(ctx context.Context, db *gorm.DB, f TransactionFilter) (int64, error) {
	var n int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Transaction{}), f).Count(&n).Error
	return n, err
}

// ListTransactionsPage returns rows matching f, newest first (created DESC, id DESC).
func ListTransactionsPage(ctx context.Context, db *gorm.DB, f TransactionFilter, offset, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := applyFilter(db.WithContext(ctx), f).
		Order("created DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func applyFilter(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.LaneID != nil {
		q = q.Where("lane_id = ?", *f.LaneID)
	}
	if f.Sent != nil {
		q = q.Where("sent = ?", *f.Sent)
	}
	if f.Plate != "" {
		q = q.Where("plate = ?", f.Plate)
	}
	return q
}

// SeedSampleTransactions inserts a small fixed set of rows spread over the
// three default lanes, starting at base. Used for local provisioning only.
func SeedSampleTransactions(ctx context.Context, db *gorm.DB, base time.Time) (int, error) {
	samples := []struct {
		plate string
		dir   domain.Direction
		lane  int
		cam   int
	}{
		{"ABC123", domain.Inbound, 1, 101},
		{"DEF456", domain.Inbound, 1, 101},
		{"GHI789", domain.Outbound, 2, 102},
		{"JKL012", domain.Inbound, 1, 101},
		{"MNO345", domain.Outbound, 3, 103},
		{"PQR678", domain.Inbound, 2, 102},
	}
	rows := make([]domain.Transaction, 0, len(samples))
	for i, s := range samples {
		ts := base.Add(time.Duration(i) * 5 * time.Minute).UTC()
		rows = append(rows, domain.Transaction{
			Created:    ts,
			ObservedAt: ts,
			Plate:      s.plate,
			Confidence: 95,
			Direction:  s.dir,
			LaneID:     s.lane,
			CameraID:   s.cam,
		})
	}
	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

// GormLedger adapts the package functions to a handle-bound value so the
// service layer can depend on a narrow interface.
type GormLedger struct {
	DB *gorm.DB
}

// Append inserts t and returns the stored row.
func (l GormLedger) Append(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	return CreateTransaction(ctx, l.DB, t)
}

// Next returns the next row after the watermark on laneID (nil, nil when none).
func (l GormLedger) Next(ctx context.Context, laneID int, after time.Time, afterID uint) (*domain.Transaction, error) {
	t, err := NextTransaction(ctx, l.DB, laneID, after, afterID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// MarkSent marks id as sent at the given instant.
func (l GormLedger) MarkSent(ctx context.Context, id uint, at time.Time) error {
	return MarkSent(ctx, l.DB, id, at)
}
