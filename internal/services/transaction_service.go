// Package services – TransactionService
//
// TransactionService is the read side of the ledger used by the HTTP API:
// paginated listing and a cheap fingerprint for conditional responses.
package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/repo"
)

// TransactionService reads ledger rows through the repo package.
type TransactionService struct {
	DB *gorm.DB
}

// NewTransactionService constructs a TransactionService over db.
func NewTransactionService(db *gorm.DB) *TransactionService {
	return &TransactionService{DB: db}
}

// ListPage returns one page of rows matching f (newest first) and the total count.
func (s *TransactionService) ListPage(ctx context.Context, f repo.TransactionFilter, page, pageSize int) ([]domain.Transaction, int64, error) {
	ctx, span := otel.Tracer("services/transactions").Start(ctx, "TransactionService.ListPage")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountTransactions(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transaction{}, 0, nil
	}
	items, err := repo.ListTransactionsPage(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// Get returns a single row or repo.ErrNotFound.
func (s *TransactionService) Get(ctx context.Context, id uint) (*domain.Transaction, error) {
	return repo.GetTransaction(ctx, s.DB, id)
}

// Fingerprint summarizes the rows matching f. It changes whenever a row is
// appended or marked sent.
func (s *TransactionService) Fingerprint(ctx context.Context, f repo.TransactionFilter) (string, error) {
	count, maxID, lastSent, err := repo.TransactionsStats(ctx, s.DB, f)
	if err != nil {
		return "", err
	}
	var ts int64
	if lastSent != nil {
		ts = lastSent.UnixNano()
	}
	return fmt.Sprintf("%d:%d:%d", count, maxID, ts), nil
}
