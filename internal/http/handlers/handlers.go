// Package handlers provides HTTP handler implementations for the public API.
//
// This file declares the service contracts consumed by the handlers and the
// Handlers type that groups them. Handlers are transport-thin: they validate
// input, call the engine, and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/repo"
	"github.com/tbourn/barrier-gateway/internal/services"
	"github.com/tbourn/barrier-gateway/internal/utils"
)

//
// Service contracts (context-aware)
//

// IngestService accepts normalized camera detections.
type IngestService interface {
	Ingest(ctx context.Context, msg services.CameraMessage) (services.IngestResult, error)
	IngestBatch(ctx context.Context, msgs []services.CameraMessage) services.BatchResult
}

// BarrierService exposes operator actions on the configured barriers.
type BarrierService interface {
	Statuses() []domain.BarrierStatus
	Pulse(ctx context.Context, name string) (bool, domain.BarrierStatus, error)
	SetEnabled(name string, enabled bool) (domain.BarrierStatus, error)
}

// WhitelistService exposes the authorization cache.
type WhitelistService interface {
	Refresh(ctx context.Context) bool
	Entries() []domain.AuthorizationEntry
	LastRefresh() time.Time
	Degraded() bool
}

// TransactionService is the read side of the ledger.
type TransactionService interface {
	ListPage(ctx context.Context, f repo.TransactionFilter, page, pageSize int) ([]domain.Transaction, int64, error)
	Get(ctx context.Context, id uint) (*domain.Transaction, error)
	Fingerprint(ctx context.Context, f repo.TransactionFilter) (string, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the gateway.
type Handlers struct {
	ingest    IngestService
	barriers  BarrierService
	whitelist WhitelistService
	txns      TransactionService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(ingest IngestService, barriers BarrierService, whitelist WhitelistService, txns TransactionService) *Handlers {
	return &Handlers{ingest: ingest, barriers: barriers, whitelist: whitelist, txns: txns}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 500
	)
	page = utils.QueryInt(c.Query("page"), defaultPage, 1, 0)
	pageSize = utils.QueryInt(c.Query("page_size"), defaultPageSize, 1, maxPageSize)
	return
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
