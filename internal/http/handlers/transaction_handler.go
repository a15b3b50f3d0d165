// Transaction HTTP handlers.
//
//   - GET /transactions        (list, paginated, ETag support)
//   - GET /transactions/{id}   (single row)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/repo"
)

// ListTransactionsResponse wraps a page of ledger rows and pagination information.
type ListTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

// transactionFilter reads lane_id, sent and plate query params.
func transactionFilter(c *gin.Context) (repo.TransactionFilter, error) {
	var f repo.TransactionFilter
	if v := c.Query("lane_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("lane_id must be an integer")
		}
		f.LaneID = &n
	}
	if v := c.Query("sent"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("sent must be true or false")
		}
		f.Sent = &b
	}
	f.Plate = strings.TrimSpace(c.Query("plate"))
	return f, nil
}

// ListTransactions godoc
// @ID          listTransactions
// @Summary     List ledger transactions (paginated)
// @Description Returns detections newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Transactions
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       lane_id        query   int     false "Filter by lane"
// @Param       sent           query   bool    false "Filter by sent flag"
// @Param       plate          query   string  false "Filter by exact plate"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(500) default(50)
// @Success     200  {object} handlers.ListTransactionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /transactions [get]
func (h *Handlers) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	f, err := transactionFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if fp, err := h.txns.Fingerprint(ctx, f); err == nil {
		etag := fmt.Sprintf(`W/"txns:%s:%d:%d"`, fp, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.txns.ListPage(ctx, f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListTransactionsResponse{
		Transactions: items,
		Pagination:   newPagination(page, pageSize, total),
	})
}

// GetTransaction godoc
// @ID          getTransaction
// @Summary     Get one ledger transaction
// @Tags        Transactions
// @Produce     json
// @Param       id   path      int  true  "Transaction ID"
// @Success     200  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /transactions/{id} [get]
func (h *Handlers) GetTransaction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	t, err := h.txns.Get(c.Request.Context(), uint(id))
	if errors.Is(err, repo.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, t)
}
