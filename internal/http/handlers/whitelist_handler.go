// Whitelist HTTP handlers.
//
//   - GET  /whitelist           (current snapshot)
//   - POST /whitelist/refresh   (refresh now)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/barrier-gateway/internal/domain"
)

// WhitelistResponse describes the current authorization snapshot.
type WhitelistResponse struct {
	Entries     []domain.AuthorizationEntry `json:"entries"`
	Count       int                         `json:"count"`
	LastRefresh *time.Time                  `json:"last_refresh,omitempty"`
	Degraded    bool                        `json:"degraded"`
}

func (h *Handlers) whitelistSnapshot() WhitelistResponse {
	entries := h.whitelist.Entries()
	resp := WhitelistResponse{
		Entries:  entries,
		Count:    len(entries),
		Degraded: h.whitelist.Degraded(),
	}
	if at := h.whitelist.LastRefresh(); !at.IsZero() {
		resp.LastRefresh = &at
	}
	return resp
}

// GetWhitelist godoc
// @ID          getWhitelist
// @Summary     Show the whitelist
// @Description Returns the cached authorized plates and the refresh state.
// @Tags        Whitelist
// @Produce     json
// @Success     200  {object}  handlers.WhitelistResponse
// @Router      /whitelist [get]
func (h *Handlers) GetWhitelist(c *gin.Context) {
	ok(c, http.StatusOK, h.whitelistSnapshot())
}

// RefreshWhitelist godoc
// @ID          refreshWhitelist
// @Summary     Refresh the whitelist
// @Description Fetches every configured source now. Fails with 502 when no source answered; the previous snapshot is kept.
// @Tags        Whitelist
// @Produce     json
// @Success     200  {object}  handlers.WhitelistResponse
// @Failure     502  {object}  handlers.ErrorResponse  "All sources failed"
// @Router      /whitelist/refresh [post]
func (h *Handlers) RefreshWhitelist(c *gin.Context) {
	if !h.whitelist.Refresh(c.Request.Context()) {
		fail(c, http.StatusBadGateway, ErrCodeRefreshFailed, "no whitelist source could be reached")
		return
	}
	ok(c, http.StatusOK, h.whitelistSnapshot())
}
