// Barrier HTTP handlers.
//
// This file exposes operator actions on barriers:
//   - GET  /barriers                (status of every barrier)
//   - POST /barriers/{name}/pulse   (manual pulse)
//   - PUT  /barriers/{name}/enabled (toggle scheduled sweeps)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/services"
)

// ListBarriersResponse wraps barrier snapshots.
type ListBarriersResponse struct {
	Barriers []domain.BarrierStatus `json:"barriers"`
}

// PulseResponse reports the outcome of a manual pulse.
type PulseResponse struct {
	Pulsed  bool                 `json:"pulsed" example:"true"`
	Barrier domain.BarrierStatus `json:"barrier"`
}

// SetEnabledRequest is the JSON payload for toggling a barrier.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required" example:"false"`
}

// ListBarriers godoc
// @ID          listBarriers
// @Summary     List barriers
// @Description Returns the current state of every configured barrier.
// @Tags        Barriers
// @Produce     json
// @Success     200  {object}  handlers.ListBarriersResponse
// @Router      /barriers [get]
func (h *Handlers) ListBarriers(c *gin.Context) {
	ok(c, http.StatusOK, ListBarriersResponse{Barriers: h.barriers.Statuses()})
}

// PulseBarrier godoc
// @ID          pulseBarrier
// @Summary     Pulse a barrier
// @Description Sends one manual pulse, bypassing the enabled flag and the whitelist.
// @Tags        Barriers
// @Produce     json
// @Param       name  path      string  true  "Barrier name"  example(Barrier1)
// @Success     200   {object}  handlers.PulseResponse
// @Failure     404   {object}  handlers.ErrorResponse  "Barrier not found"
// @Failure     502   {object}  handlers.ErrorResponse  "Controller did not accept the pulse"
// @Router      /barriers/{name}/pulse [post]
func (h *Handlers) PulseBarrier(c *gin.Context) {
	pulsed, st, err := h.barriers.Pulse(c.Request.Context(), c.Param("name"))
	if errors.Is(err, services.ErrBarrierNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "barrier not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if !pulsed {
		fail(c, http.StatusBadGateway, ErrCodePulseFailed, "barrier controller did not accept the pulse")
		return
	}
	ok(c, http.StatusOK, PulseResponse{Pulsed: true, Barrier: st})
}

// SetBarrierEnabled godoc
// @ID          setBarrierEnabled
// @Summary     Enable or disable a barrier
// @Description Toggles scheduled sweeps for the barrier. Camera and manual pulses are unaffected.
// @Tags        Barriers
// @Accept      json
// @Produce     json
// @Param       name  path      string                      true  "Barrier name"  example(Barrier1)
// @Param       body  body      handlers.SetEnabledRequest  true  "Enabled flag"
// @Success     200   {object}  domain.BarrierStatus
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Barrier not found"
// @Router      /barriers/{name}/enabled [put]
func (h *Handlers) SetBarrierEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	st, err := h.barriers.SetEnabled(c.Param("name"), *req.Enabled)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "barrier not found")
		return
	}
	ok(c, http.StatusOK, st)
}
