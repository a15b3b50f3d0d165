// Camera ingestion handler.
//
//   - POST /camera   (single detection or {"vrmMessages": [...]})
//
// The response contract predates this service and is consumed by camera
// firmware, so errors use a bare {"error": "..."} body.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/barrier-gateway/internal/http/middleware"
	"github.com/tbourn/barrier-gateway/internal/services"
)

// CameraResponse reports how many detections of a request were stored.
type CameraResponse struct {
	// Saved is true when at least one detection was persisted.
	Saved bool `json:"saved" example:"true"`
	// Count is the number of detections persisted.
	Count int `json:"count" example:"1"`
	// Suppressed counts detections dropped as repeats.
	Suppressed int `json:"suppressed" example:"0"`
	// Failed counts skipped batch entries.
	Failed int `json:"failed,omitempty" example:"0"`
}

// PostCamera godoc
// @ID          postCamera
// @Summary     Ingest camera detections
// @Description Accepts one detection object or a batch under "vrmMessages". Repeats within the suppression window are acknowledged but not stored.
// @Tags        Camera
// @Accept      json
// @Produce     json
// @Param       body  body      services.CameraMessage  true  "Detection payload"
// @Success     200   {object}  handlers.CameraResponse
// @Failure     400   {object}  map[string]string  "Unparseable payload"
// @Failure     500   {object}  map[string]string  "Ledger write failed"
// @Router      /camera [post]
func (h *Handlers) PostCamera(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		plainError(c, http.StatusBadRequest, "could not read body")
		return
	}
	msgs, batch, err := services.NormalizePayload(raw)
	if err != nil {
		plainError(c, http.StatusBadRequest, err.Error())
		return
	}
	lg := middleware.LoggerFrom(c)
	ctx := c.Request.Context()

	if !batch {
		res, err := h.ingest.Ingest(ctx, msgs[0])
		if err != nil {
			if errors.Is(err, services.ErrNoIdentity) || errors.Is(err, services.ErrNoBarrier) {
				plainError(c, http.StatusBadRequest, err.Error())
				return
			}
			lg.Error().Err(err).Msg("camera detection not stored")
			plainError(c, http.StatusInternalServerError, services.ErrNotStored.Error())
			return
		}
		resp := CameraResponse{}
		if res.Outcome == services.Suppressed {
			resp.Suppressed = 1
		} else {
			resp.Saved, resp.Count = true, 1
		}
		lg.Info().Str("plate", msgs[0].Vrm).Str("outcome", res.Outcome.String()).Msg("camera data received")
		ok(c, http.StatusOK, resp)
		return
	}

	res := h.ingest.IngestBatch(ctx, msgs)
	resp := CameraResponse{
		Saved:      res.Saved > 0,
		Count:      res.Saved,
		Suppressed: res.Suppressed,
		Failed:     res.Failed,
	}
	lg.Info().Int("records", len(msgs)).Int("saved", res.Saved).Int("suppressed", res.Suppressed).Int("failed", res.Failed).Msg("camera batch received")

	if len(msgs) > 0 && res.Failed == len(msgs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "no valid detections in batch",
			"failed": res.Failed,
		})
		return
	}
	ok(c, http.StatusOK, resp)
}
