// README: Location handlers: batched driver positions, going offline, geofence lookups.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/location"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type batchReq struct {
	Updates []location.Update `json:"updates"`
}

// Batch accepts positions from many drivers at once. Duplicates and stale
// reports are dropped, so clients may safely resend.
func (h *LocationHandler) Batch(c *gin.Context) {
	var req batchReq
	if !bind(c, &req) {
		return
	}
	if len(req.Updates) == 0 {
		writeError(c, http.StatusBadRequest, "no updates")
		return
	}
	results, err := h.location.BatchUpdate(c.Request.Context(), req.Updates)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"results": results})
}

func (h *LocationHandler) Offline(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.location.GoOffline(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "offline"})
}

type geofenceReq struct {
	Position pointReq        `json:"position"`
	Previous *pointReq       `json:"previous,omitempty"`
	Zones    []location.Zone `json:"zones"`
}

type geofenceResp struct {
	Inside []location.Zone          `json:"inside"`
	Events []location.GeofenceEvent `json:"events,omitempty"`
}

func (h *LocationHandler) Geofence(c *gin.Context) {
	var req geofenceReq
	if !bind(c, &req) {
		return
	}
	p := req.Position.point()
	if err := p.Validate(); err != nil {
		writeServiceError(c, err)
		return
	}
	resp := geofenceResp{Inside: location.ZonesContaining(p, req.Zones)}
	if req.Previous != nil {
		prev := req.Previous.point()
		resp.Events = location.DetectGeofenceEvents(&prev, p, req.Zones)
	}
	writeJSON(c, http.StatusOK, resp)
}
