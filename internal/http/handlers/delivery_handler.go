// README: Delivery handlers for create/get/assign/status/location/eta and driver route planning.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/delivery"
	"tawsil/internal/service"
	"tawsil/internal/types"
)

type DeliveryHandler struct {
	dispatch *service.Dispatcher
}

func NewDeliveryHandler(d *service.Dispatcher) *DeliveryHandler {
	return &DeliveryHandler{dispatch: d}
}

type createDeliveryReq struct {
	OrderID string `json:"order_id"`
}

func (h *DeliveryHandler) Create(c *gin.Context) {
	var req createDeliveryReq
	if !bind(c, &req) {
		return
	}
	if !isValidID(req.OrderID) {
		writeError(c, http.StatusBadRequest, "invalid order_id")
		return
	}
	out, err := h.dispatch.CreateDelivery(c.Request.Context(), types.ID(req.OrderID))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, out)
}

func (h *DeliveryHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.dispatch.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

type assignReq struct {
	DriverID string `json:"driver_id"`
}

func (h *DeliveryHandler) Assign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignReq
	if !bind(c, &req) {
		return
	}
	if !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "invalid driver_id")
		return
	}
	t, err := h.dispatch.AssignDriver(c.Request.Context(), id, types.ID(req.DriverID))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

type statusReq struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// defaultReason stands in when the driver app sends no reason; every stored
// transition carries one.
const defaultReason = "status update via api"

func (h *DeliveryHandler) Advance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusReq
	if !bind(c, &req) {
		return
	}
	to := delivery.Status(req.Status)
	if !to.Valid() {
		writeError(c, http.StatusBadRequest, "unknown status")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultReason
	}
	out, err := h.dispatch.AdvanceDelivery(c.Request.Context(), id, to, reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *DeliveryHandler) Track(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req pointReq
	if !bind(c, &req) {
		return
	}
	out, err := h.dispatch.TrackDriver(c.Request.Context(), id, req.point())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *DeliveryHandler) ETA(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pred, err := h.dispatch.PredictETA(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pred)
}

// Settle retries settlement of a delivered delivery; settled orders are
// returned as booked.
func (h *DeliveryHandler) Settle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.dispatch.SettleDelivery(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

type planReq struct {
	Start       pointReq `json:"start"`
	DeliveryIDs []string `json:"delivery_ids"`
}

func (h *DeliveryHandler) PlanRoute(c *gin.Context) {
	var req planReq
	if !bind(c, &req) {
		return
	}
	ids := make([]types.ID, 0, len(req.DeliveryIDs))
	for _, id := range req.DeliveryIDs {
		if !isValidID(id) {
			writeError(c, http.StatusBadRequest, "invalid delivery id")
			return
		}
		ids = append(ids, types.ID(id))
	}
	r, err := h.dispatch.PlanDriverRoute(c.Request.Context(), req.Start.point(), ids)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
