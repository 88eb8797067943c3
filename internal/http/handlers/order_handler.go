// README: Order handlers: importing accepted orders, cancellation, driver profiles.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawsil/internal/geo"
	"tawsil/internal/modules/order"
	"tawsil/internal/types"
)

type OrderHandler struct {
	orders *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{orders: svc}
}

type importOrderReq struct {
	OrderID       string     `json:"order_id"`
	RestaurantID  string     `json:"restaurant_id"`
	City          string     `json:"city"`
	ZoneID        string     `json:"zone_id"`
	Zone          geo.Circle `json:"zone"`
	Pickup        pointReq   `json:"pickup"`
	Dropoff       pointReq   `json:"dropoff"`
	PaymentMethod string     `json:"payment_method"`
	Amount        int64      `json:"amount"`
	Tip           int64      `json:"tip"`
}

func (h *OrderHandler) Import(c *gin.Context) {
	var req importOrderReq
	if !bind(c, &req) {
		return
	}
	if !isValidID(req.OrderID) || !isValidID(req.RestaurantID) {
		writeError(c, http.StatusBadRequest, "invalid order or restaurant id")
		return
	}
	o, err := h.orders.Import(c.Request.Context(), order.ImportCommand{
		OrderID:       types.ID(req.OrderID),
		RestaurantID:  types.ID(req.RestaurantID),
		City:          req.City,
		ZoneID:        req.ZoneID,
		Zone:          req.Zone,
		Pickup:        req.Pickup.point(),
		Dropoff:       req.Dropoff.point(),
		PaymentMethod: types.PaymentMethod(req.PaymentMethod),
		Amount:        req.Amount,
		Tip:           req.Tip,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelReq
	if !bind(c, &req) {
		return
	}
	o, err := h.orders.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type driverReq struct {
	VehicleType         string `json:"vehicle_type"`
	CompletedDeliveries int    `json:"completed_deliveries"`
}

// RegisterDriver is idempotent; a second call only changes the vehicle.
func (h *OrderHandler) RegisterDriver(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req driverReq
	if !bind(c, &req) {
		return
	}
	d, err := h.orders.RegisterDriver(c.Request.Context(), order.DriverCommand{
		DriverID:            id,
		VehicleType:         req.VehicleType,
		CompletedDeliveries: req.CompletedDeliveries,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *OrderHandler) Driver(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.orders.Driver(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}
