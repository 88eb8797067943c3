// README: Pricing handlers for fee quotes and per-zone demand forecasts.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tawsil/internal/geo"
	"tawsil/internal/modules/pricing"
)

type PricingHandler struct {
	pricing *pricing.Service
	loc     *time.Location
}

func NewPricingHandler(svc *pricing.Service, loc *time.Location) *PricingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &PricingHandler{pricing: svc, loc: loc}
}

type quoteReq struct {
	ZoneID       string     `json:"zone_id"`
	Zone         geo.Circle `json:"zone"`
	Pickup       pointReq   `json:"pickup"`
	Dropoff      pointReq   `json:"dropoff"`
	ActiveOrders int        `json:"active_orders"`
}

func (h *PricingHandler) Quote(c *gin.Context) {
	var req quoteReq
	if !bind(c, &req) {
		return
	}
	if req.ZoneID == "" || req.Zone.RadiusKm <= 0 {
		writeError(c, http.StatusBadRequest, "zone required")
		return
	}
	q, err := h.pricing.Quote(c.Request.Context(), pricing.QuoteRequest{
		ZoneID:       req.ZoneID,
		Zone:         req.Zone,
		Pickup:       req.Pickup.point(),
		Dropoff:      req.Dropoff.point(),
		ActiveOrders: req.ActiveOrders,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

// Forecast takes ?date=YYYY-MM-DD and defaults to today.
func (h *PricingHandler) Forecast(c *gin.Context) {
	zoneID := c.Param("id")
	if zoneID == "" {
		writeError(c, http.StatusBadRequest, "missing zone id")
		return
	}
	day := time.Now().In(h.loc)
	if v := c.Query("date"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid date")
			return
		}
		day = d
	}
	f, err := h.pricing.Forecast(c.Request.Context(), zoneID, day)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, f)
}
