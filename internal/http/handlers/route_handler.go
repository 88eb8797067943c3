// README: Stateless route handlers: optimize, split into batches, insert an order pair.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/routing"
)

type RouteHandler struct {
	cfg routing.Config
	now func() time.Time
}

func NewRouteHandler(cfg routing.Config) *RouteHandler {
	return &RouteHandler{cfg: cfg, now: time.Now}
}

type optimizeReq struct {
	Start    pointReq       `json:"start"`
	Stops    []routing.Stop `json:"stops"`
	MaxStops int            `json:"max_stops"`
}

type optimizeResp struct {
	Routes     []routing.OptimizedRoute      `json:"routes"`
	Violations []routing.ConstraintViolation `json:"violations,omitempty"`
}

// Optimize orders the stops for one driver, or splits them into routes of
// at most max_stops stops when max_stops is set.
func (h *RouteHandler) Optimize(c *gin.Context) {
	var req optimizeReq
	if !bind(c, &req) {
		return
	}
	start := req.Start.point()

	var routes []routing.OptimizedRoute
	if req.MaxStops > 0 {
		rs, err := routing.PlanMultiStopRoute(start, req.Stops, req.MaxStops, h.cfg)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		routes = rs
	} else {
		r, err := routing.OptimizeRoute(start, req.Stops, h.cfg)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		routes = []routing.OptimizedRoute{r}
	}

	resp := optimizeResp{Routes: routes}
	for _, r := range routes {
		resp.Violations = append(resp.Violations, routing.ValidateRouteConstraints(start, r.Stops, h.now(), h.cfg)...)
	}
	writeJSON(c, http.StatusOK, resp)
}

type insertReq struct {
	Start   pointReq       `json:"start"`
	Route   []routing.Stop `json:"route"`
	Pickup  routing.Stop   `json:"pickup"`
	Dropoff routing.Stop   `json:"dropoff"`
}

func (h *RouteHandler) Insert(c *gin.Context) {
	var req insertReq
	if !bind(c, &req) {
		return
	}
	ins, err := routing.InsertOrderPair(req.Start.point(), req.Route, req.Pickup, req.Dropoff)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ins)
}
