// README: API gateway; builds the gin engine and delegates to module services.
package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"tawsil/internal/http/handlers"
	"tawsil/internal/http/live"
	"tawsil/internal/http/middleware"
	"tawsil/internal/logger"
	"tawsil/internal/modules/cashfloat"
	"tawsil/internal/modules/incentive"
	"tawsil/internal/modules/location"
	"tawsil/internal/modules/order"
	"tawsil/internal/modules/pricing"
	"tawsil/internal/modules/routing"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/modules/weather"
	"tawsil/internal/service"
)

type ServerDeps struct {
	Dispatcher *service.Dispatcher
	Orders     *order.Service
	Location   *location.Service
	Pricing    *pricing.Service
	Settlement *settlement.Service
	Cash       *cashfloat.Service
	Incentives *incentive.Service
	Weather    *weather.Store
	Hub        *live.Hub
	Routing    routing.Config
	// TimeZone resolves forecast dates.
	TimeZone *time.Location
	// WSOrigins are allowed websocket origin patterns.
	WSOrigins []string
	Log       logger.ILogger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log))
	registerRoutes(r, routeHandlers{
		delivery:   handlers.NewDeliveryHandler(s.deps.Dispatcher),
		order:      handlers.NewOrderHandler(s.deps.Orders),
		route:      handlers.NewRouteHandler(s.deps.Routing),
		location:   handlers.NewLocationHandler(s.deps.Location),
		pricing:    handlers.NewPricingHandler(s.deps.Pricing, s.deps.TimeZone),
		cash:       handlers.NewCashFloatHandler(s.deps.Cash),
		settlement: handlers.NewSettlementHandler(s.deps.Settlement, s.deps.Incentives),
		incentive:  handlers.NewIncentiveHandler(s.deps.Incentives),
		weather:    handlers.NewWeatherHandler(s.deps.Weather),
		live:       handlers.NewLiveHandler(s.deps.Hub, s.deps.WSOrigins),
	})
	return r
}
