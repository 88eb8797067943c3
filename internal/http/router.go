// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawsil/internal/http/handlers"
)

type routeHandlers struct {
	delivery   *handlers.DeliveryHandler
	order      *handlers.OrderHandler
	route      *handlers.RouteHandler
	location   *handlers.LocationHandler
	pricing    *handlers.PricingHandler
	cash       *handlers.CashFloatHandler
	settlement *handlers.SettlementHandler
	incentive  *handlers.IncentiveHandler
	weather    *handlers.WeatherHandler
	live       *handlers.LiveHandler
}

func registerRoutes(r *gin.Engine, h routeHandlers) {
	api := r.Group("/api")

	api.POST("/orders", h.order.Import)
	api.GET("/orders/:id", h.order.Get)
	api.POST("/orders/:id/cancel", h.order.Cancel)
	api.PUT("/drivers/:id", h.order.RegisterDriver)
	api.GET("/drivers/:id", h.order.Driver)

	api.POST("/deliveries", h.delivery.Create)
	api.GET("/deliveries/:id", h.delivery.Get)
	api.POST("/deliveries/:id/assign", h.delivery.Assign)
	api.POST("/deliveries/:id/status", h.delivery.Advance)
	api.PUT("/deliveries/:id/location", h.delivery.Track)
	api.GET("/deliveries/:id/eta", h.delivery.ETA)
	api.POST("/deliveries/:id/settle", h.delivery.Settle)

	api.POST("/routes/plan", h.delivery.PlanRoute)
	api.POST("/routes/optimize", h.route.Optimize)
	api.POST("/routes/insert", h.route.Insert)

	api.POST("/drivers/locations", h.location.Batch)
	api.DELETE("/drivers/:id/location", h.location.Offline)
	api.POST("/geofences/check", h.location.Geofence)

	api.GET("/drivers/:id/cash", h.cash.Get)
	api.POST("/drivers/:id/cash/remit", h.cash.Remit)
	api.POST("/drivers/:id/cash/reconcile", h.cash.Reconcile)
	api.POST("/drivers/:id/cash/trust", h.cash.RefreshTrust)

	api.POST("/quotes", h.pricing.Quote)
	api.GET("/zones/:id/forecast", h.pricing.Forecast)

	api.GET("/orders/:id/ledger", h.settlement.Ledger)
	api.POST("/orders/:id/refunds", h.settlement.Refund)
	api.POST("/payouts", h.settlement.Payouts)
	api.GET("/incentives/budget", h.settlement.Budget)
	api.POST("/drivers/:id/quests", h.incentive.CreateQuest)
	api.GET("/drivers/:id/quests", h.incentive.DriverQuests)
	api.POST("/quests/:id/start", h.incentive.StartQuest)
	api.POST("/quests/:id/claim", h.incentive.ClaimQuest)
	api.POST("/campaigns", h.incentive.CreateCampaign)
	api.GET("/campaigns", h.incentive.Campaigns)
	api.GET("/campaigns/:id", h.incentive.Campaign)

	api.PUT("/cities/:city/weather", h.weather.Set)
	api.GET("/cities/:city/weather", h.weather.Get)

	r.GET("/ws/deliveries/:id", h.live.Stream)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
}
