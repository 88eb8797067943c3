// README: Entry point; loads config, runs migrations, wires services and serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tawsil/internal/config"
	httptransport "tawsil/internal/http"
	"tawsil/internal/http/live"
	"tawsil/internal/infra"
	"tawsil/internal/logger"
	"tawsil/internal/modules/cashfloat"
	"tawsil/internal/modules/delivery"
	"tawsil/internal/modules/eta"
	"tawsil/internal/modules/incentive"
	"tawsil/internal/modules/location"
	"tawsil/internal/modules/order"
	"tawsil/internal/modules/pricing"
	"tawsil/internal/modules/routing"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/modules/weather"
	"tawsil/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	appLog := logger.New("tawsil-api", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.Migrate(cfg.Migrations, cfg.DB.DSN); err != nil {
		log.Fatal(err)
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
	defer redisClient.Close()

	tz := cfg.Pricing.Calendar.Location
	hub := live.NewHub(appLog)

	locationStore := location.NewStore(redisClient, cfg.Dispatch.LocationHistory)
	locationSvc := location.NewService(locationStore, cfg.Location, hub, appLog)

	pricingSvc := pricing.NewService(locationStore, pricing.NewStore(dbPool, tz), cfg.Pricing, appLog)
	settlementSvc := settlement.NewService(settlement.NewStore(dbPool), cfg.Settlement, appLog)
	cashSvc := cashfloat.NewService(cashfloat.NewStore(dbPool), cfg.CashFloat, appLog)
	incentiveSvc := incentive.NewService(incentive.NewStore(redisClient), cfg.Incentive, tz, appLog)
	orderSvc := order.NewService(order.NewStore(dbPool), appLog)
	weatherStore := weather.NewStore(redisClient, cfg.Dispatch.WeatherTTL, appLog)
	book := service.NewOrderBook(orderSvc)

	dispatchCfg := service.DefaultConfig()
	dispatchCfg.GeofenceRadiusKm = cfg.Dispatch.GeofenceRadiusKm

	dispatcher := service.NewDispatcher(service.Deps{
		Deliveries: delivery.NewService(delivery.NewStore(dbPool), appLog),
		Pricing:    pricingSvc,
		ETA:        eta.NewEngine(cfg.ETA),
		Settlement: settlementSvc,
		Cash:       cashSvc,
		Incentives: incentiveSvc,
		Registry:   book,
		Weather:    weatherStore,
		Publisher:  hub,
		Recorder:   book,
	}, dispatchCfg, appLog)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Dispatcher: dispatcher,
		Orders:     orderSvc,
		Location:   locationSvc,
		Pricing:    pricingSvc,
		Settlement: settlementSvc,
		Cash:       cashSvc,
		Incentives: incentiveSvc,
		Weather:    weatherStore,
		Hub:        hub,
		Routing:    routing.DefaultConfig(),
		TimeZone:   tz,
		WSOrigins:  cfg.WSOrigins,
		Log:        appLog,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLog.Error("http shutdown", logger.Error(err))
		}
	}()

	appLog.Info("http listening", logger.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	appLog.Info("http stopped")
}
