package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "pvs_monitor/docs"
	"pvs_monitor/internal/config"
	"pvs_monitor/internal/handlers"
	"pvs_monitor/internal/logger"
	"pvs_monitor/internal/metrics"
	"pvs_monitor/internal/mqtt"
	"pvs_monitor/internal/pvs"
	"pvs_monitor/internal/repository"
	"pvs_monitor/internal/repository/db"
	"pvs_monitor/internal/server"
	"pvs_monitor/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// @title                       PVS Monitor API
// @version                     1.0
// @description                 Read-only monitoring of a SunPower PVS gateway.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	configPath := flag.String("config", "configs/config.yml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(sqlDB)

	monitor := pvs.NewMonitor(pvs.Options{
		Host:           cfg.PVS.Host,
		SerialSuffix:   cfg.PVS.SerialSuffix,
		RequestTimeout: cfg.PVS.RequestTimeout,
		SessionTTL:     cfg.PVS.SessionTTL,
		Retry: pvs.RetryPolicy{
			MaxAttempts:     cfg.PVS.RetryAttempts,
			InitialInterval: cfg.PVS.RetryInitial,
			MaxInterval:     cfg.PVS.RetryMax,
			Retryable:       pvs.IsTransient,
		},
		Logger: log.Named("pvs"),
	})

	publisher := connectMQTT(cfg.MQTT, log)

	naming := service.NamingOptions{
		Descriptive:  cfg.Naming.Descriptive,
		ProductNames: cfg.Naming.ProductNames,
	}
	var statePub service.StatePublisher
	if publisher != nil {
		statePub = publisher
	}
	polls := service.NewPollService(monitor, repos, statePub, service.PollOptions{
		Interval:           cfg.PVS.PollInterval,
		PollTimeout:        cfg.PVS.PollTimeout,
		SetupRetryInterval: cfg.PVS.SetupRetryInterval,
		Naming:             naming,
		Logger:             log.Named("poll"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := polls.Restore(ctx); err != nil {
		log.Warnw("snapshot_restore_failed", "err", err)
	}
	polls.Start(ctx)

	services := service.NewService(repos, polls, service.Options{
		Naming: naming,
		Auth: service.AuthOptions{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
		},
	})
	apiHandler := handlers.NewHandler(services, log.Named("http"))
	if cfg.Metrics.Enabled {
		apiHandler.WithMetrics(cfg.Metrics.Path, metricsHandler(polls))
	}

	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	waitForShutdown(cancel, srv, log)

	polls.Stop()
	if publisher != nil {
		publisher.Close()
	}
}

// connectMQTT returns nil when MQTT is disabled or the broker is unreachable; the monitor
// keeps serving the HTTP API either way.
func connectMQTT(cfg config.MQTTConfig, log *logger.Logger) *mqtt.Publisher {
	if !cfg.Enabled {
		return nil
	}
	pub, err := mqtt.Connect(cfg, log.Named("mqtt"))
	if err != nil {
		log.Errorw("mqtt_connect_failed", "err", err, "broker", cfg.Broker)
		return nil
	}
	log.Infow("mqtt_connected", "broker", cfg.Broker, "prefix", cfg.TopicPrefix)
	return pub
}

// metricsHandler serves gateway metrics alongside the Go runtime collectors from a
// dedicated registry.
func metricsHandler(polls *service.PollService) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(polls),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
	log.Infow("http_server_started", "port", port)
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
