package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"aggregator/internal/broker"
	"aggregator/internal/config"
	"aggregator/internal/consumer"
	"aggregator/internal/ingest"
	"aggregator/internal/ledger"
	"aggregator/internal/logger"
	"aggregator/pkg/health"
	"aggregator/pkg/metrics"
	"aggregator/pkg/middleware"
	"aggregator/pkg/ratelimit"
)

type App struct {
	Config *config.Config
	Logger logger.Logger

	store    *ledger.Store
	consumer *consumer.Consumer
	source   broker.Source
	server   *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("aggregator-service")
	}
	return &App{
		Config: cfg,
		Logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	store, err := ledger.Open(a.Config.Ledger.Path, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	a.store = store

	a.initConsumer()

	if a.Config.Broker.Enabled {
		a.source = broker.NewKafkaSource(a.Config.Broker.Kafka, a.consumer, a.Logger)
	}

	metrics.RegisterIngestMetrics()

	a.initHTTPServer()

	return nil
}

func (a *App) initConsumer() {
	var proc consumer.Processor = consumer.NewSimulatedProcessor(a.Config.Consumer.ProcessingLatency, a.Logger)

	if a.Config.Consumer.Breaker.Enabled {
		proc = consumer.NewBreakerProcessor(proc, consumer.BreakerConfig{
			MaxRequests: a.Config.Consumer.Breaker.MaxRequests,
			Interval:    a.Config.Consumer.Breaker.Interval,
			Timeout:     a.Config.Consumer.Breaker.Timeout,
			MinRequests: a.Config.Consumer.Breaker.MinRequests,
			FailureRate: a.Config.Consumer.Breaker.FailureRate,
		}, a.Logger)
		a.Logger.Infow("Circuit breaker enabled for downstream processor")
	}

	a.consumer = consumer.New(a.store, proc, a.Logger)
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(a.Logger),
		middleware.RecoveryMiddleware(a.Logger),
	)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewStorageChecker("ledger", a.store))

	var admin ingest.Admin
	if a.Config.Admin.EnableReset {
		admin = a.store
	}

	handler := ingest.NewHandler(a.consumer, admin, healthRegistry, a.Logger)

	var publishMiddleware []gin.HandlerFunc
	if a.Config.RateLimit.Enabled {
		rlCfg := ratelimit.DefaultConfig()
		rlCfg.RPS = a.Config.RateLimit.RPS
		rlCfg.Burst = a.Config.RateLimit.Burst
		publishMiddleware = append(publishMiddleware, ratelimit.Middleware(rlCfg))
	}

	handler.RegisterRoutes(router, publishMiddleware...)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.consumer.Start(gCtx)
	})

	if a.source != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting broker ingest source",
				"topic", a.Config.Broker.Kafka.InputTopic,
			)
			if err := a.source.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		a.updateLedgerMetrics(gCtx)
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// updateLedgerMetrics periodically refreshes the ledger size gauge.
func (a *App) updateLedgerMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			counts, err := a.store.Counts(ctx)
			if err != nil {
				a.Logger.Debugw("Failed to read ledger counts for metrics",
					"error", err,
				)
				continue
			}
			metrics.SetLedgerSize(counts.Total)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) shutdown() error {
	a.Logger.Infow("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	a.consumer.Stop()

	if a.source != nil {
		if err := a.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker source close: %w", err))
		}
	}

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("ledger close: %w", err))
	}

	a.Logger.Infow("Shutdown complete", "queued", a.consumer.QueueDepth())

	return errors.Join(errs...)
}
