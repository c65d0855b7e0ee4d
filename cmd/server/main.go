package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "idlookup/internal/jwt_token"
	"idlookup/internal/lookup/gateway"
	lookupmetrics "idlookup/internal/lookup/metrics"
	"idlookup/internal/platform/config"
	"idlookup/internal/platform/httpserver"
	"idlookup/internal/platform/logger"
	httpmetrics "idlookup/internal/platform/metrics"
	queryhandler "idlookup/internal/query/handler"
	querymetrics "idlookup/internal/query/metrics"
	"idlookup/internal/query/service"
	"idlookup/pkg/platform/circuit"
	authmw "idlookup/pkg/platform/middleware/auth"
	"idlookup/pkg/platform/middleware/metadata"
	"idlookup/pkg/platform/middleware/request"
	"idlookup/pkg/platform/middleware/requesttime"
)

// main wires dependencies, serves HTTP and runs the background loops until
// SIGINT or SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	lm := lookupmetrics.New()
	breaker := circuit.New("identity-registry",
		circuit.WithWindowSize(cfg.Breaker.WindowSize),
		circuit.WithMinimumCalls(cfg.Breaker.MinimumCalls),
		circuit.WithFailureRate(cfg.Breaker.FailureRate),
		circuit.WithCooldown(cfg.Breaker.Cooldown),
		circuit.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
		circuit.WithListener(gateway.StateListener(log, lm)),
	)
	gw, err := gateway.New(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		Endpoint:       cfg.Gateway.Endpoint,
		ServiceID:      cfg.Gateway.ServiceID,
		ConnectTimeout: cfg.Gateway.ConnectTimeout,
		ReadTimeout:    cfg.Gateway.ReadTimeout,
		Retry: gateway.RetryPolicy{
			MaxAttempts:    cfg.Gateway.MaxAttempts,
			InitialBackoff: cfg.Gateway.InitialBackoff,
			Multiplier:     cfg.Gateway.Multiplier,
			MaxBackoff:     cfg.Gateway.MaxBackoff,
		},
	},
		gateway.WithLogger(log),
		gateway.WithMetrics(lm),
		gateway.WithCache(buildCache(cfg, infra, lm)),
		gateway.WithBreaker(breaker),
	)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	qm := querymetrics.New()
	dispatcher := service.NewDispatcher(cfg.Query.AsyncWorkers, cfg.Query.AsyncQueue, log, qm.SetQueueDepth)
	svc, err := service.New(infra.accounts, infra.accounts, infra.queries, gw,
		service.WithLogger(log),
		service.WithMetrics(qm),
		service.WithAuditPublisher(infra.auditor),
		service.WithDispatcher(dispatcher),
		service.WithUnitCost(cfg.Query.UnitCost),
		service.WithBillCircuitOpen(cfg.Query.BillCircuitOpen),
		service.WithCompletionTimeout(cfg.Query.CompletionTimeout),
		service.WithStaleAfter(cfg.Query.StaleAfter),
		service.WithLocation(cfg.Query.Location()),
	)
	if err != nil {
		return fmt.Errorf("build query service: %w", err)
	}

	health := newHealthReporter(gw, infra.pingers())
	router := chi.NewRouter()
	router.Use(request.Recovery(log))
	router.Use(request.RequestID)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(request.Logger(log))
	router.Use(httpmetrics.New().Middleware)
	router.Get("/health", health.ServeHTTP)
	router.Handle("/metrics", promhttp.Handler())

	validator := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience).Validator()
	queryhandler.New(svc,
		queryhandler.WithLogger(log),
		queryhandler.WithMiddleware(request.ContentTypeJSON, authmw.RequireAuth(validator, log)),
		queryhandler.WithRateLimit(buildRateLimiter(cfg, infra, log).QueryLimit()),
	).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting idlookup", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		svc.RunSweeper(gctx, cfg.Query.SweepInterval)
		return nil
	})
	g.Go(func() error {
		health.Run(gctx, cfg.Gateway.HealthInterval, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	// The dispatcher has drained, so no completion can emit after the publisher closes.
	err = g.Wait()
	infra.auditor.Close()
	return err
}
