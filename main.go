package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zhima-Mochi/modushop/internal/app"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/modushop/internal/observability"
)

func main() {
	serviceName := getenvDefault("SERVICE_NAME", "modushop")
	env := getenvDefault("ENV", "dev")
	httpAddr := getenvDefault("HTTP_ADDR", ":8080")
	dbPath := getenvDefault("DB_PATH", "modushop.db")
	recoveryInterval := getenvDuration("RECOVERY_INTERVAL", time.Minute)

	logger := zaplogger.New(
		observability.F("service", serviceName),
		observability.F("env", env),
	)

	tel := newTelemetry(serviceName, logger)

	application, err := app.New(app.Config{
		ServiceName:      serviceName,
		Env:              env,
		HTTPAddr:         httpAddr,
		DBPath:           dbPath,
		RecoveryInterval: recoveryInterval,
	}, logger, tel)
	if err != nil {
		logger.Error("app_init_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = application.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Replay leftovers before taking traffic; an unreadable log is fatal.
	if err := application.Recover(ctx); err != nil {
		logger.Error("startup_recovery_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}
	if err := application.Seed(ctx); err != nil {
		logger.Error("seed_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}

	go application.Scanner.Run(ctx, recoveryInterval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", application.Router())

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		logger.Info("http_server_stopped")
	}
}

func newTelemetry(serviceName string, logger observability.Logger) observability.Telemetry {
	reg := prometrics.New("", "")

	counters := map[string]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(
			observability.MUsecaseRequests,
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: reg.Counter(
			observability.MHTTPRequests,
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MEnvelopesPublished: reg.Counter(
			observability.MEnvelopesPublished,
			"Envelopes appended to the publication log.",
			"event",
		),
		observability.MEnvelopesDelivered: reg.Counter(
			observability.MEnvelopesDelivered,
			"Envelopes delivered and marked complete.",
			"event", "listener",
		),
		observability.MEnvelopeFailures: reg.Counter(
			observability.MEnvelopeFailures,
			"Envelope deliveries that failed.",
			"event", "listener",
		),
		observability.MEnvelopeStateFailures: reg.Counter(
			observability.MEnvelopeStateFailures,
			"Completion marks that could not be persisted.",
			"listener",
		),
		observability.MRecoveryPasses: reg.Counter(
			observability.MRecoveryPasses,
			"Recovery scanner passes.",
		),
	}
	histograms := map[string]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(
			observability.MUsecaseDuration,
			"Duration of use case execution in seconds.",
			prometheus.DefBuckets,
			"use_case",
		),
		observability.MHTTPRequestDuration: reg.Histogram(
			observability.MHTTPRequestDuration,
			"Duration of HTTP requests in seconds.",
			prometheus.DefBuckets,
			"method", "route", "status",
		),
		observability.MDeliveryDuration: reg.Histogram(
			observability.MDeliveryDuration,
			"Duration of envelope deliveries in seconds.",
			prometheus.DefBuckets,
			"event", "listener",
		),
	}

	return telemetry.New(oteltrace.New(serviceName), logger, counters, histograms)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
