// Command server runs the gatehouse visitor-management backend: the visit
// lifecycle API plus its notification worker. Business logic lives in the
// internal packages; main only wires dependencies and owns shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"gatehouse/internal/host"
	"gatehouse/internal/notify"
	"gatehouse/internal/platform/config"
	"gatehouse/internal/platform/httpserver"
	platformjwt "gatehouse/internal/platform/jwt"
	"gatehouse/internal/platform/logger"
	"gatehouse/internal/platform/metrics"
	platformredis "gatehouse/internal/platform/redis"
	"gatehouse/internal/visit"
	visithandler "gatehouse/internal/visit/handler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatehouse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	var (
		visitStore visit.Store
		hostStore  host.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		visitStore = visit.NewPostgres(db)
		hostStore = host.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		visitStore = visit.NewInMemory()
		hostStore = host.NewInMemory()
		log.Warn("no postgres DSN configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	sinks := []notify.Sink{notify.NewLogSink(log)}
	if cfg.AMQPURL != "" {
		amqpSink := notify.NewAMQPSink(cfg.AMQPURL)
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}
	dispatcher := notify.NewAsyncDispatcher(cfg.NotifyBuffer, log, m, sinks...)

	service := visit.NewService(
		visitStore,
		hostStore,
		visit.NewTokenIssuer(),
		dispatcher,
		log,
		visit.WithMetrics(m),
		visit.WithActiveCache(visit.NewActiveCache(redisClient, cfg.ActiveCacheTTL)),
		visit.WithHistoryLimit(cfg.HistoryPageSize),
	)

	validator := platformjwt.NewValidator(cfg.JWTSigningKey)

	router := chi.NewRouter()
	visithandler.New(service, log, validator).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting gatehouse", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := dispatcher.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("notification worker: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
