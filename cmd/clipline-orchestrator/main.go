// Clipline Orchestrator — управляет прохождением jobs через pipeline.
//
// Orchestrator:
//   - Получает новые jobs из RabbitMQ (polling fallback без брокера)
//   - Ведёт конечный автомат: PLAN → ASSET_GENERATION → RENDER → QA
//   - Создаёт units и отправляет их workers
//   - Собирает fan-in барьер asset-стадии и принимает решение QA
//   - Публикует progress-события и чистит записи по retention
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Clipline/internal/config"
	"github.com/shaiso/Clipline/internal/coordinator"
	"github.com/shaiso/Clipline/internal/fsm"
	"github.com/shaiso/Clipline/internal/mq"
	"github.com/shaiso/Clipline/internal/store"
	"github.com/shaiso/Clipline/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting clipline-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Политика pipeline
	cfg, err := config.Load(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := store.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := store.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	jobs := store.NewJobStore(pool)
	units := store.NewUnitStore(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	var unitPublisher coordinator.UnitPublisher
	var progress mq.ProgressPublisher
	if publisher != nil {
		unitPublisher = publisher
		progress = publisher
	}

	// Создаём coordinator
	coord := coordinator.New(coordinator.Config{
		Jobs:         jobs,
		Units:        units,
		Publisher:    unitPublisher,
		Progress:     progress,
		Machine:      fsm.New(cfg.MaxRetries),
		Conn:         mqConn,
		PollInterval: cfg.PollInterval.Std(),
		Retention:    cfg.Retention.Std(),
		AssetPolicy:  coordinator.AssetPolicy(cfg.AssetPolicy),
		Logger:       logger,
	})

	if err := coord.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}

	// Retention sweeper работает внутри процесса orchestrator
	sweeper, err := store.NewSweeper(store.SweeperConfig{
		Jobs:     jobs,
		Units:    units,
		CronExpr: cfg.SweepCron,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create sweeper", "error", err)
		os.Exit(1)
	}
	go sweeper.Run(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	coord.Stop()
	logger.Info("clipline-orchestrator stopped")
}
