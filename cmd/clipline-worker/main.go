// Clipline Worker — выполняет отдельные units pipeline.
//
// Worker:
//   - Получает units из RabbitMQ (polling fallback без брокера)
//   - Выполняет в зависимости от типа (plan, image, voice, music,
//     render, qa) через провайдеров генерации
//   - Реализует retry с exponential backoff
//   - Отправляет результат обратно в очередь units.completed
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Clipline/internal/config"
	"github.com/shaiso/Clipline/internal/mq"
	"github.com/shaiso/Clipline/internal/store"
	"github.com/shaiso/Clipline/internal/telemetry"
	"github.com/shaiso/Clipline/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting clipline-worker")

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

	var completion worker.CompletionPublisher
	if publisher != nil {
		completion = publisher
	}

	// Создаём worker
	w := worker.New(worker.Config{
		Units:        units,
		Publisher:    completion,
		Conn:         mqConn,
		PollInterval: cfg.PollInterval.Std(),
		MaxAttempts:  cfg.Unit.MaxAttempts,
		InitialDelay: cfg.Unit.InitialDelay.Std(),
		MaxDelay:     cfg.Unit.MaxDelay.Std(),
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
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

	w.Stop()
	logger.Info("clipline-worker stopped")
}
