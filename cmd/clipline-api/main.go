// Clipline API — HTTP вход системы генерации роликов.
//
// API:
//   - Принимает запросы на генерацию (создание jobs)
//   - Отдаёт состояние jobs и их units
//   - Раздаёт WebSocket подписки на progress-события
//   - Транслирует progress-поток из RabbitMQ подписчикам (Relay)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Clipline/internal/api"
	"github.com/shaiso/Clipline/internal/config"
	"github.com/shaiso/Clipline/internal/fsm"
	"github.com/shaiso/Clipline/internal/hub"
	"github.com/shaiso/Clipline/internal/mq"
	"github.com/shaiso/Clipline/internal/store"
	"github.com/shaiso/Clipline/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting clipline-api")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Политика pipeline
	cfg, err := config.Load(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Подключаемся к базе данных
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
		logger.Warn("RabbitMQ not available, progress relay disabled", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Hub + Relay: WebSocket подписчики получают progress-поток
	h := hub.New(logger)
	defer h.CloseAll()

	if mqConn != nil {
		relay := hub.NewRelay(h, logger)
		go relay.RunAMQP(ctx, mqConn)
	}

	// Создаём API handler
	var progress mq.ProgressPublisher
	if publisher != nil {
		progress = publisher
	}
	handler := api.NewHandler(api.Config{
		Jobs:      jobs,
		Units:     units,
		Machine:   fsm.New(cfg.MaxRetries),
		Publisher: publisher,
		Progress:  progress,
		Hub:       h,
		Retention: cfg.Retention.Std(),
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
