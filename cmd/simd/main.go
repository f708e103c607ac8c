package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/agents"
	"github.com/xela07ax/corpsim-engine/internal/console/handler"
	"github.com/xela07ax/corpsim-engine/internal/console/server"
	"github.com/xela07ax/corpsim-engine/internal/console/service"
	"github.com/xela07ax/corpsim-engine/internal/engine"
	"github.com/xela07ax/corpsim-engine/internal/infra"
	"github.com/xela07ax/corpsim-engine/internal/infra/auth"
	"github.com/xela07ax/corpsim-engine/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if cfg.Database.URL == "" {
		logger.Fatal("database.url (or DATABASE_URL env) is required")
	}
	auditRepo := postgres.NewAuditRepo(cfg.Database.URL)
	runRepo, err := postgres.NewRunRepo(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer runRepo.Close()

	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := runRepo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// 3. Control Plane: halt-менеджер (Redis pub/sub + warm-up из БД)
	haltMgr := engine.NewHaltManager(rdb, logger)
	pausedRuns, err := runRepo.PausedRunIDs(appCtx)
	if err != nil {
		logger.Warn("could not load paused runs for warm-up", zap.Error(err))
	}
	if err := haltMgr.Warmup(appCtx, pausedRuns); err != nil {
		logger.Warn("halt warm-up failed", zap.Error(err))
	}
	// Инвентарь приостановленных прогонов: откуда каждый продолжится
	for _, id := range pausedRuns {
		snap, err := runRepo.LatestSnapshot(appCtx, id)
		if err != nil || snap == nil {
			logger.Warn("paused run without readable snapshot", zap.String("run_id", id), zap.Error(err))
			continue
		}
		logger.Info("paused run awaiting resume",
			zap.String("run_id", id),
			zap.Int("tick", snap.Tick),
			zap.String("state_hash", snap.StateHash))
	}
	if err := haltMgr.Init(appCtx); err != nil {
		logger.Warn("halt manager init failed, starting with empty state", zap.Error(err))
	}
	go haltMgr.StartListener(appCtx)

	// 4. Decision capability: детерминированные эвристики по умолчанию,
	// удаленный бэкенд — через reliability-обертку
	var provider agents.Provider = agents.NewHeuristicProvider()
	if cfg.Engine.ProviderEndpoint != "" {
		remote := agents.NewRemoteProvider(cfg.Engine.ProviderEndpoint, cfg.Engine.ProviderTimeout)
		provider = agents.NewReliabilityWrapper(remote)
		logger.Info("using remote decision provider",
			zap.String("endpoint", cfg.Engine.ProviderEndpoint))
	}

	// 5. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 6. Ядро: менеджер прогонов
	manager := engine.NewManager(
		provider,
		auditRepo.ForRun,
		runRepo,
		haltMgr,
		metrics,
		engine.Config{
			TickDays:        cfg.Engine.TickDays,
			DecisionTimeout: cfg.Engine.DecisionTimeout,
		},
		logger,
	)

	// 7. Console API: RS256 ключи, сервисы, chi-роутер
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse RSA public key", zap.Error(err))
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse RSA private key", zap.Error(err))
	}

	validator := auth.NewBaseValidator(pubKey)
	runService := service.NewRunService(manager, haltMgr, rdb, validator, logger)
	authService := service.NewAuthService(runRepo, privKey, cfg.Auth.TokenTTL)

	consoleSrv := server.NewConsoleServer(cfg, logger,
		runService,
		handler.NewAuthHandler(authService),
		handler.NewRunHandler(runService),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("simulation engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("simulation engine stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("simulation engine exited properly")
}
