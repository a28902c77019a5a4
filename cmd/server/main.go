package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/api"
	"github.com/qs3c/himera_gate_server/internal/api/handler"
	"github.com/qs3c/himera_gate_server/internal/database"
	"github.com/qs3c/himera_gate_server/internal/pkg/cron"
	"github.com/qs3c/himera_gate_server/internal/pkg/emotion"
	"github.com/qs3c/himera_gate_server/internal/pkg/generator"
	"github.com/qs3c/himera_gate_server/internal/pkg/logger"
	"github.com/qs3c/himera_gate_server/internal/pkg/pubsub"
	"github.com/qs3c/himera_gate_server/internal/pkg/ws"
	"github.com/qs3c/himera_gate_server/internal/repository"
	"github.com/qs3c/himera_gate_server/internal/service"
)

func main() {
	// .env 可选
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		zl.Fatal("Failed to connect database", zap.Error(err))
	}
	zl.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(zl.Named("ws"))

	// 启用 Redis 时事件经频道广播，多实例共享审计流
	var publisher service.EventPublisher = hub
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			zl.Fatal("Failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		zl.Info("Redis connected")

		publisher = pubsub.NewPublisher(rdb)
		subscriber := pubsub.NewSubscriber(rdb)
		go func() {
			if err := subscriber.Subscribe(ctx, hub.Relay); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("auth event subscription stopped", zap.Error(err))
			}
		}()
	}

	clock := clockwork.NewRealClock()

	repos := repository.NewRepositories(db)
	repos.QueryTimeout = cfg.Database.QueryTimeout

	audit := service.NewAuditRecorder(publisher, zl.Named("audit"))
	credentialService := service.NewCredentialService(repos, audit, cfg, clock, zl)
	accessService := service.NewAccessService(repos, credentialService, audit, cfg, clock, zl.Named("access"))
	assembler := service.NewContextAssembler(repos, emotion.NewClient(cfg.Emotion), cfg, zl.Named("context"))
	chatService := service.NewChatService(accessService, assembler, generator.NewClient(cfg.Generator, zl.Named("generator")), repos, cfg, clock, zl.Named("chat"))
	adminService := service.NewAdminService(repos, accessService, credentialService)
	housekeepingService := service.NewHousekeepingService(repos, accessService, cfg, clock, zl.Named("housekeeping"))

	cronService := cron.NewService(housekeepingService, cfg.Housekeeping.SweepInterval, clock, zl.Named("cron"))
	cronService.Start()
	defer cronService.Stop()

	router := api.NewRouter(
		handler.NewTurnHandler(chatService, accessService),
		handler.NewAdminHandler(adminService, credentialService, housekeepingService),
		handler.NewWebSocketHandler(hub, cfg, zl.Named("ws")),
		cfg,
		zl.Named("http"),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router.Setup(),
	}

	go func() {
		zl.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zl.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	// 被劫持的 websocket 连接不受 Shutdown 管理
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown failed", zap.Error(err))
	}
	cancel()
	zl.Info("Server stopped")
}
