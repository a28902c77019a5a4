package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/database"
	"github.com/qs3c/himera_gate_server/internal/pkg/logger"
	"github.com/qs3c/himera_gate_server/internal/repository"
	"github.com/qs3c/himera_gate_server/internal/service"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, only report what would be removed")
	retentionDays = flag.Int("retention-days", 0, "Days of daily counters to keep, 0 uses config")
	timeout       = flag.Duration("timeout", time.Minute, "Overall timeout")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *retentionDays > 0 {
		cfg.Housekeeping.CounterRetentionDays = *retentionDays
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

	clock := clockwork.NewRealClock()
	repos := repository.NewRepositories(db)
	repos.QueryTimeout = cfg.Database.QueryTimeout

	// 一次性任务不推送实时事件
	audit := service.NewAuditRecorder(nil, zl)
	credentials := service.NewCredentialService(repos, audit, cfg, clock, zl)
	access := service.NewAccessService(repos, credentials, audit, cfg, clock, zl)
	housekeeping := service.NewHousekeepingService(repos, access, cfg, clock, zl)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := housekeeping.Run(ctx, *dryRun)
	if err != nil {
		zl.Fatal("Cleanup failed", zap.Error(err))
	}

	zl.Info("Cleanup summary",
		zap.Bool("dry_run", report.DryRun),
		zap.String("cutoff_date", report.CutoffDate),
		zap.Int64("counters_purged", report.CountersPurged),
		zap.Int("expired_revoked", report.ExpiredRevoked),
	)
	if report.DryRun {
		zl.Info("Dry run mode, nothing was changed. Run with -dry-run=false to apply")
	}
}
