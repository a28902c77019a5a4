package cron

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/internal/model/dto"
)

// Sweeper 一次清理任务
type Sweeper interface {
	Run(ctx context.Context, dryRun bool) (*dto.HousekeepingReport, error)
}

// Service 周期性执行清理，间隔由配置决定
type Service struct {
	sweeper  Sweeper
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
}

func NewService(sweeper Sweeper, interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Service {
	return &Service{
		sweeper:  sweeper,
		interval: interval,
		clock:    clock,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.loop()
	s.logger.Info("cron service started", zap.Duration("interval", s.interval))
}

// Stop 停止并等待当前任务结束
func (s *Service) Stop() {
	close(s.stopChan)
	<-s.done
	s.logger.Info("cron service stopped")
}

func (s *Service) loop() {
	defer close(s.done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			if _, err := s.RunNow(context.Background()); err != nil {
				s.logger.Error("housekeeping failed", zap.Error(err))
			}
		}
	}
}

// RunNow 立即执行一次清理
func (s *Service) RunNow(ctx context.Context) (*dto.HousekeepingReport, error) {
	return s.sweeper.Run(ctx, false)
}
