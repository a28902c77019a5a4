package service

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/model/dto"
	"github.com/qs3c/himera_gate_server/internal/repository"
)

// HousekeepingService 清理旧计数、回收过期授权与超时的等待口令会话
type HousekeepingService struct {
	repos  *repository.Repositories
	access *AccessService
	cfg    *config.Config
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewHousekeepingService(repos *repository.Repositories, access *AccessService, cfg *config.Config, clock clockwork.Clock, logger *zap.Logger) *HousekeepingService {
	return &HousekeepingService{
		repos:  repos,
		access: access,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Run dryRun 时只统计不修改
func (s *HousekeepingService) Run(ctx context.Context, dryRun bool) (*dto.HousekeepingReport, error) {
	now := s.clock.Now().UTC()
	cutoff := now.AddDate(0, 0, -s.cfg.Housekeeping.CounterRetentionDays).Format(model.DateLayout)
	report := &dto.HousekeepingReport{DryRun: dryRun, CutoffDate: cutoff}

	if dryRun {
		err := s.repos.Do(ctx, func(ctx context.Context) error {
			var err error
			if report.CountersPurged, err = s.repos.Counters.CountBefore(ctx, cutoff); err != nil {
				return err
			}
			ids, err := s.repos.Users.ListExpired(ctx, now)
			report.ExpiredRevoked = len(ids)
			return err
		})
		if err != nil {
			return nil, storageErr(err)
		}
		report.SessionsExpired = s.access.ExpireWaitingSessions(true)
		return report, nil
	}

	err := s.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		report.CountersPurged, err = s.repos.Counters.PurgeBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	if report.ExpiredRevoked, err = s.access.ExpireStale(ctx); err != nil {
		return nil, err
	}
	report.SessionsExpired = s.access.ExpireWaitingSessions(false)

	s.logger.Info("housekeeping finished",
		zap.String("cutoff", cutoff),
		zap.Int64("counters_purged", report.CountersPurged),
		zap.Int("expired_revoked", report.ExpiredRevoked),
		zap.Int("sessions_expired", report.SessionsExpired),
	)
	return report, nil
}
