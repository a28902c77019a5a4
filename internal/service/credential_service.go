package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/model/dto"
	"github.com/qs3c/himera_gate_server/internal/repository"
)

type CredentialService struct {
	repos  *repository.Repositories
	audit  *AuditRecorder
	cfg    *config.Config
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewCredentialService(repos *repository.Repositories, audit *AuditRecorder, cfg *config.Config, clock clockwork.Clock, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		repos:  repos,
		audit:  audit,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// MaskSecret 保留首尾各两个字符，中间用 * 填充；不超过 4 个字符时全部遮盖
func MaskSecret(secret string) string {
	runes := []rune(secret)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

// Add 新增口令，durationDays 必须在允许列表中
func (s *CredentialService) Add(ctx context.Context, actorID int64, text string, durationDays int, description string) (*model.Credential, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyCredential
	}
	if !slices.Contains(s.cfg.Access.AvailableDurations, durationDays) {
		return nil, ErrInvalidDuration
	}

	now := s.clock.Now().UTC()
	cred := &model.Credential{
		Text:         text,
		Description:  strings.TrimSpace(description),
		DurationDays: durationDays,
		IsActive:     true,
		CreatedBy:    actorID,
		CreatedAt:    now,
	}

	var event *model.AuthEvent
	err := s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		_, err := tx.Credentials.GetByText(ctx, text)
		if err == nil {
			return ErrDuplicateCredential
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		cred.ID = 0
		if err := tx.Credentials.Create(ctx, cred); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateCredential
			}
			return err
		}

		event = newAuthEvent(actorID, model.ActionPasswordAdded, text, fmt.Sprintf("duration_days=%d", durationDays), now)
		return s.audit.Record(ctx, tx, event)
	})
	if errors.Is(err, ErrDuplicateCredential) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr(err)
	}

	s.audit.Publish(ctx, []*model.AuthEvent{event})
	return cred, nil
}

// Deactivate 停用口令，已授权用户不受影响；口令不存在时返回 false
func (s *CredentialService) Deactivate(ctx context.Context, actorID int64, text string) (bool, error) {
	text = strings.TrimSpace(text)
	now := s.clock.Now().UTC()

	var (
		found bool
		event *model.AuthEvent
	)
	err := s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		found, event = false, nil

		cred, err := tx.Credentials.GetByText(ctx, text)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		if err := tx.Credentials.Deactivate(ctx, cred.ID); err != nil {
			return err
		}
		event = newAuthEvent(actorID, model.ActionPasswordDeactivated, text, "", now)
		return s.audit.Record(ctx, tx, event)
	})
	if err != nil {
		return false, storageErr(err)
	}

	if event != nil {
		s.audit.Publish(ctx, []*model.AuthEvent{event})
	}
	return found, nil
}

// Lookup 查找可兑换的启用口令，tx 为 nil 时使用默认连接；未找到返回 nil
func (s *CredentialService) Lookup(ctx context.Context, tx *repository.Repositories, text string) (*model.Credential, error) {
	if tx == nil {
		tx = s.repos
	}
	if text == "" {
		return nil, nil
	}

	cred, err := tx.Credentials.GetActiveByText(ctx, text)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// IncrementUsage 兑换成功后累加使用次数
func (s *CredentialService) IncrementUsage(ctx context.Context, tx *repository.Repositories, cred *model.Credential) error {
	if tx == nil {
		tx = s.repos
	}
	if err := tx.Credentials.IncrementUsage(ctx, cred.ID); err != nil {
		return err
	}
	cred.TimesUsed++
	return nil
}

// List 列出全部口令，showFull 为 false 时文本做掩码
func (s *CredentialService) List(ctx context.Context, showFull bool) ([]dto.CredentialInfo, error) {
	var creds []model.Credential
	err := s.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		creds, err = s.repos.Credentials.List(ctx)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	items := make([]dto.CredentialInfo, 0, len(creds))
	for i := range creds {
		items = append(items, ToCredentialInfo(&creds[i], showFull))
	}
	return items, nil
}

func ToCredentialInfo(c *model.Credential, showFull bool) dto.CredentialInfo {
	text := c.Text
	if !showFull {
		text = MaskSecret(text)
	}
	return dto.CredentialInfo{
		Text:         text,
		Description:  c.Description,
		DurationDays: c.DurationDays,
		IsActive:     c.IsActive,
		TimesUsed:    c.TimesUsed,
		CreatedAt:    c.CreatedAt,
	}
}

func (s *CredentialService) Stats(ctx context.Context) (*dto.CredentialStats, error) {
	stats := &dto.CredentialStats{}
	err := s.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		if stats.Active, stats.Inactive, err = s.repos.Credentials.CountByActive(ctx); err != nil {
			return err
		}
		if stats.TotalUses, err = s.repos.Credentials.TotalUses(ctx); err != nil {
			return err
		}
		rows, err := s.repos.Credentials.ActiveByDuration(ctx)
		if err != nil {
			return err
		}
		stats.ByDuration = make([]dto.DurationCount, 0, len(rows))
		for _, r := range rows {
			stats.ByDuration = append(stats.ByDuration, dto.DurationCount{DurationDays: r.DurationDays, Count: r.Count})
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return stats, nil
}
