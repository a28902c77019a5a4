package service

import (
	"context"

	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/model/dto"
	"github.com/qs3c/himera_gate_server/internal/repository"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 200
)

type AdminService struct {
	repos       *repository.Repositories
	access      *AccessService
	credentials *CredentialService
}

func NewAdminService(repos *repository.Repositories, access *AccessService, credentials *CredentialService) *AdminService {
	return &AdminService{
		repos:       repos,
		access:      access,
		credentials: credentials,
	}
}

// Stats 口令与用户统计
func (s *AdminService) Stats(ctx context.Context) (*dto.AdminStats, error) {
	creds, err := s.credentials.Stats(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.access.UserStats(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.AdminStats{Credentials: *creds, Users: *users}, nil
}

// AuditLog 最近的审计事件，可按用户过滤
func (s *AdminService) AuditLog(ctx context.Context, userID *int64, limit int) ([]dto.AuthEventInfo, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	var events []model.AuthEvent
	err := s.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		events, err = s.repos.AuthEvents.List(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	items := make([]dto.AuthEventInfo, 0, len(events))
	for i := range events {
		items = append(items, ToAuthEventInfo(&events[i]))
	}
	return items, nil
}

func (s *AdminService) BlockedUsers(ctx context.Context) ([]dto.BlockedUser, error) {
	return s.access.BlockedUsers(ctx)
}

func (s *AdminService) Unblock(ctx context.Context, actorID, userID int64) (bool, error) {
	return s.access.Unblock(ctx, actorID, userID)
}

func ToAuthEventInfo(e *model.AuthEvent) dto.AuthEventInfo {
	info := dto.AuthEventInfo{
		ID:        e.ID,
		UserID:    e.UserID,
		Action:    e.Action,
		CreatedAt: e.CreatedAt,
	}
	if e.MaskedSecret != nil {
		info.MaskedSecret = *e.MaskedSecret
	}
	if e.Details != nil {
		info.Details = *e.Details
	}
	return info
}
