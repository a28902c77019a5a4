package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/model/dto"
	"github.com/qs3c/himera_gate_server/internal/repository"
)

type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeRedeemed Outcome = "redeemed"
)

type DenyReason string

const (
	ReasonLocked           DenyReason = "locked"
	ReasonPasswordRequired DenyReason = "password_required"
	ReasonQuotaExceeded    DenyReason = "quota_exceeded"
)

// TurnResult 单条消息的准入结果
type TurnResult struct {
	Outcome           Outcome
	Reason            DenyReason
	State             State
	Message           string
	Notice            string
	AuthorizedUntil   *time.Time
	RemainingAttempts int
	LockRemaining     time.Duration
	QuotaRemaining    int
}

func (r *TurnResult) Allowed() bool {
	return r.Outcome == OutcomeAllowed
}

type turnDecision struct {
	result  *TurnResult
	session session
	events  []*model.AuthEvent
}

// AccessService 配额、口令兑换与锁定的状态机，同一用户的操作串行执行
type AccessService struct {
	repos       *repository.Repositories
	credentials *CredentialService
	audit       *AuditRecorder
	guard       Guard
	cfg         *config.Config
	clock       clockwork.Clock
	locks       *KeyedMutex
	sessions    *sessionStore
	logger      *zap.Logger
}

func NewAccessService(repos *repository.Repositories, credentials *CredentialService, audit *AuditRecorder, cfg *config.Config, clock clockwork.Clock, logger *zap.Logger) *AccessService {
	return &AccessService{
		repos:       repos,
		credentials: credentials,
		audit:       audit,
		guard: Guard{
			MaxAttempts: cfg.Access.MaxPasswordAttempts,
			Lockout:     cfg.Access.LockoutDuration,
		},
		cfg:      cfg,
		clock:    clock,
		locks:    NewKeyedMutex(),
		sessions: newSessionStore(),
		logger:   logger,
	}
}

func (s *AccessService) now() time.Time {
	return s.clock.Now().UTC()
}

// HandleTurn 对一条用户消息做准入判定
func (s *AccessService) HandleTurn(ctx context.Context, userID int64, text string) (*TurnResult, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	return s.decide(ctx, userID, text)
}

// decide 调用方必须持有 userID 的锁
func (s *AccessService) decide(ctx context.Context, userID int64, text string) (*TurnResult, error) {
	now := s.now()
	prev := s.sessions.get(userID)

	var d turnDecision
	err := s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		d = turnDecision{session: prev}
		return s.evaluate(ctx, tx, userID, text, now, &d)
	})
	if err != nil {
		s.logger.Error("access decision failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, storageErr(err)
	}

	s.sessions.set(userID, d.session)
	d.result.State = d.session.State
	s.audit.Publish(ctx, d.events)

	s.logger.Debug("turn decided",
		zap.Int64("user_id", userID),
		zap.String("outcome", string(d.result.Outcome)),
		zap.String("reason", string(d.result.Reason)),
		zap.String("state", string(d.result.State)),
	)
	return d.result, nil
}

func (s *AccessService) evaluate(ctx context.Context, tx *repository.Repositories, userID int64, text string, now time.Time, d *turnDecision) error {
	user, err := tx.Users.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	// 1. 锁定优先于一切
	if status := s.guard.Check(user, now); status.Blocked {
		d.session.State = StateLocked
		d.result = &TurnResult{
			Outcome:       OutcomeDenied,
			Reason:        ReasonLocked,
			LockRemaining: status.Remaining,
			Message:       lockedMessage(status.Remaining),
		}
		return nil
	}

	// 2. 有效授权直接放行
	if user.HasActiveAuthorization(now) {
		d.session.State = StateAuthorized
		d.session.WaitingSince = time.Time{}
		d.result = &TurnResult{Outcome: OutcomeAllowed, AuthorizedUntil: user.AuthorizedUntil}

		remaining := user.AuthorizedUntil.Sub(now)
		if !user.WarnedExpiry && remaining <= s.cfg.Access.ExpiryWarningWindow {
			user.WarnedExpiry = true
			if err := tx.Users.Update(ctx, user); err != nil {
				return err
			}
			d.result.Notice = expiryWarningMessage(remaining)
		}
		return nil
	}

	event, err := s.expireIfNeeded(ctx, tx, user, now)
	if err != nil {
		return err
	}
	if event != nil {
		d.events = append(d.events, event)
	}
	if d.session.State != StateWaitingPassword {
		d.session.State = StateFreeTier
	}

	// 3. 等待口令期间，消息按口令处理
	if d.session.State == StateWaitingPassword {
		if now.Sub(d.session.WaitingSince) <= s.cfg.Access.PasswordWaitTimeout {
			return s.redeem(ctx, tx, user, text, now, d)
		}
		d.session.State = StateFreeTier
		d.session.WaitingSince = time.Time{}
	}

	// 4. 免费配额
	limit := s.cfg.Access.DailyMessageLimit
	date := now.Format(model.DateLayout)
	used, err := tx.Counters.Get(ctx, userID, date)
	if err != nil {
		return err
	}
	if used < limit {
		used, err = tx.Counters.Increment(ctx, userID, date)
		if err != nil {
			return err
		}
		remaining := max(limit-used, 0)
		d.result = &TurnResult{Outcome: OutcomeAllowed, QuotaRemaining: remaining}
		if remaining <= s.cfg.Access.LowQuotaThreshold {
			d.result.Notice = lowQuotaMessage(remaining)
		}
		return nil
	}

	// 5. 配额耗尽，进入等待口令
	d.session.State = StateWaitingPassword
	d.session.WaitingSince = now
	d.result = &TurnResult{
		Outcome: OutcomeDenied,
		Reason:  ReasonQuotaExceeded,
		Message: quotaExceededMessage(limit),
	}
	return nil
}

func (s *AccessService) redeem(ctx context.Context, tx *repository.Repositories, user *model.User, text string, now time.Time, d *turnDecision) error {
	secret := strings.TrimSpace(text)

	cred, err := s.credentials.Lookup(ctx, tx, secret)
	if err != nil {
		return err
	}

	if cred != nil {
		until := now.Add(time.Duration(cred.DurationDays) * 24 * time.Hour)
		user.IsAuthorized = true
		user.AuthorizedUntil = &until
		user.PasswordUsed = &cred.Text
		user.LastAuth = &now
		user.WarnedExpiry = false
		s.guard.RecordSuccess(user)

		if err := tx.Users.Update(ctx, user); err != nil {
			return err
		}
		if err := s.credentials.IncrementUsage(ctx, tx, cred); err != nil {
			return err
		}

		event := newAuthEvent(user.UserID, model.ActionPasswordSuccess, secret, fmt.Sprintf("duration_days=%d", cred.DurationDays), now)
		if err := s.audit.Record(ctx, tx, event); err != nil {
			return err
		}
		d.events = append(d.events, event)

		d.session.State = StateAuthorized
		d.session.WaitingSince = time.Time{}
		d.result = &TurnResult{
			Outcome:         OutcomeRedeemed,
			AuthorizedUntil: &until,
			Message:         redeemedMessage(cred.DurationDays, until),
		}
		return nil
	}

	failure := s.guard.RecordFailure(user, now)
	if err := tx.Users.Update(ctx, user); err != nil {
		return err
	}

	if failure.JustBlocked {
		event := newAuthEvent(user.UserID, model.ActionBlocked, secret, fmt.Sprintf("failed_attempts=%d", failure.FailedAttempts), now)
		if err := s.audit.Record(ctx, tx, event); err != nil {
			return err
		}
		d.events = append(d.events, event)

		d.session.State = StateLocked
		d.session.WaitingSince = time.Time{}
		d.result = &TurnResult{
			Outcome:       OutcomeDenied,
			Reason:        ReasonLocked,
			LockRemaining: s.guard.Lockout,
			Message:       blockedMessage(s.guard.Lockout),
		}
		return nil
	}

	event := newAuthEvent(user.UserID, model.ActionPasswordFail, secret, fmt.Sprintf("remaining_attempts=%d", failure.RemainingAttempts), now)
	if err := s.audit.Record(ctx, tx, event); err != nil {
		return err
	}
	d.events = append(d.events, event)

	d.result = &TurnResult{
		Outcome:           OutcomeDenied,
		Reason:            ReasonPasswordRequired,
		RemainingAttempts: failure.RemainingAttempts,
		Message:           wrongPasswordMessage(failure.RemainingAttempts),
	}
	return nil
}

// expireIfNeeded 授权已过期但标记仍为真时翻转并记录 auto_expired
func (s *AccessService) expireIfNeeded(ctx context.Context, tx *repository.Repositories, user *model.User, now time.Time) (*model.AuthEvent, error) {
	if !user.IsAuthorized || user.HasActiveAuthorization(now) {
		return nil, nil
	}

	user.IsAuthorized = false
	if err := tx.Users.Update(ctx, user); err != nil {
		return nil, err
	}

	event := newAuthEvent(user.UserID, model.ActionAutoExpired, "", "authorization window elapsed", now)
	if err := s.audit.Record(ctx, tx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Status 当前授权、锁定与当日配额
func (s *AccessService) Status(ctx context.Context, userID int64) (*dto.StatusResponse, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	var (
		user   *model.User
		used   int
		events []*model.AuthEvent
	)
	err := s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		events = nil

		var err error
		if user, err = tx.Users.GetOrCreate(ctx, userID); err != nil {
			return err
		}
		event, err := s.expireIfNeeded(ctx, tx, user, now)
		if err != nil {
			return err
		}
		if event != nil {
			events = append(events, event)
		}
		used, err = tx.Counters.Get(ctx, userID, now.Format(model.DateLayout))
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	s.audit.Publish(ctx, events)

	sess := s.sessions.update(userID, func(sess *session) {
		switch {
		case user.IsBlocked(now):
			sess.State = StateLocked
		case user.HasActiveAuthorization(now):
			sess.State = StateAuthorized
		case sess.State != StateWaitingPassword:
			sess.State = StateFreeTier
		}
	})

	limit := s.cfg.Access.DailyMessageLimit
	resp := &dto.StatusResponse{
		State:      string(sess.State),
		Authorized: user.HasActiveAuthorization(now),
		Blocked:    user.IsBlocked(now),
		Used:       used,
		Limit:      limit,
		Remaining:  max(limit-used, 0),
	}
	if resp.Authorized {
		resp.AuthorizedUntil = user.AuthorizedUntil
		resp.DaysLeft = daysLeft(user.AuthorizedUntil.Sub(now))
	}
	if resp.Blocked {
		resp.BlockedRemaining = FormatDuration(user.BlockedUntil.Sub(now))
	}
	resp.Summary = statusSummary(resp.Authorized, resp.AuthorizedUntil, now, used, limit)
	return resp, nil
}

// Logout 主动放弃授权，返回是否存在有效授权
func (s *AccessService) Logout(ctx context.Context, userID int64) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	var (
		loggedOut bool
		events    []*model.AuthEvent
	)
	err := s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		loggedOut, events = false, nil

		user, err := tx.Users.GetByID(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if !user.HasActiveAuthorization(now) {
			event, err := s.expireIfNeeded(ctx, tx, user, now)
			if event != nil {
				events = append(events, event)
			}
			return err
		}

		user.IsAuthorized = false
		if err := tx.Users.Update(ctx, user); err != nil {
			return err
		}
		event := newAuthEvent(userID, model.ActionManualLogout, "", "", now)
		if err := s.audit.Record(ctx, tx, event); err != nil {
			return err
		}
		events = append(events, event)
		loggedOut = true
		return nil
	})
	if err != nil {
		return false, storageErr(err)
	}
	s.audit.Publish(ctx, events)

	if loggedOut {
		s.sessions.update(userID, func(sess *session) {
			sess.State = StateFreeTier
			sess.WaitingSince = time.Time{}
		})
	}
	return loggedOut, nil
}

// Unblock 管理员解除锁定并清零失败次数，返回是否解除了生效中的锁定
func (s *AccessService) Unblock(ctx context.Context, actorID, userID int64) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	var (
		lifted bool
		event  *model.AuthEvent
	)
	err := s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		lifted, event = false, nil

		user, err := tx.Users.GetByID(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !user.IsBlocked(now) && user.FailedAttempts == 0 {
			return nil
		}

		lifted = user.IsBlocked(now)
		s.guard.RecordSuccess(user)
		if err := tx.Users.Update(ctx, user); err != nil {
			return err
		}
		event = newAuthEvent(userID, model.ActionUnblocked, "", fmt.Sprintf("admin=%d", actorID), now)
		return s.audit.Record(ctx, tx, event)
	})
	if err != nil {
		return false, storageErr(err)
	}

	if event != nil {
		s.audit.Publish(ctx, []*model.AuthEvent{event})
		s.sessions.update(userID, func(sess *session) {
			if sess.State == StateLocked {
				sess.State = StateFreeTier
			}
		})
	}
	return lifted, nil
}

// ExpireWaitingSessions 清理等待口令已超时的内存会话
func (s *AccessService) ExpireWaitingSessions(dryRun bool) int {
	return s.sessions.expireWaiting(s.now(), s.cfg.Access.PasswordWaitTimeout, dryRun)
}

// ExpireStale 批量回收已过期的授权
func (s *AccessService) ExpireStale(ctx context.Context) (int, error) {
	var ids []int64
	err := s.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.repos.Users.ListExpired(ctx, s.now())
		return err
	})
	if err != nil {
		return 0, storageErr(err)
	}

	expired := 0
	for _, id := range ids {
		ok, err := s.expireOne(ctx, id)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *AccessService) expireOne(ctx context.Context, userID int64) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	var event *model.AuthEvent
	err := s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		user, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		event, err = s.expireIfNeeded(ctx, tx, user, now)
		return err
	})
	if err != nil {
		return false, storageErr(err)
	}
	if event == nil {
		return false, nil
	}

	s.audit.Publish(ctx, []*model.AuthEvent{event})
	s.sessions.update(userID, func(sess *session) {
		if sess.State == StateAuthorized {
			sess.State = StateFreeTier
		}
	})
	return true, nil
}

func (s *AccessService) BlockedUsers(ctx context.Context) ([]dto.BlockedUser, error) {
	now := s.now()
	var users []model.User
	err := s.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		users, err = s.repos.Users.ListBlocked(ctx, now)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	items := make([]dto.BlockedUser, 0, len(users))
	for _, u := range users {
		items = append(items, dto.BlockedUser{
			UserID:         u.UserID,
			BlockedUntil:   *u.BlockedUntil,
			Remaining:      FormatDuration(u.BlockedUntil.Sub(now)),
			FailedAttempts: u.FailedAttempts,
		})
	}
	return items, nil
}

func (s *AccessService) UserStats(ctx context.Context) (*dto.UserStats, error) {
	stats := &dto.UserStats{}
	err := s.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		stats.Total, stats.Authorized, stats.Blocked, err = s.repos.Users.Counts(ctx, s.now())
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return stats, nil
}

// switchMode 更新会话的持久模式，返回本条消息使用的模式
func (s *AccessService) switchMode(userID int64, text string) Mode {
	var effective Mode
	s.sessions.update(userID, func(sess *session) {
		sess.Mode, effective = DetectMode(sess.Mode, text)
	})
	return effective
}
