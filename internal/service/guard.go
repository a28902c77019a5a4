package service

import (
	"time"

	"github.com/qs3c/himera_gate_server/internal/model"
)

// Guard 口令爆破防护，只修改传入的用户记录，不做存储
type Guard struct {
	MaxAttempts int
	Lockout     time.Duration
}

type GuardStatus struct {
	Blocked   bool
	Remaining time.Duration
}

type FailureOutcome struct {
	FailedAttempts    int
	RemainingAttempts int
	JustBlocked       bool
	BlockedUntil      *time.Time
}

// Check 查询锁定状态
func (g Guard) Check(user *model.User, now time.Time) GuardStatus {
	if !user.IsBlocked(now) {
		return GuardStatus{}
	}
	return GuardStatus{Blocked: true, Remaining: user.BlockedUntil.Sub(now)}
}

// RecordFailure 失败次数加一，达到上限时锁定
func (g Guard) RecordFailure(user *model.User, now time.Time) FailureOutcome {
	user.FailedAttempts++

	out := FailureOutcome{
		FailedAttempts:    user.FailedAttempts,
		RemainingAttempts: max(g.MaxAttempts-user.FailedAttempts, 0),
	}
	if user.FailedAttempts >= g.MaxAttempts {
		until := now.Add(g.Lockout)
		user.BlockedUntil = &until
		out.JustBlocked = true
		out.BlockedUntil = &until
	}
	return out
}

// RecordSuccess 清零失败次数并解除锁定
func (g Guard) RecordSuccess(user *model.User) {
	user.FailedAttempts = 0
	user.BlockedUntil = nil
}
