package dto

import "time"

// TurnRequest 用户发送一条消息
type TurnRequest struct {
	Text string `json:"text" binding:"required,max=4000"`
}

// TurnResponse 单轮处理结果
type TurnResponse struct {
	Outcome           string     `json:"outcome"`
	Reason            string     `json:"reason,omitempty"`
	State             string     `json:"state"`
	Message           string     `json:"message,omitempty"`
	Notice            string     `json:"notice,omitempty"`
	Reply             string     `json:"reply,omitempty"`
	Emotion           string     `json:"emotion,omitempty"`
	AuthorizedUntil   *time.Time `json:"authorized_until,omitempty"`
	RemainingAttempts int        `json:"remaining_attempts,omitempty"`
	LockSeconds       int64      `json:"lock_seconds,omitempty"`
}

// StatusResponse 用户当前授权与配额
type StatusResponse struct {
	State            string     `json:"state"`
	Authorized       bool       `json:"authorized"`
	AuthorizedUntil  *time.Time `json:"authorized_until,omitempty"`
	DaysLeft         int        `json:"days_left,omitempty"`
	Blocked          bool       `json:"blocked"`
	BlockedRemaining string     `json:"blocked_remaining,omitempty"`
	Used             int        `json:"used"`
	Limit            int        `json:"limit"`
	Remaining        int        `json:"remaining"`
	Summary          string     `json:"summary"`
}

// LogoutResponse 主动退出授权
type LogoutResponse struct {
	LoggedOut bool   `json:"logged_out"`
	Message   string `json:"message"`
}
