package service

import (
	"sync"
	"time"
)

// State 用户会话状态，仅保存在内存中
type State string

const (
	StateUnknown         State = "unknown"
	StateFreeTier        State = "free_tier"
	StateWaitingPassword State = "waiting_password"
	StateAuthorized      State = "authorized"
	StateLocked          State = "locked"
)

type session struct {
	State        State
	WaitingSince time.Time
	Mode         Mode
}

// derivable 状态可由数据库重建时不必常驻内存
func (s session) derivable() bool {
	return s.State != StateWaitingPassword && (s.Mode == "" || s.Mode == ModeAuto)
}

// sessionStore 只保留等待口令或非默认模式的会话
type sessionStore struct {
	mu       sync.Mutex
	sessions map[int64]session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[int64]session)}
}

func (s *sessionStore) get(userID int64) session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return session{State: StateUnknown, Mode: ModeAuto}
	}
	return sess
}

func (s *sessionStore) set(userID int64, sess session) {
	s.mu.Lock()
	s.put(userID, sess)
	s.mu.Unlock()
}

// put 调用方持有 s.mu
func (s *sessionStore) put(userID int64, sess session) {
	if sess.derivable() {
		delete(s.sessions, userID)
		return
	}
	s.sessions[userID] = sess
}

func (s *sessionStore) update(userID int64, fn func(*session)) session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = session{State: StateUnknown, Mode: ModeAuto}
	}
	fn(&sess)
	s.put(userID, sess)
	return sess
}

// expireWaiting 等待口令超时的会话退回免费模式，返回受影响的会话数
func (s *sessionStore) expireWaiting(now time.Time, timeout time.Duration, dryRun bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for userID, sess := range s.sessions {
		if sess.State != StateWaitingPassword || now.Sub(sess.WaitingSince) <= timeout {
			continue
		}
		n++
		if dryRun {
			continue
		}
		sess.State = StateFreeTier
		sess.WaitingSince = time.Time{}
		s.put(userID, sess)
	}
	return n
}

func (s *sessionStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
