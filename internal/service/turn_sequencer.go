package service

import (
	"context"
	"sync"
)

// turnSequencer 按取号顺序提交同一用户的对话轮次
// 取号须在用户锁内完成，号码顺序即到达顺序
type turnSequencer struct {
	mu   sync.Mutex
	tail map[int64]chan struct{}
}

type turnTicket struct {
	seq    *turnSequencer
	userID int64
	prev   <-chan struct{}
	done   chan struct{}
	passed bool
}

func newTurnSequencer() *turnSequencer {
	return &turnSequencer{tail: make(map[int64]chan struct{})}
}

func (q *turnSequencer) take(userID int64) *turnTicket {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := &turnTicket{seq: q, userID: userID, done: make(chan struct{})}
	if prev, ok := q.tail[userID]; ok {
		t.prev = prev
	}
	q.tail[userID] = t.done
	return t
}

// wait 阻塞到前一张票释放
func (t *turnTicket) wait(ctx context.Context) error {
	if t.prev == nil {
		t.passed = true
		return nil
	}
	select {
	case <-t.prev:
		t.passed = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release 放行下一张票；未轮到自己时等前一张释放后再放行，保持链不断
func (t *turnTicket) release() {
	if t.passed || t.prev == nil {
		t.finish()
		return
	}
	go func() {
		<-t.prev
		t.finish()
	}()
}

func (t *turnTicket) finish() {
	t.seq.mu.Lock()
	if t.seq.tail[t.userID] == t.done {
		delete(t.seq.tail, t.userID)
	}
	t.seq.mu.Unlock()
	close(t.done)
}

func (q *turnSequencer) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tail)
}
