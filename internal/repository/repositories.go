package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repositories 聚合全部仓储，可绑定到同一事务
type Repositories struct {
	db           *gorm.DB
	QueryTimeout time.Duration

	Users       *UserRepository
	Counters    *CounterRepository
	Credentials *CredentialRepository
	Turns       *TurnRepository
	AuthEvents  *AuthEventRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Users:       NewUserRepository(db),
		Counters:    NewCounterRepository(db),
		Credentials: NewCredentialRepository(db),
		Turns:       NewTurnRepository(db),
		AuthEvents:  NewAuthEventRepository(db),
	}
}

func (r *Repositories) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.QueryTimeout)
}

// Do 在超时与重试保护下执行一组非事务读写
func (r *Repositories) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return WithRetry(ctx, fn)
}

// Transaction 在单个事务内执行 fn；瞬时失败时整个事务重放一次，fn 需可重入
func (r *Repositories) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return WithRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(txDB *gorm.DB) error {
			return fn(ctx, NewRepositories(txDB))
		})
	})
}
