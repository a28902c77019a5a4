package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/testutil"
)

func TestAccessService_HandleTurn_FreeQuota(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()

	// 限额 3 条，阈值 1
	res, err := env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, StateFreeTier, res.State)
	assert.Equal(t, 2, res.QuotaRemaining)
	assert.Empty(t, res.Notice)

	res, err = env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, res.QuotaRemaining)
	assert.Contains(t, res.Notice, "1")
	assert.Contains(t, res.Notice, "пароль")

	res, err = env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, 0, res.QuotaRemaining)

	res, err = env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonQuotaExceeded, res.Reason)
	assert.Equal(t, StateWaitingPassword, res.State)
	assert.NotEmpty(t, res.Message)

	count, err := env.repos.Counters.Get(ctx, 1, testStart.Format(model.DateLayout))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAccessService_HandleTurn_NewDayResetsCounter(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.exhaustQuota(t, 1)

	env.clock.Advance(24 * time.Hour)

	res, err := env.access.HandleTurn(ctx, 1, "доброе утро")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, StateFreeTier, res.State)
	assert.Equal(t, 2, res.QuotaRemaining)

	// 等待口令超时后消息不算作口令尝试
	assert.Zero(t, env.user(t, 1).FailedAttempts)
}

func TestAccessService_HandleTurn_Redeem(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	cred := testutil.TestCredential(t, env.db, "sesame", 30)
	env.exhaustQuota(t, 1)

	res, err := env.access.HandleTurn(ctx, 1, "  sesame ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedeemed, res.Outcome)
	assert.Equal(t, StateAuthorized, res.State)
	require.NotNil(t, res.AuthorizedUntil)
	assert.WithinDuration(t, testStart.Add(30*24*time.Hour), *res.AuthorizedUntil, time.Second)

	user := env.user(t, 1)
	assert.True(t, user.IsAuthorized)
	assert.False(t, user.WarnedExpiry)
	assert.Zero(t, user.FailedAttempts)
	require.NotNil(t, user.PasswordUsed)
	assert.Equal(t, "sesame", *user.PasswordUsed)

	stored, err := env.repos.Credentials.GetByText(ctx, "sesame")
	require.NoError(t, err)
	assert.Equal(t, cred.TimesUsed+1, stored.TimesUsed)

	assert.Equal(t, []string{model.ActionPasswordSuccess}, env.events(t, 1))
	assert.Equal(t, []string{model.ActionPasswordSuccess}, env.publisher.actions())

	// 授权后不再消耗配额
	for i := 0; i < 5; i++ {
		res, err = env.access.HandleTurn(ctx, 1, "ещё")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAllowed, res.Outcome)
		assert.Equal(t, StateAuthorized, res.State)
	}
	count, err := env.repos.Counters.Get(ctx, 1, testStart.Format(model.DateLayout))
	require.NoError(t, err)
	assert.Equal(t, env.cfg.Access.DailyMessageLimit, count)
}

func TestAccessService_HandleTurn_InactiveCredential(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	testutil.TestCredential(t, env.db, "retired", 30, testutil.WithInactive())
	env.exhaustQuota(t, 1)

	res, err := env.access.HandleTurn(context.Background(), 1, "retired")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonPasswordRequired, res.Reason)
	assert.Equal(t, 2, res.RemainingAttempts)
	assert.False(t, env.user(t, 1).IsAuthorized)
}

func TestAccessService_HandleTurn_LockedOverridesAuthorization(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	// 授权在提醒窗口内，若未锁定本轮会触发过期提醒
	testutil.TestUser(t, env.db, 1,
		testutil.WithAuthorizedUntil(testStart.Add(24*time.Hour)),
		testutil.WithBlockedUntil(testStart.Add(5*time.Minute)),
	)

	res, err := env.access.HandleTurn(ctx, 1, "привет")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonLocked, res.Reason)
	assert.Equal(t, StateLocked, res.State)
	assert.Equal(t, 5*time.Minute, res.LockRemaining)
	assert.Empty(t, res.Notice)

	count, err := env.repos.Counters.Get(ctx, 1, testStart.Format(model.DateLayout))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	user := env.user(t, 1)
	assert.True(t, user.IsAuthorized)
	assert.False(t, user.WarnedExpiry)
	assert.Empty(t, env.events(t, 1))

	// 锁定结束后授权照常生效
	env.clock.Advance(5*time.Minute + time.Second)
	res, err = env.access.HandleTurn(ctx, 1, "привет")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.True(t, env.user(t, 1).WarnedExpiry)
}

func TestAccessService_HandleTurn_Bruteforce(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	testutil.TestCredential(t, env.db, "sesame", 3)
	env.exhaustQuota(t, 1)

	res, err := env.access.HandleTurn(ctx, 1, "wrong1")
	require.NoError(t, err)
	assert.Equal(t, ReasonPasswordRequired, res.Reason)
	assert.Equal(t, 2, res.RemainingAttempts)
	assert.Equal(t, StateWaitingPassword, res.State)

	res, err = env.access.HandleTurn(ctx, 1, "wrong2")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemainingAttempts)

	res, err = env.access.HandleTurn(ctx, 1, "wrong3")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonLocked, res.Reason)
	assert.Equal(t, env.cfg.Access.LockoutDuration, res.LockRemaining)
	assert.Equal(t, StateLocked, res.State)

	user := env.user(t, 1)
	require.NotNil(t, user.BlockedUntil)
	assert.WithinDuration(t, testStart.Add(15*time.Minute), *user.BlockedUntil, time.Second)
	assert.Equal(t, 3, user.FailedAttempts)

	// 锁定期间即使口令正确也拒绝
	env.clock.Advance(5 * time.Minute)
	res, err = env.access.HandleTurn(ctx, 1, "sesame")
	require.NoError(t, err)
	assert.Equal(t, ReasonLocked, res.Reason)
	assert.Equal(t, 10*time.Minute, res.LockRemaining)
	assert.False(t, env.user(t, 1).IsAuthorized)

	assert.Equal(t, []string{
		model.ActionPasswordFail,
		model.ActionPasswordFail,
		model.ActionBlocked,
	}, env.events(t, 1))

	// 锁定结束后回到免费模式，配额仍耗尽
	env.clock.Advance(10*time.Minute + time.Second)
	res, err = env.access.HandleTurn(ctx, 1, "hello again")
	require.NoError(t, err)
	assert.Equal(t, ReasonQuotaExceeded, res.Reason)
	assert.Equal(t, StateWaitingPassword, res.State)

	res, err = env.access.HandleTurn(ctx, 1, "sesame")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedeemed, res.Outcome)

	user = env.user(t, 1)
	assert.Zero(t, user.FailedAttempts)
	assert.Nil(t, user.BlockedUntil)
}

func TestAccessService_HandleTurn_WaitTimeout(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.exhaustQuota(t, 1)

	env.clock.Advance(env.cfg.Access.PasswordWaitTimeout + time.Second)

	res, err := env.access.HandleTurn(ctx, 1, "not a password")
	require.NoError(t, err)
	// 超时后按普通消息处理，配额仍耗尽，重新进入等待
	assert.Equal(t, ReasonQuotaExceeded, res.Reason)
	assert.Equal(t, StateWaitingPassword, res.State)
	assert.Zero(t, env.user(t, 1).FailedAttempts)
	assert.Empty(t, env.events(t, 1))
}

func TestAccessService_HandleTurn_ExpiryWarning(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	testutil.TestUser(t, env.db, 1, testutil.WithAuthorizedUntil(testStart.Add(24*time.Hour)))

	res, err := env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Contains(t, res.Notice, "1 дн")
	assert.True(t, env.user(t, 1).WarnedExpiry)

	// 同一授权窗口只提醒一次
	res, err = env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Empty(t, res.Notice)
}

func TestAccessService_HandleTurn_NoWarningOutsideWindow(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	testutil.TestUser(t, env.db, 1, testutil.WithAuthorizedUntil(testStart.Add(10*24*time.Hour)))

	res, err := env.access.HandleTurn(context.Background(), 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, res.State)
	assert.Empty(t, res.Notice)
	assert.False(t, env.user(t, 1).WarnedExpiry)
}

func TestAccessService_HandleTurn_LazyExpiry(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	testutil.TestUser(t, env.db, 1, testutil.WithAuthorizedUntil(testStart.Add(time.Hour)))

	res, err := env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, res.State)

	env.clock.Advance(2 * time.Hour)

	res, err = env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, StateFreeTier, res.State)
	assert.Equal(t, 2, res.QuotaRemaining)

	assert.False(t, env.user(t, 1).IsAuthorized)
	assert.Equal(t, []string{model.ActionAutoExpired}, env.events(t, 1))
}

func TestAccessService_DeactivateKeepsAuthorization(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	testutil.TestCredential(t, env.db, "sesame", 30)
	env.exhaustQuota(t, 1)

	res, err := env.access.HandleTurn(ctx, 1, "sesame")
	require.NoError(t, err)
	require.Equal(t, OutcomeRedeemed, res.Outcome)

	found, err := env.credentials.Deactivate(ctx, 99, "sesame")
	require.NoError(t, err)
	assert.True(t, found)

	res, err = env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, res.State)

	// 其他用户无法再兑换
	env.exhaustQuota(t, 2)
	res, err = env.access.HandleTurn(ctx, 2, "sesame")
	require.NoError(t, err)
	assert.Equal(t, ReasonPasswordRequired, res.Reason)
}

func TestAccessService_HandleTurn_ConcurrentQuota(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.access.HandleTurn(context.Background(), 1, "hi")
			if err != nil {
				t.Errorf("HandleTurn: %v", err)
				return
			}
			if res.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, env.cfg.Access.DailyMessageLimit, allowed)
	assert.Zero(t, env.access.locks.size())
}

func TestAccessService_HandleTurn_ConcurrentWrongPasswords(t *testing.T) {
	env, cleanup := setupEnv(t, func(cfg *config.Config) {
		cfg.Access.MaxPasswordAttempts = 5
	})
	defer cleanup()

	env.exhaustQuota(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.access.HandleTurn(context.Background(), 1, "nope"); err != nil {
				t.Errorf("HandleTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	user := env.user(t, 1)
	assert.Equal(t, 4, user.FailedAttempts)
	assert.Nil(t, user.BlockedUntil)
}

func TestAccessService_HandleTurn_StorageUnavailable(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = env.access.HandleTurn(context.Background(), 1, "hi")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, StateUnknown, env.access.sessions.get(1).State)
}

func TestAccessService_Status(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("free tier", func(t *testing.T) {
		_, err := env.access.HandleTurn(ctx, 1, "hi")
		require.NoError(t, err)

		st, err := env.access.Status(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, string(StateFreeTier), st.State)
		assert.False(t, st.Authorized)
		assert.Equal(t, 1, st.Used)
		assert.Equal(t, 3, st.Limit)
		assert.Equal(t, 2, st.Remaining)
		assert.NotEmpty(t, st.Summary)
	})

	t.Run("authorized", func(t *testing.T) {
		testutil.TestUser(t, env.db, 2, testutil.WithAuthorizedUntil(testStart.Add(36*time.Hour)))

		st, err := env.access.Status(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, string(StateAuthorized), st.State)
		assert.True(t, st.Authorized)
		assert.Equal(t, 2, st.DaysLeft)
	})

	t.Run("blocked", func(t *testing.T) {
		testutil.TestUser(t, env.db, 3, testutil.WithBlockedUntil(testStart.Add(90*time.Second)), testutil.WithFailedAttempts(3))

		st, err := env.access.Status(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, string(StateLocked), st.State)
		assert.True(t, st.Blocked)
		assert.Equal(t, "1 мин 30 сек", st.BlockedRemaining)
	})

	t.Run("expired is revoked", func(t *testing.T) {
		testutil.TestUser(t, env.db, 4, testutil.WithAuthorizedUntil(testStart.Add(-time.Minute)))

		st, err := env.access.Status(ctx, 4)
		require.NoError(t, err)
		assert.False(t, st.Authorized)
		assert.Equal(t, []string{model.ActionAutoExpired}, env.events(t, 4))
	})
}

func TestAccessService_Logout(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	testutil.TestUser(t, env.db, 1, testutil.WithAuthorizedUntil(testStart.Add(72*time.Hour)))

	ok, err := env.access.Logout(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, env.user(t, 1).IsAuthorized)
	assert.Equal(t, []string{model.ActionManualLogout}, env.events(t, 1))

	res, err := env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, StateFreeTier, res.State)

	ok, err = env.access.Logout(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.access.Logout(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessService_Unblock(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	testutil.TestCredential(t, env.db, "sesame", 30)
	env.exhaustQuota(t, 1)
	for _, guess := range []string{"a", "b", "c"} {
		_, err := env.access.HandleTurn(ctx, 1, guess)
		require.NoError(t, err)
	}
	require.True(t, env.user(t, 1).IsBlocked(env.clock.Now()))

	lifted, err := env.access.Unblock(ctx, 99, 1)
	require.NoError(t, err)
	assert.True(t, lifted)

	user := env.user(t, 1)
	assert.Nil(t, user.BlockedUntil)
	assert.Zero(t, user.FailedAttempts)

	// 解锁后回到免费模式，配额耗尽会重新进入等待口令
	res, err := env.access.HandleTurn(ctx, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, ReasonQuotaExceeded, res.Reason)

	res, err = env.access.HandleTurn(ctx, 1, "sesame")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedeemed, res.Outcome)

	lifted, err = env.access.Unblock(ctx, 99, 1)
	require.NoError(t, err)
	assert.False(t, lifted)
}

func TestAccessService_ExpireStale(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	testutil.TestUser(t, env.db, 1, testutil.WithAuthorizedUntil(testStart.Add(-time.Hour)))
	testutil.TestUser(t, env.db, 2, testutil.WithAuthorizedUntil(testStart.Add(time.Hour)))

	n, err := env.access.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, env.user(t, 1).IsAuthorized)
	assert.True(t, env.user(t, 2).IsAuthorized)
}
