package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/pkg/emotion"
	"github.com/qs3c/himera_gate_server/internal/pkg/generator"
	"github.com/qs3c/himera_gate_server/internal/repository"
	"github.com/qs3c/himera_gate_server/internal/testutil"
)

var testStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []generator.Request
	// gates 按最后一条消息内容挂起生成，关闭通道后放行
	gates map[string]chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, req generator.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	var gate chan struct{}
	if n := len(req.Messages); n > 0 {
		gate = g.gates[req.Messages[n-1].Content]
	}
	reply, err := g.reply, g.err
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return reply, err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakeClassifier struct {
	mu     sync.Mutex
	labels map[string]string
	err    error
	calls  int
}

func (c *fakeClassifier) Classify(ctx context.Context, text string) (emotion.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return emotion.Result{}, c.err
	}
	if label, ok := c.labels[text]; ok {
		return emotion.Result{Label: label, Confidence: 0.9}, nil
	}
	return emotion.Result{Label: emotion.Neutral, Confidence: 0.5}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.AuthEvent
}

func (p *recordingPublisher) PublishAuthEvent(ctx context.Context, event *model.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.JWT.Secret = "test-secret"
	cfg.Access.DailyMessageLimit = 3
	cfg.Access.LowQuotaThreshold = 1
	cfg.Access.MaxPasswordAttempts = 3
	cfg.Access.LockoutDuration = 15 * time.Minute
	cfg.Access.PasswordWaitTimeout = 10 * time.Minute
	cfg.Access.ExpiryWarningWindow = 48 * time.Hour
	cfg.Context.HistoryWindow = 20
	cfg.Context.ReinjectEvery = 5
	cfg.Context.EmotionSummarySize = 3
	cfg.Context.BaseDirective = "BASE"
	cfg.Context.StyleDirective = "STYLE"
	return cfg
}

type testEnv struct {
	db           *gorm.DB
	cfg          *config.Config
	repos        *repository.Repositories
	clock        *clockwork.FakeClock
	publisher    *recordingPublisher
	generator    *fakeGenerator
	classifier   *fakeClassifier
	credentials  *CredentialService
	access       *AccessService
	assembler    *ContextAssembler
	chat         *ChatService
	admin        *AdminService
	housekeeping *HousekeepingService
}

func setupEnv(t *testing.T, opts ...func(*config.Config)) (*testEnv, func()) {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	db := testutil.SetupTestDB(t)
	logger := zaptest.NewLogger(t)

	env := &testEnv{
		db:         db,
		cfg:        cfg,
		repos:      repository.NewRepositories(db),
		clock:      clockwork.NewFakeClockAt(testStart),
		publisher:  &recordingPublisher{},
		generator:  &fakeGenerator{reply: "Привет, рада тебя слышать"},
		classifier: &fakeClassifier{labels: map[string]string{}},
	}

	audit := NewAuditRecorder(env.publisher, logger)
	env.credentials = NewCredentialService(env.repos, audit, cfg, env.clock, logger)
	env.access = NewAccessService(env.repos, env.credentials, audit, cfg, env.clock, logger)
	env.assembler = NewContextAssembler(env.repos, env.classifier, cfg, logger)
	env.chat = NewChatService(env.access, env.assembler, env.generator, env.repos, cfg, env.clock, logger)
	env.admin = NewAdminService(env.repos, env.access, env.credentials)
	env.housekeeping = NewHousekeepingService(env.repos, env.access, cfg, env.clock, logger)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return env, cleanup
}

func (e *testEnv) user(t *testing.T, userID int64) *model.User {
	t.Helper()

	user, err := e.repos.Users.GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to load user %d: %v", userID, err)
	}
	return user
}

func (e *testEnv) events(t *testing.T, userID int64) []string {
	t.Helper()

	list, err := e.repos.AuthEvents.List(context.Background(), &userID, 100)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	// 返回正序
	out := make([]string, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i].Action)
	}
	return out
}

// exhaustQuota 用完当日配额并进入等待口令状态
func (e *testEnv) exhaustQuota(t *testing.T, userID int64) {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < e.cfg.Access.DailyMessageLimit; i++ {
		res, err := e.access.HandleTurn(ctx, userID, "hello")
		if err != nil || res.Outcome != OutcomeAllowed {
			t.Fatalf("expected allowed turn %d, got %+v err=%v", i, res, err)
		}
	}
	res, err := e.access.HandleTurn(ctx, userID, "hello")
	if err != nil || res.Reason != ReasonQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %+v err=%v", res, err)
	}
}
