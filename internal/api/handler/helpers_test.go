package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/api/middleware"
	"github.com/qs3c/himera_gate_server/internal/pkg/emotion"
	"github.com/qs3c/himera_gate_server/internal/pkg/generator"
	"github.com/qs3c/himera_gate_server/internal/pkg/response"
	"github.com/qs3c/himera_gate_server/internal/pkg/ws"
	"github.com/qs3c/himera_gate_server/internal/repository"
	"github.com/qs3c/himera_gate_server/internal/service"
	"github.com/qs3c/himera_gate_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, req generator.Request) (string, error) {
	return g.reply, g.err
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, text string) (emotion.Result, error) {
	return emotion.Result{Label: "joy", Confidence: 0.8}, nil
}

type testContext struct {
	DB           *gorm.DB
	Config       *config.Config
	Clock        *clockwork.FakeClock
	Generator    *stubGenerator
	Turns        *TurnHandler
	Admin        *AdminHandler
	Hub          *ws.Hub
	Credentials  *service.CredentialService
	Housekeeping *service.HousekeepingService
}

func setupHandlers(t *testing.T) (*testContext, func()) {
	t.Helper()

	cfg := config.Defaults()
	cfg.JWT.Secret = "test-secret-key"
	cfg.Access.DailyMessageLimit = 3
	cfg.Access.LowQuotaThreshold = 1
	cfg.Access.MaxPasswordAttempts = 3
	cfg.Access.AdminUserIDs = []int64{1}
	cfg.Context.BaseDirective = "BASE"
	cfg.Context.StyleDirective = "STYLE"

	db := testutil.SetupTestDB(t)
	logger := zaptest.NewLogger(t)
	repos := repository.NewRepositories(db)
	clock := clockwork.NewFakeClockAt(testNow)
	hub := ws.NewHub(logger)
	gen := &stubGenerator{reply: "Привет! Как дела?"}

	audit := service.NewAuditRecorder(hub, logger)
	credentials := service.NewCredentialService(repos, audit, cfg, clock, logger)
	access := service.NewAccessService(repos, credentials, audit, cfg, clock, logger)
	assembler := service.NewContextAssembler(repos, stubClassifier{}, cfg, logger)
	chat := service.NewChatService(access, assembler, gen, repos, cfg, clock, logger)
	admin := service.NewAdminService(repos, access, credentials)
	housekeeping := service.NewHousekeepingService(repos, access, cfg, clock, logger)

	ctx := &testContext{
		DB:           db,
		Config:       cfg,
		Clock:        clock,
		Generator:    gen,
		Turns:        NewTurnHandler(chat, access),
		Admin:        NewAdminHandler(admin, credentials, housekeeping),
		Hub:          hub,
		Credentials:  credentials,
		Housekeeping: housekeeping,
	}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return ctx, cleanup
}

func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "expected object data, got %T", resp.Data)
	return data
}
