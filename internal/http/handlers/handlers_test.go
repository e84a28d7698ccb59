package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/regscout/regscout-backend/internal/agents"
	apphttp "github.com/regscout/regscout-backend/internal/http"
	"github.com/regscout/regscout-backend/internal/http/handlers"
	"github.com/regscout/regscout-backend/internal/http/middleware"
	"github.com/regscout/regscout-backend/internal/orchestrator"
	pkgerrors "github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/platform/anthropic"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/services"
)

type fakeUsage struct {
	allowed     bool
	used        int
	limit       int
	incremented int
}

func (f *fakeUsage) CheckQuota(ctx context.Context, fingerprint string) (int, int, error) {
	remaining := f.limit - f.used
	if remaining < 0 {
		remaining = 0
	}
	if !f.allowed {
		return f.used, remaining, pkgerrors.ErrQuotaExceeded
	}
	return f.used, remaining, nil
}

func (f *fakeUsage) Increment(ctx context.Context, fingerprint, userAgent, ip string) (int, error) {
	f.incremented++
	f.used++
	return f.used, nil
}

func (f *fakeUsage) ListAll(ctx context.Context) ([]services.UsageRecord, error) { return nil, nil }
func (f *fakeUsage) Limit() int                                                  { return f.limit }
func (f *fakeUsage) Close() error                                                { return nil }

type testEnv struct {
	router *gin.Engine
	auth   services.AuthService
	usage  *fakeUsage
	client *anthropic.MockClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ADMIN_CODES", "RS-ADMIN1")

	log := logger.NewNop()
	auth, err := services.NewAuthService(log)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	usage := &fakeUsage{allowed: true, limit: 15}
	codes := services.NewAccessCodeService(log, nil)

	client := &anthropic.MockClient{}
	registry := agents.New(log, nil, nil, nil)
	orch := orchestrator.New(log, client, orchestrator.NewMemoryStore())

	router := apphttp.NewRouter(apphttp.RouterConfig{
		Log:              log,
		AuthMiddleware:   middleware.NewAuthMiddleware(log, auth),
		AuthHandler:      handlers.NewAuthHandler(log, auth, usage, codes),
		ChatHandler:      handlers.NewChatHandler(log, registry, orch, usage),
		DocumentsHandler: handlers.NewDocumentsHandler(log, nil),
		FeedbackHandler:  handlers.NewFeedbackHandler(log, nil),
		AdminHandler:     handlers.NewAdminHandler(log, usage, nil, codes),
	})
	return &testEnv{router: router, auth: auth, usage: usage, client: client}
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestFingerprintAuthIssuesToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/auth/fingerprint", `{"visitor_id":"visitor-abc123"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token      string `json:"token"`
		IsAdmin    bool   `json:"is_admin"`
		DailyLimit int    `json:"daily_limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.IsAdmin || resp.DailyLimit != 15 || resp.Token == "" {
		t.Fatalf("resp = %+v", resp)
	}

	claims, err := env.auth.Decode(resp.Token)
	if err != nil || claims.Fingerprint != "visitor-abc123" {
		t.Fatalf("claims = %+v, err = %v", claims, err)
	}
}

func TestFingerprintAuthRejectsShortVisitorID(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("POST", "/auth/fingerprint", `{"visitor_id":"short"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestFingerprintAuthQuotaExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.usage.allowed = false
	env.usage.used = 15

	w := env.do("POST", "/auth/fingerprint", `{"visitor_id":"visitor-abc123"}`, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestValidateCodeIssuesAdminToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/auth/validate-code", `{"code":"rs-admin1","fingerprint":"visitor-abc123"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token   string `json:"token"`
		IsAdmin bool   `json:"is_admin"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.IsAdmin {
		t.Fatal("is_admin = false")
	}
	claims, err := env.auth.Decode(resp.Token)
	if err != nil || !claims.IsAdmin || claims.Code != "RS-ADMIN1" || claims.Fingerprint != "visitor-abc123" {
		t.Fatalf("claims = %+v, err = %v", claims, err)
	}
}

func TestValidateCodeRejectsUnknown(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("POST", "/auth/validate-code", `{"code":"RS-NOPE"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/documents", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}

	w = env.do("GET", "/api/documents", "", "garbage")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", w.Code)
	}
}

func TestAdminRoutesRejectFingerprintTokens(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.auth.IssueFingerprintToken("visitor-abc123")
	if err != nil {
		t.Fatalf("IssueFingerprintToken: %v", err)
	}
	w := env.do("GET", "/admin/usage", "", token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}

	adminToken, err := env.auth.IssueAdminToken("RS-ADMIN1", "")
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	w = env.do("GET", "/admin/usage", "", adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestChatStreamEmitsEventsAndQuotaUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.client.Turns = []anthropic.ScriptedTurn{{
		Events: []anthropic.StreamEvent{
			anthropic.TextStart{},
			anthropic.TextDelta{Text: "Hello pilot."},
			anthropic.BlockStop{},
			anthropic.MessageStop{StopReason: "end_turn"},
		},
		Result: &anthropic.MessageResult{
			Content:    []anthropic.ContentBlock{anthropic.TextBlock("Hello pilot.")},
			StopReason: "end_turn",
		},
	}}

	token, err := env.auth.IssueFingerprintToken("visitor-abc123")
	if err != nil {
		t.Fatalf("IssueFingerprintToken: %v", err)
	}

	path := fmt.Sprintf("/api/chat/conv-1/stream?token=%s&agent=faa&message=hi", token)
	w := env.do("GET", path, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, `data: {"type":"text","content":"Hello pilot."}`) {
		t.Fatalf("missing text event in body:\n%s", body)
	}
	if !strings.Contains(body, `"type":"done"`) {
		t.Fatalf("missing done event in body:\n%s", body)
	}
	if !strings.Contains(body, `"type":"quota_update"`) || !strings.Contains(body, `"requests_used":1`) {
		t.Fatalf("missing quota update in body:\n%s", body)
	}
	if env.usage.incremented != 1 {
		t.Fatalf("incremented = %d, want 1", env.usage.incremented)
	}
}

func TestChatStreamQuotaExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.usage.allowed = false

	token, err := env.auth.IssueFingerprintToken("visitor-abc123")
	if err != nil {
		t.Fatalf("IssueFingerprintToken: %v", err)
	}
	w := env.do("GET", "/api/chat/conv-1/stream?token="+token+"&message=hi", "", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if env.usage.incremented != 0 {
		t.Fatalf("incremented = %d, want 0", env.usage.incremented)
	}
}

func TestChatStreamUnknownAgent(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.auth.IssueFingerprintToken("visitor-abc123")
	if err != nil {
		t.Fatalf("IssueFingerprintToken: %v", err)
	}
	w := env.do("GET", "/api/chat/conv-1/stream?token="+token+"&agent=easa&message=hi", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestChatStreamAdminSkipsQuota(t *testing.T) {
	env := newTestEnv(t)
	env.usage.allowed = false
	env.client.Turns = []anthropic.ScriptedTurn{{
		Result: &anthropic.MessageResult{
			Content:    []anthropic.ContentBlock{anthropic.TextBlock("ok")},
			StopReason: "end_turn",
		},
	}}

	token, err := env.auth.IssueAdminToken("RS-ADMIN1", "")
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	w := env.do("GET", "/api/chat/conv-1/stream?token="+token+"&message=hi", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if env.usage.incremented != 0 {
		t.Fatalf("admin turn was counted")
	}
}
