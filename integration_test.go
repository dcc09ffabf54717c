package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gluk-w/claworc/llm-router/internal/api"
	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/backend"
	"github.com/gluk-w/claworc/llm-router/internal/config"
	"github.com/gluk-w/claworc/llm-router/internal/database"
	"github.com/gluk-w/claworc/llm-router/internal/discovery"
	"github.com/gluk-w/claworc/llm-router/internal/equivalence"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
	"github.com/gluk-w/claworc/llm-router/internal/proxy"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

const adminSecret = "test-admin-secret"

type testEnv struct {
	router    http.Handler
	store     *authprofiles.Store
	configDir string
}

func setupTestServer(t *testing.T) (*testEnv, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "llm-router-integration-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	config.Cfg.DatabasePath = filepath.Join(tmpDir, "test.db")
	config.Cfg.ConfigDir = filepath.Join(tmpDir, "config")
	config.Cfg.AdminSecret = adminSecret

	if err := database.Init(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init database: %v", err)
	}

	store := authprofiles.NewStore()
	tracker := usage.NewTracker()
	srv := &api.Server{
		Store:     store,
		ConfigDir: config.Cfg.ConfigDir,
		Tracker:   tracker,
		Resolver:  equivalence.New(),
		Models:    discovery.New(discovery.Options{Store: store}),
		Backend:   backend.New(tracker),
	}
	r := api.NewRouter(srv, proxy.New(store, config.Cfg.ConfigDir, tracker))

	cleanup := func() {
		database.Close()
		database.DB = nil
		os.RemoveAll(tmpDir)
	}

	return &testEnv{router: r, store: store, configDir: config.Cfg.ConfigDir}, cleanup
}

func (e *testEnv) do(t *testing.T, method, path, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminSecret)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// chatUpstream serves OpenAI-style chat completions for provider.
func chatUpstream(t *testing.T, provider string, status int, body string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	providers.SetCustomUpstream(provider, srv.URL)
	t.Cleanup(func() { providers.SetCustomUpstream(provider, "") })
}

func TestHealthCheck(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	w := env.do(t, "GET", "/health", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "healthy" {
		t.Errorf("Expected status=healthy, got %s", resp["status"])
	}
	if w.Header().Get(proxy.RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestAdminAuth(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: adminSecret, want: http.StatusUnauthorized},
		{name: "wrong", header: "Bearer nope", want: http.StatusForbidden},
		{name: "valid", header: "Bearer " + adminSecret, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/profiles", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	config.Cfg.AdminSecret = ""
	defer func() { config.Cfg.AdminSecret = adminSecret }()
	w := env.do(t, "GET", "/admin/profiles", "", true)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a configured secret, got %d", w.Code)
	}
}

func TestProfileLifecycle(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	w := env.do(t, "POST", "/admin/profiles", `{"id":"anthropic:work","type":"api_key","secret":"sk-ant-abcdef123456"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("Add profile: %d %s", w.Code, w.Body.String())
	}
	var created authprofiles.ProfileStats
	json.NewDecoder(w.Body).Decode(&created)
	if created.Secret != "****3456" {
		t.Errorf("Secret = %s, want masked", created.Secret)
	}

	saved, err := authprofiles.Load(env.configDir)
	if err != nil {
		t.Fatalf("Load saved profiles: %v", err)
	}
	if ids := saved.ListProfilesForProvider("anthropic"); len(ids) != 1 || ids[0] != "anthropic:work" {
		t.Errorf("saved ids = %v", ids)
	}

	w = env.do(t, "POST", "/admin/profiles", `{"id":"no-colon","secret":"x"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad id, got %d", w.Code)
	}
	w = env.do(t, "POST", "/admin/profiles", `{"id":"anthropic:x","type":"password","secret":"x"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown type, got %d", w.Code)
	}

	env.store.MarkProfileFailure("anthropic:work", "rate_limit")
	w = env.do(t, "POST", "/admin/profiles/anthropic:work/reset", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Reset: %d %s", w.Code, w.Body.String())
	}
	if env.store.IsProfileInCooldown("anthropic:work") {
		t.Error("Profile should be out of cooldown after reset")
	}

	w = env.do(t, "GET", "/admin/profiles?provider=anthropic", "", true)
	var list []authprofiles.ProfileStats
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 || strings.Contains(w.Body.String(), "sk-ant-abcdef123456") {
		t.Errorf("List = %s", w.Body.String())
	}

	w = env.do(t, "DELETE", "/admin/profiles/anthropic:work", "", true)
	if w.Code != http.StatusNoContent {
		t.Errorf("Delete: %d", w.Code)
	}
	w = env.do(t, "DELETE", "/admin/profiles/anthropic:work", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("Second delete: %d, want 404", w.Code)
	}
}

func TestCompleteFallsBack(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	t.Setenv("XAI_API_KEY", "xai-key")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	chatUpstream(t, "xai", http.StatusUnauthorized, `{"error":{"message":"Unauthorized","type":"invalid_request_error"}}`)
	chatUpstream(t, "openrouter", http.StatusOK, `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "anthropic/claude-sonnet-4",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "pong"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 9, "completion_tokens": 2, "total_tokens": 11}
}`)

	w := env.do(t, "POST", "/v1/complete", `{
		"provider": "xai",
		"model": "grok-4",
		"fallbacks": ["openrouter"],
		"messages": [{"role": "user", "content": "ping"}]
	}`, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Complete: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		RequestID    string `json:"request_id"`
		Provider     string `json:"provider"`
		Content      string `json:"content"`
		FallbackUsed bool   `json:"fallback_used"`
		Attempts     []struct {
			Provider    string `json:"provider"`
			FailureType string `json:"failureType"`
		} `json:"attempts"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Provider != "openrouter" || resp.Content != "pong" || !resp.FallbackUsed {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Attempts) != 1 || resp.Attempts[0].Provider != "xai" || resp.Attempts[0].FailureType != "auth" {
		t.Errorf("attempts = %+v", resp.Attempts)
	}

	w = env.do(t, "GET", "/admin/requests", "", true)
	var recs []database.CompletionRecord
	json.NewDecoder(w.Body).Decode(&recs)
	if len(recs) != 1 || recs[0].RequestID != resp.RequestID || !recs[0].FallbackUsed || recs[0].InputTokens != 9 {
		t.Fatalf("requests = %s", w.Body.String())
	}

	w = env.do(t, "GET", "/admin/requests/"+resp.RequestID+"/attempts", "", true)
	var attempts []database.AttemptRecord
	json.NewDecoder(w.Body).Decode(&attempts)
	if len(attempts) != 1 || attempts[0].FailureType != "auth" {
		t.Errorf("attempts = %s", w.Body.String())
	}

	w = env.do(t, "GET", "/admin/failures", "", true)
	var counts []database.FailureCount
	json.NewDecoder(w.Body).Decode(&counts)
	if len(counts) != 1 || counts[0].Provider != "xai" || counts[0].Count != 1 {
		t.Errorf("failures = %s", w.Body.String())
	}

	w = env.do(t, "GET", "/admin/usage", "", true)
	var rows []usage.SummaryRow
	json.NewDecoder(w.Body).Decode(&rows)
	if len(rows) != 1 || rows[0].Provider != "openrouter" || rows[0].Requests != 1 {
		t.Errorf("usage = %s", w.Body.String())
	}

	w = env.do(t, "GET", "/admin/usage/line", "", true)
	if !strings.HasPrefix(w.Body.String(), "openrouter 1 req") {
		t.Errorf("usage line = %q", w.Body.String())
	}
}

func TestCompleteExhausted(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("MISTRAL_API_KEY", "")

	w := env.do(t, "POST", "/v1/complete", `{
		"provider": "groq",
		"model": "llama-3.3-70b-versatile",
		"fallbacks": ["mistral"],
		"messages": [{"role": "user", "content": "ping"}]
	}`, false)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", w.Code)
	}

	var resp struct {
		Error    string `json:"error"`
		Message  string `json:"message"`
		Attempts []struct {
			Skipped bool   `json:"skipped"`
			Reason  string `json:"reason"`
		} `json:"attempts"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != "all_providers_failed" {
		t.Errorf("error = %s", resp.Error)
	}
	if resp.Message != "all providers failed: no provider had a usable credential" {
		t.Errorf("message = %s", resp.Message)
	}
	if len(resp.Attempts) != 2 || !resp.Attempts[0].Skipped || resp.Attempts[1].Reason != "no_api_key" {
		t.Errorf("attempts = %+v", resp.Attempts)
	}

	w = env.do(t, "GET", "/admin/requests?failed=true", "", true)
	var recs []database.CompletionRecord
	json.NewDecoder(w.Body).Decode(&recs)
	if len(recs) != 1 || recs[0].Success {
		t.Errorf("failed requests = %s", w.Body.String())
	}
}

func TestCompleteValidation(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	for _, body := range []string{
		`not json`,
		`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`,
		`{"provider":"openai","model":"gpt-4o"}`,
	} {
		w := env.do(t, "POST", "/v1/complete", body, false)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d, want 400", body, w.Code)
		}
	}
}

func TestModelsAndProviders(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("ANTHROPIC_API_KEY", "")

	w := env.do(t, "GET", "/v1/models?available=true", "", false)
	var models []discovery.Model
	json.NewDecoder(w.Body).Decode(&models)
	var sawOpenAI bool
	for _, m := range models {
		if !m.Available {
			t.Errorf("%s listed as unavailable", m.Ref)
		}
		if m.Provider == "anthropic" {
			t.Errorf("anthropic has no credential but %s was listed", m.Ref)
		}
		if m.Ref == "openai/gpt-4o" {
			sawOpenAI = true
		}
	}
	if !sawOpenAI {
		t.Error("Expected openai/gpt-4o in available models")
	}

	w = env.do(t, "GET", "/v1/providers", "", false)
	var list []map[string]interface{}
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != len(providers.Names()) {
		t.Errorf("providers = %d, want %d", len(list), len(providers.Names()))
	}

	w = env.do(t, "POST", "/admin/models/refresh", "", true)
	if w.Code != http.StatusOK {
		t.Errorf("refresh: %d", w.Code)
	}
}

func TestMaintenanceFlushesUsage(t *testing.T) {
	_, cleanup := setupTestServer(t)
	defer cleanup()

	config.Cfg.UsageFlushInterval = time.Second
	config.Cfg.AuditRetention = time.Hour
	defer func() {
		config.Cfg.UsageFlushInterval = 0
		config.Cfg.AuditRetention = 0
	}()

	tracker := usage.NewTracker()
	tracker.Track("groq", "llama-3.3-70b-versatile", 10, 5)

	scheduler, err := startMaintenance(tracker)
	if err != nil {
		t.Fatalf("startMaintenance: %v", err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(config.Cfg.UsageHistoryPath()); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("usage history was not flushed")
		}
		time.Sleep(50 * time.Millisecond)
	}

	loaded := usage.NewTracker()
	if err := loaded.Load(config.Cfg.UsageHistoryPath()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rows := loaded.Summary("")
	if len(rows) != 1 || rows[0].Provider != "groq" || rows[0].Requests != 1 {
		t.Errorf("flushed rows = %+v", rows)
	}
}

func TestUsageStatsDays(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		query    string
		wantCode int
		wantDays int
	}{
		{"", http.StatusOK, 7},
		{"?days=30", http.StatusOK, 30},
		{"?days=366", http.StatusOK, 366},
		{"?days=100000000", http.StatusBadRequest, 0},
		{"?days=0", http.StatusBadRequest, 0},
		{"?days=week", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		w := env.do(t, "GET", "/admin/usage/stats"+tt.query, "", true)
		if w.Code != tt.wantCode {
			t.Errorf("%q: expected %d, got %d", tt.query, tt.wantCode, w.Code)
			continue
		}
		if tt.wantCode != http.StatusOK {
			continue
		}
		var rep usage.Report
		json.NewDecoder(w.Body).Decode(&rep)
		if len(rep.Days) != tt.wantDays {
			t.Errorf("%q: got %d days, want %d", tt.query, len(rep.Days), tt.wantDays)
		}
	}
}
