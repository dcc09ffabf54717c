package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/config"
	"github.com/gluk-w/claworc/llm-router/internal/database"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

func newRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Handle("/v1/{provider}/*", h)
	return r
}

func useUpstream(t *testing.T, provider string, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	providers.SetCustomUpstream(provider, srv.URL)
	t.Cleanup(func() { providers.SetCustomUpstream(provider, "") })
	return srv
}

func setupTestDB(t *testing.T) {
	t.Helper()
	config.Cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	if err := database.Init(); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
		database.DB = nil
	})
}

func anthropicStore(t *testing.T, ids ...string) *authprofiles.Store {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	store := authprofiles.NewStore()
	for _, id := range ids {
		if err := store.AddProfile(id, authprofiles.APIKeyCredential{Key: "key-" + id}); err != nil {
			t.Fatalf("AddProfile(%s): %v", id, err)
		}
	}
	return store
}

func TestProxyForwardsWithRouterKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-router")
	useUpstream(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if r.URL.RawQuery != "trace=1" {
			t.Errorf("query = %s, want trace=1", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-router" {
			t.Errorf("Authorization = %q, want router key", got)
		}
		if got := r.Header.Get("X-Custom"); got != "kept" {
			t.Errorf("X-Custom = %q, want kept", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"gpt-4o","usage":{"prompt_tokens":100,"completion_tokens":50},"choices":[{"message":{"content":"Hello"}}]}`))
	})

	tracker := usage.NewTracker()
	r := newRouter(New(nil, "", tracker))

	req := httptest.NewRequest("POST", "/v1/openai/v1/chat/completions?trace=1", bytes.NewBufferString(`{"model":"gpt-4o"}`))
	req.Header.Set("Authorization", "Bearer caller-token")
	req.Header.Set("X-Custom", "kept")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("response has no request id")
	}

	rows := tracker.Summary("")
	if len(rows) != 1 || rows[0].Provider != "openai" || rows[0].Input != 100 || rows[0].Output != 50 {
		t.Errorf("summary = %+v", rows)
	}
}

func TestProxyRotatesProfiles(t *testing.T) {
	setupTestDB(t)
	store := anthropicStore(t, "anthropic:a", "anthropic:b")
	configDir := t.TempDir()

	var hits atomic.Int32
	useUpstream(t, "anthropic", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("x-api-key") == "key-anthropic:a" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Rate limit exceeded"}}`))
			return
		}
		w.Write([]byte(`{"model":"claude-sonnet-4-20250514","usage":{"input_tokens":20,"output_tokens":10}}`))
	})

	h := New(store, configDir, usage.NewTracker())
	req := httptest.NewRequest("POST", "/v1/anthropic/v1/messages", bytes.NewBufferString(`{"model":"claude-sonnet-4-20250514"}`))
	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if hits.Load() != 2 {
		t.Errorf("upstream hits = %d, want 2", hits.Load())
	}
	if !store.IsProfileInCooldown("anthropic:a") {
		t.Error("rejected profile should be cooling down")
	}
	if st, _ := store.Stats("anthropic:b"); st.SuccessCount != 1 {
		t.Errorf("anthropic:b success count = %d, want 1", st.SuccessCount)
	}

	saved, err := authprofiles.Load(configDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !saved.IsProfileInCooldown("anthropic:a") {
		t.Error("cooldown was not persisted")
	}

	recs, err := database.ListCompletions(database.CompletionFilter{})
	if err != nil || len(recs) != 1 {
		t.Fatalf("ListCompletions = %v, %v", recs, err)
	}
	rec := recs[0]
	if !rec.Success || rec.Kind != "proxy" || rec.ProfileID != "anthropic:b" || rec.InputTokens != 20 {
		t.Errorf("record = %+v", rec)
	}
	if rec.RequestID != w.Header().Get(RequestIDHeader) {
		t.Errorf("record request id = %s, header = %s", rec.RequestID, w.Header().Get(RequestIDHeader))
	}
	if rec.EstimatedCostMicro <= 0 {
		t.Errorf("cost = %d, want > 0", rec.EstimatedCostMicro)
	}

	attempts, err := database.ListAttempts(rec.RequestID)
	if err != nil || len(attempts) != 1 {
		t.Fatalf("ListAttempts = %v, %v", attempts, err)
	}
	if attempts[0].ProfileID != "anthropic:a" || attempts[0].FailureType != "rate_limit" {
		t.Errorf("attempt = %+v", attempts[0])
	}
}

func TestProxyRelaysLastRejection(t *testing.T) {
	setupTestDB(t)
	store := anthropicStore(t, "anthropic:a", "anthropic:b")

	var hits atomic.Int32
	useUpstream(t, "anthropic", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/anthropic/v1/messages", bytes.NewBufferString(`{}`))
	newRouter(New(store, "", nil)).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !bytes.Contains(body, []byte("authentication_error")) {
		t.Errorf("body = %s, want upstream error", body)
	}
	if hits.Load() != 2 {
		t.Errorf("upstream hits = %d, want 2", hits.Load())
	}
	for _, id := range []string{"anthropic:a", "anthropic:b"} {
		if !store.IsProfileInCooldown(id) {
			t.Errorf("%s should be cooling down", id)
		}
	}

	recs, _ := database.ListCompletions(database.CompletionFilter{Failed: true})
	if len(recs) != 1 || recs[0].StatusCode != http.StatusUnauthorized {
		t.Fatalf("failed records = %+v", recs)
	}
	if recs[0].Error != "upstream returned HTTP 401: invalid x-api-key" {
		t.Errorf("error = %q", recs[0].Error)
	}
}

func TestProxyEnvironmentKeyIsNotRotated(t *testing.T) {
	store := anthropicStore(t, "anthropic:a")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	var hits atomic.Int32
	useUpstream(t, "anthropic", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/anthropic/v1/messages", bytes.NewBufferString(`{}`))
	newRouter(New(store, "", nil)).ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", hits.Load())
	}
	if store.IsProfileInCooldown("anthropic:a") {
		t.Error("unused profile should not be cooling down")
	}
}

func TestProxyStreaming(t *testing.T) {
	store := anthropicStore(t, "anthropic:a")
	stream := "event: message_start\n" +
		`data: {"message":{"model":"claude-3-5-haiku-20241022","usage":{"input_tokens":15}}}` + "\n\n" +
		"event: message_delta\n" +
		`data: {"usage":{"output_tokens":4}}` + "\n\n"
	useUpstream(t, "anthropic", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(stream))
	})

	tracker := usage.NewTracker()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/anthropic/v1/messages", bytes.NewBufferString(`{"model":"claude-3-5-haiku-20241022","stream": true}`))
	newRouter(New(store, "", tracker)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != stream {
		t.Errorf("stream not passed through: %q", w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}

	rows := tracker.Summary("")
	if len(rows) != 1 || rows[0].Input != 15 || rows[0].Output != 4 {
		t.Fatalf("summary = %+v", rows)
	}
	if _, ok := rows[0].Models["claude-3-5-haiku-20241022"]; !ok {
		t.Errorf("models = %+v", rows[0].Models)
	}
}

func TestProxyErrors(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantError string
	}{
		{name: "unknown provider", path: "/v1/acme/v1/chat", wantCode: http.StatusBadRequest, wantError: "unknown_provider"},
		{name: "no credential", path: "/v1/groq/openai/v1/chat/completions", wantCode: http.StatusBadGateway, wantError: "no_api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", tt.path, bytes.NewBufferString(`{}`))
			newRouter(New(nil, "", nil)).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var resp map[string]string
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] != tt.wantError {
				t.Errorf("error = %s, want %s", resp["error"], tt.wantError)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen, seenClient string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		seenClient = GetClientRequestID(r.Context())
	}))

	const id = "3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b"
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, id)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen == "" || seen == id || w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("request id not minted: seen %s, header %s", seen, w.Header().Get(RequestIDHeader))
	}
	if seenClient != id || w.Header().Get(ClientRequestIDHeader) != id {
		t.Errorf("client id = %q, header %q, want %s", seenClient, w.Header().Get(ClientRequestIDHeader), id)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "retry-7\r\n")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seenClient != "retry-7" {
		t.Errorf("client id was not sanitized: %q", seenClient)
	}

	req = httptest.NewRequest("GET", "/", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seenClient != "" || w.Header().Get(ClientRequestIDHeader) != "" {
		t.Errorf("unexpected client id %q", seenClient)
	}
}

func TestProxyRecordsRetriesWithSameClientID(t *testing.T) {
	setupTestDB(t)
	t.Setenv("OPENAI_API_KEY", "sk-router")
	useUpstream(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"gpt-4o","usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	})
	r := newRouter(New(nil, "", usage.NewTracker()))

	const clientID = "3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b"
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/v1/openai/v1/chat/completions", bytes.NewBufferString(`{"model":"gpt-4o"}`))
		req.Header.Set(RequestIDHeader, clientID)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d", i, w.Code)
		}
	}

	recs, err := database.ListCompletions(database.CompletionFilter{})
	if err != nil {
		t.Fatalf("ListCompletions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].RequestID == recs[1].RequestID {
		t.Errorf("retries share request id %s", recs[0].RequestID)
	}
	for _, rec := range recs {
		if rec.ClientRequestID != clientID {
			t.Errorf("client request id = %q, want %s", rec.ClientRequestID, clientID)
		}
	}
}

func TestUpstreamMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"Rate limit exceeded"}}`, "Rate limit exceeded"},
		{`{"error":"quota exceeded"}`, "quota exceeded"},
		{`  Service Unavailable  `, "Service Unavailable"},
	}
	for _, tt := range tests {
		if got := upstreamMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("upstreamMessage(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
