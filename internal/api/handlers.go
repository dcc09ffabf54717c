package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/backend"
	"github.com/gluk-w/claworc/llm-router/internal/database"
	"github.com/gluk-w/claworc/llm-router/internal/discovery"
	"github.com/gluk-w/claworc/llm-router/internal/equivalence"
	"github.com/gluk-w/claworc/llm-router/internal/failover"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
	"github.com/gluk-w/claworc/llm-router/internal/proxy"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Server holds the state shared by the HTTP handlers.
type Server struct {
	Store     *authprofiles.Store
	ConfigDir string
	Tracker   *usage.Tracker
	Resolver  *equivalence.Resolver
	Models    *discovery.Lister
	Backend   *backend.Client
}

func (s *Server) saveStore() error {
	if s.ConfigDir == "" {
		return nil
	}
	return s.Store.Save(s.ConfigDir)
}

type completeRequest struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Fallbacks []string `json:"fallbacks"`
	backend.Request
}

type completeResponse struct {
	RequestID    string             `json:"request_id"`
	Provider     string             `json:"provider"`
	Model        string             `json:"model"`
	FallbackUsed bool               `json:"fallback_used"`
	Content      string             `json:"content"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	Attempts     []failover.Attempt `json:"attempts"`
}

// Complete runs a chat completion against the requested provider and its
// fallbacks.
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	var body completeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Provider == "" || body.Model == "" {
		writeError(w, http.StatusBadRequest, "provider and model are required")
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	requestID := proxy.GetRequestID(r.Context())
	start := time.Now()
	res, err := failover.Run(r.Context(), failover.Options[*backend.Response]{
		Provider:  body.Provider,
		Model:     body.Model,
		Fallbacks: body.Fallbacks,
		Run:       s.Backend.Runner(body.Request),
		Store:     s.Store,
		ConfigDir: s.ConfigDir,
		Resolver:  s.Resolver,
	})

	rec := &database.CompletionRecord{
		RequestID:         requestID,
		ClientRequestID:   proxy.GetClientRequestID(r.Context()),
		Kind:              "complete",
		RequestedProvider: body.Provider,
		RequestedModel:    body.Model,
		DurationMs:        time.Since(start).Milliseconds(),
	}

	if err != nil {
		var exhausted *failover.ExhaustedError
		var attempts []failover.Attempt
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
		}
		rec.Error = err.Error()
		rec.StatusCode = http.StatusBadGateway
		recordCompletion(rec, attempts)
		if attempts == nil {
			attempts = []failover.Attempt{}
		}
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":      "all_providers_failed",
			"message":    err.Error(),
			"request_id": requestID,
			"attempts":   attempts,
		})
		return
	}

	out := res.Result
	rec.Provider = res.Provider
	rec.Model = res.Model
	rec.Success = true
	rec.FallbackUsed = res.FallbackUsed
	rec.StatusCode = http.StatusOK
	rec.InputTokens = out.InputTokens
	rec.OutputTokens = out.OutputTokens
	rec.EstimatedCostMicro = int64(usage.EstimateCostForModel(res.Provider, res.Model, out.InputTokens, out.OutputTokens) * 1_000_000)
	recordCompletion(rec, res.Attempts)

	attempts := res.Attempts
	if attempts == nil {
		attempts = []failover.Attempt{}
	}
	writeJSON(w, http.StatusOK, completeResponse{
		RequestID:    requestID,
		Provider:     res.Provider,
		Model:        res.Model,
		FallbackUsed: res.FallbackUsed,
		Content:      out.Content,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Attempts:     attempts,
	})
}

func recordCompletion(rec *database.CompletionRecord, attempts []failover.Attempt) {
	if database.DB == nil {
		return
	}
	if err := database.RecordCompletion(rec, database.AttemptRecords(attempts)); err != nil {
		log.Printf("Failed to record request %s: %v", rec.RequestID, err)
	}
}

// ListModels returns the catalog plus discovered models. ?available=true
// keeps only models the router can call right now.
func (s *Server) ListModels(w http.ResponseWriter, r *http.Request) {
	models := s.Models.ListAvailableModels(r.Context())
	if r.URL.Query().Get("available") == "true" {
		kept := models[:0]
		for _, m := range models {
			if m.Available {
				kept = append(kept, m)
			}
		}
		models = kept
	}
	if models == nil {
		models = []discovery.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}

// RefreshModels drops the cached model listing.
func (s *Server) RefreshModels(w http.ResponseWriter, r *http.Request) {
	s.Models.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ListProviders returns the catalog without model lists.
func ListProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		Name         string `json:"name"`
		APIFamily    string `json:"api_family"`
		AuthMode     string `json:"auth_mode"`
		EnvKey       string `json:"env_key,omitempty"`
		RequiresAuth bool   `json:"requires_auth"`
		Models       int    `json:"models"`
	}
	out := make([]providerInfo, 0)
	for _, name := range providers.Names() {
		p, _ := providers.Get(name)
		out = append(out, providerInfo{
			Name:         p.Name,
			APIFamily:    string(p.APIFamily),
			AuthMode:     string(p.AuthMode),
			EnvKey:       p.EnvKey,
			RequiresAuth: p.RequiresAuth,
			Models:       len(p.Models),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListProfiles returns every auth profile with masked secrets.
func (s *Server) ListProfiles(w http.ResponseWriter, r *http.Request) {
	stats := s.Store.AllProfileStats()
	if provider := r.URL.Query().Get("provider"); provider != "" {
		kept := stats[:0]
		for _, ps := range stats {
			if ps.Provider == provider {
				kept = append(kept, ps)
			}
		}
		stats = kept
	}
	writeJSON(w, http.StatusOK, stats)
}

// AddProfile creates or replaces an auth profile.
func (s *Server) AddProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.Secret) == "" {
		writeError(w, http.StatusBadRequest, "secret is required")
		return
	}
	cred, err := authprofiles.ParseCredential(body.Type, strings.TrimSpace(body.Secret))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Store.AddProfile(body.ID, cred); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.saveStore(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save profiles")
		return
	}
	s.Models.Invalidate()

	ps, _ := s.Store.GetProfileStats(body.ID)
	writeJSON(w, http.StatusCreated, ps)
}

// RemoveProfile deletes an auth profile.
func (s *Server) RemoveProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.RemoveProfile(id); err != nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err := s.saveStore(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save profiles")
		return
	}
	s.Models.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// ResetProfile clears a profile's cooldown and error streak.
func (s *Server) ResetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.ResetProfileCooldown(id); err != nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err := s.saveStore(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save profiles")
		return
	}
	ps, _ := s.Store.GetProfileStats(id)
	writeJSON(w, http.StatusOK, ps)
}

// GetUsage returns per-provider usage for ?date= (today by default).
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.Tracker.Summary(date))
}

// GetUsageStats returns the report for the last ?days= days.
func (s *Server) GetUsageStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > usage.MaxStatsDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be a number from 1 to %d", usage.MaxStatsDays))
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, s.Tracker.Stats(days))
}

// GetUsageLine renders today's usage as plain text. ?detailed=true gives
// the per-model breakdown.
func (s *Server) GetUsageLine(w http.ResponseWriter, r *http.Request) {
	rows := s.Tracker.Summary("")
	text := usage.FormatUsageLine(rows)
	if r.URL.Query().Get("detailed") == "true" {
		text = usage.FormatUsageDetailed(rows)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text + "\n"))
}

// ListRequests returns recorded requests, newest first.
func ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := database.CompletionFilter{
		Provider: q.Get("provider"),
		Failed:   q.Get("failed") == "true",
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		f.Since = t
	}

	recs, err := database.ListCompletions(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests")
		return
	}
	if recs == nil {
		recs = []database.CompletionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ListRequestAttempts returns the skipped and failed attempts of a request.
func ListRequestAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := database.ListAttempts(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []database.AttemptRecord{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// GetFailureCounts groups failed attempts by provider and failure type over
// the last ?hours= hours (24 by default).
func GetFailureCounts(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "hours must be a positive number")
			return
		}
		hours = n
	}
	counts, err := database.FailureCounts(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count failures")
		return
	}
	if counts == nil {
		counts = []database.FailureCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// HealthCheck returns router health status.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
