// Package proxy forwards native provider API calls to the upstream with a
// credential held by the router. Named profiles of the requested provider are
// rotated when the upstream rejects one, and token usage is read from the
// response on the way back.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/database"
	"github.com/gluk-w/claworc/llm-router/internal/failover"
	"github.com/gluk-w/claworc/llm-router/internal/failure"
	"github.com/gluk-w/claworc/llm-router/internal/logutil"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

type Handler struct {
	Store *authprofiles.Store
	// ConfigDir is where Store is saved after a profile is used or fails.
	ConfigDir string
	Tracker   *usage.Tracker
	Client    *http.Client

	now func() time.Time
}

func New(store *authprofiles.Store, configDir string, tracker *usage.Tracker) *Handler {
	return &Handler{
		Store:     store,
		ConfigDir: configDir,
		Tracker:   tracker,
		Client:    &http.Client{Timeout: 10 * time.Minute},
		now:       time.Now,
	}
}

// upstreamFailure is a rejected response kept so that it can be relayed to
// the caller when no other profile is left.
type upstreamFailure struct {
	status int
	header http.Header
	body   []byte
}

// ServeHTTP handles /v1/{provider}/*.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	provider, ok := providers.Get(providerName)
	if !ok {
		http.Error(w, `{"error":"unknown_provider","message":"Unknown provider"}`, http.StatusBadRequest)
		return
	}

	// Build upstream URL: strip /v1/{provider} prefix from path
	upstreamPath := strings.TrimPrefix(r.URL.Path, "/v1/"+providerName)
	if upstreamPath == "" {
		upstreamPath = "/"
	}
	upstreamURL := provider.UpstreamURL + upstreamPath
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	reqBody, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"read_body","message":"Failed to read request body"}`, http.StatusBadRequest)
		return
	}
	isStreaming := detectStreaming(reqBody)

	rec := &database.CompletionRecord{
		RequestID:         GetRequestID(r.Context()),
		ClientRequestID:   GetClientRequestID(r.Context()),
		Kind:              "proxy",
		RequestedProvider: provider.Name,
		RequestedModel:    requestedModel(reqBody),
		Provider:          provider.Name,
	}
	startTime := h.now()
	var attempts []failover.Attempt
	var last *upstreamFailure
	tried := map[string]bool{}

	for {
		cred, reason, ok := failover.ResolveCredential(h.Store, provider.Name)
		if ok && cred.ProfileID != "" && tried[cred.ProfileID] {
			ok = false
		}
		if !ok {
			if last != nil {
				relayFailure(w, last)
				rec.StatusCode = last.status
				rec.Error = attempts[len(attempts)-1].Error
			} else {
				attempts = append(attempts, failover.Attempt{
					Provider: provider.Name, Model: rec.RequestedModel, Skipped: true, Reason: reason, Timestamp: h.now(),
				})
				http.Error(w, `{"error":"`+reason+`","message":"No usable credential for this provider"}`, http.StatusBadGateway)
				rec.StatusCode = http.StatusBadGateway
				rec.Error = reason
			}
			h.record(rec, attempts, startTime)
			return
		}
		if cred.ProfileID != "" {
			tried[cred.ProfileID] = true
		}

		resp, err := h.forward(r, provider, upstreamURL, reqBody, cred)
		if err != nil {
			log.Printf("Upstream request to %s failed: %v", provider.Name, logutil.SanitizeForLog(err.Error()))
			if r.Context().Err() == nil {
				h.markFailure(cred, failure.Categorize(err))
			}
			attempts = append(attempts, h.failedAttempt(provider.Name, rec.RequestedModel, cred, err))
			http.Error(w, `{"error":"upstream_error","message":"Failed to reach upstream provider"}`, http.StatusBadGateway)
			rec.StatusCode = http.StatusBadGateway
			rec.Error = err.Error()
			h.record(rec, attempts, startTime)
			return
		}

		if cred.ProfileID != "" && rotatable(resp.StatusCode) {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			statusErr := &failure.StatusError{StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
			h.markFailure(cred, failure.Categorize(statusErr))
			attempts = append(attempts, h.failedAttempt(provider.Name, rec.RequestedModel, cred, statusErr))
			last = &upstreamFailure{status: resp.StatusCode, header: resp.Header.Clone(), body: body}
			log.Printf("Profile %s rejected by %s (HTTP %d), rotating", cred.ProfileID, provider.Name, resp.StatusCode)
			continue
		}

		rec.ProfileID = cred.ProfileID
		rec.StatusCode = resp.StatusCode
		rec.Success = resp.StatusCode < 300
		if rec.Success && cred.ProfileID != "" {
			h.Store.MarkProfileUsed(cred.ProfileID)
			h.saveStore()
		}

		var result providers.Usage
		for key, vals := range resp.Header {
			for _, v := range vals {
				w.Header().Add(key, v)
			}
		}
		if isStreaming && resp.StatusCode == http.StatusOK {
			result = handleStreamingResponse(w, resp, provider)
		} else {
			result = handleNonStreamingResponse(w, resp, provider)
		}
		resp.Body.Close()

		if !rec.Success {
			rec.Error = http.StatusText(resp.StatusCode)
		}
		h.recordUsage(rec, result)
		h.record(rec, attempts, startTime)
		return
	}
}

func (h *Handler) forward(r *http.Request, provider providers.ProviderConfig, upstreamURL string, body []byte, cred failover.Credential) (*http.Response, error) {
	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	// Copy headers (except auth-related)
	for key, vals := range r.Header {
		lower := strings.ToLower(key)
		if lower == "authorization" || lower == "x-api-key" || lower == "x-goog-api-key" || lower == "host" {
			continue
		}
		for _, v := range vals {
			upstreamReq.Header.Add(key, v)
		}
	}

	if cred.APIKey != "" && cred.APIKey != providers.AWSCredentialSentinel {
		headerName, headerValue := provider.SetAuthHeader(cred.APIKey)
		upstreamReq.Header.Set(headerName, headerValue)
	}
	return h.Client.Do(upstreamReq)
}

// rotatable reports whether a status means the credential, not the request,
// was at fault.
func rotatable(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusTooManyRequests:
		return true
	}
	return false
}

func (h *Handler) markFailure(cred failover.Credential, ft failure.Type) {
	if cred.ProfileID == "" || h.Store == nil {
		return
	}
	h.Store.MarkProfileFailure(cred.ProfileID, ft)
	h.saveStore()
}

func (h *Handler) saveStore() {
	if h.ConfigDir == "" {
		return
	}
	if err := h.Store.Save(h.ConfigDir); err != nil {
		log.Printf("Failed to save auth profiles: %v", err)
	}
}

func (h *Handler) failedAttempt(provider, model string, cred failover.Credential, err error) failover.Attempt {
	return failover.Attempt{
		Provider:    provider,
		Model:       model,
		Error:       err.Error(),
		FailureType: failure.Categorize(err),
		ProfileID:   cred.ProfileID,
		Timestamp:   h.now(),
	}
}

func relayFailure(w http.ResponseWriter, f *upstreamFailure) {
	for key, vals := range f.header {
		if strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(f.status)
	w.Write(f.body)
}

func handleStreamingResponse(w http.ResponseWriter, resp *http.Response, provider providers.ProviderConfig) providers.Usage {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	parser := &StreamingParser{ParserType: provider.ParserType}
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Printf("ResponseWriter does not support Flusher")
		if err := parser.ParseSSEStream(resp.Body, w); err != nil {
			log.Printf("SSE parse error for %s: %v", provider.Name, err)
		}
		return parser.Result
	}

	flushWriter := &flushingWriter{w: w, f: flusher}
	if err := parser.ParseSSEStream(resp.Body, flushWriter); err != nil {
		log.Printf("SSE parse error for %s: %v", provider.Name, err)
	}
	return parser.Result
}

func handleNonStreamingResponse(w http.ResponseWriter, resp *http.Response, provider providers.ProviderConfig) providers.Usage {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Failed to read upstream response: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		return providers.Usage{}
	}

	w.WriteHeader(resp.StatusCode)
	w.Write(body)

	if resp.StatusCode != http.StatusOK {
		return providers.Usage{}
	}
	return providers.ParseBody(provider.ParserType, body)
}

func detectStreaming(body []byte) bool {
	return bytes.Contains(body, []byte(`"stream":true`)) ||
		bytes.Contains(body, []byte(`"stream": true`))
}

func requestedModel(body []byte) string {
	var req struct {
		Model string `json:"model"`
	}
	if json.Unmarshal(body, &req) != nil {
		return ""
	}
	return req.Model
}

// upstreamMessage pulls a readable message out of an error body.
func upstreamMessage(body []byte) string {
	var e struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && len(e.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(e.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(e.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func (h *Handler) recordUsage(rec *database.CompletionRecord, result providers.Usage) {
	rec.Model = result.Model
	if rec.Model == "" {
		rec.Model = rec.RequestedModel
	}
	rec.InputTokens = result.InputTokens
	rec.OutputTokens = result.OutputTokens
	if !rec.Success {
		return
	}
	cost := usage.EstimateCostForModel(rec.Provider, rec.Model, result.InputTokens, result.OutputTokens)
	rec.EstimatedCostMicro = int64(cost * 1_000_000)
	if h.Tracker != nil {
		h.Tracker.Track(rec.Provider, rec.Model, result.InputTokens, result.OutputTokens)
	}
}

func (h *Handler) record(rec *database.CompletionRecord, attempts []failover.Attempt, startTime time.Time) {
	rec.DurationMs = h.now().Sub(startTime).Milliseconds()
	if database.DB == nil {
		return
	}
	if err := database.RecordCompletion(rec, database.AttemptRecords(attempts)); err != nil {
		log.Printf("Failed to record request %s: %v", rec.RequestID, err)
	}
}

type flushingWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw *flushingWriter) Write(p []byte) (n int, err error) {
	n, err = fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return
}

func (fw *flushingWriter) Flush() {
	if fw.f != nil {
		fw.f.Flush()
	}
}
