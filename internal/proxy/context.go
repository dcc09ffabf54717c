package proxy

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gluk-w/claworc/llm-router/internal/logutil"
)

type contextKey string

const (
	requestIDKey       contextKey = "requestID"
	clientRequestIDKey contextKey = "clientRequestID"
)

// RequestIDHeader carries the id that ties a response to its audit rows.
const RequestIDHeader = "X-Request-Id"

// ClientRequestIDHeader echoes the id the caller sent in X-Request-Id.
const ClientRequestIDHeader = "X-Client-Request-Id"

const maxClientRequestID = 128

// GetRequestID returns the id assigned by RequestIDMiddleware, or a fresh
// one when the request did not pass through it.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

// GetClientRequestID returns the X-Request-Id the caller sent, if any.
func GetClientRequestID(ctx context.Context) string {
	v, _ := ctx.Value(clientRequestIDKey).(string)
	return v
}

// RequestIDMiddleware assigns every request a fresh id, even a retry that
// repeats its X-Request-Id. The caller's id is kept separately and echoed as
// X-Client-Request-Id.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set(RequestIDHeader, id)

		if client := clientRequestID(r.Header.Get(RequestIDHeader)); client != "" {
			ctx = context.WithValue(ctx, clientRequestIDKey, client)
			w.Header().Set(ClientRequestIDHeader, client)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientRequestID(v string) string {
	v = strings.TrimSpace(logutil.SanitizeForLog(v))
	if len(v) > maxClientRequestID {
		v = strings.ToValidUTF8(v[:maxClientRequestID], "")
	}
	return v
}
