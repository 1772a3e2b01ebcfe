// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	apierrors "github.com/halcyonrmm/halcyon/internal/api/errors"
)

// contextKey is the type used for middleware context values.
type contextKey string

// RequestIDKey is the context key for the request ID.
const RequestIDKey contextKey = "request_id"

// RequestIDHeader is the header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a unique ID, honoring an incoming
// X-Request-ID header from a trusted proxy. The ID is echoed back in the
// response and stored in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// RealIP rewrites RemoteAddr from proxy headers so downstream middleware
// (rate limiting, logging) keys on the actual client.
func RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := getRealIP(r); ip != "" {
			r.RemoteAddr = ip
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Request logging
// ============================================================================

// RequestLogger is the minimal logging interface the middleware needs.
// *logger.Logger satisfies it.
type RequestLogger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// SimpleLogging logs one line per completed request.
func SimpleLogging(log RequestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", GetRequestID(r.Context()),
			)
		})
	}
}

// DebugLogging logs requests with remote address and user agent. Verbose;
// enable only when diagnosing traffic.
func DebugLogging(log RequestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			log.Debug("http request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"request_id", GetRequestID(r.Context()),
			)

			next.ServeHTTP(ww, r)

			log.Debug("http request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", GetRequestID(r.Context()),
			)
		})
	}
}

// ============================================================================
// Panic recovery
// ============================================================================

// RecoveryConfig contains configuration for the recovery middleware.
type RecoveryConfig struct {
	// Logger receives the panic report. May be nil.
	Logger RequestLogger

	// PrintStack includes the goroutine stack in the log entry.
	PrintStack bool
}

// Recovery converts panics in handlers into 500 responses.
func Recovery(config RecoveryConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						// The server uses this to abort in-flight responses;
						// re-panic so net/http handles it.
						panic(rec)
					}

					if config.Logger != nil {
						kv := []interface{}{
							"panic", rec,
							"method", r.Method,
							"path", r.URL.Path,
							"request_id", GetRequestID(r.Context()),
						}
						if config.PrintStack {
							kv = append(kv, "stack", string(debug.Stack()))
						}
						config.Logger.Error("panic in http handler", kv...)
					}

					apierrors.WriteErrorWithRequestID(w,
						apierrors.Internal(""), GetRequestID(r.Context()))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Role enforcement
// ============================================================================

// RequireAdmin rejects requests whose claims do not carry the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r.Context())
		if claims == nil {
			apierrors.WriteErrorWithRequestID(w,
				apierrors.Unauthorized(""), GetRequestID(r.Context()))
			return
		}
		if claims.Role != RoleAdmin {
			apierrors.WriteErrorWithRequestID(w,
				apierrors.Forbidden("admin role required"), GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
