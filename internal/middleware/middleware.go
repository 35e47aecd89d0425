// Package middleware implements the HTTP middleware chain: request
// logging, panic recovery, request-id tagging, and admin session
// enforcement. Chain/Logger/Recover/RequestID are carried over from the
// teacher near verbatim; RequireAuth is rewritten to return the JSON 401
// envelope spec §6 requires instead of an HTML login redirect, and
// MethodOverride is dropped since Michael's API has no HTML forms
// submitting PUT/DELETE.
package middleware

import (
	"context"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/bromanko/michael/internal/apperr"
	"github.com/bromanko/michael/internal/httpapi"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/session"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	SessionKey   contextKey = "admin_session"

	sessionCookieName = "michael_session"
)

// Chain applies multiple middleware to a handler, outermost first.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Logger logs HTTP requests.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Printf("%s %s %s %d %s", r.Method, r.URL.Path, r.RemoteAddr, wrapped.statusCode, time.Since(start))
	})
}

// Recover recovers from panics and converts them into a JSON 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic: %v\n%s", err, debug.Stack())
				httpapi.WriteError(w, apperr.Internal("internal server error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestID adds a unique request ID to each request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth enforces a valid admin session cookie on every route it
// wraps (spec §4.5). An absent, expired, or unknown token returns a JSON
// 401 and clears the cookie rather than redirecting, since Michael has no
// server-rendered login page.
func RequireAuth(sessions *session.Service, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil {
				clearSessionCookie(w, secureCookie)
				httpapi.WriteError(w, apperr.Unauthorized("authentication required"))
				return
			}

			sess, err := sessions.Validate(r.Context(), cookie.Value)
			if err != nil {
				httpapi.WriteError(w, apperr.Internal("failed to validate session", err))
				return
			}
			if sess == nil {
				clearSessionCookie(w, secureCookie)
				httpapi.WriteError(w, apperr.Unauthorized("session expired or invalid"))
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie writes the admin session cookie after a successful
// login.
func SetSessionCookie(w http.ResponseWriter, sess *models.AdminSession, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/api/admin",
		Expires:  sess.ExpiresAt.Time,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/api/admin",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie exposes the cookie-clearing step for the logout
// handler.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	clearSessionCookie(w, secure)
}

// SessionFromContext retrieves the validated admin session, if any.
func SessionFromContext(ctx context.Context) *models.AdminSession {
	sess, _ := ctx.Value(SessionKey).(*models.AdminSession)
	return sess
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
