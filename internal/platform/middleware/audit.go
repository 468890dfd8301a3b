package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry records one attempt against a credential endpoint.
type AuditEntry struct {
	Action     string // login, signup, logout
	Outcome    string // success, denied, error
	UserID     string
	IPAddress  string
	UserAgent  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAuth(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAuth(entry AuditEntry) error {
	return f(entry)
}

var auditedActions = map[string]string{
	"/api/auth/login":  "login",
	"/api/auth/signup": "signup",
	"/api/auth/logout": "logout",
}

// Audit logs every login, signup and logout attempt with its outcome. Request
// bodies are never inspected so passwords cannot leak into the log. Without
// recorders entries go to the structured logger only.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			action, ok := auditedActions[path]
			if !ok || c.Request().Method != http.MethodPost {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			entry := AuditEntry{
				Action:     action,
				Outcome:    outcomeFor(status),
				IPAddress:  c.RealIP(),
				UserAgent:  c.Request().UserAgent(),
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			entry.UserID, _ = c.Get("user_id").(string)
			entry.RequestID, _ = c.Get(requestIDKey).(string)

			logEntry(logger, entry)
			for _, r := range recorders {
				if rerr := r.RecordAuth(entry); rerr != nil {
					logger.Error().Err(rerr).Str("action", action).Msg("failed to record audit entry")
				}
			}
			return err
		}
	}
}

func outcomeFor(status int) string {
	switch {
	case status >= 500:
		return "error"
	case status >= 400:
		return "denied"
	default:
		return "success"
	}
}

func logEntry(logger zerolog.Logger, e AuditEntry) {
	evt := logger.Info()
	if e.Outcome != "success" {
		evt = logger.Warn()
	}
	evt.
		Str("audit", "auth").
		Str("action", e.Action).
		Str("outcome", e.Outcome).
		Str("user_id", e.UserID).
		Str("ip", e.IPAddress).
		Str("user_agent", strings.TrimSpace(e.UserAgent)).
		Str("request_id", e.RequestID).
		Int("status", e.StatusCode).
		Msg("auth event")
}
