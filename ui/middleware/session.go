package middleware

import (
	"net/http"
	"time"

	"gosurv/domain/core"
	"gosurv/internal"
	"gosurv/internal/observability"
	"gosurv/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionKey is the gin context key holding the current core.SessionID
const SessionKey = "sessionID"

// EnsureSession resolves the session cookie, starting a new session when the
// cookie is absent, malformed or names an expired session. The cookie is
// reissued on every request so it lives as long as the store's sliding TTL.
func EnsureSession(store *session.Store, cookieName string, ttl time.Duration, logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := resolveSession(c, store, cookieName)
		if !ok {
			id = store.Create().ID
			logger.Debug("started session %s", id)
		}
		setSessionCookie(c, cookieName, id, ttl)
		c.Set(SessionKey, id)
		c.Next()
	}
}

func resolveSession(c *gin.Context, store *session.Store, cookieName string) (core.SessionID, bool) {
	raw, err := c.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	id, err := core.ParseSessionID(raw)
	if err != nil {
		return "", false
	}
	if _, err := store.Get(id); err != nil {
		return "", false
	}
	return id, true
}

func setSessionCookie(c *gin.Context, name string, id core.SessionID, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    id.String(),
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// CurrentSession returns the session resolved by EnsureSession
func CurrentSession(c *gin.Context) core.SessionID {
	if v, ok := c.Get(SessionKey); ok {
		if id, ok := v.(core.SessionID); ok {
			return id
		}
	}
	return ""
}

// RequestMetrics logs each request and records it under the matched route
func RequestMetrics(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		observability.RecordHTTPRequest(c.Request.Method, route, status, time.Since(start))
		logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Microsecond))
	}
}
