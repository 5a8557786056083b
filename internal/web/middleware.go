package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rmrecorder/recentmessages/internal/web/apierror"
)

// requestIDMiddleware stamps every request with an X-Request-Id, reusing
// one supplied by an upstream proxy if present so traces stay correlated
// across hops.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// corsMiddleware allows any origin to read from the API: recent-messages
// is consumed directly from browser-based chat clients on arbitrary
// domains, not just a single first-party frontend.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// timeoutMiddleware bounds request handling to d, replacing the request
// context with one that cancels after d. Handlers that respect ctx
// cancellation (every storage and auth call does) unwind promptly; the
// middleware itself is responsible for writing the timeout response
// since a cancelled context alone doesn't produce one.
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if !c.Writer.Written() {
				endpoint := c.FullPath()
				if endpoint == "" {
					endpoint = "unmatched"
				}
				httpRequestTimeouts.WithLabelValues(endpoint).Inc()
				writeError(c, apierror.New(apierror.CodeRequestTimeout, "request timed out"))
			}
			c.Abort()
		}
	}
}

// bearerToken extracts the opaque session token from the Authorization
// header, or responds with the appropriate error and returns ok=false.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		writeError(c, apierror.New(apierror.CodeMissingHeader, "missing Authorization header"))
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		writeError(c, apierror.New(apierror.CodeMalformedAuthorizationHdr, "Authorization header must be a Bearer token"))
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		writeError(c, apierror.New(apierror.CodeMalformedAuthorizationHdr, "Authorization header carries no token"))
		return "", false
	}
	return token, true
}
