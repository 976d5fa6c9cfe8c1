package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/attachvault/internal/middleware"
)

// requestContext returns the context carried by the incoming request.
// Handlers exercised directly in tests may run without an *http.Request
// attached, hence the background fallback.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// operatorID returns the authenticated operator behind the request, or an
// empty string on routes that skip the auth middleware.
func operatorID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	id, _ := c.Get(middleware.CtxOperatorKey)
	operator, _ := id.(string)
	return operator
}
