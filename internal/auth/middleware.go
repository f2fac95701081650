package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/response"
)

const contextKey = "auth_context"

// RequireScope authorizes the request for scope and stores the resulting
// Context for the handler.
func RequireScope(guard *Guard, scope Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, err := guard.Authorize(c.GetHeader("Authorization"), scope)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(contextKey, ac)
		c.Next()
	}
}

// FromGin returns the Context stored by RequireScope.
func FromGin(c *gin.Context) (*Context, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	ac, ok := v.(*Context)
	return ac, ok
}
