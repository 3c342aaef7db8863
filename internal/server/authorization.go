package server

import (
	"github.com/gin-gonic/gin"
)

// authorizeAction checks the caller's role against the casbin policy for object/action.
func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), userID, roleFromContext(c), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
