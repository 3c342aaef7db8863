package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}
