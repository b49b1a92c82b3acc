package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tokens":      s.accountant.Summary(),
		"credentials": s.pool.Stats(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
