package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"geminigate/internal/modelset"
)

func (s *Server) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   modelset.List(),
	})
}
