// Package api wires the gateway's four HTTP endpoints (spec.md §6) onto a
// gin router, delegating request handling to internal/pipeline and
// response shaping to internal/modelset and internal/usage.
package api

import (
	"github.com/gin-gonic/gin"

	"geminigate/internal/api/middleware"
	"geminigate/internal/credential"
	"geminigate/internal/pipeline"
	"geminigate/internal/usage"
)

// Server holds the dependencies the HTTP handlers need.
type Server struct {
	pipeline   *pipeline.Pipeline
	pool       *credential.Pool
	accountant *usage.Accountant
}

// New builds a Server and returns a gin.Engine with every route and the
// standard middleware chain attached.
func New(p *pipeline.Pipeline, pool *credential.Pool, accountant *usage.Accountant) *gin.Engine {
	s := &Server{pipeline: p, pool: pool, accountant: accountant}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.RequestLogger(), middleware.CORS())

	r.POST("/v1/chat/completions", s.handleChatCompletions)
	r.GET("/v1/models", s.handleListModels)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/health", s.handleHealth)

	return r
}
