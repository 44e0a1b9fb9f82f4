// Package api exposes the kernel over HTTP: a synchronous invocation
// endpoint, a websocket upgrade for the streaming subscriber protocol,
// and a health route — spec §6's external interfaces.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/quaycorner/swarmkernel/pkg/checkpoint"
	"github.com/quaycorner/swarmkernel/pkg/run"
)

// Server wires the run pool into a gin router.
type Server struct {
	Pool       *run.Pool
	Checkpoint checkpoint.Store
	engine     *gin.Engine
}

// New builds a Server with its routes registered.
func New(pool *run.Pool, ckpt checkpoint.Store) *Server {
	s := &Server{Pool: pool, Checkpoint: ckpt, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

// Engine exposes the underlying gin engine, e.g. for ListenAndServe.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/invoke", s.handleInvoke)
	s.engine.GET("/ws", s.handleWebSocket)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
