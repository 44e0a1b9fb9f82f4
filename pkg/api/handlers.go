package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/quaycorner/swarmkernel/pkg/run"
	"github.com/quaycorner/swarmkernel/pkg/stream"
)

func (s *Server) handleHealth(c *gin.Context) {
	_, err := s.Checkpoint.List(c.Request.Context(), "__health__")
	resp := HealthResponse{
		Status:            "ok",
		CheckpointHealthy: err == nil,
		ActiveRuns:        s.Pool.Active(),
	}
	if err != nil {
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleInvoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input: "+err.Error())
		return
	}

	final, err := s.Pool.Run(c.Request.Context(), run.Invoke{
		Input:    req.Input.Message,
		ThreadID: req.ThreadID,
	}, nil)
	if errors.Is(err, run.ErrPoolDraining) {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil && final == nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	results := make(map[string]interface{}, len(final.Results))
	for k, v := range final.Results {
		results[k] = v
	}
	c.JSON(http.StatusOK, InvokeResponse{
		ThreadID:   final.ThreadID,
		IsComplete: final.IsComplete,
		Results:    results,
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := c.Request.Context()
	sink := &stream.WebSocketSink{Conn: conn}

	for {
		msg, err := stream.ReadInvoke(ctx, conn)
		if err != nil {
			return
		}
		if err := runInvokeOverSocket(ctx, s.Pool, msg, sink); err != nil {
			return
		}
	}
}

func runInvokeOverSocket(ctx context.Context, pool *run.Pool, msg stream.InboundInvoke, sink *stream.WebSocketSink) error {
	_, err := pool.Run(ctx, run.Invoke{Input: msg.Input, ThreadID: msg.ThreadID}, sink)
	if err != nil {
		return sink.Send(ctx, stream.Event{Type: stream.EventError, Message: err.Error()})
	}
	return nil
}
