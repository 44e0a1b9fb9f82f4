package api

// InvokeRequest is the synchronous invocation endpoint's request body —
// spec §6: `{"input": {"message": "..."}, "thread_id": "<opt>", "config": {...}}`.
type InvokeRequest struct {
	Input struct {
		Message string `json:"message" binding:"required"`
	} `json:"input" binding:"required"`
	ThreadID string                 `json:"thread_id,omitempty"`
	Config   map[string]interface{} `json:"config,omitempty"`
}
