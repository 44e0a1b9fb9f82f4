package api

// InvokeResponse is the synchronous invocation endpoint's response body —
// spec §6: terminal snapshot's results + thread_id + is_complete.
type InvokeResponse struct {
	ThreadID   string                 `json:"thread_id"`
	IsComplete bool                   `json:"is_complete"`
	Results    map[string]interface{} `json:"results"`
}

// HealthResponse reports checkpointer reachability, surfaced ambiently
// beyond spec's explicit scope since any deployed service needs one —
// grounded on tarsy's own health handler shape.
type HealthResponse struct {
	Status            string `json:"status"`
	CheckpointHealthy bool   `json:"checkpoint_healthy"`
	ActiveRuns        int    `json:"active_runs"`
}
