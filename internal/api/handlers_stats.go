package api

import (
	"net/http"
)

func (s *Server) handleCompactionStats(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		jsonError(w, "compaction stats unavailable", http.StatusServiceUnavailable)
		return
	}
	resp := map[string]any{
		"reduction_percent": s.metrics.Window.Snapshot(),
		"rules":             s.content.Codec().Rules(),
	}
	if s.orchestrator != nil {
		resp["queue_depth"] = s.orchestrator.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}
