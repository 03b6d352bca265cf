package main

import (
	"net/http"
	"time"

	"lxmchat/internal/metrics"
)

func (s *diagnosticsServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics":   metrics.GetAllMetrics(),
	})
}
