package api

import (
	"net/http"
	"runtime"
	"time"
)

// handleMetrics returns a JSON summary of the running process and registry.
// Prometheus scrapes /metrics at the root instead.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"uptime_s":  int64(time.Since(s.started).Seconds()),
		"runtime": map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"heap_alloc": mem.HeapAlloc,
			"heap_sys":   mem.HeapSys,
			"gc_cycles":  mem.NumGC,
			"go_version": runtime.Version(),
		},
		"devices": map[string]any{
			"total":     stats.Total,
			"by_kind":   stats.ByKind,
			"connected": stats.Connected,
			"history":   stats.History,
		},
		"stream": map[string]any{
			"subscribers": s.broadcaster.Count(),
		},
	})
}
