package api

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// respondRuntime serves a compact runtime snapshot on /debug/runtime.
func respondRuntime(w http.ResponseWriter, m runtime.MemStats) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  float64(m.HeapAlloc) / (1 << 20),
		"heap_sys_mb":    float64(m.HeapSys) / (1 << 20),
		"gc_runs":        m.NumGC,
		"gc_pause_ms":    float64(m.PauseTotalNs) / 1e6,
		"next_gc_mb":     float64(m.NextGC) / (1 << 20),
	})
}
