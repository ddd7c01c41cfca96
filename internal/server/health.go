package server

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// health backs /healthz and /readyz. Liveness fails only while draining;
// readiness also waits for the service body to report its listeners bound.
type health struct {
	name     string
	draining atomic.Bool
	ready    atomic.Bool
}

func (h *health) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if h.draining.Load() {
			h.write(w, http.StatusServiceUnavailable, "shutting_down")
			return
		}
		h.write(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		switch {
		case h.draining.Load():
			h.write(w, http.StatusServiceUnavailable, "shutting_down")
		case !h.ready.Load():
			h.write(w, http.StatusServiceUnavailable, "starting")
		default:
			h.write(w, http.StatusOK, "ready")
		}
	})
	return mux
}

func (h *health) write(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"service":%q}`, status, h.name)
}
