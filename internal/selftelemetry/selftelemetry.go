package selftelemetry

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// State tracks daemon readiness for the /readyz endpoint. Readiness flips
// true once the engine has reconciled devices and forced the initial state.
type State struct {
	ready atomic.Bool
}

// InstallHandlers mounts /metrics, /healthz and /readyz on the mux.
func InstallHandlers(mux *http.ServeMux) *State {
	s := &State{}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		} else {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
		}
	})
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
