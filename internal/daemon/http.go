package daemon

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skiffworks/skiff/telemetry"
)

// Handler serves the daemon's HTTP surface: Prometheus metrics plus
// liveness and readiness probes.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", d.handleHealthz)
	mux.HandleFunc("/readyz", d.handleReadyz)
	return mux
}

// handleHealthz reports liveness. Serving the request at all is the
// signal.
func (d *Daemon) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports readiness from journal health, so an operator
// sees a journal that needs cleanup before it fills the disk.
func (d *Daemon) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	health := d.journal.Health()
	if !health.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Join(health.Issues, "; ")))
		return
	}
	_, _ = w.Write([]byte("ok"))
}
