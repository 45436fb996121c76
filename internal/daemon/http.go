package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// HealthResponse is served on /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Daemon Status `json:"daemon"`
}

func (d *Daemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(d.opts.MetricsPath, metrics.HTTPHandler(d.opts.Registry))
	mux.HandleFunc("/healthz", d.handleHealth)
	return mux
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := d.Status()
	resp := HealthResponse{Status: "healthy", Uptime: time.Since(d.started).Truncate(time.Second).String(), Daemon: st}
	code := http.StatusOK
	if st.LastError != "" {
		resp.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// startHTTP listens on MetricsListen and serves in the background.
func (d *Daemon) startHTTP() (*http.Server, error) {
	ln, err := net.Listen("tcp", d.opts.MetricsListen)
	if err != nil {
		return nil, ferrors.DaemonError("listen for metrics").WithCause(err).
			WithContext("address", d.opts.MetricsListen).
			Build()
	}
	srv := &http.Server{Handler: d.handler(), ReadHeaderTimeout: 5 * time.Second}
	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	return srv, nil
}
