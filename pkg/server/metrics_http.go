package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// StartHTTP starts the HTTP listener serving /metrics in Prometheus text
// exposition format, /healthz and the /ws WebSocket endpoint. It is a no-op
// when Config.HTTPAddr is empty and shuts down with the server.
func (s *Server) StartHTTP() error {
	addr := s.cfg.HTTPAddr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/ws", s.handleWebSocket(s.newUpgrader()))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen http: %w", err)
	}
	s.httpLn = ln
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("HTTP listening", "addr", ln.Addr().String())
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP error", "err", err)
		}
	}()
	return nil
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP textconf_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE textconf_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "textconf_uptime_seconds %f\n", uptime)

	write("textconf_connections_active", "Current open connections.", "gauge",
		m.ActiveConnections.Load())
	write("textconf_connections_total", "Lifetime connections accepted.", "counter",
		m.TotalConnections.Load())
	write("textconf_disconnects_total", "Connections closed.", "counter",
		m.TotalDisconnects.Load())
	write("textconf_protocol_errors_total", "Connections closed for protocol violations.", "counter",
		m.ProtocolErrors.Load())
	write("textconf_frames_in_total", "Frames dispatched.", "counter",
		m.FramesIn.Load())
	write("textconf_frames_out_total", "Frames written.", "counter",
		m.FramesOut.Load())

	write("textconf_logins_total", "Successful logins.", "counter",
		m.SuccessfulLogins.Load())
	write("textconf_logins_failed_total", "Rejected logins.", "counter",
		m.FailedLogins.Load())
	write("textconf_registrations_total", "Accepted registrations.", "counter",
		m.Registrations.Load())
	write("textconf_registrations_failed_total", "Rejected registrations.", "counter",
		m.FailedRegistrations.Load())
	write("textconf_clients_online", "Logged-in clients.", "gauge",
		m.ClientsOnline.Load())

	write("textconf_sessions_created_total", "Sessions created.", "counter",
		m.SessionsCreated.Load())
	write("textconf_sessions_deleted_total", "Sessions removed after their last member left.", "counter",
		m.SessionsDeleted.Load())
	write("textconf_sessions_active", "Live sessions.", "gauge",
		m.SessionsActive.Load())
	write("textconf_messages_relayed_total", "Session messages delivered to members.", "counter",
		m.MessagesRelayed.Load())
	write("textconf_direct_messages_total", "Direct messages delivered.", "counter",
		m.DirectMessages.Load())
	write("textconf_direct_failures_total", "Direct messages rejected.", "counter",
		m.DirectFailures.Load())
}
