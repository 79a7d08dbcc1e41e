package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
)

// Start loads credentials, binds the listeners and starts the event loop.
// Every error it returns is fatal for the process.
func (s *Server) Start() error {
	if s.creds == nil {
		return errors.New("server: missing credentials dependency")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	users, err := s.loadCredentials()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln

	if err := s.StartHTTP(); err != nil {
		_ = ln.Close()
		return err
	}

	s.started.Store(true)
	go s.loop()
	go s.acceptLoop(ln)

	s.metrics.StartPeriodicLog(s.cfg.MetricsLogInterval, s.ctx.Done())

	slog.Info("textconf server running",
		"addr", ln.Addr().String(),
		"users", users,
		"session_capacity", s.cfg.SessionCapacity,
	)
	return nil
}

// Run starts the server and blocks until SIGINT or SIGTERM. SIGHUP reloads
// the credential store.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := s.ReloadCredentials(); err != nil {
				slog.Error("credential reload failed", "err", err)
			}
			continue
		}
		slog.Info("shutting down...", "signal", sig.String())
		break
	}
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server: listeners are closed, every
// connection is closed on the loop, then the credential store is closed.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		if s.httpSrv != nil {
			_ = s.httpSrv.Close()
		}
		if s.started.Load() {
			<-s.loopDone
		}
		if s.creds != nil {
			if err := s.creds.Close(); err != nil {
				slog.Warn("closing credential store", "err", err)
			}
		}
	})
}
