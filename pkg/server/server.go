// Package server implements the textconf conferencing server.
//
// A single event loop goroutine owns the client and session registries.
// Accept and reader goroutines only move bytes; every registry change and
// every write happens on the loop.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/NicolasHaas/textconf/pkg/credstore"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Credentials and will Close() it on shutdown.
type Dependencies struct {
	Credentials credstore.Store
}

// Server is the main textconf server.
type Server struct {
	cfg     Config
	creds   credstore.Store
	state   *state
	metrics *Metrics

	events chan event
	conns  map[*conn]struct{} // loop-owned
	nextID atomic.Uint64

	listener net.Listener
	httpSrv  *http.Server
	httpLn   net.Listener

	ctx          context.Context
	cancel       context.CancelFunc
	started      atomic.Bool
	loopDone     chan struct{}
	shutdownOnce sync.Once
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		creds:    deps.Credentials,
		state:    newState(cfg.SessionCapacity),
		metrics:  NewMetrics(),
		events:   make(chan event, 64),
		conns:    make(map[*conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	s.state.onSessionClosed = func(id string) {
		s.metrics.SessionsDeleted.Add(1)
		slog.Info("session closed", "session", id)
	}
	return s
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the TCP listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPAddr returns the HTTP listener address, or nil when HTTP is disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}
