package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/NicolasHaas/textconf/pkg/protocol"
)

type eventKind int

const (
	evOpened eventKind = iota
	evFrame
	evClosed
	evCall
)

type event struct {
	kind eventKind
	conn *conn
	msg  protocol.Message
	err  error
	fn   func()
}

// post hands ev to the loop. It reports false once the server is shutting down.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Server) do(fn func()) error {
	done := make(chan struct{})
	if !s.post(event{kind: evCall, fn: func() { fn(); close(done) }}) {
		return ErrServerClosed
	}
	select {
	case <-done:
		return nil
	case <-s.loopDone:
		return ErrServerClosed
	}
}

// admit registers a freshly accepted transport with the loop.
func (s *Server) admit(t transport) {
	c := &conn{id: s.nextID.Add(1), t: t, remote: t.RemoteAddr()}
	if !s.post(event{kind: evOpened, conn: c}) {
		_ = t.Close()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.admit(newStreamTransport(nc))
	}
}

// readLoop turns frames from c into loop events until the first read error.
func (s *Server) readLoop(c *conn) {
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = c.t.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		msg, err := c.t.ReadFrame()
		if err != nil {
			s.post(event{kind: evClosed, conn: c, err: err})
			return
		}
		if !s.post(event{kind: evFrame, conn: c, msg: msg}) {
			return
		}
	}
}

func (s *Server) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			for c := range s.conns {
				s.closeConn(c, "server shutting down")
			}
			s.drain()
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

// drain closes transports that were accepted but never opened.
func (s *Server) drain() {
	for {
		select {
		case ev := <-s.events:
			if ev.kind == evOpened {
				_ = ev.conn.t.Close()
			}
		default:
			return
		}
	}
}

func (s *Server) handleEvent(ev event) {
	switch ev.kind {
	case evOpened:
		s.open(ev.conn)
		go s.readLoop(ev.conn)
	case evFrame:
		if ev.conn.closed {
			return
		}
		s.metrics.FramesIn.Add(1)
		s.dispatch(ev.conn, ev.msg)
	case evClosed:
		s.closeConn(ev.conn, closeReason(ev.err))
		if errors.Is(ev.err, protocol.ErrMalformedFrame) {
			s.metrics.ProtocolErrors.Add(1)
			slog.Warn("malformed frame", "conn", ev.conn.id, "remote", ev.conn.remote, "err", ev.err)
		}
	case evCall:
		ev.fn()
	}
	s.metrics.SessionsActive.Store(int64(len(s.state.sessions)))
	s.metrics.ClientsOnline.Store(int64(s.state.online()))
}

func closeReason(err error) string {
	var ne net.Error
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, io.EOF):
		return "peer closed connection"
	case errors.Is(err, protocol.ErrMalformedFrame):
		return "protocol violation"
	case errors.As(err, &ne) && ne.Timeout():
		return "idle timeout"
	default:
		return "read error"
	}
}

func (s *Server) open(c *conn) {
	s.conns[c] = struct{}{}
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "conn", c.id, "remote", c.remote)
}

// closeConn logs the bound user out, then closes and forgets c. It is
// idempotent; the reader's later evClosed is ignored.
func (s *Server) closeConn(c *conn, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	if user := c.user; user != "" {
		s.state.logout(user)
		slog.Info("client logged out", "user", user, "remote", c.remote, "reason", reason)
	}
	_ = c.t.Close()
	delete(s.conns, c)
	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)
	slog.Debug("connection closed", "conn", c.id, "remote", c.remote, "reason", reason)
}

// send writes m to c under the write deadline. On failure the transport is
// closed so the reader reports the disconnect; registry cleanup happens then.
func (s *Server) send(c *conn, m protocol.Message) bool {
	if c.closed || c.broken {
		return false
	}
	// A frame we cannot encode is our fault, not the peer's.
	if err := m.Validate(); err != nil {
		slog.Error("dropping invalid outgoing frame", "conn", c.id, "kind", m.Kind.String(), "err", err)
		return false
	}
	if s.cfg.WriteTimeout > 0 {
		_ = c.t.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := c.t.WriteFrame(m); err != nil {
		slog.Warn("write failed", "conn", c.id, "remote", c.remote, "kind", m.Kind.String(), "err", err)
		c.broken = true
		_ = c.t.Close()
		return false
	}
	s.metrics.FramesOut.Add(1)
	return true
}

// broadcast sends m to every member of session id except exclude.
func (s *Server) broadcast(id string, m protocol.Message, exclude string) int {
	delivered := 0
	for _, name := range s.state.members(id) {
		if name == exclude {
			continue
		}
		rec := s.state.clients[name]
		if rec == nil || rec.conn == nil {
			continue
		}
		if s.send(rec.conn, m) {
			delivered++
		}
	}
	return delivered
}

// loadCredentials merges the credential store into the client registry.
// Must run before the loop starts or on the loop.
func (s *Server) loadCredentials() (added int, err error) {
	creds, err := s.creds.List()
	if err != nil {
		return 0, fmt.Errorf("server: load credentials: %w", err)
	}
	for _, c := range creds {
		if s.state.upsert(c.Username, c.Password) {
			added++
		}
	}
	return added, nil
}

// ReloadCredentials re-reads the credential store on the loop. Records are
// added or refreshed, never removed.
func (s *Server) ReloadCredentials() error {
	var (
		added int
		err   error
	)
	if callErr := s.do(func() { added, err = s.loadCredentials() }); callErr != nil {
		return callErr
	}
	if err != nil {
		return err
	}
	slog.Info("credentials reloaded", "added", added)
	return nil
}
