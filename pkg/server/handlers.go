package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/NicolasHaas/textconf/pkg/credstore"
	"github.com/NicolasHaas/textconf/pkg/model"
	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// dispatch routes one inbound frame from c.
func (s *Server) dispatch(c *conn, m protocol.Message) {
	switch m.Kind {
	case protocol.KindRegister:
		s.handleRegister(c, m)
	case protocol.KindLogin:
		s.handleLogin(c, m)
	case protocol.KindExit:
		s.handleExit(c, m)
	case protocol.KindJoin:
		s.handleJoin(c, m)
	case protocol.KindLeaveSession:
		s.handleLeaveSession(c, m)
	case protocol.KindNewSession:
		s.handleNewSession(c, m)
	case protocol.KindMessage:
		s.handleMessage(c, m)
	case protocol.KindDirectRequest:
		s.handleDirectRequest(c, m)
	case protocol.KindQuery:
		s.handleQuery(c, m)
	default:
		s.metrics.ProtocolErrors.Add(1)
		slog.Warn("peer sent a server-only kind", "conn", c.id, "remote", c.remote, "kind", m.Kind.String())
		s.closeConn(c, "protocol violation")
	}
}

// nak builds a NAK whose payload is "<subject> - <reason>", or just the reason
// when subject is empty.
func nak(kind protocol.Kind, subject string, err error) protocol.Message {
	payload := reason(err)
	if subject != "" {
		payload = subject + " - " + payload
	}
	payload, _ = protocol.Truncate(payload, protocol.MaxPayload)
	return protocol.Reply(kind, payload)
}

// unverified logs a command dropped because its source is not bound to c.
func unverified(c *conn, m protocol.Message) {
	slog.Warn("dropping command from unverified source",
		"conn", c.id, "remote", c.remote, "kind", m.Kind.String(), "source", m.Source)
}

func (s *Server) handleRegister(c *conn, m protocol.Message) {
	defer s.closeConn(c, "registration complete")

	if err := s.register(m.Source, m.Payload); err != nil {
		s.metrics.FailedRegistrations.Add(1)
		slog.Info("registration rejected", "user", m.Source, "remote", c.remote, "err", err)
		s.send(c, nak(protocol.KindRegisterNak, "", err))
		return
	}
	s.metrics.Registrations.Add(1)
	slog.Info("user registered", "user", m.Source, "remote", c.remote)
	s.send(c, protocol.Reply(protocol.KindRegisterAck, ""))
}

// register validates the pair, persists it, then adds it to the registry.
func (s *Server) register(username, password string) error {
	if err := model.ValidateUsername(username); err != nil {
		return err
	}
	if err := model.ValidatePassword(password); err != nil {
		return err
	}
	if _, exists := s.state.clients[username]; exists {
		return ErrDuplicateUsername
	}
	if err := s.creds.Register(username, password); err != nil {
		if errors.Is(err, credstore.ErrDuplicate) {
			// Known to the store but not yet loaded; pick it up.
			if pw, ok, lookupErr := s.creds.Lookup(username); lookupErr == nil && ok {
				s.state.upsert(username, pw)
			}
			return ErrDuplicateUsername
		}
		return err
	}
	return s.state.register(username, password)
}

func (s *Server) handleLogin(c *conn, m protocol.Message) {
	if err := s.state.login(m.Source, m.Payload, c); err != nil {
		s.metrics.FailedLogins.Add(1)
		slog.Info("login rejected", "user", m.Source, "remote", c.remote, "err", err)
		s.send(c, nak(protocol.KindLoginNak, "", err))
		if c.user == "" {
			s.closeConn(c, "login rejected")
		}
		return
	}
	s.metrics.SuccessfulLogins.Add(1)
	slog.Info("client logged in", "user", m.Source, "remote", c.remote)
	s.send(c, protocol.Reply(protocol.KindLoginAck, ""))
}

func (s *Server) handleExit(c *conn, m protocol.Message) {
	if _, err := s.state.authorize(m.Source, c); err != nil {
		unverified(c, m)
		return
	}
	s.closeConn(c, "exit")
}

func (s *Server) handleJoin(c *conn, m protocol.Message) {
	id := m.Payload
	if _, err := s.state.authorize(m.Source, c); err != nil {
		s.send(c, nak(protocol.KindJoinNak, id, err))
		return
	}
	if err := model.ValidateSessionID(id); err != nil {
		s.send(c, nak(protocol.KindJoinNak, id, err))
		return
	}
	if err := s.state.joinSession(id, m.Source, c); err != nil {
		slog.Debug("join rejected", "user", m.Source, "session", id, "err", err)
		s.send(c, nak(protocol.KindJoinNak, id, err))
		return
	}
	slog.Info("client joined session", "user", m.Source, "session", id)
	s.send(c, protocol.Reply(protocol.KindJoinAck, id))
}

func (s *Server) handleLeaveSession(c *conn, m protocol.Message) {
	rec, err := s.state.authorize(m.Source, c)
	if err != nil {
		unverified(c, m)
		return
	}
	if rec.session == "" {
		return
	}
	id := rec.session
	s.state.leaveSession(m.Source)
	slog.Info("client left session", "user", m.Source, "session", id)
}

func (s *Server) handleNewSession(c *conn, m protocol.Message) {
	id := m.Payload
	if _, err := s.state.authorize(m.Source, c); err != nil {
		s.send(c, nak(protocol.KindNewSessionNak, id, err))
		return
	}
	if err := model.ValidateSessionID(id); err != nil {
		s.send(c, nak(protocol.KindNewSessionNak, id, err))
		return
	}
	if err := s.state.createSession(id, m.Source, c); err != nil {
		slog.Debug("session creation rejected", "user", m.Source, "session", id, "err", err)
		s.send(c, nak(protocol.KindNewSessionNak, id, err))
		return
	}
	s.metrics.SessionsCreated.Add(1)
	slog.Info("session created", "user", m.Source, "session", id)
	s.send(c, protocol.Reply(protocol.KindNewSessionAck, id))
}

func (s *Server) handleMessage(c *conn, m protocol.Message) {
	rec, err := s.state.authorize(m.Source, c)
	if err != nil {
		unverified(c, m)
		return
	}
	if rec.session == "" {
		slog.Debug("message outside a session dropped", "user", rec.username)
		return
	}
	text := relayText(m.Payload)
	n := s.broadcast(rec.session, protocol.NewMessage(protocol.KindMessage, rec.username, text), rec.username)
	s.metrics.MessagesRelayed.Add(int64(n))
}

func (s *Server) handleDirectRequest(c *conn, m protocol.Message) {
	rec, err := s.state.authorize(m.Source, c)
	if err != nil {
		s.send(c, nak(protocol.KindDirectNak, "", err))
		return
	}
	recipient, text, ok := strings.Cut(m.Payload, " ")
	if !ok || recipient == "" || text == "" {
		s.metrics.DirectFailures.Add(1)
		s.send(c, nak(protocol.KindDirectNak, recipient, ErrMalformedDirect))
		return
	}
	target, ok := s.state.clients[recipient]
	if !ok || target.conn == nil {
		s.metrics.DirectFailures.Add(1)
		s.send(c, nak(protocol.KindDirectNak, recipient, ErrRecipientUnreachable))
		return
	}
	if s.send(target.conn, protocol.NewMessage(protocol.KindDirectMessage, rec.username, relayText(text))) {
		s.metrics.DirectMessages.Add(1)
	}
}

func (s *Server) handleQuery(c *conn, m protocol.Message) {
	if _, err := s.state.authorize(m.Source, c); err != nil {
		unverified(c, m)
		return
	}
	s.send(c, protocol.Reply(protocol.KindQueryAck, formatPresence(s.state.query(), protocol.MaxPayload)))
}

// formatPresence renders one "<user>: <session>\n" line per entry. When the
// next line would not fit in limit the list ends with "...\n".
func formatPresence(list []presence, limit int) string {
	const more = "...\n"
	var b strings.Builder
	for i, p := range list {
		session := p.session
		if session == "" {
			session = "no session"
		}
		line := p.username + ": " + session + "\n"

		room := limit
		if i < len(list)-1 {
			room -= len(more)
		}
		if b.Len()+len(line) > room {
			b.WriteString(more)
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

// relayText prepares user text for relaying: invalid UTF-8 is replaced,
// control characters are stripped and the result fits in one payload.
func relayText(s string) string {
	text, _ := protocol.Truncate(sanitizeText(strings.ToValidUTF8(s, "\uFFFD")), protocol.MaxPayload)
	return text
}

// sanitizeText strips control characters from user-supplied text.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
