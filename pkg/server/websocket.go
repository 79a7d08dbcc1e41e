package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// wsTransport carries one frame per WebSocket text message, without the
// stream terminator.
type wsTransport struct {
	ws     *websocket.Conn
	remote string
}

func newWSTransport(ws *websocket.Conn, remote string) *wsTransport {
	ws.SetReadLimit(protocol.MaxFrameSize)
	return &wsTransport{ws: ws, remote: remote}
}

func (t *wsTransport) ReadFrame() (protocol.Message, error) {
	mt, data, err := t.ws.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return protocol.Message{}, protocol.ErrFrameTooLarge
		}
		return protocol.Message{}, err
	}
	if mt != websocket.TextMessage {
		return protocol.Message{}, fmt.Errorf("%w: websocket message type %d", protocol.ErrMalformedFrame, mt)
	}
	return protocol.Decode(string(data))
}

func (t *wsTransport) WriteFrame(m protocol.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return t.ws.WriteMessage(websocket.TextMessage, []byte(protocol.Encode(m)))
}

func (t *wsTransport) SetReadDeadline(d time.Time) error  { return t.ws.SetReadDeadline(d) }
func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.ws.SetWriteDeadline(d) }
func (t *wsTransport) RemoteAddr() string                 { return t.remote }

func (t *wsTransport) Close() error {
	_ = t.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.ws.Close()
}

// originPolicy decides which browser origins may open /ws.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("ignoring invalid allowed origin", "origin", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check allows requests without an Origin header, which come from
// non-browser clients.
func (p *originPolicy) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	slog.Warn("blocked websocket connection from disallowed origin", "origin", origin)
	return false
}

func (s *Server) newUpgrader() *websocket.Upgrader {
	up := &websocket.Upgrader{
		ReadBufferSize:  protocol.MaxFrameSize,
		WriteBufferSize: protocol.MaxFrameSize,
	}
	// With no configured origins gorilla's same-host check applies.
	if len(s.cfg.AllowedOrigins) > 0 {
		up.CheckOrigin = newOriginPolicy(s.cfg.AllowedOrigins).check
	}
	return up
}

// handleWebSocket upgrades the request and hands the connection to the loop.
func (s *Server) handleWebSocket(up *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.admit(newWSTransport(ws, r.RemoteAddr))
	}
}
