// Package client implements the textconf console client: input parsing, the
// server connection and the interactive console.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// ErrServerDisconnected is reported by Err when the server closed the
// connection or it failed while listening.
var ErrServerDisconnected = errors.New("client: server disconnected")

// RejectedError is a NAK reply to a login or registration.
type RejectedError struct {
	Kind   protocol.Kind
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("server rejected the request (%s)", e.Kind)
	}
	return e.Reason
}

// Conn is a connection to the server. Writes are safe from any goroutine;
// reads belong to Receive until Listen takes over.
type Conn struct {
	nc   net.Conn
	r    *protocol.Reader
	user string

	mu sync.Mutex // serializes writes

	listening atomic.Bool
	closing   atomic.Bool
	done      chan struct{}
	err       error // set before done is closed
}

// Dial connects to addr, giving up after timeout (0 means no limit).
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", addr, err)
	}
	return &Conn{
		nc:   nc,
		r:    protocol.NewReader(nc),
		done: make(chan struct{}),
	}, nil
}

// User returns the username this connection sends as.
func (c *Conn) User() string {
	return c.user
}

// Send writes one frame with the connection's username as source.
func (c *Conn) Send(kind protocol.Kind, payload string) error {
	return c.sendAs(c.user, kind, payload)
}

func (c *Conn) sendAs(source string, kind protocol.Kind, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := protocol.WriteFrame(c.nc, protocol.NewMessage(kind, source, payload)); err != nil {
		return fmt.Errorf("client: send %s: %w", kind, err)
	}
	return nil
}

// Receive reads one frame, waiting at most timeout (0 means no limit). It
// must not be called once Listen has started.
func (c *Conn) Receive(timeout time.Duration) (protocol.Message, error) {
	if c.listening.Load() {
		return protocol.Message{}, errors.New("client: Receive called while listening")
	}
	if timeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.nc.SetReadDeadline(time.Time{}) }()
	}
	m, err := c.r.ReadFrame()
	if err != nil {
		return protocol.Message{}, fmt.Errorf("client: receive: %w", err)
	}
	return m, nil
}

// Login authenticates as username. On success the connection sends as
// username from then on.
func (c *Conn) Login(username, password string, timeout time.Duration) error {
	if err := c.handshake(username, protocol.KindLogin, password, protocol.KindLoginAck, protocol.KindLoginNak, timeout); err != nil {
		return err
	}
	c.user = username
	return nil
}

// Register creates an account. The server closes the connection afterwards.
func (c *Conn) Register(username, password string, timeout time.Duration) error {
	return c.handshake(username, protocol.KindRegister, password, protocol.KindRegisterAck, protocol.KindRegisterNak, timeout)
}

func (c *Conn) handshake(source string, kind protocol.Kind, payload string, ack, nak protocol.Kind, timeout time.Duration) error {
	if err := c.sendAs(source, kind, payload); err != nil {
		return err
	}
	reply, err := c.Receive(timeout)
	if err != nil {
		return err
	}
	switch reply.Kind {
	case ack:
		return nil
	case nak:
		return &RejectedError{Kind: nak, Reason: reply.Payload}
	default:
		return fmt.Errorf("client: unexpected %s reply to %s", reply.Kind, kind)
	}
}

// Listen starts the listening flow: every frame from the server is passed to
// handler, in order, on a dedicated goroutine. Cancelling ctx closes the
// socket, which unblocks the pending read. Done is closed when the flow ends.
func (c *Conn) Listen(ctx context.Context, handler func(protocol.Message)) {
	c.listening.Store(true)

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	go func() {
		defer close(c.done)
		defer stop()
		for {
			m, err := c.r.ReadFrame()
			if err != nil {
				if !c.closing.Load() {
					if !errors.Is(err, io.EOF) {
						slog.Debug("listen read error", "err", err)
					}
					c.err = fmt.Errorf("%w: %w", ErrServerDisconnected, err)
				}
				return
			}
			handler(m)
		}
	}()
}

// Done is closed when the listening flow has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the listening flow ended: nil after a local Close or
// cancellation, an error wrapping ErrServerDisconnected otherwise. Valid
// once Done is closed.
func (c *Conn) Err() error {
	return c.err
}

// Close closes the connection.
func (c *Conn) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	return c.nc.Close()
}
