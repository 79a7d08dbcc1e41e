package server

import (
	"net"
	"time"

	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// transport moves frames over one peer connection. ReadFrame is only called
// from the connection's reader goroutine; everything else from the loop.
type transport interface {
	ReadFrame() (protocol.Message, error)
	WriteFrame(m protocol.Message) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// conn is the loop's view of a peer connection.
type conn struct {
	id     uint64
	t      transport
	remote string

	// Loop-owned.
	user   string // bound username, "" before login
	broken bool   // a write failed; waiting for the reader to report
	closed bool
}

// streamTransport frames messages over a byte stream with NUL terminators.
type streamTransport struct {
	nc net.Conn
	r  *protocol.Reader
}

func newStreamTransport(nc net.Conn) *streamTransport {
	return &streamTransport{nc: nc, r: protocol.NewReader(nc)}
}

func (t *streamTransport) ReadFrame() (protocol.Message, error) { return t.r.ReadFrame() }

func (t *streamTransport) WriteFrame(m protocol.Message) error {
	return protocol.WriteFrame(t.nc, m)
}

func (t *streamTransport) SetReadDeadline(d time.Time) error  { return t.nc.SetReadDeadline(d) }
func (t *streamTransport) SetWriteDeadline(d time.Time) error { return t.nc.SetWriteDeadline(d) }
func (t *streamTransport) RemoteAddr() string                 { return t.nc.RemoteAddr().String() }
func (t *streamTransport) Close() error                       { return t.nc.Close() }
