package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NicolasHaas/textconf/pkg/credstore"
	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// syncBuffer lets the test read output while the console writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type consoleHarness struct {
	t    *testing.T
	in   *io.PipeWriter
	out  *syncBuffer
	done chan error
}

func startConsole(t *testing.T) *consoleHarness {
	t.Helper()
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	settings := DefaultSettings()
	settings.Color = false
	settings.ConnectTimeout = testTimeout
	con := NewConsole(pr, out, ConsoleOptions{Settings: settings})

	h := &consoleHarness{t: t, in: pw, out: out, done: make(chan error, 1)}
	go func() { h.done <- con.Run(context.Background()) }()
	t.Cleanup(func() { _ = pw.Close() })
	return h
}

func (h *consoleHarness) typeLine(format string, args ...any) {
	h.t.Helper()
	if _, err := fmt.Fprintf(h.in, format+"\n", args...); err != nil {
		h.t.Fatalf("write input: %v", err)
	}
}

// waitFor blocks until want has been printed count times in total.
func (h *consoleHarness) waitFor(want string, count int) {
	h.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if strings.Count(h.out.String(), want) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %q (x%d); output:\n%s", want, count, h.out.String())
}

func TestConsoleSession(t *testing.T) {
	srv := startServer(t, credstore.Credential{Username: "bob", Password: "pw2"})
	addr := srv.Addr().String()
	host, port, _ := strings.Cut(addr, ":")

	alice := startConsole(t)
	alice.typeLine("/list")
	alice.waitFor("Please log in first", 1)

	alice.typeLine("/register alice pw1 %s %s", host, port)
	alice.waitFor("Registered alice", 1)
	alice.typeLine("/login alice pw1 %s %s", host, port)
	alice.waitFor("Logged in as alice", 1)
	alice.typeLine("/login alice pw1 %s %s", host, port)
	alice.waitFor("Already logged in as alice", 1)

	alice.typeLine("/createsession room1")
	alice.waitFor("Created and joined session room1", 1)

	bob := dialLogin(t, srv, "bob", "pw2")
	if err := bob.Send(protocol.KindJoin, "room1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := bob.Receive(testTimeout); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	alice.typeLine("hello bob")
	if m, err := bob.Receive(testTimeout); err != nil || m.Payload != "hello bob" || m.Source != "alice" {
		t.Fatalf("bob received %+v, %v", m, err)
	}

	if err := bob.Send(protocol.KindMessage, "hi alice"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	alice.waitFor("bob: hi alice", 1)

	alice.typeLine("/dm carol are you there")
	alice.waitFor("Cannot send direct message: carol - recipient is not online", 1)

	alice.typeLine("/list")
	alice.waitFor("alice: room1", 1)

	alice.typeLine("/logout")
	alice.waitFor("Logged out", 1)
	alice.typeLine("hello?")
	alice.waitFor("Please log in first", 2)

	alice.typeLine("/quit")
	select {
	case err := <-alice.done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("console did not exit after /quit")
	}
}

func TestConsoleServerDisconnect(t *testing.T) {
	srv := startServer(t, credstore.Credential{Username: "alice", Password: "pw1"})
	host, port, _ := strings.Cut(srv.Addr().String(), ":")

	h := startConsole(t)
	h.typeLine("/login alice pw1 %s %s", host, port)
	h.waitFor("Logged in as alice", 1)

	srv.Shutdown()
	h.waitFor("Server disconnected!", 1)

	// The console is back to logged out and reports the loss only once.
	h.typeLine("/list")
	h.waitFor("Please log in first", 1)
	if n := strings.Count(h.out.String(), "Server disconnected!"); n != 1 {
		t.Fatalf("disconnect reported %d times", n)
	}

	_ = h.in.Close()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("console did not exit at end of input")
	}
}
