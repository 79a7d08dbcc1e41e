package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	Settings *Settings // nil means DefaultSettings
	Prompt   bool      // print "> " before each input line
}

// Console is the interactive client. It runs two flows: the input flow reads
// lines from the user, and while logged in the listening flow delivers frames
// from the server. Run multiplexes both, so all output comes from one
// goroutine.
type Console struct {
	in       io.Reader
	out      io.Writer
	settings *Settings
	styles   styles
	prompt   bool

	conn     *Conn
	cancel   context.CancelFunc
	incoming chan protocol.Message
}

// NewConsole creates a console reading commands from in and writing to out.
func NewConsole(in io.Reader, out io.Writer, opts ConsoleOptions) *Console {
	settings := opts.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Console{
		in:       in,
		out:      out,
		settings: settings,
		styles:   newStyles(out, settings.Color),
		prompt:   opts.Prompt,
	}
}

// Run processes input until /quit, end of input or ctx cancellation. It
// logs out before returning.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go readLines(ctx, c.in, lines, readErr)

	c.showPrompt()
	for {
		var done <-chan struct{}
		if c.conn != nil {
			done = c.conn.Done()
		}

		select {
		case <-ctx.Done():
			c.logout()
			return nil
		case line, ok := <-lines:
			if !ok {
				c.logout()
				return <-readErr
			}
			if quit := c.handleLine(ctx, line); quit {
				return nil
			}
			c.showPrompt()
		case m := <-c.incoming:
			c.println(c.styles.render(m))
		case <-done:
			if err := c.conn.Err(); err != nil {
				slog.Debug("listening flow ended", "err", err)
				c.println(c.styles.err.Render("Server disconnected!"))
				c.showPrompt()
			}
			c.reset()
		}
	}
}

func readLines(ctx context.Context, in io.Reader, lines chan<- string, errc chan<- error) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			errc <- nil
			return
		}
	}
	errc <- sc.Err()
}

// handleLine runs one command and reports whether the console should exit.
func (c *Console) handleLine(ctx context.Context, line string) bool {
	cmd, err := ParseInput(line)
	if errors.Is(err, ErrEmptyInput) {
		return false
	}
	if err != nil {
		c.println(c.styles.err.Render(err.Error()))
		return false
	}

	switch cmd.Kind {
	case CmdQuit:
		c.logout()
		return true
	case CmdLogin:
		if c.conn != nil {
			c.println(c.styles.err.Render("Already logged in as " + c.conn.User() + ", /logout first"))
			return false
		}
		c.login(ctx, cmd)
		return false
	case CmdRegister:
		if c.conn != nil {
			c.println(c.styles.err.Render("Log out first to register a separate account"))
			return false
		}
		c.register(ctx, cmd)
		return false
	case CmdLogout:
		if c.conn == nil {
			c.println(c.styles.err.Render("You are not logged in"))
			return false
		}
		c.logout()
		c.println(c.styles.info.Render("Logged out"))
		return false
	}

	if c.conn == nil {
		c.println(c.styles.err.Render("Please log in first"))
		return false
	}

	var sendErr error
	switch cmd.Kind {
	case CmdJoinSession:
		sendErr = c.conn.Send(protocol.KindJoin, cmd.Session)
	case CmdCreateSession:
		sendErr = c.conn.Send(protocol.KindNewSession, cmd.Session)
	case CmdLeaveSession:
		sendErr = c.conn.Send(protocol.KindLeaveSession, "")
		if sendErr == nil {
			c.println(c.styles.info.Render("Left the current session"))
		}
	case CmdList:
		sendErr = c.conn.Send(protocol.KindQuery, "")
	case CmdDirect:
		sendErr = c.conn.Send(protocol.KindDirectRequest, cmd.Recipient+" "+cmd.Text)
	case CmdText:
		sendErr = c.conn.Send(protocol.KindMessage, cmd.Text)
	}
	if sendErr != nil {
		c.println(c.styles.err.Render(sendErr.Error()))
	}
	if cmd.Truncated {
		c.println(c.styles.info.Render(fmt.Sprintf("Message truncated to %d bytes", len(cmd.Text))))
	}
	return false
}

func (c *Console) login(ctx context.Context, cmd Command) {
	timeout := c.settings.ConnectTimeout
	conn, err := Dial(ctx, cmd.Addr, timeout)
	if err != nil {
		c.println(c.styles.err.Render("Unable to reach the server: " + err.Error()))
		return
	}
	if err := conn.Login(cmd.Username, cmd.Password, timeout); err != nil {
		_ = conn.Close()
		c.println(c.styles.err.Render("Login failed: " + err.Error()))
		return
	}

	listenCtx, cancel := context.WithCancel(ctx)
	incoming := make(chan protocol.Message)
	conn.Listen(listenCtx, func(m protocol.Message) {
		select {
		case incoming <- m:
		case <-listenCtx.Done():
		}
	})

	c.conn, c.cancel, c.incoming = conn, cancel, incoming
	slog.Debug("logged in", "user", cmd.Username, "addr", cmd.Addr)
	c.println(c.styles.info.Render("Logged in as " + cmd.Username))
}

func (c *Console) register(ctx context.Context, cmd Command) {
	timeout := c.settings.ConnectTimeout
	conn, err := Dial(ctx, cmd.Addr, timeout)
	if err != nil {
		c.println(c.styles.err.Render("Unable to reach the server: " + err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Register(cmd.Username, cmd.Password, timeout); err != nil {
		c.println(c.styles.err.Render("Registration failed: " + err.Error()))
		return
	}
	c.println(c.styles.info.Render("Registered " + cmd.Username + ", you can now /login"))
}

// logout sends EXIT, stops the listening flow and waits for it to finish.
func (c *Console) logout() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Send(protocol.KindExit, ""); err != nil {
		slog.Debug("exit not delivered", "err", err)
	}
	c.cancel()
	<-c.conn.Done()
	c.reset()
}

func (c *Console) reset() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.cancel, c.incoming = nil, nil, nil
}

func (c *Console) showPrompt() {
	if c.prompt {
		_, _ = fmt.Fprint(c.out, c.styles.prompt.Render("> "))
	}
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}
