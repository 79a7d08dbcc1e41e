package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/NicolasHaas/textconf/pkg/model"
	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// CommandKind identifies a console command.
type CommandKind int

const (
	CmdText CommandKind = iota
	CmdLogin
	CmdLogout
	CmdRegister
	CmdJoinSession
	CmdLeaveSession
	CmdCreateSession
	CmdList
	CmdDirect
	CmdQuit
)

// Command is one parsed line of console input.
type Command struct {
	Kind CommandKind

	// CmdLogin, CmdRegister
	Username string
	Password string
	Addr     string // host:port

	// CmdJoinSession, CmdCreateSession
	Session string

	// CmdDirect
	Recipient string

	// CmdText, CmdDirect
	Text      string
	Truncated bool
}

// ErrEmptyInput is returned for blank lines.
var ErrEmptyInput = errors.New("empty input")

// UsageError reports a command with missing or invalid arguments.
type UsageError struct {
	Usage  string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Reason == "" {
		return "usage: " + e.Usage
	}
	return e.Reason + " (usage: " + e.Usage + ")"
}

const (
	usageLogin         = "/login <client ID> <password> <server-IP> <server-port>"
	usageRegister      = "/register <client ID> <password> <server-IP> <server-port>"
	usageJoinSession   = "/joinsession <session ID>"
	usageCreateSession = "/createsession <session ID>"
	usageDirect        = "/dm <client ID> <message>"
)

// ParseInput parses one line typed by the user. Lines that do not start with
// a known command are session text.
func ParseInput(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.ReplaceAll(line, string(rune(protocol.Terminator)), "")
	if strings.TrimSpace(line) == "" {
		return Command{}, ErrEmptyInput
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/login":
		return parseAccount(CmdLogin, usageLogin, rest)
	case "/register":
		return parseAccount(CmdRegister, usageRegister, rest)
	case "/logout":
		return Command{Kind: CmdLogout}, nil
	case "/joinsession":
		return parseSession(CmdJoinSession, usageJoinSession, rest)
	case "/createsession":
		return parseSession(CmdCreateSession, usageCreateSession, rest)
	case "/leavesession":
		return Command{Kind: CmdLeaveSession}, nil
	case "/list":
		return Command{Kind: CmdList}, nil
	case "/quit":
		return Command{Kind: CmdQuit}, nil
	case "/dm":
		return parseDirect(rest)
	}

	text, truncated := protocol.Truncate(line, protocol.MaxPayload)
	return Command{Kind: CmdText, Text: text, Truncated: truncated}, nil
}

func parseAccount(kind CommandKind, usage, args string) (Command, error) {
	fields := strings.Fields(args)
	if len(fields) != 4 {
		return Command{}, &UsageError{Usage: usage, Reason: "4 arguments are required"}
	}
	username, password, host, port := fields[0], fields[1], fields[2], fields[3]

	if err := model.ValidateUsername(username); err != nil {
		return Command{}, &UsageError{Usage: usage, Reason: err.Error()}
	}
	if err := model.ValidatePassword(password); err != nil {
		return Command{}, &UsageError{Usage: usage, Reason: err.Error()}
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return Command{}, &UsageError{Usage: usage, Reason: fmt.Sprintf("invalid port %q", port)}
	}

	return Command{
		Kind:     kind,
		Username: username,
		Password: password,
		Addr:     net.JoinHostPort(host, port),
	}, nil
}

func parseSession(kind CommandKind, usage, args string) (Command, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return Command{}, &UsageError{Usage: usage}
	}
	if err := model.ValidateSessionID(fields[0]); err != nil {
		return Command{}, &UsageError{Usage: usage, Reason: err.Error()}
	}
	return Command{Kind: kind, Session: fields[0]}, nil
}

func parseDirect(args string) (Command, error) {
	recipient, text, _ := strings.Cut(args, " ")
	text = strings.TrimSpace(text)
	if recipient == "" || text == "" {
		return Command{}, &UsageError{Usage: usageDirect}
	}
	if err := model.ValidateUsername(recipient); err != nil {
		return Command{}, &UsageError{Usage: usageDirect, Reason: "recipient " + err.Error()}
	}
	text, truncated := protocol.Truncate(text, protocol.MaxPayload-len(recipient)-1)
	return Command{Kind: CmdDirect, Recipient: recipient, Text: text, Truncated: truncated}, nil
}
