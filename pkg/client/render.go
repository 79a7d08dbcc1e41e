package client

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// styles renders console output. The renderer follows the output writer, so
// pipes and test buffers get plain text.
type styles struct {
	info    lipgloss.Style
	err     lipgloss.Style
	sender  lipgloss.Style
	direct  lipgloss.Style
	session lipgloss.Style
	prompt  lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(w)
	if !color {
		plain := r.NewStyle()
		return styles{info: plain, err: plain, sender: plain, direct: plain, session: plain, prompt: plain}
	}
	return styles{
		info:    r.NewStyle().Foreground(lipgloss.Color("8")),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")),
		sender:  r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		direct:  r.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
		session: r.NewStyle().Foreground(lipgloss.Color("10")),
		prompt:  r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// render formats one frame received while listening.
func (s styles) render(m protocol.Message) string {
	switch m.Kind {
	case protocol.KindMessage:
		return s.sender.Render(m.Source+":") + " " + m.Payload
	case protocol.KindDirectMessage:
		return s.direct.Render("(dm) "+m.Source+":") + " " + m.Payload
	case protocol.KindJoinAck:
		return s.session.Render("Joined session " + m.Payload)
	case protocol.KindJoinNak:
		return s.err.Render("Cannot join session: " + m.Payload)
	case protocol.KindNewSessionAck:
		return s.session.Render("Created and joined session " + m.Payload)
	case protocol.KindNewSessionNak:
		return s.err.Render("Cannot create session: " + m.Payload)
	case protocol.KindQueryAck:
		return s.info.Render("Online users:") + "\n" + strings.TrimRight(m.Payload, "\n")
	case protocol.KindDirectNak:
		return s.err.Render("Cannot send direct message: " + m.Payload)
	default:
		return s.err.Render("Unexpected " + m.Kind.String() + " from " + m.Source)
	}
}
