package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrMalformedFrame is returned for any frame that cannot be decoded.
	// It is a protocol violation on one connection, never a process failure.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrFrameTooLarge is returned by the stream reader when no terminator
	// arrives within MaxFrameSize bytes. It wraps ErrMalformedFrame.
	ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformedFrame, MaxFrameSize)
)

// Message is one wire message.
//
// Size is the payload length plus one for the terminator, so a message with
// an empty payload has Size 1.
type Message struct {
	Kind    Kind
	Size    int
	Source  string
	Payload string
}

// NewMessage builds a message with Size derived from payload.
func NewMessage(kind Kind, source, payload string) Message {
	return Message{
		Kind:    kind,
		Size:    len(payload) + 1,
		Source:  source,
		Payload: payload,
	}
}

// Reply builds a server-originated message.
func Reply(kind Kind, payload string) Message {
	return NewMessage(kind, ServerSource, payload)
}

// Validate checks the invariants a message must hold before it is written.
func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedFrame, int(m.Kind))
	}
	if m.Source == "" || strings.ContainsAny(m.Source, " \x00") {
		return fmt.Errorf("%w: invalid source %q", ErrMalformedFrame, m.Source)
	}
	if len(m.Source) > MaxName && m.Source != ServerSource {
		return fmt.Errorf("%w: source longer than %d bytes", ErrMalformedFrame, MaxName)
	}
	if len(m.Payload) > MaxPayload {
		return fmt.Errorf("%w: payload longer than %d bytes", ErrMalformedFrame, MaxPayload)
	}
	if strings.IndexByte(m.Payload, Terminator) >= 0 {
		return fmt.Errorf("%w: payload contains the frame terminator", ErrMalformedFrame)
	}
	if m.Size != len(m.Payload)+1 {
		return fmt.Errorf("%w: declared size %d does not match payload length %d", ErrMalformedFrame, m.Size, len(m.Payload))
	}
	return nil
}

// Encode renders m as "<kind> <size> <source> <payload>". The payload and its
// separator are omitted when Size is 1.
func Encode(m Message) string {
	var b strings.Builder
	b.Grow(len(m.Source) + len(m.Payload) + 16)
	b.WriteString(strconv.Itoa(int(m.Kind)))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(m.Size))
	b.WriteByte(' ')
	b.WriteString(m.Source)
	if m.Size > 1 {
		b.WriteByte(' ')
		b.WriteString(m.Payload)
	}
	return b.String()
}

// Decode parses a frame produced by Encode. The first three fields are split on
// single spaces; everything after the third separator is the payload verbatim.
func Decode(frame string) (Message, error) {
	kindField, rest, ok := strings.Cut(frame, " ")
	if !ok || kindField == "" {
		return Message{}, fmt.Errorf("%w: missing size field", ErrMalformedFrame)
	}
	sizeField, rest, ok := strings.Cut(rest, " ")
	if !ok || sizeField == "" {
		return Message{}, fmt.Errorf("%w: missing source field", ErrMalformedFrame)
	}
	source, payload, hasPayload := strings.Cut(rest, " ")
	if source == "" {
		return Message{}, fmt.Errorf("%w: missing source field", ErrMalformedFrame)
	}

	kind, err := strconv.Atoi(kindField)
	if err != nil {
		return Message{}, fmt.Errorf("%w: kind %q is not a number", ErrMalformedFrame, kindField)
	}
	if !Kind(kind).Valid() {
		return Message{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedFrame, kind)
	}
	size, err := strconv.Atoi(sizeField)
	if err != nil || size < 1 {
		return Message{}, fmt.Errorf("%w: invalid declared size %q", ErrMalformedFrame, sizeField)
	}
	if len(source) > MaxName && source != ServerSource {
		return Message{}, fmt.Errorf("%w: source longer than %d bytes", ErrMalformedFrame, MaxName)
	}
	if strings.IndexByte(frame, Terminator) >= 0 {
		return Message{}, fmt.Errorf("%w: frame contains the terminator", ErrMalformedFrame)
	}

	if size-1 > MaxPayload || len(payload) > MaxPayload {
		return Message{}, fmt.Errorf("%w: payload longer than %d bytes", ErrMalformedFrame, MaxPayload)
	}

	if size > 1 && !hasPayload {
		return Message{}, fmt.Errorf("%w: declared size %d but no payload", ErrMalformedFrame, size)
	}
	if size == 1 {
		// "1 1 alice " is accepted as an empty payload.
		if payload != "" {
			return Message{}, fmt.Errorf("%w: declared size 1 but payload present", ErrMalformedFrame)
		}
	} else if len(payload)+1 != size {
		return Message{}, fmt.Errorf("%w: declared size %d does not match payload length %d", ErrMalformedFrame, size, len(payload))
	}

	return Message{
		Kind:    Kind(kind),
		Size:    size,
		Source:  source,
		Payload: payload,
	}, nil
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
// The second result reports whether anything was removed.
func Truncate(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	if max <= 0 {
		return "", true
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
