package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Reader reads NUL-terminated frames from a byte stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r. Frames longer than MaxFrameSize are rejected.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxFrameSize)}
}

// ReadFrame reads and decodes the next frame.
//
// io.EOF is returned unwrapped when the stream ends cleanly between frames.
// A stream that ends inside a frame returns io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() (Message, error) {
	line, err := r.br.ReadSlice(Terminator)
	if err != nil {
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			return Message{}, ErrFrameTooLarge
		case errors.Is(err, io.EOF) && len(line) == 0:
			return Message{}, io.EOF
		case errors.Is(err, io.EOF):
			return Message{}, io.ErrUnexpectedEOF
		default:
			return Message{}, err
		}
	}
	return Decode(string(line[:len(line)-1]))
}

// WriteFrame validates m and writes it with its terminator in a single write.
func WriteFrame(w io.Writer, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	frame := Encode(m)
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, Terminator)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}
