package imapparser

import (
	"bytes"
	"fmt"
)

// DecoderError wraps a fatal parse error together with the head of
// the offending input for diagnostics.
type DecoderError struct {
	Err   error
	Input []byte
}

func (e *DecoderError) Error() string {
	in := e.Input
	const max = 64
	if len(in) > max {
		in = in[:max]
	}
	return fmt.Sprintf("%v (input %q)", e.Err, in)
}

func (e *DecoderError) Unwrap() error { return e.Err }

func decoderErr(err error, buf *Buffer) error {
	head := buf.Bytes()
	if len(head) > 256 {
		head = head[:256]
	}
	return &DecoderError{Err: err, Input: copyBytes(head)}
}

// CommandDecoder adapts CommandParser to a byte-to-message
// pipeline: append received bytes, then drain frames until Frame
// reports that more bytes are needed.
type CommandDecoder struct {
	Parser *CommandParser
	buf    Buffer
}

func NewCommandDecoder(p *CommandParser) *CommandDecoder {
	return &CommandDecoder{Parser: p}
}

// Append adds received bytes to the decode buffer.
func (d *CommandDecoder) Append(b []byte) {
	d.buf.Append(b)
}

// Buffered reports how many bytes are waiting to be framed.
func (d *CommandDecoder) Buffered() int { return d.buf.Len() }

// Frame drains one event from the buffer. A nil result means more
// bytes are needed. Errors are fatal for the connection.
func (d *CommandDecoder) Frame() (*PartialCommandStream, error) {
	if err := checkLineBound(&d.buf, d.Parser.BufferLimit(), d.Parser.StreamingLiteral()); err != nil {
		return nil, decoderErr(err, &d.buf)
	}
	ev, err := d.Parser.ParseCommandStream(&d.buf)
	if err != nil {
		return nil, decoderErr(err, &d.buf)
	}
	return ev, nil
}

// ResponseDecoder is the response-side counterpart of
// CommandDecoder.
type ResponseDecoder struct {
	Parser *ResponseParser
	buf    Buffer
}

func NewResponseDecoder(p *ResponseParser) *ResponseDecoder {
	return &ResponseDecoder{Parser: p}
}

func (d *ResponseDecoder) Append(b []byte) {
	d.buf.Append(b)
}

func (d *ResponseDecoder) Buffered() int { return d.buf.Len() }

func (d *ResponseDecoder) Frame() (*ResponseEvent, error) {
	if err := checkLineBound(&d.buf, d.Parser.BufferLimit(), d.Parser.StreamingLiteral()); err != nil {
		return nil, decoderErr(err, &d.buf)
	}
	ev, err := d.Parser.ParseResponseStream(&d.buf)
	if err != nil {
		return nil, decoderErr(err, &d.buf)
	}
	return ev, nil
}

// checkLineBound raises LineTooLong when the buffer exceeds the
// limit without containing a newline. Literal payloads are exempt:
// while streaming message octets no line bound applies.
func checkLineBound(buf *Buffer, limit int, streaming bool) error {
	if streaming || buf.Len() <= limit {
		return nil
	}
	if bytes.IndexByte(buf.Bytes(), '\n') >= 0 {
		return nil
	}
	if bytes.IndexByte(buf.Bytes(), '\r') >= 0 {
		return nil
	}
	return &ParsingError{Kind: ParsingErrorLineTooLong}
}
