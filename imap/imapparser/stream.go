package imapparser

import (
	"errors"
	"fmt"
	"io"

	"crawshaw.io/iox"

	"spool.ink/imap/imapframe"
	wire "spool.ink/imap/imapwire"
)

// ParsingError is the public error surface of the session parsers.
// All of its kinds except Malformed are fatal for the connection.
type ParsingError struct {
	Kind ParsingErrorKind
	Hint string
}

type ParsingErrorKind int

const (
	ParsingErrorMalformed ParsingErrorKind = iota
	ParsingErrorLineTooLong
	ParsingErrorInvalidFrame
	ParsingErrorTooDeep
)

func (e *ParsingError) Error() string {
	switch e.Kind {
	case ParsingErrorLineTooLong:
		return "imapparser: line too long"
	case ParsingErrorInvalidFrame:
		return "imapparser: invalid frame: " + e.Hint
	case ParsingErrorTooDeep:
		return "imapparser: " + e.Hint
	}
	return "imapparser: malformed: " + e.Hint
}

// translateErr maps internal parse failures onto the public error
// surface. ErrIncomplete is not an error; callers check for it
// first.
func translateErr(err error) error {
	var tde wire.TooDeepError
	switch {
	case errors.As(err, &tde):
		return &ParsingError{Kind: ParsingErrorTooDeep, Hint: tde.Error()}
	case errors.Is(err, imapframe.ErrInvalidFrame):
		return &ParsingError{Kind: ParsingErrorInvalidFrame, Hint: err.Error()}
	}
	return &ParsingError{Kind: ParsingErrorMalformed, Hint: err.Error()}
}

// A Buffer accumulates received bytes for a streaming parser.
// The parser consumes from its head as frames complete.
type Buffer struct {
	data []byte
}

func (b *Buffer) Append(p []byte) { b.data = append(b.data, p...) }
func (b *Buffer) Len() int        { return len(b.data) }
func (b *Buffer) Bytes() []byte   { return b.data }

func (b *Buffer) consume(n int) {
	b.data = b.data[:copy(b.data, b.data[n:])]
}

// CommandEventKind enumerates the frames of the command stream.
type CommandEventKind int

const (
	// CommandEventTagged is a complete tagged command. For APPEND
	// and IDLE it marks the start of a streamed exchange.
	CommandEventTagged CommandEventKind = iota + 1
	CommandEventAppendBegin
	CommandEventAppendBytes
	CommandEventAppendEnd
	CommandEventAppendFinish
	CommandEventIdleDone
	CommandEventContinuation
)

func (k CommandEventKind) String() string {
	switch k {
	case CommandEventTagged:
		return "tagged"
	case CommandEventAppendBegin:
		return "append-begin-message"
	case CommandEventAppendBytes:
		return "append-message-bytes"
	case CommandEventAppendEnd:
		return "append-end-message"
	case CommandEventAppendFinish:
		return "append-finish"
	case CommandEventIdleDone:
		return "idle-done"
	case CommandEventContinuation:
		return "continuation-response"
	}
	return fmt.Sprintf("CommandEventKind(%d)", int(k))
}

// CommandEvent is one frame of the parsed command stream.
type CommandEvent struct {
	Kind CommandEventKind

	// Command is set for Kind CommandEventTagged. An APPEND
	// command carries only Tag and Mailbox; its messages follow as
	// separate events.
	Command *Command

	// Append and Literal are set for CommandEventAppendBegin:
	// the per-message options and the declared octet count.
	Append  Append
	Literal uint32

	// Chunk is set for CommandEventAppendBytes (a slice of message
	// octets; Final marks the last chunk of the message) and for
	// CommandEventContinuation (a base64 line, "*" for abort).
	Chunk []byte
	Final bool

	// Message is set for CommandEventAppendEnd when the parser was
	// given a spool; it holds the complete message payload, seeked
	// to the start. The receiver owns it.
	Message *iox.BufferFile
}

// PartialCommandStream is the result of one ParseCommandStream
// call: an event, a number of continuation responses the transport
// must emit, or both.
type PartialCommandStream struct {
	SynchronizingLiteralCount int
	Event                     *CommandEvent
}

type commandMode int

const (
	modeLines commandMode = iota
	modeIdle
	modeAuthenticating
	modeAppendOptions // between APPEND messages
	modeAppendBytes   // streaming message octets
)

// CommandParser is the session state machine for the client to
// server direction. Each connection owns one; it is not safe for
// concurrent use.
type CommandParser struct {
	frame       *imapframe.SynchronizingLiteralParser
	tracker     *wire.Tracker
	bufferLimit int

	mode      commandMode
	remaining uint32 // modeAppendBytes
	pending   []CommandEvent

	// spool, when non-nil, collects APPEND message octets into a
	// BufferFile instead of emitting chunk events.
	spool   *iox.Filer
	spooled *iox.BufferFile

	cmd Command
}

// NewCommandParser returns a parser enforcing the given line buffer
// limit; limit <= 0 selects the default.
func NewCommandParser(bufferLimit int) *CommandParser {
	if bufferLimit <= 0 {
		bufferLimit = DefaultCommandBufferLimit
	}
	return &CommandParser{
		frame:       imapframe.NewSynchronizingLiteralParser(),
		tracker:     wire.NewTracker(0),
		bufferLimit: bufferLimit,
	}
}

// BufferLimit reports the line length bound the transport adapter
// enforces for this parser.
func (p *CommandParser) BufferLimit() int { return p.bufferLimit }

// SetRecursionLimit replaces the default recursion bound.
func (p *CommandParser) SetRecursionLimit(limit int) {
	p.tracker = wire.NewTracker(limit)
}

// StreamingLiteral reports whether the parser is inside a message
// literal, where the line length bound does not apply.
func (p *CommandParser) StreamingLiteral() bool { return p.mode == modeAppendBytes }

// SetSpool directs APPEND message payloads into BufferFiles
// allocated from filer. Without a spool the payload is emitted as
// CommandEventAppendBytes chunks.
func (p *CommandParser) SetSpool(filer *iox.Filer) {
	p.spool = filer
}

// FinishAuthentication returns the parser to line mode after the
// caller completes or aborts a SASL exchange begun by AUTHENTICATE.
func (p *CommandParser) FinishAuthentication() {
	if p.mode == modeAuthenticating {
		p.mode = modeLines
	}
}

// ParseCommandStream parses the next frame from buf.
//
// A nil result means more bytes are needed. A non-nil result
// carries an event, a count of continuation responses the
// transport must send, or both.
func (p *CommandParser) ParseCommandStream(buf *Buffer) (*PartialCommandStream, error) {
	if len(p.pending) > 0 {
		ev := p.pending[0]
		p.pending = p.pending[1:]
		return &PartialCommandStream{Event: &ev}, nil
	}

	res, err := p.frame.ParseContinuationsNecessary(buf.data)
	if err != nil {
		return nil, translateErr(err)
	}
	visible := buf.data[:res.MaxValidBytes]
	sync := res.SynchronizingLiteralCount
	if sync > 0 {
		// The count is being reported now; do not report it again
		// on the next invocation.
		p.frame.Consumed(0)
	}

	ev, consumed, err := p.parseVisible(visible)
	if err != nil {
		if errors.Is(err, wire.ErrIncomplete) {
			if sync > 0 {
				return &PartialCommandStream{SynchronizingLiteralCount: sync}, nil
			}
			return nil, nil
		}
		return nil, translateErr(err)
	}
	if consumed > 0 {
		buf.consume(consumed)
		p.frame.Consumed(consumed)
	}
	if ev == nil && sync == 0 {
		return nil, nil
	}
	return &PartialCommandStream{
		SynchronizingLiteralCount: sync,
		Event:                     ev,
	}, nil
}

func (p *CommandParser) parseVisible(visible []byte) (*CommandEvent, int, error) {
	switch p.mode {
	case modeLines:
		return p.parseLine(visible)
	case modeIdle:
		return p.parseIdleDone(visible)
	case modeAuthenticating:
		return p.parseAuthLine(visible)
	case modeAppendOptions:
		return p.parseAppendOptions(visible)
	case modeAppendBytes:
		return p.parseAppendBytes(visible)
	}
	panic(fmt.Sprintf("imapparser: impossible command mode %d", p.mode))
}

func (p *CommandParser) parseLine(visible []byte) (*CommandEvent, int, error) {
	if len(visible) == 0 {
		return nil, 0, wire.ErrIncomplete
	}
	c := wire.NewCursor(visible)
	p.tracker.Reset()
	p.cmd = Command{}
	if err := parseCommand(c, p.tracker, &p.cmd); err != nil {
		return nil, 0, err
	}
	switch p.cmd.Name {
	case "APPEND":
		p.mode = modeAppendOptions
	case "IDLE":
		p.mode = modeIdle
	case "AUTHENTICATE":
		p.mode = modeAuthenticating
	}
	return &CommandEvent{Kind: CommandEventTagged, Command: &p.cmd}, c.Pos(), nil
}

func (p *CommandParser) parseIdleDone(visible []byte) (*CommandEvent, int, error) {
	if len(visible) == 0 {
		return nil, 0, wire.ErrIncomplete
	}
	c := wire.NewCursor(visible)
	if err := wire.FixedString(c, "DONE"); err != nil {
		return nil, 0, err
	}
	if err := wire.Newline(c); err != nil {
		return nil, 0, err
	}
	p.mode = modeLines
	return &CommandEvent{Kind: CommandEventIdleDone}, c.Pos(), nil
}

// parseAuthLine reads one SASL continuation line: base64 data, an
// empty line, or "*" to abort the exchange. The caller signals the
// end of the exchange with FinishAuthentication.
func (p *CommandParser) parseAuthLine(visible []byte) (*CommandEvent, int, error) {
	if len(visible) == 0 {
		return nil, 0, wire.ErrIncomplete
	}
	c := wire.NewCursor(visible)
	line, err := wire.TakeWhile(c, wire.IsBase64Char)
	if err != nil {
		return nil, 0, err
	}
	if len(line) == 0 {
		b, err := c.PeekByte()
		if err != nil {
			return nil, 0, err
		}
		if b == '*' {
			c.ReadByte()
			line = visible[c.Pos()-1 : c.Pos()]
			p.mode = modeLines // aborted
		}
	}
	chunk := copyBytes(line)
	if err := wire.Newline(c); err != nil {
		return nil, 0, err
	}
	return &CommandEvent{Kind: CommandEventContinuation, Chunk: chunk}, c.Pos(), nil
}

// parseAppendOptions parses the header of one APPEND message, or
// the newline that ends the APPEND command (RFC 3502 MULTIAPPEND).
func (p *CommandParser) parseAppendOptions(visible []byte) (*CommandEvent, int, error) {
	if len(visible) == 0 {
		return nil, 0, wire.ErrIncomplete
	}
	c := wire.NewCursor(visible)

	// End of the APPEND?
	if err := wire.Newline(c); err == nil {
		p.mode = modeLines
		return &CommandEvent{Kind: CommandEventAppendFinish}, c.Pos(), nil
	} else if !wire.IsRecoverable(err) {
		return nil, 0, err
	}

	if err := wire.Space(c); err != nil {
		return nil, 0, err
	}

	var app Append
	b, err := c.PeekByte()
	if err != nil {
		return nil, 0, err
	}
	if b == '(' {
		flags, err := readFlagList(c)
		if err != nil {
			return nil, 0, err
		}
		app.Flags = flags
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if b, err = c.PeekByte(); err != nil {
			return nil, 0, err
		}
	}
	if b == '"' {
		// Keep the date-time bytes verbatim; validate the shape.
		mark := c.Mark()
		if _, err := readDateTime(c); err != nil {
			return nil, 0, err
		}
		app.Date = copyBytes(visible[mark:c.Pos()])
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
	}

	if b, err = c.PeekByte(); err != nil {
		return nil, 0, err
	}
	if b == 'C' || b == 'c' {
		// RFC 4469: the message data is a CATENATE list instead of
		// a literal. The framing layer has already pulled in every
		// inline text literal, so the whole list parses at once.
		if err := parseCatenate(c, &app); err != nil {
			return nil, 0, err
		}
		p.mode = modeAppendOptions
		p.pending = append(p.pending, CommandEvent{Kind: CommandEventAppendEnd})
		return &CommandEvent{
			Kind:   CommandEventAppendBegin,
			Append: app,
		}, c.Pos(), nil
	}

	h, err := readLiteralHeader(c)
	if err != nil {
		return nil, 0, err
	}
	app.Binary = h.Binary
	p.remaining = h.Length
	p.mode = modeAppendBytes
	if p.spool != nil {
		p.spooled = p.spool.BufferFile(0)
	}
	if h.Length == 0 {
		p.queueAppendEnd()
	}
	return &CommandEvent{
		Kind:    CommandEventAppendBegin,
		Append:  app,
		Literal: h.Length,
	}, c.Pos(), nil
}

// parseCatenate reads "CATENATE" SP "(" cat-part *(SP cat-part) ")"
// where cat-part is "URL" SP url or "TEXT" SP literal. Only a
// single level is accepted.
func parseCatenate(c *wire.Cursor, app *Append) error {
	if err := wire.FixedString(c, "CATENATE"); err != nil {
		return err
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: CATENATE missing part list")
	}
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			c.ReadByte()
			break
		}
		if len(app.Catenate) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		word, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: CATENATE bad part keyword")
		}
		wire.AsciiUpper(word)
		if err := wire.Space(c); err != nil {
			return err
		}
		switch string(word) {
		case "URL":
			raw, err := readAstring(c)
			if err != nil {
				return wire.Errorf("imapparser: CATENATE bad URL")
			}
			u, err := ParseIMAPURL(raw)
			if err != nil {
				return err
			}
			app.Catenate = append(app.Catenate, CatenatePart{URL: &u})
		case "TEXT":
			text, err := readLiteral(c)
			if err != nil {
				return err
			}
			app.Catenate = append(app.Catenate, CatenatePart{Text: text})
		default:
			return wire.Errorf("imapparser: CATENATE unknown part %q", word)
		}
	}
	if len(app.Catenate) == 0 {
		return wire.Errorf("imapparser: CATENATE empty part list")
	}
	return nil
}

func (p *CommandParser) queueAppendEnd() {
	p.mode = modeAppendOptions
	ev := CommandEvent{Kind: CommandEventAppendEnd}
	if p.spooled != nil {
		if _, err := p.spooled.Seek(0, io.SeekStart); err == nil {
			ev.Message = p.spooled
		}
		p.spooled = nil
	}
	p.pending = append(p.pending, ev)
}

func (p *CommandParser) parseAppendBytes(visible []byte) (*CommandEvent, int, error) {
	if len(visible) == 0 {
		return nil, 0, wire.ErrIncomplete
	}
	n := len(visible)
	if uint32(n) > p.remaining {
		n = int(p.remaining)
	}
	chunk := visible[:n]
	p.remaining -= uint32(n)
	final := p.remaining == 0

	if p.spooled != nil {
		if _, err := p.spooled.Write(chunk); err != nil {
			return nil, 0, fmt.Errorf("imapparser: append spool: %v", err)
		}
		if final {
			p.queueAppendEnd()
			ev := p.pending[0]
			p.pending = p.pending[1:]
			return &ev, n, nil
		}
		// Spooled chunks produce no event; report progress by
		// consuming and asking for more bytes.
		return nil, n, nil
	}

	if final {
		p.queueAppendEnd()
	}
	return &CommandEvent{
		Kind:  CommandEventAppendBytes,
		Chunk: copyBytes(chunk),
		Final: final,
	}, n, nil
}
