package imapparser

import (
	"bytes"
	"errors"

	"spool.ink/imap/imapframe"
	wire "spool.ink/imap/imapwire"
)

type respMode int

const (
	respNormal respMode = iota
	respFetchMiddle
	respAttrBytes
)

// ResponseParser is the session state machine for the server to
// client direction. Each connection owns one; it is not safe for
// concurrent use.
type ResponseParser struct {
	frame       *imapframe.SynchronizingLiteralParser
	tracker     *wire.Tracker
	bufferLimit int

	mode      respMode
	remaining uint32 // respAttrBytes
	pending   []ResponseEvent
	firstAttr bool

	seenGreeting bool
	seenTagged   bool
}

// NewResponseParser returns a parser enforcing the given line
// buffer limit; limit <= 0 selects the default.
func NewResponseParser(bufferLimit int) *ResponseParser {
	if bufferLimit <= 0 {
		bufferLimit = DefaultResponseBufferLimit
	}
	return &ResponseParser{
		frame:       imapframe.NewSynchronizingLiteralParser(),
		tracker:     wire.NewTracker(0),
		bufferLimit: bufferLimit,
	}
}

// BufferLimit reports the line length bound the transport adapter
// enforces for this parser.
func (p *ResponseParser) BufferLimit() int { return p.bufferLimit }

// SetRecursionLimit replaces the default recursion bound.
func (p *ResponseParser) SetRecursionLimit(limit int) {
	p.tracker = wire.NewTracker(limit)
}

// StreamingLiteral reports whether the parser is inside a streamed
// attribute literal, where the line length bound does not apply.
func (p *ResponseParser) StreamingLiteral() bool { return p.mode == respAttrBytes }

// ParseResponseStream parses the next response frame from buf.
// A nil event means more bytes are needed.
func (p *ResponseParser) ParseResponseStream(buf *Buffer) (*ResponseEvent, error) {
	if len(p.pending) > 0 {
		ev := p.pending[0]
		p.pending = p.pending[1:]
		return &ev, nil
	}

	res, err := p.frame.ParseContinuationsNecessary(buf.data)
	if err != nil {
		return nil, translateErr(err)
	}
	visible := buf.data[:res.MaxValidBytes]
	if len(visible) == 0 {
		return nil, nil
	}

	ev, consumed, err := p.parseVisible(visible)
	if consumed > 0 {
		buf.consume(consumed)
		p.frame.Consumed(consumed)
	}
	if err != nil {
		if errors.Is(err, wire.ErrIncomplete) {
			return nil, nil
		}
		return nil, translateErr(err)
	}
	if ev == nil {
		return nil, nil
	}
	return ev, nil
}

func (p *ResponseParser) parseVisible(visible []byte) (*ResponseEvent, int, error) {
	switch p.mode {
	case respNormal:
		return p.parseResponse(visible)
	case respFetchMiddle:
		ev, n, err := p.parseFetchAttr(visible)
		if err != nil && wire.IsRecoverable(err) {
			// A parse error inside a fetch attribute aborts only
			// the current response: drop input up to the next
			// newline and return to normal mode.
			if nl := indexAfterNewline(visible); nl >= 0 {
				p.mode = respNormal
				return nil, nl, err
			}
			return nil, 0, err
		}
		return ev, n, err
	case respAttrBytes:
		return p.parseAttrBytes(visible)
	}
	panic("imapparser: impossible response mode")
}

func indexAfterNewline(b []byte) int {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return i + 1
	}
	if i := bytes.IndexByte(b, '\r'); i >= 0 && i+1 < len(b) {
		return i + 1
	}
	return -1
}

func (p *ResponseParser) parseResponse(visible []byte) (*ResponseEvent, int, error) {
	c := wire.NewCursor(visible)
	p.tracker.Reset()

	b, err := c.PeekByte()
	if err != nil {
		return nil, 0, err
	}

	if b == '+' {
		c.ReadByte()
		cr := &ContinueRequest{}
		if b, err = c.PeekByte(); err != nil {
			return nil, 0, err
		}
		if b == ' ' {
			c.ReadByte()
			if cr.Text, err = readText(c); err != nil {
				return nil, 0, err
			}
		}
		if err := wire.Newline(c); err != nil {
			return nil, 0, err
		}
		cr.Base64 = len(cr.Text) > 0 && len(cr.Text)%4 == 0 && isAllBase64(cr.Text)
		ev := &ResponseEvent{Kind: ResponseEventContinueReq, Continue: cr}
		return ev, c.Pos(), nil
	}

	if b == '*' {
		c.ReadByte()
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		return p.parseUntagged(c)
	}

	// Tagged response.
	tag, err := readTag(c)
	if err != nil {
		return nil, 0, err
	}
	if err := wire.Space(c); err != nil {
		return nil, 0, err
	}
	word, err := readAtom(c)
	if err != nil {
		return nil, 0, err
	}
	wire.AsciiUpper(word)
	cond := conds[string(word)]
	switch cond {
	case CondOK, CondNo, CondBad:
	default:
		return nil, 0, wire.Errorf("imapparser: bad tagged condition %q", word)
	}
	if err := wire.Space(c); err != nil {
		return nil, 0, err
	}
	rt, err := parseResponseText(c)
	if err != nil {
		return nil, 0, err
	}
	if err := wire.Newline(c); err != nil {
		return nil, 0, err
	}
	p.seenGreeting = true
	p.seenTagged = true
	ev := &ResponseEvent{
		Kind:   ResponseEventTagged,
		Tagged: &TaggedResponse{Tag: tag, Cond: cond, Text: rt},
	}
	return ev, c.Pos(), nil
}

func (p *ResponseParser) parseUntagged(c *wire.Cursor) (*ResponseEvent, int, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, 0, err
	}

	if wire.IsDigit(b) {
		n, err := wire.Number32(c)
		if err != nil {
			return nil, 0, err
		}
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		word, err := readAtom(c)
		if err != nil {
			return nil, 0, err
		}
		wire.AsciiUpper(word)
		switch string(word) {
		case "FETCH":
			if err := wire.Space(c); err != nil {
				return nil, 0, err
			}
			if err := wire.FixedString(c, "("); err != nil {
				return nil, 0, err
			}
			p.mode = respFetchMiddle
			p.firstAttr = true
			ev := &ResponseEvent{
				Kind:  ResponseEventFetch,
				Fetch: &FetchEvent{Kind: FetchStart, SeqNum: n},
			}
			return ev, c.Pos(), nil
		case "EXISTS", "RECENT", "EXPUNGE":
			if err := wire.Newline(c); err != nil {
				return nil, 0, err
			}
			pl := &ResponsePayload{Number: n}
			switch string(word) {
			case "EXISTS":
				pl.Type = UntaggedExists
			case "RECENT":
				pl.Type = UntaggedRecent
			case "EXPUNGE":
				pl.Type = UntaggedExpunge
			}
			ev := &ResponseEvent{Kind: ResponseEventUntagged, Untagged: pl}
			return ev, c.Pos(), nil
		}
		return nil, 0, wire.Errorf("imapparser: unknown numbered response %q", word)
	}

	word, err := readAtom(c)
	if err != nil {
		return nil, 0, err
	}
	wire.AsciiUpper(word)

	// The first response on a connection is the server greeting.
	if !p.seenGreeting {
		switch string(word) {
		case "OK", "PREAUTH", "BYE":
			if err := wire.Space(c); err != nil {
				return nil, 0, err
			}
			rt, err := parseResponseText(c)
			if err != nil {
				return nil, 0, err
			}
			if err := wire.Newline(c); err != nil {
				return nil, 0, err
			}
			p.seenGreeting = true
			ev := &ResponseEvent{
				Kind:     ResponseEventGreeting,
				Greeting: &Greeting{Cond: conds[string(word)], Text: rt},
			}
			return ev, c.Pos(), nil
		}
	}

	// An untagged BYE before any tagged response is fatal.
	if string(word) == "BYE" && !p.seenTagged {
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		rt, err := parseResponseText(c)
		if err != nil {
			return nil, 0, err
		}
		if err := wire.Newline(c); err != nil {
			return nil, 0, err
		}
		ev := &ResponseEvent{Kind: ResponseEventFatal, Fatal: &rt}
		return ev, c.Pos(), nil
	}

	pl := &ResponsePayload{}
	if err := parseUntaggedKeyword(c, p.tracker, word, pl); err != nil {
		return nil, 0, err
	}
	p.seenGreeting = true
	ev := &ResponseEvent{Kind: ResponseEventUntagged, Untagged: pl}
	return ev, c.Pos(), nil
}

func isAllBase64(b []byte) bool {
	for _, c := range b {
		if !wire.IsBase64Char(c) {
			return false
		}
	}
	return true
}

// parseFetchAttr parses one msg-att inside a FETCH response, or the
// closing ")" CRLF.
func (p *ResponseParser) parseFetchAttr(visible []byte) (*ResponseEvent, int, error) {
	c := wire.NewCursor(visible)
	p.tracker.Reset()

	b, err := c.PeekByte()
	if err != nil {
		return nil, 0, err
	}
	if b == ')' {
		c.ReadByte()
		if err := wire.Newline(c); err != nil {
			return nil, 0, err
		}
		p.mode = respNormal
		ev := &ResponseEvent{
			Kind:  ResponseEventFetch,
			Fetch: &FetchEvent{Kind: FetchFinish},
		}
		return ev, c.Pos(), nil
	}
	if !p.firstAttr {
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
	}

	name, err := readFetchAttName(c)
	if err != nil {
		return nil, 0, err
	}

	attr := FetchAttr{}
	switch string(name) {
	case "FLAGS":
		attr.Type = FetchFlags
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Flags, err = readFlagList(c); err != nil {
			return nil, 0, err
		}

	case "X-GM-LABELS":
		attr.Type = FetchGmailLabels
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Flags, err = readGmailLabelList(c); err != nil {
			return nil, 0, err
		}

	case "UID":
		attr.Type = FetchUID
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.UID, err = wire.NonZeroNumber(c); err != nil {
			return nil, 0, err
		}

	case "RFC822.SIZE":
		attr.Type = FetchRFC822Size
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Size, err = wire.Number32(c); err != nil {
			return nil, 0, err
		}

	case "INTERNALDATE":
		attr.Type = FetchInternalDate
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Date, err = readDateTime(c); err != nil {
			return nil, 0, err
		}

	case "MODSEQ":
		attr.Type = FetchModSeq
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if err := wire.FixedString(c, "("); err != nil {
			return nil, 0, err
		}
		if attr.ModSeq, err = wire.Number(c); err != nil {
			return nil, 0, err
		}
		if err := wire.FixedString(c, ")"); err != nil {
			return nil, 0, err
		}

	case "ENVELOPE":
		attr.Type = FetchEnvelope
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Envelope, err = parseEnvelope(c); err != nil {
			return nil, 0, err
		}

	case "BODYSTRUCTURE":
		attr.Type = FetchBodyStructure
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.BodyStructure, err = parseBodyStructure(c, p.tracker); err != nil {
			return nil, 0, err
		}

	case "X-GM-MSGID":
		attr.Type = FetchGmailMsgID
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Number, err = wire.Number(c); err != nil {
			return nil, 0, err
		}

	case "X-GM-THRID":
		attr.Type = FetchGmailThreadID
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Number, err = wire.Number(c); err != nil {
			return nil, 0, err
		}

	case "BINARY.SIZE":
		attr.Type = FetchBinarySize
		sec, err := readSection(c, true)
		if err != nil {
			return nil, 0, err
		}
		attr.Section = &sec
		if err := wire.Space(c); err != nil {
			return nil, 0, err
		}
		if attr.Number, err = wire.Number(c); err != nil {
			return nil, 0, err
		}

	case "BODY":
		b, err := c.PeekByte()
		if err != nil {
			return nil, 0, err
		}
		if b != '[' {
			// BODY without a section is a body structure.
			attr.Type = FetchBodyStructure
			if err := wire.Space(c); err != nil {
				return nil, 0, err
			}
			if attr.BodyStructure, err = parseBodyStructure(c, p.tracker); err != nil {
				return nil, 0, err
			}
			break
		}
		return p.parseStreamedAttr(c, FetchBody, false)

	case "BINARY":
		return p.parseStreamedAttr(c, FetchBinary, true)

	case "RFC822":
		return p.parseStreamedValue(c, FetchItem{Type: FetchRFC822})
	case "RFC822.HEADER":
		return p.parseStreamedValue(c, FetchItem{Type: FetchRFC822Header})
	case "RFC822.TEXT":
		return p.parseStreamedValue(c, FetchItem{Type: FetchRFC822Text})

	default:
		return nil, 0, wire.Errorf("imapparser: FETCH unknown attribute %q", name)
	}

	p.firstAttr = false
	ev := &ResponseEvent{
		Kind:  ResponseEventFetch,
		Fetch: &FetchEvent{Kind: FetchSimple, Attr: attr},
	}
	return ev, c.Pos(), nil
}

// parseStreamedAttr parses the section and optional origin octet of
// a BODY[...] or BINARY[...] attribute, then hands off to the
// streamed value reader.
func (p *ResponseParser) parseStreamedAttr(c *wire.Cursor, typ FetchItemType, binary bool) (*ResponseEvent, int, error) {
	item := FetchItem{Type: typ}
	sec, err := readSection(c, binary)
	if err != nil {
		return nil, 0, err
	}
	item.Section = sec

	b, err := c.PeekByte()
	if err != nil {
		return nil, 0, err
	}
	if b == '<' {
		// The response form carries only the origin octet.
		c.ReadByte()
		if item.Partial.Start, err = wire.Number32(c); err != nil {
			return nil, 0, err
		}
		if err := wire.FixedString(c, ">"); err != nil {
			return nil, 0, err
		}
	}
	return p.parseStreamedValue(c, item)
}

// parseStreamedValue reads the value of a streamed attribute: a
// literal begins chunked delivery, a quoted string is delivered as
// a single chunk, and NIL is surfaced as a simple attribute.
func (p *ResponseParser) parseStreamedValue(c *wire.Cursor, item FetchItem) (*ResponseEvent, int, error) {
	if err := wire.Space(c); err != nil {
		return nil, 0, err
	}
	b, err := c.PeekByte()
	if err != nil {
		return nil, 0, err
	}
	switch b {
	case '{', '~':
		h, err := readLiteralHeader(c)
		if err != nil {
			return nil, 0, err
		}
		p.remaining = h.Length
		p.mode = respAttrBytes
		p.firstAttr = false
		if h.Length == 0 {
			p.mode = respFetchMiddle
			p.pending = append(p.pending, ResponseEvent{
				Kind:  ResponseEventFetch,
				Fetch: &FetchEvent{Kind: FetchStreamEnd},
			})
		}
		ev := &ResponseEvent{
			Kind: ResponseEventFetch,
			Fetch: &FetchEvent{
				Kind:      FetchStreamBegin,
				Stream:    item,
				ByteCount: h.Length,
			},
		}
		return ev, c.Pos(), nil

	case '"':
		v, err := readQuoted(c)
		if err != nil {
			return nil, 0, err
		}
		p.firstAttr = false
		p.pending = append(p.pending,
			ResponseEvent{Kind: ResponseEventFetch, Fetch: &FetchEvent{
				Kind: FetchStreamBytes, Chunk: v,
			}},
			ResponseEvent{Kind: ResponseEventFetch, Fetch: &FetchEvent{
				Kind: FetchStreamEnd,
			}},
		)
		ev := &ResponseEvent{
			Kind: ResponseEventFetch,
			Fetch: &FetchEvent{
				Kind:      FetchStreamBegin,
				Stream:    item,
				ByteCount: uint32(len(v)),
			},
		}
		return ev, c.Pos(), nil
	}

	// NIL: the section was requested but has no content.
	if err := wire.FixedString(c, "NIL"); err != nil {
		return nil, 0, err
	}
	p.firstAttr = false
	attr := FetchAttr{Type: item.Type, NilValue: true}
	if item.Section.Name != "" || len(item.Section.Path) > 0 {
		sec := item.Section
		attr.Section = &sec
	}
	ev := &ResponseEvent{
		Kind:  ResponseEventFetch,
		Fetch: &FetchEvent{Kind: FetchSimple, Attr: attr},
	}
	return ev, c.Pos(), nil
}

func (p *ResponseParser) parseAttrBytes(visible []byte) (*ResponseEvent, int, error) {
	if len(visible) == 0 {
		return nil, 0, wire.ErrIncomplete
	}
	n := len(visible)
	if uint32(n) > p.remaining {
		n = int(p.remaining)
	}
	if n == 0 {
		return nil, 0, wire.ErrIncomplete
	}
	p.remaining -= uint32(n)
	if p.remaining == 0 {
		p.mode = respFetchMiddle
		p.pending = append(p.pending, ResponseEvent{
			Kind:  ResponseEventFetch,
			Fetch: &FetchEvent{Kind: FetchStreamEnd},
		})
	}
	ev := &ResponseEvent{
		Kind:  ResponseEventFetch,
		Fetch: &FetchEvent{Kind: FetchStreamBytes, Chunk: copyBytes(visible[:n])},
	}
	return ev, n, nil
}

// readGmailLabelList reads the X-GM-LABELS value: a parenthesized
// list of astrings or backslash-prefixed atoms.
func readGmailLabelList(c *wire.Cursor) ([][]byte, error) {
	if err := wire.FixedString(c, "("); err != nil {
		return nil, err
	}
	var labels [][]byte
	for {
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ')' {
			c.ReadByte()
			return labels, nil
		}
		if len(labels) > 0 {
			if err := wire.Space(c); err != nil {
				return nil, err
			}
			if b, err = c.PeekByte(); err != nil {
				return nil, err
			}
		}
		var l []byte
		if b == '\\' {
			if l, err = readFlag(c); err != nil {
				return nil, err
			}
		} else {
			if l, err = readAstring(c); err != nil {
				return nil, err
			}
		}
		labels = append(labels, l)
	}
}
