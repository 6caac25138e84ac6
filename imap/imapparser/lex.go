package imapparser

import (
	"bytes"
	"time"

	wire "spool.ink/imap/imapwire"
)

// Token-level readers shared by the command and response grammars.
// All readers copy the bytes they return; emitted values never
// alias the input buffer, which the session layer consumes and
// reuses.

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// readAtom reads an IMAP atom.
//
// Condensed grammar from RFC 3501 section 9:
//
//	atom            = 1*ATOM-CHAR
//
//	atom-specials   = "(" / ")" / "{" / SP / CTL / "%" / "*" / " / "\"
func readAtom(c *wire.Cursor) ([]byte, error) {
	v, err := wire.TakeWhile1(c, wire.IsAtomChar, "atom")
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

// readTag reads an IMAP tag: any astring char except "+".
func readTag(c *wire.Cursor) ([]byte, error) {
	v, err := wire.TakeWhile1(c, wire.IsTagChar, "tag")
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

// readQuoted reads a quoted string, unescaping \" and \\.
func readQuoted(c *wire.Cursor) ([]byte, error) {
	if err := wire.FixedString(c, `"`); err != nil {
		return nil, err
	}
	v := []byte{}
	for {
		b, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case '"':
			return v, nil
		case '\r', '\n':
			return nil, wire.Errorf("imapparser: newline inside quoted string")
		case '\\':
			b, err = c.ReadByte()
			if err != nil {
				return nil, err
			}
			if b != '\\' && b != '"' {
				return nil, wire.Errorf("imapparser: invalid escape %q in quoted string", string(b))
			}
			v = append(v, b)
		default:
			if !wire.IsTextChar(b) {
				return nil, wire.Errorf("imapparser: invalid byte %#x in quoted string", b)
			}
			v = append(v, b)
		}
	}
}

// literalHeader describes a parsed literal introducer.
type literalHeader struct {
	Length uint32
	Plus   bool // {N+}, no continuation needed
	Minus  bool // {N-}, RFC 7888 LITERAL-
	Binary bool // ~ marker, RFC 3516
}

// readLiteralHeader reads a literal introducer and its terminating
// newline.
//
//	literal = "{" number ["+" / "-"] "}" CRLF
//
// The RFC 3516 "~" may precede the "{"; the form with "~" directly
// after the "{" is tolerated as well.
func readLiteralHeader(c *wire.Cursor) (literalHeader, error) {
	var h literalHeader
	b, err := c.PeekByte()
	if err != nil {
		return h, err
	}
	if b == '~' {
		h.Binary = true
		c.ReadByte()
	}
	if err := wire.FixedString(c, "{"); err != nil {
		return h, err
	}
	b, err = c.PeekByte()
	if err != nil {
		return h, err
	}
	if b == '~' {
		h.Binary = true
		c.ReadByte()
	}
	h.Length, err = wire.Number32(c)
	if err != nil {
		return h, err
	}
	b, err = c.PeekByte()
	if err != nil {
		return h, err
	}
	if b == '+' || b == '-' {
		h.Plus = b == '+'
		h.Minus = b == '-'
		c.ReadByte()
	}
	if err := wire.FixedString(c, "}"); err != nil {
		return h, err
	}
	if err := wire.Newline(c); err != nil {
		return h, err
	}
	return h, nil
}

// readLiteral reads a complete literal: introducer plus octets.
// The framing layer normally guarantees the octets are buffered;
// if they are not, ErrIncomplete is reported.
func readLiteral(c *wire.Cursor) ([]byte, error) {
	mark := c.Mark()
	h, err := readLiteralHeader(c)
	if err != nil {
		return nil, err
	}
	v, err := c.Take(int(h.Length))
	if err != nil {
		c.Restore(mark)
		return nil, err
	}
	if !h.Binary && bytes.IndexByte(v, 0) >= 0 {
		c.Restore(mark)
		return nil, wire.Errorf("imapparser: NUL inside non-binary literal")
	}
	return copyBytes(v), nil
}

// readString reads a string: quoted / literal.
func readString(c *wire.Cursor) ([]byte, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case '"':
		return readQuoted(c)
	case '{', '~':
		return readLiteral(c)
	}
	return nil, wire.Errorf("imapparser: expected string, got %q", string(b))
}

// readAstring reads an astring: 1*ASTRING-CHAR / string.
func readAstring(c *wire.Cursor) ([]byte, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case '"', '{':
		return readString(c)
	case '~':
		// "~" is a legal atom char; only "~{" introduces a binary
		// literal.
		mark := c.Mark()
		c.ReadByte()
		nb, err := c.PeekByte()
		c.Restore(mark)
		if err != nil {
			return nil, err
		}
		if nb == '{' {
			return readString(c)
		}
	}
	v, err := wire.TakeWhile1(c, wire.IsAstringChar, "astring")
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

// readNString reads an nstring: "NIL" / string.
// A NIL reports ok=false with a nil value.
func readNString(c *wire.Cursor) (v []byte, ok bool, err error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, false, err
	}
	switch b {
	case 'N', 'n':
		if err := wire.FixedString(c, "NIL"); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	v, err = readString(c)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// readNastring reads NIL / astring; RFC 2971 ID fields use it.
func readNastring(c *wire.Cursor) (v []byte, ok bool, err error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, false, err
	}
	if b == 'N' || b == 'n' {
		mark := c.Mark()
		if err := wire.FixedString(c, "NIL"); err == nil {
			if nb, err := c.PeekByte(); err != nil {
				c.Restore(mark)
				return nil, false, err
			} else if !wire.IsAstringChar(nb) {
				return nil, false, nil
			}
		}
		c.Restore(mark)
	}
	v, err = readAstring(c)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// readMailbox reads a mailbox name: an astring with INBOX
// canonicalized case-insensitively, other bytes preserved verbatim.
func readMailbox(c *wire.Cursor) (MailboxName, error) {
	v, err := readAstring(c)
	if err != nil {
		return nil, err
	}
	return MakeMailboxName(v), nil
}

// readListMailbox reads an IMAP list-mailbox.
// This is an astring that also allows % and *.
//
//	list-mailbox    = 1*list-char / string
//
//	list-char       = ATOM-CHAR / list-wildcards / resp-specials
func readListMailbox(c *wire.Cursor) ([]byte, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case '"', '{', '~':
		return readString(c)
	}
	v, err := wire.TakeWhile1(c, wire.IsListChar, "list-mailbox")
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

// readFlag reads an IMAP flag: a system flag such as \Seen, a
// keyword atom, or \* inside a PERMANENTFLAGS list.
func readFlag(c *wire.Cursor) ([]byte, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '\\' {
		return readAtom(c)
	}
	c.ReadByte()
	b, err = c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b == '*' {
		c.ReadByte()
		return []byte(`\*`), nil
	}
	atom, err := readAtom(c)
	if err != nil {
		return nil, err
	}
	return append([]byte{'\\'}, atom...), nil
}

// readFlagList reads "(" [flag *(SP flag)] ")".
func readFlagList(c *wire.Cursor) ([][]byte, error) {
	if err := wire.FixedString(c, "("); err != nil {
		return nil, err
	}
	var flags [][]byte
	for {
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ')' {
			c.ReadByte()
			return flags, nil
		}
		if len(flags) > 0 {
			if err := wire.Space(c); err != nil {
				return nil, err
			}
		}
		f, err := readFlag(c)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
}

// readSeqNumber reads an IMAP seq-number.
//
// From RFC 3501 section 9:
//
//	nz-number       = digit-nz *DIGIT
//		; Non-zero unsigned 32-bit integer
//		; (0 < n < 4,294,967,296)
//
//	seq-number      = nz-number / "*"
func readSeqNumber(c *wire.Cursor) (uint32, error) {
	b, err := c.PeekByte()
	if err != nil {
		return 0, err
	}
	if b == '*' {
		c.ReadByte()
		return 0, nil
	}
	return wire.NonZeroNumber(c)
}

// readSeqRange reads a single component of a sequence-set:
//
//	(seq-number / seq-range)
//
// where
//
//	seq-range       = seq-number ":" seq-number
func readSeqRange(c *wire.Cursor) (SeqRange, error) {
	min, err := readSeqNumber(c)
	if err != nil {
		return SeqRange{}, err
	}
	b, err := c.PeekByte()
	if err != nil {
		return SeqRange{}, err
	}
	if b != ':' {
		return SeqRange{Min: min, Max: min}, nil
	}
	c.ReadByte()
	max, err := readSeqNumber(c)
	if err != nil {
		return SeqRange{}, err
	}
	if max < min && max != 0 {
		min, max = max, min // normalize
	}
	if min == 0 && max != 0 {
		// "*:n" normalizes with the wildcard on the Max side.
		min, max = max, min
	}
	return SeqRange{Min: min, Max: max}, nil
}

// readSeqSet reads an IMAP sequence-set, or the RFC 5182 "$"
// reference to the last SEARCH result.
//
//	sequence-set    = (seq-number / seq-range) *("," sequence-set)
func readSeqSet(c *wire.Cursor) (SeqSet, error) {
	b, err := c.PeekByte()
	if err != nil {
		return SeqSet{}, err
	}
	if b == '$' {
		c.ReadByte()
		return SeqSet{Dollar: true}, nil
	}
	var set SeqSet
	for {
		r, err := readSeqRange(c)
		if err != nil {
			if len(set.Ranges) > 0 && wire.IsRecoverable(err) {
				return SeqSet{}, wire.Errorf("imapparser: trailing comma in sequence-set")
			}
			return SeqSet{}, err
		}
		set.Ranges = append(set.Ranges, r)
		b, err := c.PeekByte()
		if err != nil {
			return SeqSet{}, err
		}
		if b != ',' {
			return set, nil
		}
		c.ReadByte()
	}
}

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

func readMonth(c *wire.Cursor) (time.Month, error) {
	raw, err := c.Take(3)
	if err != nil {
		return 0, err
	}
	var name [3]byte
	copy(name[:], raw)
	wire.AsciiUpper(name[:])
	m, ok := months[string(name[:])]
	if !ok {
		return 0, wire.Errorf("imapparser: invalid month: %q", raw)
	}
	return m, nil
}

// readDate reads a date, optionally quoted.
//
//	date-text       = date-day "-" date-month "-" date-year
func readDate(c *wire.Cursor) (time.Time, error) {
	quoted := false
	b, err := c.PeekByte()
	if err != nil {
		return time.Time{}, err
	}
	if b == '"' {
		quoted = true
		c.ReadByte()
	}
	day, err := wire.Number32(c)
	if err != nil {
		return time.Time{}, err
	}
	if day == 0 || day > 31 {
		return time.Time{}, wire.Errorf("imapparser: invalid day: %d", day)
	}
	if err := wire.FixedString(c, "-"); err != nil {
		return time.Time{}, err
	}
	m, err := readMonth(c)
	if err != nil {
		return time.Time{}, err
	}
	if err := wire.FixedString(c, "-"); err != nil {
		return time.Time{}, err
	}
	year, err := wire.NDigits(c, 4)
	if err != nil {
		return time.Time{}, err
	}
	if quoted {
		if err := wire.FixedString(c, `"`); err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(int(year), m, int(day), 0, 0, 0, 0, time.UTC), nil
}

// readDateTime reads an INTERNALDATE date-time.
//
//	date-time       = DQUOTE date-day-fixed "-" date-month "-"
//	                  date-year SP time SP zone DQUOTE
func readDateTime(c *wire.Cursor) (time.Time, error) {
	if err := wire.FixedString(c, `"`); err != nil {
		return time.Time{}, err
	}
	b, err := c.PeekByte()
	if err != nil {
		return time.Time{}, err
	}
	if b == ' ' {
		c.ReadByte() // date-day-fixed may be space-padded
	}
	day, err := wire.Number32(c)
	if err != nil {
		return time.Time{}, err
	}
	if day == 0 || day > 31 {
		return time.Time{}, wire.Errorf("imapparser: invalid day: %d", day)
	}
	if err := wire.FixedString(c, "-"); err != nil {
		return time.Time{}, err
	}
	m, err := readMonth(c)
	if err != nil {
		return time.Time{}, err
	}
	if err := wire.FixedString(c, "-"); err != nil {
		return time.Time{}, err
	}
	year, err := wire.NDigits(c, 4)
	if err != nil {
		return time.Time{}, err
	}
	if err := wire.Space(c); err != nil {
		return time.Time{}, err
	}
	hour, err := wire.NDigits(c, 2)
	if err != nil {
		return time.Time{}, err
	}
	if err := wire.FixedString(c, ":"); err != nil {
		return time.Time{}, err
	}
	min, err := wire.NDigits(c, 2)
	if err != nil {
		return time.Time{}, err
	}
	if err := wire.FixedString(c, ":"); err != nil {
		return time.Time{}, err
	}
	sec, err := wire.NDigits(c, 2)
	if err != nil {
		return time.Time{}, err
	}
	if err := wire.Space(c); err != nil {
		return time.Time{}, err
	}
	sign, err := c.ReadByte()
	if err != nil {
		return time.Time{}, err
	}
	if sign != '+' && sign != '-' {
		return time.Time{}, wire.Errorf("imapparser: invalid zone sign %q", string(sign))
	}
	zh, err := wire.NDigits(c, 2)
	if err != nil {
		return time.Time{}, err
	}
	zm, err := wire.NDigits(c, 2)
	if err != nil {
		return time.Time{}, err
	}
	if err := wire.FixedString(c, `"`); err != nil {
		return time.Time{}, err
	}
	if hour > 23 || min > 59 || sec > 60 || zm > 59 {
		return time.Time{}, wire.Errorf("imapparser: invalid time component")
	}
	offset := int(zh)*3600 + int(zm)*60
	if sign == '-' {
		offset = -offset
	}
	loc := time.FixedZone("", offset)
	return time.Date(int(year), m, int(day), int(hour), int(min), int(sec), 0, loc), nil
}

// readText reads the rest of a line as resp text (TEXT-CHARs).
func readText(c *wire.Cursor) ([]byte, error) {
	v, err := wire.TakeWhile(c, wire.IsTextChar)
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}
