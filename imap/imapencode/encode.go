// Package imapencode serialises parsed IMAP entities back to their
// wire form.
//
// CommandEncoder writes the client to server direction and
// ResponseEncoder the reverse. The command encoder is parameterised
// by the negotiated capabilities (LITERAL+, LITERAL-, BINARY),
// which decide between synchronizing and non-synchronizing
// literals, and by a logging mode that redacts user-sensitive
// payloads while keeping the transcript byte-faithful.
package imapencode

import (
	"bytes"
	"strconv"
	"time"

	"spool.ink/imap/imapparser"
	wire "spool.ink/imap/imapwire"
)

// Capability names the negotiated capabilities that influence
// encoder output.
type Capability string

const (
	CapLiteralPlus  = Capability("LITERAL+")
	CapLiteralMinus = Capability("LITERAL-")
	CapBinary       = Capability("BINARY")
)

// redactedPlaceholder replaces user-sensitive payloads in logging
// mode. Literal lengths are recomputed against the placeholder so
// the redacted transcript still frames correctly.
var redactedPlaceholder = []byte("∅")

// quotedMax bounds the strings the encoders will emit in quoted
// form; longer values become literals.
const quotedMax = 1024

// stringForm classifies how a byte string can be written.
type stringForm int

const (
	formAtom stringForm = iota
	formQuoted
	formLiteral
)

// chooseForm picks the shortest safe encoding for s: atom when
// every byte is an atom char, quoted when every byte is a text
// char and the string is short, literal otherwise.
func chooseForm(s []byte) stringForm {
	if len(s) == 0 {
		return formQuoted
	}
	atom := true
	for _, b := range s {
		if !wire.IsAtomChar(b) {
			atom = false
			break
		}
	}
	if atom {
		return formAtom
	}
	if len(s) > quotedMax {
		return formLiteral
	}
	for _, b := range s {
		if !wire.IsTextChar(b) {
			return formLiteral
		}
	}
	return formQuoted
}

func writeQuoted(out *bytes.Buffer, s []byte) {
	out.WriteByte('"')
	for _, b := range s {
		if b == '"' || b == '\\' {
			out.WriteByte('\\')
		}
		out.WriteByte(b)
	}
	out.WriteByte('"')
}

func writeNumber(out *bytes.Buffer, v uint64) {
	out.WriteString(strconv.FormatUint(v, 10))
}

// literalStyle selects the introducer of an emitted literal.
type literalStyle int

const (
	literalSync literalStyle = iota
	literalPlus
	literalMinus
)

func writeLiteralHeader(out *bytes.Buffer, n int, style literalStyle, binary bool) {
	if binary {
		out.WriteByte('~')
	}
	out.WriteByte('{')
	writeNumber(out, uint64(n))
	switch style {
	case literalPlus:
		out.WriteByte('+')
	case literalMinus:
		out.WriteByte('-')
	}
	out.WriteString("}\r\n")
}

func writeSeqSet(out *bytes.Buffer, set imapparser.SeqSet) {
	if set.Dollar {
		out.WriteByte('$')
		return
	}
	imapparser.FormatSeqs(out, set.Ranges)
}

func writeFlags(out *bytes.Buffer, flags [][]byte) {
	out.WriteByte('(')
	for i, f := range flags {
		if i > 0 {
			out.WriteByte(' ')
		}
		out.Write(f)
	}
	out.WriteByte(')')
}

// writeDate writes the SEARCH date form, e.g. 1-Feb-1994.
func writeDate(out *bytes.Buffer, t time.Time) {
	out.WriteString(t.Format("2-Jan-2006"))
}

// writeDateTime writes the quoted INTERNALDATE form.
func writeDateTime(out *bytes.Buffer, t time.Time) {
	out.WriteByte('"')
	out.WriteString(t.Format("02-Jan-2006 15:04:05 -0700"))
	out.WriteByte('"')
}
