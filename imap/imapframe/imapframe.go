// Package imapframe implements message framing around IMAP's
// synchronizing-literal mechanism.
//
// IMAP frames can contain octet-counted literals introduced by
// {N} (synchronizing), {N+} or {N-} (non-synchronizing, RFC 7888),
// or the same forms prefixed with ~ (binary, RFC 3516). A server
// must send one continuation request for each synchronizing
// literal before the client transmits the literal octets.
//
// The pre-parser identifies frame boundaries and counts
// synchronizing literals without invoking the full grammar. It
// scans line fragments, classifies the tail of each line, and
// advances through declared literal octets as they arrive.
package imapframe

import (
	"errors"
	"fmt"

	"spool.ink/imap/imapwire"
)

// ErrInvalidFrame reports a malformed literal introducer.
// It is fatal for the connection.
var ErrInvalidFrame = errors.New("imapframe: invalid frame")

func invalidFramef(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidFrame, fmt.Sprintf(format, v...))
}

// FramingResult reports how much of the buffered input the grammar
// parsers may consume, and how many continuation requests the
// transport owes the peer.
type FramingResult struct {
	// MaxValidBytes is the largest prefix of the buffer made of
	// whole lines plus any literal octets that have fully or
	// partially arrived after their introducer line.
	MaxValidBytes int

	// SynchronizingLiteralCount is the number of {N} literal
	// introducers (non-plus, non-minus) seen inside the valid
	// prefix since the last Consumed call.
	SynchronizingLiteralCount int
}

// A SynchronizingLiteralParser scans an incoming byte stream to
// determine how many bytes constitute complete protocol frames.
// Each connection side owns one; it is not safe for concurrent use.
type SynchronizingLiteralParser struct {
	offset    int    // bytes of the current buffer already classified
	remaining uint32 // literal octets still expected
	syncCount int
}

func NewSynchronizingLiteralParser() *SynchronizingLiteralParser {
	return &SynchronizingLiteralParser{}
}

// ParseContinuationsNecessary scans buf without consuming it.
// Scanning resumes where the previous call stopped; Consumed must
// be called whenever bytes are removed from the head of buf.
func (p *SynchronizingLiteralParser) ParseContinuationsNecessary(buf []byte) (FramingResult, error) {
	for {
		if p.remaining > 0 {
			n := len(buf) - p.offset
			if uint32(n) >= p.remaining {
				p.offset += int(p.remaining)
				p.remaining = 0
			} else {
				p.offset += n
				p.remaining -= uint32(n)
				break
			}
		}

		nl := indexNewline(buf[p.offset:])
		if nl < 0 {
			break
		}
		end := p.offset + nl // one past the newline bytes
		sync, n, err := classifyLineTail(buf[p.offset:end])
		if err != nil {
			return FramingResult{}, err
		}
		p.offset = end
		if sync {
			p.syncCount++
		}
		p.remaining = n
	}
	return FramingResult{
		MaxValidBytes:             p.offset,
		SynchronizingLiteralCount: p.syncCount,
	}, nil
}

// Consumed informs the pre-parser that n bytes were removed from
// the head of the stream. The synchronizing-literal counter is
// reset: continuation requests for those literals are the caller's
// responsibility once reported.
func (p *SynchronizingLiteralParser) Consumed(n int) {
	if n > p.offset {
		p.offset = 0
	} else {
		p.offset -= n
	}
	p.syncCount = 0
}

// indexNewline reports the offset one past the next end-of-line in
// b, or -1 if none is complete. CRLF, LF and lone CR are all
// accepted; a CR as the final byte waits for a possible LF.
func indexNewline(b []byte) int {
	for i, c := range b {
		switch c {
		case '\n':
			return i + 1
		case '\r':
			if i+1 == len(b) {
				return -1
			}
			if b[i+1] == '\n' {
				return i + 2
			}
			return i + 1
		}
	}
	return -1
}

// classifyLineTail reverse-scans one line as passed by the caller,
// newline bytes included (they are stripped here), and reports
// whether it ends in a synchronizing literal introducer and the
// declared octet count, which is 0 when there is no introducer.
//
// A line not ending in a well-formed "{" [~] digits ["+"/"-"] "}"
// is a complete line; "}" alone is a legal atom character.
func classifyLineTail(line []byte) (sync bool, n uint32, err error) {
	// Strip the newline and any trailing space.
	for len(line) > 0 {
		switch line[len(line)-1] {
		case '\r', '\n', ' ':
			line = line[:len(line)-1]
			continue
		}
		break
	}
	if len(line) == 0 || line[len(line)-1] != '}' {
		return false, 0, nil
	}

	i := len(line) - 2
	sync = true
	if i >= 0 && (line[i] == '+' || line[i] == '-') {
		sync = false
		i--
	}
	digitsEnd := i + 1
	for i >= 0 && imapwire.IsDigit(line[i]) {
		i--
	}
	digits := line[i+1 : digitsEnd]
	if len(digits) == 0 {
		return false, 0, nil
	}
	if i >= 0 && line[i] == '~' {
		// RFC 3516 binary literal marker; framing is unchanged.
		i--
	}
	if i < 0 || line[i] != '{' {
		return false, 0, nil
	}

	if len(digits) > 10 {
		return false, 0, invalidFramef("literal length %q overflows", digits)
	}
	var v uint64
	for _, d := range digits {
		v = v*10 + uint64(d-'0')
	}
	if v > 0xffffffff {
		return false, 0, invalidFramef("literal length %d overflows", v)
	}
	return sync, uint32(v), nil
}
