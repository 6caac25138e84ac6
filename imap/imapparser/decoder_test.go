package imapparser

import (
	"errors"
	"strings"
	"testing"
)

func TestCommandDecoderDrain(t *testing.T) {
	dec := NewCommandDecoder(NewCommandParser(0))
	dec.Append([]byte("a NOOP\r\nb CAPABILITY\r\n"))

	var names []string
	for {
		part, err := dec.Frame()
		if err != nil {
			t.Fatal(err)
		}
		if part == nil {
			break
		}
		names = append(names, part.Event.Command.Name)
	}
	if len(names) != 2 || names[0] != "NOOP" || names[1] != "CAPABILITY" {
		t.Errorf("names = %v", names)
	}
	if dec.Buffered() != 0 {
		t.Errorf("Buffered = %d, want 0", dec.Buffered())
	}
}

func TestLineTooLong(t *testing.T) {
	dec := NewResponseDecoder(NewResponseParser(0))
	head := make([]byte, 80001)
	for i := range head {
		head[i] = 'a'
	}
	dec.Append(head)
	_, err := dec.Frame()
	var pe *ParsingError
	if !errors.As(err, &pe) || pe.Kind != ParsingErrorLineTooLong {
		t.Fatalf("err = %v, want LineTooLong", err)
	}
	var de *DecoderError
	if !errors.As(err, &de) || len(de.Input) == 0 {
		t.Fatalf("err = %v, want DecoderError with input", err)
	}
}

func TestLineBoundExemptInsideLiteral(t *testing.T) {
	p := NewCommandParser(64)
	dec := NewCommandDecoder(p)
	dec.Append([]byte("a APPEND box {500+}\r\n"))

	// Drain the command start and message begin.
	for i := 0; i < 2; i++ {
		if _, err := dec.Frame(); err != nil {
			t.Fatal(err)
		}
	}
	if !p.StreamingLiteral() {
		t.Fatal("parser should be streaming the literal")
	}

	// 200 literal bytes with no newline exceed the 64 byte line
	// limit but must not trip it.
	chunk := make([]byte, 200)
	for i := range chunk {
		chunk[i] = 'x'
	}
	dec.Append(chunk)
	part, err := dec.Frame()
	if err != nil {
		t.Fatal(err)
	}
	if part == nil || part.Event.Kind != CommandEventAppendBytes {
		t.Fatalf("part = %+v", part)
	}
}

func TestInvalidFrameSurfaces(t *testing.T) {
	dec := NewCommandDecoder(NewCommandParser(0))
	dec.Append([]byte("a LOGIN {99999999999}\r\n"))
	_, err := dec.Frame()
	var pe *ParsingError
	if !errors.As(err, &pe) || pe.Kind != ParsingErrorInvalidFrame {
		t.Fatalf("err = %v, want InvalidFrame", err)
	}
}

func TestTooDeepRecursion(t *testing.T) {
	// Search groups recurse; a nesting depth beyond the limit must
	// surface TooDeep, not crash.
	depth := 40
	input := "a SEARCH " + strings.Repeat("(", depth) + "SEEN" +
		strings.Repeat(")", depth) + "\r\n"

	p := NewCommandParser(0)
	p.SetRecursionLimit(200)
	var buf Buffer
	buf.Append([]byte(input))
	if _, err := p.ParseCommandStream(&buf); err != nil {
		t.Fatalf("depth %d under limit: %v", depth, err)
	}

	p = NewCommandParser(0)
	p.SetRecursionLimit(depth - 1)
	buf = Buffer{}
	buf.Append([]byte(input))
	_, err := p.ParseCommandStream(&buf)
	var pe *ParsingError
	if !errors.As(err, &pe) || pe.Kind != ParsingErrorTooDeep {
		t.Fatalf("err = %v, want TooDeep", err)
	}
}

func TestSeqNumberBounds(t *testing.T) {
	// Sequence number 0 is rejected.
	if _, err := parseOne(t, "a FETCH 0 FLAGS\r\n"); err == nil {
		t.Error("sequence number 0 accepted")
	}
	// 2^32-1 is accepted.
	part, err := parseOne(t, "a FETCH 4294967295 FLAGS\r\n")
	if err != nil {
		t.Fatal(err)
	}
	want := SeqRange{Min: 4294967295, Max: 4294967295}
	if got := part.Event.Command.Sequences.Ranges[0]; got != want {
		t.Errorf("range = %+v, want %+v", got, want)
	}
}

func TestZeroLengthLiteralString(t *testing.T) {
	part, err := parseOne(t, "a LOGIN {0+}\r\n pw\r\n")
	if err != nil {
		t.Fatal(err)
	}
	cmd := part.Event.Command
	if cmd.Login.Username == nil || len(cmd.Login.Username) != 0 {
		t.Errorf("username = %q, want empty", cmd.Login.Username)
	}
	if string(cmd.Login.Password) != "pw" {
		t.Errorf("password = %q", cmd.Login.Password)
	}
}
