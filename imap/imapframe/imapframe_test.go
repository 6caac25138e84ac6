package imapframe

import (
	"errors"
	"strings"
	"testing"
)

func TestParseContinuationsNecessary(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid int
		sync  int
	}{
		{
			name:  "no newline",
			input: "tag LOGIN",
			valid: 0,
		},
		{
			name:  "complete line",
			input: "tag NOOP\r\n",
			valid: 10,
		},
		{
			name:  "bare LF",
			input: "tag NOOP\n",
			valid: 9,
		},
		{
			name:  "lone CR mid-buffer",
			input: "tag NOOP\rtag",
			valid: 9,
		},
		{
			name:  "lone CR at end waits for LF",
			input: "tag NOOP\r",
			valid: 0,
		},
		{
			name:  "trailing space before newline",
			input: "tag LOGIN a b \r\n",
			valid: 16,
		},
		{
			name:  "two sync literals",
			input: "tag LOGIN {3}\r\n123 {3}\r\n456\r\n",
			valid: 29,
			sync:  2,
		},
		{
			name:  "literal-plus needs no continuation",
			input: "tag LOGIN {3+}\r\nabc {3+}\r\ndef\r\n",
			valid: 31,
		},
		{
			name:  "literal-minus needs no continuation",
			input: "tag LOGIN {3-}\r\nabc bar\r\n",
			valid: 25,
		},
		{
			name:  "binary literal tilde outside",
			input: "tag APPEND b ~{4+}\r\n\x00\x01\x02\x03\r\n",
			valid: 26,
		},
		{
			name:  "binary literal tilde inside",
			input: "tag APPEND b {~4+}\r\n\x00\x01\x02\x03\r\n",
			valid: 26,
		},
		{
			name:  "zero length literal",
			input: "tag LOGIN {0}\r\n {0}\r\n\r\n",
			valid: 23,
			sync:  2,
		},
		{
			name:  "literal bytes partially arrived",
			input: "tag APPEND box {10}\r\nabcd",
			valid: 25,
			sync:  1,
		},
		{
			name:  "literal introducer line incomplete",
			input: "tag LOGIN {3}",
			valid: 0,
		},
		{
			name:  "atom ending in close brace is not a literal",
			input: "tag} NOOP\r\n",
			valid: 11,
		},
		{
			name:  "non-digit before brace is not a literal",
			input: "tag SEARCH SUBJECT x{2y3}\r\n",
			valid: 27,
		},
		{
			name:  "literal bytes containing newlines are skipped",
			input: "tag APPEND box {8+}\r\nab\r\ncd\r\n NOOP\r\n",
			valid: 36,
		},
	}
	for _, test := range tests {
		p := NewSynchronizingLiteralParser()
		res, err := p.ParseContinuationsNecessary([]byte(test.input))
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		if res.MaxValidBytes != test.valid {
			t.Errorf("%s: MaxValidBytes=%d, want %d", test.name, res.MaxValidBytes, test.valid)
		}
		if res.SynchronizingLiteralCount != test.sync {
			t.Errorf("%s: SynchronizingLiteralCount=%d, want %d", test.name, res.SynchronizingLiteralCount, test.sync)
		}
	}
}

func TestLiteralLengthOverflow(t *testing.T) {
	p := NewSynchronizingLiteralParser()
	_, err := p.ParseContinuationsNecessary([]byte("tag LOGIN {99999999999}\r\n"))
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("err = %v, want ErrInvalidFrame", err)
	}
}

func TestConsumedResetsCounters(t *testing.T) {
	p := NewSynchronizingLiteralParser()
	buf := []byte("tag LOGIN {3}\r\n123 {3}\r\n456\r\n")
	res, err := p.ParseContinuationsNecessary(buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.SynchronizingLiteralCount != 2 {
		t.Fatalf("sync = %d, want 2", res.SynchronizingLiteralCount)
	}

	p.Consumed(res.MaxValidBytes)
	res, err = p.ParseContinuationsNecessary(nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.MaxValidBytes != 0 || res.SynchronizingLiteralCount != 0 {
		t.Fatalf("after Consumed: %+v, want zero result", res)
	}
}

func TestDripFeedEquivalence(t *testing.T) {
	input := "tag LOGIN {3}\r\n123 {3}\r\n456\r\ntag2 NOOP\r\n"

	whole := NewSynchronizingLiteralParser()
	wantRes, err := whole.ParseContinuationsNecessary([]byte(input))
	if err != nil {
		t.Fatal(err)
	}

	// Append in chunks of 1 to 5 bytes; the final result must match
	// the single-shot scan regardless of how the input was split.
	for chunk := 1; chunk <= 5; chunk++ {
		p := NewSynchronizingLiteralParser()
		var buf []byte
		var res FramingResult
		for i := 0; i < len(input); i += chunk {
			end := i + chunk
			if end > len(input) {
				end = len(input)
			}
			buf = append(buf, input[i:end]...)
			res, err = p.ParseContinuationsNecessary(buf)
			if err != nil {
				t.Fatalf("chunk=%d: %v", chunk, err)
			}
		}
		if res != wantRes {
			t.Errorf("chunk=%d: %+v, want %+v", chunk, res, wantRes)
		}
	}
}

func TestLiteralSpansChunks(t *testing.T) {
	p := NewSynchronizingLiteralParser()
	part1 := "tag APPEND box {6}\r\nabc"
	res, err := p.ParseContinuationsNecessary([]byte(part1))
	if err != nil {
		t.Fatal(err)
	}
	if res.MaxValidBytes != len(part1) {
		t.Fatalf("MaxValidBytes=%d, want %d", res.MaxValidBytes, len(part1))
	}
	if res.SynchronizingLiteralCount != 1 {
		t.Fatalf("sync=%d, want 1", res.SynchronizingLiteralCount)
	}

	full := part1 + "def\r\n"
	res, err = p.ParseContinuationsNecessary([]byte(full))
	if err != nil {
		t.Fatal(err)
	}
	if res.MaxValidBytes != len(full) {
		t.Fatalf("MaxValidBytes=%d, want %d", res.MaxValidBytes, len(full))
	}
	if !strings.HasSuffix(full, "\r\n") {
		t.Fatal("test input must end in CRLF")
	}
}
