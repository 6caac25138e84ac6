package imapparser

import (
	"bytes"
	"io"
	"io/ioutil"
	"reflect"
	"testing"

	"crawshaw.io/iox"
)

// drain pulls events until the parser reports it needs more bytes.
func drain(t *testing.T, p *CommandParser, buf *Buffer) []PartialCommandStream {
	t.Helper()
	var parts []PartialCommandStream
	for {
		part, err := p.ParseCommandStream(buf)
		if err != nil {
			t.Fatal(err)
		}
		if part == nil {
			return parts
		}
		parts = append(parts, *part)
	}
}

func kinds(parts []PartialCommandStream) []CommandEventKind {
	var ks []CommandEventKind
	for _, p := range parts {
		if p.Event != nil {
			ks = append(ks, p.Event.Kind)
		}
	}
	return ks
}

func TestLoginSynchronizingLiterals(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag LOGIN {3}\r\n123 {3}\r\n456\r\n"))

	parts := drain(t, p, &buf)
	if len(parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(parts))
	}
	if parts[0].SynchronizingLiteralCount != 2 {
		t.Errorf("SynchronizingLiteralCount = %d, want 2", parts[0].SynchronizingLiteralCount)
	}
	cmd := parts[0].Event.Command
	if cmd.Name != "LOGIN" ||
		string(cmd.Login.Username) != "123" ||
		string(cmd.Login.Password) != "456" {
		t.Errorf("cmd = %+v", cmd)
	}
}

func TestLoginLiteralContinuationFlow(t *testing.T) {
	// The introducer line arrives alone: the transport owes one
	// continuation, and the count must not be reported twice.
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag LOGIN {3}\r\n"))

	part, err := p.ParseCommandStream(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if part == nil || part.SynchronizingLiteralCount != 1 || part.Event != nil {
		t.Fatalf("part = %+v, want continuation count 1", part)
	}

	buf.Append([]byte("123 {3}\r\n"))
	part, err = p.ParseCommandStream(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if part == nil || part.SynchronizingLiteralCount != 1 || part.Event != nil {
		t.Fatalf("part = %+v, want continuation count 1", part)
	}

	buf.Append([]byte("456\r\n"))
	part, err = p.ParseCommandStream(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if part == nil || part.Event == nil {
		t.Fatal("no command after final literal bytes")
	}
	if string(part.Event.Command.Login.Password) != "456" {
		t.Errorf("password = %q", part.Event.Command.Login.Password)
	}
}

func TestAppendStream(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag APPEND box (\\Seen) {1+}\r\na\r\n"))

	parts := drain(t, p, &buf)
	want := []CommandEventKind{
		CommandEventTagged,
		CommandEventAppendBegin,
		CommandEventAppendBytes,
		CommandEventAppendEnd,
		CommandEventAppendFinish,
	}
	if got := kinds(parts); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}

	start := parts[0].Event.Command
	if start.Name != "APPEND" || string(start.Mailbox) != "box" {
		t.Errorf("append start = %+v", start)
	}
	begin := parts[1].Event
	if begin.Literal != 1 || !reflect.DeepEqual(begin.Append.Flags, [][]byte{[]byte(`\Seen`)}) {
		t.Errorf("append begin = %+v", begin)
	}
	chunk := parts[2].Event
	if string(chunk.Chunk) != "a" || !chunk.Final {
		t.Errorf("append bytes = %+v", chunk)
	}
}

func TestMultiAppendStream(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag APPEND box {2+}\r\nm1 (\\Draft) {2+}\r\nm2\r\n"))

	parts := drain(t, p, &buf)
	want := []CommandEventKind{
		CommandEventTagged,
		CommandEventAppendBegin,
		CommandEventAppendBytes,
		CommandEventAppendEnd,
		CommandEventAppendBegin,
		CommandEventAppendBytes,
		CommandEventAppendEnd,
		CommandEventAppendFinish,
	}
	if got := kinds(parts); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if string(parts[2].Event.Chunk) != "m1" || string(parts[5].Event.Chunk) != "m2" {
		t.Errorf("chunks = %q, %q", parts[2].Event.Chunk, parts[5].Event.Chunk)
	}
}

func TestAppendChunkedDelivery(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag APPEND box {10+}\r\nabcde"))

	parts := drain(t, p, &buf)
	if got := kinds(parts); !reflect.DeepEqual(got, []CommandEventKind{
		CommandEventTagged,
		CommandEventAppendBegin,
		CommandEventAppendBytes,
	}) {
		t.Fatalf("kinds = %v", got)
	}
	if ev := parts[2].Event; string(ev.Chunk) != "abcde" || ev.Final {
		t.Fatalf("chunk = %+v", ev)
	}

	buf.Append([]byte("fghij\r\n"))
	parts = drain(t, p, &buf)
	if got := kinds(parts); !reflect.DeepEqual(got, []CommandEventKind{
		CommandEventAppendBytes,
		CommandEventAppendEnd,
		CommandEventAppendFinish,
	}) {
		t.Fatalf("kinds = %v", got)
	}
	if ev := parts[0].Event; string(ev.Chunk) != "fghij" || !ev.Final {
		t.Fatalf("chunk = %+v", ev)
	}
}

func TestAppendZeroLengthLiteral(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag APPEND box {0+}\r\n\r\n"))

	parts := drain(t, p, &buf)
	want := []CommandEventKind{
		CommandEventTagged,
		CommandEventAppendBegin,
		CommandEventAppendEnd,
		CommandEventAppendFinish,
	}
	if got := kinds(parts); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestAppendSpooled(t *testing.T) {
	filer := iox.NewFiler(0)
	p := NewCommandParser(0)
	p.SetSpool(filer)
	var buf Buffer
	buf.Append([]byte("tag APPEND box {5+}\r\nhel"))

	parts := drain(t, p, &buf)
	if got := kinds(parts); !reflect.DeepEqual(got, []CommandEventKind{
		CommandEventTagged,
		CommandEventAppendBegin,
	}) {
		t.Fatalf("kinds = %v", got)
	}

	buf.Append([]byte("lo\r\n"))
	parts = drain(t, p, &buf)
	if got := kinds(parts); !reflect.DeepEqual(got, []CommandEventKind{
		CommandEventAppendEnd,
		CommandEventAppendFinish,
	}) {
		t.Fatalf("kinds = %v", got)
	}
	msg := parts[0].Event.Message
	if msg == nil {
		t.Fatal("no spooled message")
	}
	b, err := ioutil.ReadAll(io.NewSectionReader(msg, 0, msg.Size()))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Errorf("spooled = %q, want %q", b, "hello")
	}
	msg.Close()
}

func TestAppendCatenate(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag APPEND box (\\Seen) CATENATE " +
		"(URL \"imap://host/box/;UID=20\" TEXT {5+}\r\nhello)\r\n"))

	parts := drain(t, p, &buf)
	want := []CommandEventKind{
		CommandEventTagged,
		CommandEventAppendBegin,
		CommandEventAppendEnd,
		CommandEventAppendFinish,
	}
	if got := kinds(parts); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	cat := parts[1].Event.Append.Catenate
	if len(cat) != 2 {
		t.Fatalf("catenate parts = %d, want 2", len(cat))
	}
	if cat[0].URL == nil || cat[0].URL.UID != 20 {
		t.Errorf("url part = %+v", cat[0].URL)
	}
	if string(cat[1].Text) != "hello" {
		t.Errorf("text part = %q", cat[1].Text)
	}
}

func TestIdleStream(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag IDLE\r\n"))

	parts := drain(t, p, &buf)
	if len(parts) != 1 || parts[0].Event.Kind != CommandEventTagged ||
		parts[0].Event.Command.Name != "IDLE" {
		t.Fatalf("parts = %+v", parts)
	}

	// Mid-IDLE, ordinary commands are not accepted.
	buf.Append([]byte("noise\r\n"))
	if _, err := p.ParseCommandStream(&buf); err == nil {
		t.Fatal("expected error for garbage during IDLE")
	}

	p2 := NewCommandParser(0)
	var buf2 Buffer
	buf2.Append([]byte("tag IDLE\r\nDONE\r\ntag2 NOOP\r\n"))
	parts = drain(t, p2, &buf2)
	want := []CommandEventKind{
		CommandEventTagged,
		CommandEventIdleDone,
		CommandEventTagged,
	}
	if got := kinds(parts); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestAuthenticateContinuationStream(t *testing.T) {
	p := NewCommandParser(0)
	var buf Buffer
	buf.Append([]byte("tag AUTHENTICATE PLAIN\r\ndGVzdA==\r\n"))

	parts := drain(t, p, &buf)
	want := []CommandEventKind{
		CommandEventTagged,
		CommandEventContinuation,
	}
	if got := kinds(parts); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if string(parts[1].Event.Chunk) != "dGVzdA==" {
		t.Errorf("chunk = %q", parts[1].Event.Chunk)
	}

	p.FinishAuthentication()
	buf.Append([]byte("tag2 NOOP\r\n"))
	parts = drain(t, p, &buf)
	if len(parts) != 1 || parts[0].Event.Command.Name != "NOOP" {
		t.Fatalf("parts = %+v", parts)
	}
}

func TestCommandDripFeedEquivalence(t *testing.T) {
	input := []byte("tag LOGIN {3}\r\n123 {3}\r\n456\r\n" +
		"tag2 APPEND box (\\Seen) {4+}\r\nbody\r\n" +
		"tag3 NOOP\r\n")

	collect := func(chunk int) []CommandEventKind {
		p := NewCommandParser(0)
		var buf Buffer
		var ks []CommandEventKind
		for i := 0; i < len(input); i += chunk {
			end := i + chunk
			if end > len(input) {
				end = len(input)
			}
			buf.Append(input[i:end])
			for {
				part, err := p.ParseCommandStream(&buf)
				if err != nil {
					t.Fatalf("chunk=%d: %v", chunk, err)
				}
				if part == nil {
					break
				}
				if part.Event != nil {
					ks = append(ks, part.Event.Kind)
				}
			}
		}
		return ks
	}

	whole := collect(len(input))
	for _, chunk := range []int{1, 2, 3, 7} {
		got := collect(chunk)
		// Chunked delivery may split the APPEND payload into more
		// byte events; collapse runs of AppendBytes for comparison.
		if !reflect.DeepEqual(collapseBytes(got), collapseBytes(whole)) {
			t.Errorf("chunk=%d: kinds = %v, want %v", chunk, got, whole)
		}
	}
}

func collapseBytes(ks []CommandEventKind) []CommandEventKind {
	var out []CommandEventKind
	for _, k := range ks {
		if k == CommandEventAppendBytes && len(out) > 0 && out[len(out)-1] == CommandEventAppendBytes {
			continue
		}
		out = append(out, k)
	}
	return out
}

func TestBufferConsume(t *testing.T) {
	var buf Buffer
	buf.Append([]byte("hello world"))
	buf.consume(6)
	if !bytes.Equal(buf.Bytes(), []byte("world")) {
		t.Errorf("Bytes = %q", buf.Bytes())
	}
}
