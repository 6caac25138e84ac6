package imapencode

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"spool.ink/imap/imapparser"
)

func parseCommand(t *testing.T, input string) *imapparser.PartialCommandStream {
	t.Helper()
	p := imapparser.NewCommandParser(0)
	var buf imapparser.Buffer
	buf.Append([]byte(input))
	part, err := p.ParseCommandStream(&buf)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	if part == nil || part.Event == nil {
		t.Fatalf("parse %q: no event", input)
	}
	return part
}

// commandEq strips the fields that legitimately differ across a
// reparse (none today) and compares.
func commandEq(a, b *imapparser.Command) bool {
	return reflect.DeepEqual(a, b)
}

// TestCommandRoundTrip checks parse(encode(parse(x))) == parse(x)
// for a sample of every command family.
func TestCommandRoundTrip(t *testing.T) {
	inputs := []string{
		"a CAPABILITY\r\n",
		"a NOOP\r\n",
		"a LOGIN user pass\r\n",
		"a LOGIN {3}\r\n123 {3}\r\n456\r\n",
		"a AUTHENTICATE PLAIN dGVzdA==\r\n",
		"a ENABLE QRESYNC CONDSTORE\r\n",
		"a ID NIL\r\n",
		`a ID ("name" "spool" "version" NIL)` + "\r\n",
		"a SELECT INBOX\r\n",
		"a SELECT box (CONDSTORE)\r\n",
		"a SELECT box (QRESYNC (67890007 20050715194045000 41,43:211))\r\n",
		"a EXAMINE box\r\n",
		"a CREATE box\r\n",
		`a CREATE Sent (USE (\Sent))` + "\r\n",
		"a DELETE box\r\n",
		"a RENAME old new\r\n",
		"a SUBSCRIBE box\r\n",
		"a UNSUBSCRIBE box\r\n",
		`a LIST "" *` + "\r\n",
		`a LIST (SUBSCRIBED) "" ("a" "b") RETURN (CHILDREN)` + "\r\n",
		`a LSUB "#news." "comp.*"` + "\r\n",
		"a STATUS box (MESSAGES UNSEEN)\r\n",
		"a CHECK\r\n",
		"a CLOSE\r\n",
		"a EXPUNGE\r\n",
		"a UID EXPUNGE 1:3\r\n",
		"a SEARCH UNSEEN DRAFT\r\n",
		"a SEARCH RETURN (MIN COUNT) 1:100 NOT SEEN\r\n",
		"a SEARCH OR SEEN DRAFT\r\n",
		"a SEARCH SINCE 1-Feb-1994\r\n",
		"a SEARCH MODSEQ 620162338\r\n",
		"a UID SEARCH UID 443:557\r\n",
		"a FETCH 1:* (UID FLAGS INTERNALDATE)\r\n",
		"a FETCH 2 BODY.PEEK[1.2.HEADER]<0.100>\r\n",
		"a UID FETCH 7 FLAGS (CHANGEDSINCE 12345)\r\n",
		"a STORE 1,3 +FLAGS.SILENT (\\Deleted)\r\n",
		"a STORE 5 (UNCHANGEDSINCE 98305) FLAGS (\\Seen)\r\n",
		"a COPY 2:4 box\r\n",
		"a UID MOVE $ Archive\r\n",
		"a GETQUOTA \"\"\r\n",
		"a GETQUOTAROOT INBOX\r\n",
		"a SETQUOTA \"\" (STORAGE 512 MESSAGE 5000)\r\n",
		"a GETMETADATA (MAXSIZE 1024) box /shared/comment\r\n",
		`a SETMETADATA box (/private/comment "note")` + "\r\n",
		"a RESETKEY\r\n",
		"a RESETKEY INBOX INTERNAL\r\n",
		"a IDLE\r\n",
		"a NAMESPACE\r\n",
	}

	for _, input := range inputs {
		orig := parseCommand(t, input)

		enc := NewCommandEncoder(false)
		var out bytes.Buffer
		n := enc.Encode(orig.Event, &out)
		if n != out.Len() {
			t.Errorf("%q: Encode reported %d bytes, wrote %d", input, n, out.Len())
		}

		reparsed := parseCommand(t, out.String())
		if !commandEq(orig.Event.Command, reparsed.Event.Command) {
			t.Errorf("%q: round trip mismatch\nencoded %q\n got %+v\nwant %+v",
				input, out.String(), reparsed.Event.Command, orig.Event.Command)
		}
	}
}

// TestSearchCharsetBytes is the end-to-end scenario: the encoded
// form of a parsed SEARCH with CHARSET reproduces the input bytes.
func TestSearchCharsetBytes(t *testing.T) {
	input := "tag SEARCH CHARSET UTF-8 DRAFT TO \"foo\"\r\n"
	part := parseCommand(t, input)

	enc := NewCommandEncoder(false)
	var out bytes.Buffer
	enc.Encode(part.Event, &out)
	if out.String() != input {
		t.Errorf("encoded %q, want %q", out.String(), input)
	}
}

func TestSearchCharsetElidedWithoutStrings(t *testing.T) {
	// The key graph has no string argument, so CHARSET is elided.
	part := parseCommand(t, "tag SEARCH CHARSET UTF-8 UNSEEN\r\n")
	enc := NewCommandEncoder(false)
	var out bytes.Buffer
	enc.Encode(part.Event, &out)
	want := "tag SEARCH UNSEEN\r\n"
	if out.String() != want {
		t.Errorf("encoded %q, want %q", out.String(), want)
	}
}

func TestEncoderLiteralCapabilities(t *testing.T) {
	cmd := &imapparser.Command{
		Tag:  []byte("a"),
		Name: "LOGIN",
		Login: struct{ Username, Password []byte }{
			Username: []byte("u"),
			Password: []byte("p\x80w"), // 8-bit byte forces a literal
		},
	}
	ev := &imapparser.CommandEvent{
		Kind:    imapparser.CommandEventTagged,
		Command: cmd,
	}

	enc := NewCommandEncoder(false)
	var out bytes.Buffer
	enc.Encode(ev, &out)
	if want := "a LOGIN u {3}\r\np\x80w\r\n"; out.String() != want {
		t.Errorf("sync literal: %q, want %q", out.String(), want)
	}

	enc.SetCapabilities([]Capability{CapLiteralPlus})
	out.Reset()
	enc.Encode(ev, &out)
	if want := "a LOGIN u {3+}\r\np\x80w\r\n"; out.String() != want {
		t.Errorf("literal+: %q, want %q", out.String(), want)
	}
}

func TestRedactedLogin(t *testing.T) {
	part := parseCommand(t, "a LOGIN joe secret\r\n")
	enc := NewCommandEncoder(true)
	var out bytes.Buffer
	enc.Encode(part.Event, &out)
	got := out.String()
	if strings.Contains(got, "secret") {
		t.Errorf("password leaked: %q", got)
	}
	if !strings.Contains(got, "∅") {
		t.Errorf("no placeholder in %q", got)
	}
	if !strings.Contains(got, "joe") {
		// Usernames are not redacted, only secrets and mailboxes.
		t.Errorf("username missing from %q", got)
	}
}

func TestRedactedAppendStream(t *testing.T) {
	p := imapparser.NewCommandParser(0)
	var buf imapparser.Buffer
	buf.Append([]byte("a APPEND box (\\Seen) {5+}\r\nhello\r\n"))

	enc := NewCommandEncoder(true)
	enc.SetCapabilities([]Capability{CapLiteralPlus})
	var out bytes.Buffer
	for {
		part, err := p.ParseCommandStream(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if part == nil {
			break
		}
		if part.Event != nil {
			enc.Encode(part.Event, &out)
		}
	}
	got := out.String()
	if strings.Contains(got, "hello") {
		t.Errorf("payload leaked: %q", got)
	}
	placeholderLen := len("∅")
	wantHeader := "{" + string(rune('0'+placeholderLen)) + "+}"
	if !strings.Contains(got, wantHeader) {
		t.Errorf("literal length not recomputed: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n") {
		t.Errorf("missing final newline: %q", got)
	}
}

func TestCatenateStreamEncode(t *testing.T) {
	input := "a APPEND box CATENATE (URL \"imap://host/box/;UID=20\" TEXT {5+}\r\nhello)\r\n"
	p := imapparser.NewCommandParser(0)
	var buf imapparser.Buffer
	buf.Append([]byte(input))

	enc := NewCommandEncoder(false)
	enc.SetCapabilities([]Capability{CapLiteralPlus})
	var out bytes.Buffer
	for {
		part, err := p.ParseCommandStream(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if part == nil {
			break
		}
		if part.Event != nil {
			enc.Encode(part.Event, &out)
		}
	}
	if out.String() != input {
		t.Errorf("encoded %q, want %q", out.String(), input)
	}
}

func TestAppendStreamEncode(t *testing.T) {
	// Re-encoding a parsed APPEND stream reproduces an equivalent
	// wire form.
	input := "a APPEND box (\\Seen) {5+}\r\nhello\r\n"
	p := imapparser.NewCommandParser(0)
	var buf imapparser.Buffer
	buf.Append([]byte(input))

	enc := NewCommandEncoder(false)
	enc.SetCapabilities([]Capability{CapLiteralPlus})
	var out bytes.Buffer
	for {
		part, err := p.ParseCommandStream(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if part == nil {
			break
		}
		if part.Event != nil {
			enc.Encode(part.Event, &out)
		}
	}
	if out.String() != input {
		t.Errorf("encoded %q, want %q", out.String(), input)
	}
}
