package imapencode

import (
	"bytes"
	"testing"

	"spool.ink/imap/imapparser"
)

func parseResponseEvents(t *testing.T, input string) []imapparser.ResponseEvent {
	t.Helper()
	p := imapparser.NewResponseParser(0)
	var buf imapparser.Buffer
	// Skip greeting handling: prime with a greeting line.
	buf.Append([]byte("* OK ready\r\n"))
	buf.Append([]byte(input))
	var evs []imapparser.ResponseEvent
	for {
		ev, err := p.ParseResponseStream(&buf)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if ev == nil {
			return evs[1:] // drop the priming greeting
		}
		evs = append(evs, *ev)
	}
}

// TestResponseRoundTrip re-encodes parsed responses and checks the
// bytes match the canonical input exactly.
func TestResponseRoundTrip(t *testing.T) {
	inputs := []string{
		"* CAPABILITY IMAP4rev1 LITERAL+ MOVE\r\n",
		"* ENABLED CONDSTORE QRESYNC\r\n",
		"* 23 EXISTS\r\n",
		"* 5 RECENT\r\n",
		"* 44 EXPUNGE\r\n",
		"* FLAGS (\\Answered \\Seen)\r\n",
		"* LIST (\\Noselect) \"/\" foo\r\n",
		"* LSUB () \".\" INBOX\r\n",
		"* STATUS box (MESSAGES 231 UIDNEXT 44292)\r\n",
		"* SEARCH 2 3 6\r\n",
		"* SEARCH 2 3 (MODSEQ 917162500)\r\n",
		"* ESEARCH (TAG \"a567\") UID MIN 2 MAX 47 COUNT 4\r\n",
		"* ESEARCH ALL 1:17,21\r\n",
		"* NAMESPACE ((\"\" \"/\")) NIL NIL\r\n",
		"* QUOTA Root (STORAGE 10 512)\r\n",
		"* QUOTAROOT box Root\r\n",
		"* METADATA box (/private/comment \"note\" /shared/x NIL)\r\n",
		"* VANISHED (EARLIER) 300:310,405\r\n",
		"* VANISHED 405\r\n",
		"* OK [UIDNEXT 4392] Predicted next UID\r\n",
		"* OK [PERMANENTFLAGS (\\Deleted \\Seen \\*)] Limited\r\n",
		"* NO [MODIFIED 7,9] Conditional STORE failed\r\n",
		"tag OK [APPENDUID 38505 3955] APPEND completed\r\n",
		"tag OK [COPYUID 38505 304,319 3956:3957] Done\r\n",
		"tag NO Mailbox does not exist\r\n",
		"+ idling\r\n",
	}
	for _, input := range inputs {
		evs := parseResponseEvents(t, input)
		if len(evs) != 1 {
			t.Errorf("%q: %d events, want 1", input, len(evs))
			continue
		}
		enc := NewResponseEncoder()
		var out bytes.Buffer
		n := enc.Encode(&evs[0], &out)
		if n != out.Len() {
			t.Errorf("%q: Encode reported %d bytes, wrote %d", input, n, out.Len())
		}
		if out.String() != input {
			t.Errorf("round trip:\n got %q\nwant %q", out.String(), input)
		}
	}
}

func TestGreetingEncode(t *testing.T) {
	p := imapparser.NewResponseParser(0)
	var buf imapparser.Buffer
	input := "* OK [CAPABILITY IMAP4rev1 LITERAL+] server ready\r\n"
	buf.Append([]byte(input))
	ev, err := p.ParseResponseStream(&buf)
	if err != nil {
		t.Fatal(err)
	}
	enc := NewResponseEncoder()
	var out bytes.Buffer
	enc.Encode(ev, &out)
	if out.String() != input {
		t.Errorf("got %q, want %q", out.String(), input)
	}
}

// TestFetchStreamRoundTrip re-encodes a full FETCH sub-stream.
func TestFetchStreamRoundTrip(t *testing.T) {
	input := "* 2 FETCH (FLAGS (\\Deleted) BODY[TEXT] {5}\r\nhello)\r\n"
	evs := parseResponseEvents(t, input)

	enc := NewResponseEncoder()
	var out bytes.Buffer
	for i := range evs {
		enc.Encode(&evs[i], &out)
	}
	if out.String() != input {
		t.Errorf("got %q, want %q", out.String(), input)
	}
}

func TestFetchSimpleAttrsRoundTrip(t *testing.T) {
	inputs := []string{
		"* 1 FETCH (UID 54 RFC822.SIZE 40639)\r\n",
		"* 5 FETCH (MODSEQ (624140003))\r\n",
		"* 5 FETCH (INTERNALDATE \"17-Jul-1996 02:44:25 -0700\")\r\n",
		"* 7 FETCH (X-GM-MSGID 1278455344230334865 X-GM-LABELS (\\Inbox \\Sent Important))\r\n",
		"* 2 FETCH (BINARY.SIZE[1.1] 4)\r\n",
		"* 3 FETCH (ENVELOPE (NIL \"subj\" ((\"A\" NIL \"a\" \"x.org\")) NIL NIL NIL NIL NIL NIL \"<id@x>\"))\r\n",
		"* 4 FETCH (BODYSTRUCTURE (\"text\" \"plain\" (\"CHARSET\" \"US-ASCII\") NIL NIL \"7bit\" 3028 92))\r\n",
	}
	for _, input := range inputs {
		evs := parseResponseEvents(t, input)
		enc := NewResponseEncoder()
		var out bytes.Buffer
		for i := range evs {
			enc.Encode(&evs[i], &out)
		}
		if out.String() != input {
			t.Errorf("round trip:\n got %q\nwant %q", out.String(), input)
		}
	}
}
