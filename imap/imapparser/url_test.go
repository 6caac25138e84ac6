package imapparser

import (
	"strings"
	"testing"
)

var parseIMAPURLTests = []struct {
	input  string
	check  func(t *testing.T, u IMAPURL)
	errstr string
}{
	{
		input: "imap://minbari.example.org/gray-council;UIDVALIDITY=385759045/;UID=20/;PARTIAL=0.1024",
		check: func(t *testing.T, u IMAPURL) {
			if string(u.Host) != "minbari.example.org" {
				t.Errorf("host = %q", u.Host)
			}
			if string(u.Mailbox) != "gray-council" {
				t.Errorf("mailbox = %q", u.Mailbox)
			}
			if u.UIDValidity != 385759045 || u.UID != 20 {
				t.Errorf("uidvalidity=%d uid=%d", u.UIDValidity, u.UID)
			}
			if u.Partial == nil || u.Partial.Offset != 0 || u.Partial.Length != 1024 {
				t.Errorf("partial = %+v", u.Partial)
			}
		},
	},
	{
		input: "imap://;AUTH=*@minbari.example.org/gray%20council/;UID=20/;SECTION=1.2",
		check: func(t *testing.T, u IMAPURL) {
			if string(u.AuthMechanism) != "*" || u.User != nil {
				t.Errorf("user=%q auth=%q", u.User, u.AuthMechanism)
			}
			if string(u.Mailbox) != "gray%20council" {
				t.Errorf("mailbox = %q", u.Mailbox)
			}
			if string(u.Section) != "1.2" {
				t.Errorf("section = %q", u.Section)
			}
		},
	},
	{
		input: "imap://michael@minbari.example.org:143/users.*;UIDVALIDITY=123456",
		check: func(t *testing.T, u IMAPURL) {
			if string(u.User) != "michael" || u.Port != 143 {
				t.Errorf("user=%q port=%d", u.User, u.Port)
			}
			if string(u.Mailbox) != "users.*" || u.UIDValidity != 123456 {
				t.Errorf("mailbox=%q uidvalidity=%d", u.Mailbox, u.UIDValidity)
			}
		},
	},
	{
		input: "imap://joe@example.com/INBOX/;uid=20/;section=1.2;urlauth=submit+fred:internal:91354a473744909de610943775f92038",
		check: func(t *testing.T, u IMAPURL) {
			if u.URLAuth == nil {
				t.Fatal("no urlauth")
			}
			if string(u.URLAuth.Access) != "submit+fred" {
				t.Errorf("access = %q", u.URLAuth.Access)
			}
			if string(u.URLAuth.Mechanism) != "internal" {
				t.Errorf("mechanism = %q", u.URLAuth.Mechanism)
			}
			if len(u.URLAuth.Token) != 32 {
				t.Errorf("token = %q", u.URLAuth.Token)
			}
		},
	},
	{
		input:  "http://example.com/",
		errstr: "missing imap:// scheme",
	},
	{
		input:  "imap://host/box;UIDVALIDITY=0",
		errstr: "UIDVALIDITY must be non-zero",
	},
	{
		input:  "imap://host/box/;UID=20/;PARTIAL=10.0",
		errstr: "partial length must be non-zero",
	},
	{
		input:  "imap://host/box%2x",
		errstr: "bad percent escape",
	},
}

func TestParseIMAPURL(t *testing.T) {
	for _, test := range parseIMAPURLTests {
		u, err := ParseIMAPURL([]byte(test.input))
		if test.errstr != "" {
			if err == nil || !strings.Contains(err.Error(), test.errstr) {
				t.Errorf("%q: err=%v, want substring %q", test.input, err, test.errstr)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", test.input, err)
			continue
		}
		test.check(t, u)
	}
}

func TestIMAPURLRoundTrip(t *testing.T) {
	inputs := []string{
		"imap://minbari.example.org/gray-council;UIDVALIDITY=385759045/;UID=20",
		"imap://michael@minbari.example.org:143/box/;UID=7/;SECTION=HEADER",
		"imap://joe@example.com/INBOX/;UID=20/;PARTIAL=0.1024",
	}
	for _, in := range inputs {
		u, err := ParseIMAPURL([]byte(in))
		if err != nil {
			t.Errorf("%q: %v", in, err)
			continue
		}
		if got := u.String(); got != in {
			t.Errorf("round trip %q = %q", in, got)
		}
	}
}

func TestGenURLAuthCommand(t *testing.T) {
	part, err := parseOne(t, "a GENURLAUTH \"imap://joe@example.com/INBOX/;UID=20;EXPIRE=2006-10-20T00:00:00Z;URLAUTH=anonymous\" INTERNAL\r\n")
	if err != nil {
		t.Fatal(err)
	}
	cmd := part.Event.Command
	if cmd.Name != "GENURLAUTH" || len(cmd.URLAuth.URLs) != 1 {
		t.Fatalf("cmd = %+v", cmd)
	}
	u := cmd.URLAuth.URLs[0]
	if string(u.Expire) != "2006-10-20T00:00:00Z" {
		t.Errorf("expire = %q", u.Expire)
	}
	if u.URLAuth == nil || string(u.URLAuth.Access) != "anonymous" {
		t.Errorf("urlauth = %+v", u.URLAuth)
	}
	if cmd.URLAuth.Mechanisms[0] != "INTERNAL" {
		t.Errorf("mechanisms = %v", cmd.URLAuth.Mechanisms)
	}
}

func TestURLFetchCommand(t *testing.T) {
	part, err := parseOne(t, "a URLFETCH \"imap://joe@example.com/INBOX/;UID=20/;SECTION=1.2;URLAUTH=submit+fred:internal:91354a473744909de610943775f92038\"\r\n")
	if err != nil {
		t.Fatal(err)
	}
	cmd := part.Event.Command
	if cmd.Name != "URLFETCH" || len(cmd.URLAuth.URLs) != 1 {
		t.Fatalf("cmd = %+v", cmd)
	}
	if cmd.URLAuth.URLs[0].UID != 20 {
		t.Errorf("uid = %d", cmd.URLAuth.URLs[0].UID)
	}
}
