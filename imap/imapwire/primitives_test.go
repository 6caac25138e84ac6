package imapwire

import (
	"errors"
	"testing"
)

func TestFixedString(t *testing.T) {
	tests := []struct {
		input  string
		match  string
		rest   string
		errstr string
	}{
		{input: "LOGIN x", match: "LOGIN", rest: " x"},
		{input: "login x", match: "LOGIN", rest: " x"},
		{input: "LOGOUT", match: "LOGIN", rest: "LOGOUT", errstr: `expected "LOGIN"`},
		{input: "LOG", match: "LOGIN", rest: "LOG", errstr: "incomplete"},
	}
	for _, test := range tests {
		c := NewCursor([]byte(test.input))
		err := FixedString(c, test.match)
		if test.errstr == "" {
			if err != nil {
				t.Errorf("FixedString(%q, %q): %v", test.input, test.match, err)
				continue
			}
		} else if err == nil || !contains(err.Error(), test.errstr) {
			t.Errorf("FixedString(%q, %q): err=%v, want %q", test.input, test.match, err, test.errstr)
			continue
		}
		if got := string(c.Rest()); got != test.rest {
			t.Errorf("FixedString(%q, %q): rest=%q, want %q", test.input, test.match, got, test.rest)
		}
	}
}

func TestNewline(t *testing.T) {
	tests := []struct {
		input string
		rest  string
		err   error
	}{
		{input: "\r\nX", rest: "X"},
		{input: "\nX", rest: "X"},
		{input: "\rX", rest: "X"},
		{input: "\r", rest: "\r", err: ErrIncomplete},
		{input: "", rest: "", err: ErrIncomplete},
	}
	for _, test := range tests {
		c := NewCursor([]byte(test.input))
		err := Newline(c)
		if !errors.Is(err, test.err) {
			t.Errorf("Newline(%q): err=%v, want %v", test.input, err, test.err)
		}
		if got := string(c.Rest()); got != test.rest {
			t.Errorf("Newline(%q): rest=%q, want %q", test.input, got, test.rest)
		}
	}
}

func TestNonZeroNumber(t *testing.T) {
	tests := []struct {
		input  string
		want   uint32
		errstr string
	}{
		{input: "1 ", want: 1},
		{input: "4294967295 ", want: 4294967295},
		{input: "4294967296 ", errstr: "32 bits"},
		{input: "0 ", errstr: "begins with 0"},
		{input: "12", errstr: "incomplete"},
	}
	for _, test := range tests {
		c := NewCursor([]byte(test.input))
		v, err := NonZeroNumber(c)
		if test.errstr != "" {
			if err == nil || !contains(err.Error(), test.errstr) {
				t.Errorf("NonZeroNumber(%q): err=%v, want %q", test.input, err, test.errstr)
			}
			continue
		}
		if err != nil {
			t.Errorf("NonZeroNumber(%q): %v", test.input, err)
			continue
		}
		if v != test.want {
			t.Errorf("NonZeroNumber(%q) = %d, want %d", test.input, v, test.want)
		}
	}
}

func TestOneOfRollback(t *testing.T) {
	c := NewCursor([]byte("BETA "))
	tr := NewTracker(0)
	v, err := OneOf(c, tr,
		func(c *Cursor, t *Tracker) (string, error) {
			// Consumes a byte before failing; OneOf must roll back.
			c.ReadByte()
			return "", Errorf("nope")
		},
		func(c *Cursor, t *Tracker) (string, error) {
			if err := FixedString(c, "BETA"); err != nil {
				return "", err
			}
			return "beta", nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v != "beta" {
		t.Errorf("OneOf = %q, want %q", v, "beta")
	}
	if got := string(c.Rest()); got != " " {
		t.Errorf("rest = %q, want %q", got, " ")
	}
}

func TestOneOfIncompleteAborts(t *testing.T) {
	c := NewCursor([]byte("BE"))
	tr := NewTracker(0)
	calls := 0
	_, err := OneOf(c, tr,
		func(c *Cursor, t *Tracker) (string, error) {
			return "", FixedString(c, "BETA")
		},
		func(c *Cursor, t *Tracker) (string, error) {
			calls++
			return "x", nil
		},
	)
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("err = %v, want ErrIncomplete", err)
	}
	if calls != 0 {
		t.Errorf("second alternative ran %d times after ErrIncomplete", calls)
	}
}

func TestTrackerLimit(t *testing.T) {
	tr := NewTracker(3)
	c := NewCursor([]byte("x"))

	var depth func(n int) (int, error)
	depth = func(n int) (int, error) {
		return Composite(c, tr, func() (int, error) {
			if n == 0 {
				return 0, nil
			}
			return depth(n - 1)
		})
	}

	// At exactly the limit the parse succeeds.
	if _, err := depth(2); err != nil {
		t.Fatalf("depth at limit: %v", err)
	}
	// One past the limit raises TooDeepError.
	_, err := depth(3)
	var tde TooDeepError
	if !errors.As(err, &tde) {
		t.Fatalf("depth past limit: err=%v, want TooDeepError", err)
	}
	if tde.Limit != 3 {
		t.Errorf("TooDeepError.Limit = %d, want 3", tde.Limit)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
