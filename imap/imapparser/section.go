package imapparser

import (
	wire "spool.ink/imap/imapwire"
)

// readSection reads a section specifier (RFC 3501 section 6.4.5):
//
//	section         = "[" [section-spec] "]"
//
//	section-spec    = section-msgtext / (section-part ["." section-text])
//
//	section-msgtext = "HEADER" / "HEADER.FIELDS" [".NOT"] SP header-list /
//	                  "TEXT"
//
//	section-part    = nz-number *("." nz-number)
//
//	section-text    = section-msgtext / "MIME"
//
// An empty part path denotes the whole message. MIME is only valid
// with a non-empty part path. For binary sections (RFC 3516) only
// the numeric part path is allowed.
func readSection(c *wire.Cursor, binary bool) (FetchItemSection, error) {
	var sec FetchItemSection
	if err := wire.FixedString(c, "["); err != nil {
		return sec, err
	}

	// Numeric path.
	for {
		b, err := c.PeekByte()
		if err != nil {
			return sec, err
		}
		if !wire.IsDigit(b) {
			break
		}
		v, err := wire.NonZeroNumber(c)
		if err != nil {
			return sec, wire.Errorf("imapparser: section bad numeric path")
		}
		if v >= 1<<16 {
			return sec, wire.Errorf("imapparser: section path number too big")
		}
		sec.Path = append(sec.Path, uint16(v))
		b, err = c.PeekByte()
		if err != nil {
			return sec, err
		}
		if b == '.' {
			c.ReadByte()
		}
	}

	b, err := c.PeekByte()
	if err != nil {
		return sec, err
	}
	if b == ']' {
		c.ReadByte()
		return sec, nil
	}
	if binary {
		return sec, wire.Errorf("imapparser: binary section takes only part numbers")
	}

	name, err := wire.TakeWhile1(c, func(b byte) bool {
		return ('A' <= b && b <= 'Z') || ('a' <= b && b <= 'z') || b == '.'
	}, "section name")
	if err != nil {
		return sec, err
	}
	upper := copyBytes(name)
	wire.AsciiUpper(upper)
	switch string(upper) {
	case "HEADER", "TEXT":
		sec.Name = string(upper)
	case "HEADER.FIELDS", "HEADER.FIELDS.NOT":
		sec.Name = string(upper)
		if err := wire.Space(c); err != nil {
			return sec, err
		}
		// header-list = "(" header-fld-name *(SP header-fld-name) ")"
		if err := wire.FixedString(c, "("); err != nil {
			return sec, wire.Errorf("imapparser: section missing header-list")
		}
		for {
			b, err := c.PeekByte()
			if err != nil {
				return sec, err
			}
			if b == ')' {
				c.ReadByte()
				break
			}
			if len(sec.Headers) > 0 {
				if err := wire.Space(c); err != nil {
					return sec, err
				}
			}
			h, err := readAstring(c)
			if err != nil {
				return sec, wire.Errorf("imapparser: section bad header field name")
			}
			sec.Headers = append(sec.Headers, h)
		}
		if len(sec.Headers) == 0 {
			return sec, wire.Errorf("imapparser: section empty header-list")
		}
	case "MIME":
		if len(sec.Path) == 0 {
			return sec, wire.Errorf("imapparser: MIME section requires a part path")
		}
		sec.Name = "MIME"
	default:
		return sec, wire.Errorf("imapparser: invalid section name %q", name)
	}

	if err := wire.FixedString(c, "]"); err != nil {
		return sec, wire.Errorf("imapparser: unclosed section")
	}
	return sec, nil
}
