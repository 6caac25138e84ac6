package imapparser

import (
	wire "spool.ink/imap/imapwire"
)

var searchKeys = map[string]SearchKey{
	"AND":    SearchKey("AND"),
	"SEQSET": SearchKey("SEQSET"),

	"ALL":        SearchKey("ALL"),
	"ANSWERED":   SearchKey("ANSWERED"),
	"BCC":        SearchKey("BCC"),
	"BEFORE":     SearchKey("BEFORE"),
	"BODY":       SearchKey("BODY"),
	"CC":         SearchKey("CC"),
	"DELETED":    SearchKey("DELETED"),
	"DRAFT":      SearchKey("DRAFT"),
	"FLAGGED":    SearchKey("FLAGGED"),
	"FROM":       SearchKey("FROM"),
	"HEADER":     SearchKey("HEADER"),
	"KEYWORD":    SearchKey("KEYWORD"),
	"LARGER":     SearchKey("LARGER"),
	"NEW":        SearchKey("NEW"),
	"NOT":        SearchKey("NOT"),
	"OLD":        SearchKey("OLD"),
	"ON":         SearchKey("ON"),
	"OR":         SearchKey("OR"),
	"RECENT":     SearchKey("RECENT"),
	"SEEN":       SearchKey("SEEN"),
	"SENTBEFORE": SearchKey("SENTBEFORE"),
	"SENTON":     SearchKey("SENTON"),
	"SENTSINCE":  SearchKey("SENTSINCE"),
	"SINCE":      SearchKey("SINCE"),
	"SMALLER":    SearchKey("SMALLER"),
	"SUBJECT":    SearchKey("SUBJECT"),
	"TEXT":       SearchKey("TEXT"),
	"TO":         SearchKey("TO"),
	"UID":        SearchKey("UID"),
	"UNANSWERED": SearchKey("UNANSWERED"),
	"UNDELETED":  SearchKey("UNDELETED"),
	"UNDRAFT":    SearchKey("UNDRAFT"),
	"UNFLAGGED":  SearchKey("UNFLAGGED"),
	"UNKEYWORD":  SearchKey("UNKEYWORD"),
	"UNSEEN":     SearchKey("UNSEEN"),
	"MODSEQ":     SearchKey("MODSEQ"),

	"X-GM-RAW":    SearchKey("X-GM-RAW"),
	"X-GM-MSGID":  SearchKey("X-GM-MSGID"),
	"X-GM-THRID":  SearchKey("X-GM-THRID"),
	"X-GM-LABELS": SearchKey("X-GM-LABELS"),
}

// parseSearch parses the arguments of SEARCH and ESEARCH.
//
//	search = "SEARCH" [SP "CHARSET" SP charset] 1*(SP search-key)
//
// ESEARCH (RFC 6237) additionally allows source options, and both
// accept the RFC 4731 RETURN options. Source options are refused
// outside ESEARCH.
func parseSearch(c *wire.Cursor, t *wire.Tracker, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}

	word, err := peekSearchWord(c)
	if err != nil {
		return err
	}

	if word == "IN" {
		if cmd.Name != "ESEARCH" {
			return wire.Errorf("imapparser: %s does not accept source options", cmd.Name)
		}
		skipSearchWord(c, word)
		if err := wire.Space(c); err != nil {
			return err
		}
		if err := parseESearchSource(c, cmd); err != nil {
			return err
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		if word, err = peekSearchWord(c); err != nil {
			return err
		}
	}

	if word == "RETURN" {
		// RFC 4731 permits RETURN before the charset.
		if err := parseSearchReturn(c, cmd); err != nil {
			return err
		}
		if word, err = peekSearchWord(c); err != nil {
			return err
		}
	}

	if word == "CHARSET" {
		skipSearchWord(c, word)
		if err := wire.Space(c); err != nil {
			return err
		}
		cs, err := readAstring(c)
		if err != nil {
			return wire.Errorf("imapparser: missing CHARSET value")
		}
		wire.AsciiUpper(cs)
		if !validCharset(string(cs)) {
			return wire.Errorf("imapparser: unsupported CHARSET %q", cs)
		}
		cmd.Search.Charset = string(cs)
		if err := wire.Space(c); err != nil {
			return err
		}
		if word, err = peekSearchWord(c); err != nil {
			return err
		}
	}

	if word == "RETURN" && len(cmd.Search.Return) == 0 {
		if err := parseSearchReturn(c, cmd); err != nil {
			return err
		}
	}

	rootOp := &SearchOp{Key: "AND"}
	cmd.Search.Op = rootOp
	for {
		op, err := parseSearchKey(c, t)
		if err != nil {
			cmd.Search.Op = nil
			return err
		}
		rootOp.Children = append(rootOp.Children, *op)

		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b != ' ' {
			break
		}
		c.ReadByte()
	}
	if len(rootOp.Children) == 1 {
		cmd.Search.Op = &rootOp.Children[0]
	}
	return nil
}

// parseSearchReturn parses "RETURN (opt ...)".
// ESEARCH RFC 4731; grammar defined in RFC 4466.
func parseSearchReturn(c *wire.Cursor, cmd *Command) error {
	skipSearchWord(c, "RETURN")
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: missing search RETURN list")
	}
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			c.ReadByte()
			break
		}
		if len(cmd.Search.Return) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		opt, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: bad search RETURN value")
		}
		wire.AsciiUpper(opt)
		switch string(opt) {
		case "MIN", "MAX", "ALL", "COUNT", "SAVE":
		default:
			return wire.Errorf("imapparser: unknown search RETURN value: %q", opt)
		}
		cmd.Search.Return = append(cmd.Search.Return, string(opt))
	}
	if len(cmd.Search.Return) == 0 {
		// RFC 4731 says RETURN () is equivalent to ALL.
		cmd.Search.Return = append(cmd.Search.Return, "ALL")
	}
	return wire.Space(c)
}

// peekSearchWord reports the next atom uppercased without consuming
// it, or "" when the next token is not an atom.
func peekSearchWord(c *wire.Cursor) (string, error) {
	mark := c.Mark()
	defer c.Restore(mark)
	v, err := wire.TakeWhile1(c, wire.IsAtomChar, "atom")
	if err != nil {
		if wire.IsRecoverable(err) {
			return "", nil
		}
		return "", err
	}
	word := make([]byte, len(v))
	copy(word, v)
	wire.AsciiUpper(word)
	return string(word), nil
}

func skipSearchWord(c *wire.Cursor, word string) {
	c.TakeUpTo(len(word))
}

// parseESearchSource parses the RFC 6237 scope options:
//
//	scope-options = "(" scope-option *(SP scope-option) ")"
func parseESearchSource(c *wire.Cursor, cmd *Command) error {
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: ESEARCH missing source option list")
	}
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			c.ReadByte()
			break
		}
		if len(cmd.Search.Source) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		name, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: ESEARCH bad source option")
		}
		wire.AsciiUpper(name)
		src := ESearchSource{}
		switch string(name) {
		case "SELECTED", "PERSONAL", "SUBSCRIBED":
			src.Kind = string(toLowerASCII(name))
		case "SUBTREE", "SUBTREE-ONE", "MAILBOXES":
			src.Kind = string(toLowerASCII(name))
			if err := wire.Space(c); err != nil {
				return err
			}
			b, err := c.PeekByte()
			if err != nil {
				return err
			}
			if b == '(' {
				c.ReadByte()
				for {
					b, err := c.PeekByte()
					if err != nil {
						return err
					}
					if b == ')' {
						c.ReadByte()
						break
					}
					if len(src.Mailboxes) > 0 {
						if err := wire.Space(c); err != nil {
							return err
						}
					}
					m, err := readMailbox(c)
					if err != nil {
						return wire.Errorf("imapparser: ESEARCH bad source mailbox")
					}
					src.Mailboxes = append(src.Mailboxes, m)
				}
			} else {
				m, err := readMailbox(c)
				if err != nil {
					return wire.Errorf("imapparser: ESEARCH bad source mailbox")
				}
				src.Mailboxes = append(src.Mailboxes, m)
			}
			if len(src.Mailboxes) == 0 {
				return wire.Errorf("imapparser: ESEARCH empty source mailbox list")
			}
		default:
			return wire.Errorf("imapparser: ESEARCH unknown source option %q", name)
		}
		cmd.Search.Source = append(cmd.Search.Source, src)
	}
	if len(cmd.Search.Source) == 0 {
		return wire.Errorf("imapparser: ESEARCH empty source option list")
	}
	return nil
}

func toLowerASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

// parseSearchKey parses a single search-key, recursing for NOT, OR
// and parenthesized groups under the recursion tracker.
func parseSearchKey(c *wire.Cursor, t *wire.Tracker) (*SearchOp, error) {
	return wire.Composite(c, t, func() (*SearchOp, error) {
		return parseSearchKeyInner(c, t)
	})
}

func parseSearchKeyInner(c *wire.Cursor, t *wire.Tracker) (*SearchOp, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}

	// A parenthesized group with a single child is flattened; with
	// multiple children it becomes an implicit AND.
	if b == '(' {
		c.ReadByte()
		op := &SearchOp{Key: "AND"}
		for {
			b, err := c.PeekByte()
			if err != nil {
				return nil, err
			}
			if b == ')' {
				c.ReadByte()
				break
			}
			if len(op.Children) > 0 {
				if err := wire.Space(c); err != nil {
					return nil, err
				}
			}
			ch, err := parseSearchKey(c, t)
			if err != nil {
				return nil, err
			}
			op.Children = append(op.Children, *ch)
		}
		if len(op.Children) == 0 {
			return nil, wire.Errorf("imapparser: SEARCH empty key list")
		}
		if len(op.Children) == 1 {
			return &op.Children[0], nil
		}
		return op, nil
	}

	// A raw sequence-set, or "$".
	if wire.IsDigit(b) || b == '*' || b == '$' {
		set, err := readSeqSet(c)
		if err != nil {
			return nil, err
		}
		return &SearchOp{Key: "SEQSET", Sequences: set}, nil
	}

	word, err := readAtom(c)
	if err != nil {
		return nil, err
	}
	wire.AsciiUpper(word)
	op := &SearchOp{Key: searchKeys[string(word)]}
	if op.Key == "" {
		return nil, wire.Errorf("imapparser: SEARCH key unknown: %q", word)
	}

	switch op.Key {
	case "ALL", "ANSWERED", "DELETED", "DRAFT", "FLAGGED", "NEW", "OLD",
		"RECENT", "SEEN", "UNANSWERED", "UNDELETED", "UNDRAFT",
		"UNFLAGGED", "UNSEEN":
		return op, nil

	case "BCC", "BODY", "CC", "FROM", "SUBJECT", "TEXT", "TO", "X-GM-RAW",
		"X-GM-LABELS":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		v, err := readAstring(c)
		if err != nil {
			return nil, wire.Errorf("imapparser: SEARCH key %s missing string argument", op.Key)
		}
		op.Value = string(v)
		return op, nil

	case "KEYWORD", "UNKEYWORD":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		v, err := readAtom(c) // flag-keyword
		if err != nil {
			return nil, wire.Errorf("imapparser: SEARCH key %s missing atom argument", op.Key)
		}
		op.Value = string(v)
		return op, nil

	case "BEFORE", "ON", "SINCE", "SENTBEFORE", "SENTON", "SENTSINCE":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if op.Date, err = readDate(c); err != nil {
			return nil, wire.Errorf("imapparser: SEARCH %s missing date", op.Key)
		}
		return op, nil

	case "HEADER":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		name, err := readAstring(c) // header-fld-name
		if err != nil {
			return nil, wire.Errorf("imapparser: SEARCH HEADER missing field name")
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		value, err := readAstring(c)
		if err != nil {
			return nil, wire.Errorf("imapparser: SEARCH HEADER missing field value")
		}
		b := make([]byte, 0, len(name)+2+len(value))
		b = append(b, name...)
		b = append(b, ':', ' ')
		b = append(b, value...)
		op.Value = string(b)
		return op, nil

	case "LARGER", "SMALLER", "MODSEQ", "X-GM-MSGID", "X-GM-THRID":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if op.Key == "MODSEQ" {
			// RFC 7162 Section 3.1.5: an optional entry-name and
			// entry-type-req precede the value. If the server does
			// not store separate mod-sequences it MUST ignore them.
			b, err := c.PeekByte()
			if err != nil {
				return nil, err
			}
			if b == '"' {
				if _, err := readQuoted(c); err != nil {
					return nil, err
				}
				if err := wire.Space(c); err != nil {
					return nil, err
				}
				if _, err := readAtom(c); err != nil { // entry-type-req
					return nil, wire.Errorf("imapparser: SEARCH MODSEQ missing entry-type")
				}
				if err := wire.Space(c); err != nil {
					return nil, err
				}
			}
		}
		if op.Num, err = wire.Number(c); err != nil {
			return nil, wire.Errorf("imapparser: SEARCH %s invalid number", op.Key)
		}
		return op, nil

	case "NOT":
		// search-key
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		ch, err := parseSearchKey(c, t)
		if err != nil {
			return nil, err
		}
		op.Children = append(op.Children, *ch)
		return op, nil

	case "OR":
		// search-key SP search-key
		for i := 0; i < 2; i++ {
			if err := wire.Space(c); err != nil {
				return nil, err
			}
			ch, err := parseSearchKey(c, t)
			if err != nil {
				return nil, err
			}
			op.Children = append(op.Children, *ch)
		}
		return op, nil

	case "UID":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if op.Sequences, err = readSeqSet(c); err != nil {
			return nil, wire.Errorf("imapparser: SEARCH key UID missing sequence-set")
		}
		return op, nil
	}

	return nil, wire.Errorf("imapparser: SEARCH key unknown: %q", word)
}
