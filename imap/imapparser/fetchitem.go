package imapparser

import (
	wire "spool.ink/imap/imapwire"
)

// parseFetch parses the arguments of FETCH:
//
//	fetch = "FETCH" SP sequence-set SP ("ALL" / "FULL" / "FAST" /
//	        fetch-att / "(" fetch-att *(SP fetch-att) ")")
//	        [SP "(" fetch-modifier *(SP fetch-modifier) ")"]
func parseFetch(c *wire.Cursor, t *wire.Tracker, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if cmd.Sequences, err = readSeqSet(c); err != nil {
		return wire.Errorf("imapparser: FETCH missing sequences")
	}
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
			if len(cmd.FetchItems) > 0 {
				if err := wire.Space(c); err != nil {
					return err
				}
			}
			item, err := readFetchItem(c, t)
			if err != nil {
				return err
			}
			switch item.Type {
			case FetchAll, FetchFull, FetchFast:
				// These types are only valid as top-level items.
				return wire.Errorf("imapparser: FETCH invalid item")
			}
			cmd.FetchItems = append(cmd.FetchItems, item)
		}
		if len(cmd.FetchItems) == 0 {
			return wire.Errorf("imapparser: FETCH empty items list")
		}
	} else {
		item, err := readFetchItem(c, t)
		if err != nil {
			return err
		}
		cmd.FetchItems = append(cmd.FetchItems, item)
	}

	if cmd.UID {
		// UID FETCH implicitly includes UID. From RFC 3501:
		//
		//	However, server implementations MUST implicitly
		//	include the UID message data item as part of
		//	any FETCH response caused by a UID command
		hasUID := false
		for _, item := range cmd.FetchItems {
			if item.Type == FetchUID {
				hasUID = true
			}
		}
		if !hasUID {
			cmd.FetchItems = append(cmd.FetchItems, FetchItem{Type: FetchUID})
		}
	}

	// Optional FETCH modifiers.
	b, err = c.PeekByte()
	if err != nil {
		return err
	}
	if b != ' ' {
		return nil
	}
	c.ReadByte()
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: FETCH bad trailing modifier list")
	}
	first := true
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			c.ReadByte()
			return nil
		}
		if !first {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		first = false
		name, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: FETCH modifier expecting atom")
		}
		wire.AsciiUpper(name)
		switch string(name) {
		case "CHANGEDSINCE":
			if err := wire.Space(c); err != nil {
				return err
			}
			if cmd.ChangedSince, err = wire.Number(c); err != nil {
				return wire.Errorf("imapparser: FETCH CHANGEDSINCE missing value")
			}
		case "VANISHED":
			cmd.Vanished = true
		default:
			return wire.Errorf("imapparser: FETCH unknown modifier: %s", name)
		}
	}
}

// readFetchAttName reads a run of [A-Za-z0-9.-] characters, the
// alphabet of fetch-att names including the Gmail X- attributes.
func readFetchAttName(c *wire.Cursor) ([]byte, error) {
	v, err := wire.TakeWhile1(c, func(b byte) bool {
		return wire.IsAlpha(b) || wire.IsDigit(b) || b == '.' || b == '-'
	}, "fetch-att")
	if err != nil {
		return nil, err
	}
	name := copyBytes(v)
	wire.AsciiUpper(name)
	return name, nil
}

// readFetchItem scans a fetch-att.
func readFetchItem(c *wire.Cursor, t *wire.Tracker) (FetchItem, error) {
	var item FetchItem
	name, err := readFetchAttName(c)
	if err != nil {
		return item, err
	}

	switch string(name) {
	case "ALL":
		item.Type = FetchAll
	case "FAST":
		item.Type = FetchFast
	case "FULL":
		item.Type = FetchFull
	case "ENVELOPE":
		item.Type = FetchEnvelope
	case "FLAGS":
		item.Type = FetchFlags
	case "INTERNALDATE":
		item.Type = FetchInternalDate
	case "RFC822":
		item.Type = FetchRFC822
	case "RFC822.HEADER":
		item.Type = FetchRFC822Header
	case "RFC822.SIZE":
		item.Type = FetchRFC822Size
	case "RFC822.TEXT":
		item.Type = FetchRFC822Text
	case "UID":
		item.Type = FetchUID
	case "MODSEQ":
		item.Type = FetchModSeq
	case "BODYSTRUCTURE":
		item.Type = FetchBodyStructure
	case "BODY":
		item.Type = FetchBody
	case "BODY.PEEK":
		item.Type = FetchBody
		item.Peek = true
	case "BINARY":
		item.Type = FetchBinary
	case "BINARY.PEEK":
		item.Type = FetchBinary
		item.Peek = true
	case "BINARY.SIZE":
		item.Type = FetchBinarySize
	case "X-GM-MSGID":
		item.Type = FetchGmailMsgID
	case "X-GM-THRID":
		item.Type = FetchGmailThreadID
	case "X-GM-LABELS":
		item.Type = FetchGmailLabels
	default:
		return item, wire.Errorf("imapparser: FETCH unknown item %q", name)
	}

	b, err := c.PeekByte()
	if err != nil {
		return item, err
	}
	if b != '[' {
		if item.Type == FetchBinary || item.Type == FetchBinarySize {
			return item, wire.Errorf("imapparser: FETCH %s missing section", item.Type)
		}
		return item, nil
	}

	// A section follows.
	switch item.Type {
	case FetchBody, FetchBinary, FetchBinarySize:
	default:
		return item, wire.Errorf("imapparser: FETCH item %s unexpected section", item.Type)
	}
	binary := item.Type != FetchBody
	sec, err := readSection(c, binary)
	if err != nil {
		return item, err
	}
	item.Section = sec

	b, err = c.PeekByte()
	if err != nil {
		return item, err
	}
	if b != '<' {
		return item, nil
	}
	if item.Type == FetchBinarySize {
		return item, wire.Errorf("imapparser: FETCH BINARY.SIZE does not take a partial range")
	}

	// partial = "<" number "." nz-number ">", with the sum
	// constrained to fit 32 bits.
	c.ReadByte()
	start, err := wire.Number32(c)
	if err != nil {
		return item, wire.Errorf("imapparser: FETCH invalid partial range start")
	}
	if err := wire.FixedString(c, "."); err != nil {
		return item, wire.Errorf("imapparser: FETCH invalid partial range")
	}
	length, err := wire.NonZeroNumber(c)
	if err != nil {
		return item, wire.Errorf("imapparser: FETCH invalid partial range length")
	}
	if uint64(start)+uint64(length)-1 > 0xffffffff {
		return item, wire.Errorf("imapparser: FETCH partial range overflows")
	}
	if err := wire.FixedString(c, ">"); err != nil {
		return item, wire.Errorf("imapparser: FETCH invalid partial range close")
	}
	item.Partial.Start = start
	item.Partial.Length = length
	return item, nil
}
