package imapparser

import (
	wire "spool.ink/imap/imapwire"
)

// parseResponseText reads resp-text:
//
//	resp-text      = ["[" resp-text-code "]" SP] text
//
// The trailing newline is left for the caller.
func parseResponseText(c *wire.Cursor) (ResponseText, error) {
	var rt ResponseText
	b, err := c.PeekByte()
	if err != nil {
		return rt, err
	}
	if b == '[' {
		code, err := parseRespTextCode(c)
		if err != nil {
			return rt, err
		}
		rt.Code = code
		if b, err = c.PeekByte(); err != nil {
			return rt, err
		}
		if b == ' ' {
			c.ReadByte()
		}
	}
	if rt.Text, err = readText(c); err != nil {
		return rt, err
	}
	return rt, nil
}

// parseRespTextCode reads "[" resp-text-code "]".
func parseRespTextCode(c *wire.Cursor) (*RespTextCode, error) {
	if err := wire.FixedString(c, "["); err != nil {
		return nil, err
	}
	name, err := readAtom(c)
	if err != nil {
		return nil, wire.Errorf("imapparser: missing response code atom")
	}
	wire.AsciiUpper(name)
	code := &RespTextCode{Name: string(name)}

	switch code.Name {
	case "ALERT", "PARSE", "READ-ONLY", "READ-WRITE", "TRYCREATE",
		"NOMODSEQ", "CLOSED", "UIDNOTSTICKY", "COMPRESSIONACTIVE",
		"OVERQUOTA", "EXPUNGEISSUED", "CORRUPTION", "UNAVAILABLE",
		"AUTHENTICATIONFAILED", "AUTHORIZATIONFAILED", "EXPIRED",
		"PRIVACYREQUIRED", "CONTACTADMIN", "NOPERM", "INUSE",
		"CANNOT", "LIMIT", "ALREADYEXISTS", "NONEXISTENT",
		"NOTSAVED", "HASCHILDREN":
		// no arguments

	case "CAPABILITY":
		for {
			b, err := c.PeekByte()
			if err != nil {
				return nil, err
			}
			if b == ']' {
				break
			}
			if err := wire.Space(c); err != nil {
				return nil, err
			}
			capability, err := readAtom(c)
			if err != nil {
				return nil, wire.Errorf("imapparser: CAPABILITY code bad atom")
			}
			code.Capabilities = append(code.Capabilities, capability)
		}
		if len(code.Capabilities) == 0 {
			return nil, wire.Errorf("imapparser: CAPABILITY code empty")
		}

	case "PERMANENTFLAGS":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if code.Flags, err = readFlagList(c); err != nil {
			return nil, err
		}

	case "BADCHARSET":
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ' ' {
			c.ReadByte()
			if err := wire.FixedString(c, "("); err != nil {
				return nil, err
			}
			for {
				b, err := c.PeekByte()
				if err != nil {
					return nil, err
				}
				if b == ')' {
					c.ReadByte()
					break
				}
				if len(code.Charsets) > 0 {
					if err := wire.Space(c); err != nil {
						return nil, err
					}
				}
				cs, err := readAstring(c)
				if err != nil {
					return nil, err
				}
				code.Charsets = append(code.Charsets, cs)
			}
		}

	case "UIDNEXT", "UIDVALIDITY", "UNSEEN":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		n, err := wire.NonZeroNumber(c)
		if err != nil {
			return nil, wire.Errorf("imapparser: %s code bad number", code.Name)
		}
		code.Number = uint64(n)

	case "HIGHESTMODSEQ":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if code.Number, err = wire.Number(c); err != nil {
			return nil, wire.Errorf("imapparser: HIGHESTMODSEQ code bad number")
		}

	case "MODIFIED":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		set, err := readSeqSet(c)
		if err != nil || set.Dollar {
			return nil, wire.Errorf("imapparser: MODIFIED code bad sequence-set")
		}
		code.Sequences = set.Ranges

	case "APPENDUID":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		uidv, err := wire.NonZeroNumber(c)
		if err != nil {
			return nil, wire.Errorf("imapparser: APPENDUID bad uidvalidity")
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		set, err := readSeqSet(c)
		if err != nil || set.Dollar {
			return nil, wire.Errorf("imapparser: APPENDUID bad uid-set")
		}
		code.AppendUID = &AppendUID{UIDValidity: uidv, UIDs: set.Ranges}

	case "COPYUID":
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		uidv, err := wire.NonZeroNumber(c)
		if err != nil {
			return nil, wire.Errorf("imapparser: COPYUID bad uidvalidity")
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		src, err := readSeqSet(c)
		if err != nil || src.Dollar {
			return nil, wire.Errorf("imapparser: COPYUID bad source uid-set")
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		dst, err := readSeqSet(c)
		if err != nil || dst.Dollar {
			return nil, wire.Errorf("imapparser: COPYUID bad dest uid-set")
		}
		code.CopyUID = &CopyUID{UIDValidity: uidv, Source: src.Ranges, Dest: dst.Ranges}

	default:
		// Unknown code: keep the raw argument bytes.
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ' ' {
			c.ReadByte()
			args, err := wire.TakeWhile(c, func(b byte) bool {
				return b != ']' && wire.IsTextChar(b)
			})
			if err != nil {
				return nil, err
			}
			code.Args = copyBytes(args)
		}
	}

	if err := wire.FixedString(c, "]"); err != nil {
		return nil, wire.Errorf("imapparser: unclosed response code")
	}
	return code, nil
}

// conds maps a condition atom to its Cond.
var conds = map[string]Cond{
	"OK":      CondOK,
	"NO":      CondNo,
	"BAD":     CondBad,
	"PREAUTH": CondPreAuth,
	"BYE":     CondBye,
}

// parseUntaggedKeyword parses the remainder of an untagged response
// whose first token is a keyword atom (already read and uppercased
// by the caller). The trailing newline is consumed.
func parseUntaggedKeyword(c *wire.Cursor, t *wire.Tracker, word []byte, pl *ResponsePayload) error {
	switch string(word) {
	case "OK", "NO", "BAD", "BYE", "PREAUTH":
		pl.Type = UntaggedCond
		pl.Cond = conds[string(word)]
		if err := wire.Space(c); err != nil {
			return err
		}
		rt, err := parseResponseText(c)
		if err != nil {
			return err
		}
		pl.Text = rt

	case "CAPABILITY", "ENABLED":
		if string(word) == "CAPABILITY" {
			pl.Type = UntaggedCapability
		} else {
			pl.Type = UntaggedEnabled
		}
		for {
			b, err := c.PeekByte()
			if err != nil {
				return err
			}
			if b != ' ' {
				break
			}
			c.ReadByte()
			capability, err := readAtom(c)
			if err != nil {
				return wire.Errorf("imapparser: %s bad capability atom", word)
			}
			pl.Capabilities = append(pl.Capabilities, capability)
		}
		if pl.Type == UntaggedCapability && len(pl.Capabilities) == 0 {
			return wire.Errorf("imapparser: CAPABILITY response empty")
		}

	case "ID":
		pl.Type = UntaggedID
		if err := wire.Space(c); err != nil {
			return err
		}
		var cmd Command
		if err := parseIDParams(c, &cmd); err != nil {
			return err
		}
		pl.ID = cmd.Params

	case "FLAGS":
		pl.Type = UntaggedFlags
		if err := wire.Space(c); err != nil {
			return err
		}
		flags, err := readFlagList(c)
		if err != nil {
			return err
		}
		pl.Flags = flags

	case "LIST", "LSUB", "XLIST":
		if string(word) == "LSUB" {
			pl.Type = UntaggedLsub
		} else {
			pl.Type = UntaggedList
		}
		if err := parseListResponse(c, pl); err != nil {
			return err
		}

	case "STATUS":
		pl.Type = UntaggedStatus
		if err := parseStatusResponse(c, pl); err != nil {
			return err
		}

	case "SEARCH":
		pl.Type = UntaggedSearch
		if err := parseSearchResponse(c, pl); err != nil {
			return err
		}

	case "ESEARCH":
		pl.Type = UntaggedESearch
		if err := parseESearchResponse(c, pl); err != nil {
			return err
		}

	case "NAMESPACE":
		pl.Type = UntaggedNamespace
		if err := parseNamespaceResponse(c, pl); err != nil {
			return err
		}

	case "QUOTA":
		pl.Type = UntaggedQuota
		if err := parseQuotaResponse(c, pl); err != nil {
			return err
		}

	case "QUOTAROOT":
		pl.Type = UntaggedQuotaRoot
		if err := parseQuotaRootResponse(c, pl); err != nil {
			return err
		}

	case "METADATA":
		pl.Type = UntaggedMetadata
		if err := parseMetadataResponse(c, pl); err != nil {
			return err
		}

	case "VANISHED":
		pl.Type = UntaggedVanished
		if err := parseVanishedResponse(c, pl); err != nil {
			return err
		}

	default:
		return wire.Errorf("imapparser: unknown untagged response %q", word)
	}

	return wire.Newline(c)
}

// parseListResponse parses the tail of a LIST or LSUB response:
//
//	mailbox-list = "(" [mbx-list-flags] ")" SP
//	               (DQUOTE QUOTED-CHAR DQUOTE / nil) SP mailbox
func parseListResponse(c *wire.Cursor, pl *ResponsePayload) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	attrs, err := readFlagList(c)
	if err != nil {
		return err
	}
	pl.List.Attributes = attrs
	if err := wire.Space(c); err != nil {
		return err
	}
	delim, ok, err := readNString(c)
	if err != nil {
		return wire.Errorf("imapparser: LIST bad delimiter")
	}
	if ok {
		if len(delim) != 1 {
			return wire.Errorf("imapparser: LIST delimiter must be a single character")
		}
		pl.List.Delimiter = delim
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	if pl.List.Mailbox, err = readMailbox(c); err != nil {
		return wire.Errorf("imapparser: LIST bad mailbox")
	}
	return nil
}

func parseStatusResponse(c *wire.Cursor, pl *ResponsePayload) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if pl.Status.Mailbox, err = readMailbox(c); err != nil {
		return wire.Errorf("imapparser: STATUS bad mailbox")
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return err
	}
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			c.ReadByte()
			return nil
		}
		if len(pl.Status.Items) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		name, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: STATUS bad item")
		}
		wire.AsciiUpper(name)
		item, ok := statusItems[string(name)]
		if !ok {
			return wire.Errorf("imapparser: STATUS unknown item %q", name)
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		v, err := wire.Number(c)
		if err != nil {
			return wire.Errorf("imapparser: STATUS bad item value")
		}
		pl.Status.Items = append(pl.Status.Items, StatusCount{Item: item, Value: v})
	}
}

func parseSearchResponse(c *wire.Cursor, pl *ResponsePayload) error {
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b != ' ' {
			return nil
		}
		c.ReadByte()
		if b, err = c.PeekByte(); err != nil {
			return err
		}
		if b == '(' {
			// search-sort-mod-seq = "(" "MODSEQ" SP mod-sequence-value ")"
			c.ReadByte()
			if err := wire.FixedString(c, "MODSEQ"); err != nil {
				return err
			}
			if err := wire.Space(c); err != nil {
				return err
			}
			if pl.Search.ModSeq, err = wire.Number(c); err != nil {
				return err
			}
			return wire.FixedString(c, ")")
		}
		n, err := wire.NonZeroNumber(c)
		if err != nil {
			return wire.Errorf("imapparser: SEARCH response bad number")
		}
		pl.Search.Numbers = append(pl.Search.Numbers, n)
	}
}

// parseESearchResponse parses the RFC 4731 ESEARCH response:
//
//	esearch-response = "ESEARCH" [search-correlator] [SP "UID"]
//	                   *(SP search-return-data)
func parseESearchResponse(c *wire.Cursor, pl *ResponsePayload) error {
	es := &ESearchResponse{}
	pl.ESearch = es

	b, err := c.PeekByte()
	if err != nil {
		return err
	}
	if b == ' ' {
		mark := c.Mark()
		c.ReadByte()
		if b, err = c.PeekByte(); err != nil {
			return err
		}
		if b == '(' {
			// search-correlator = SP "(" "TAG" SP tag-string ")"
			c.ReadByte()
			if err := wire.FixedString(c, "TAG"); err != nil {
				return err
			}
			if err := wire.Space(c); err != nil {
				return err
			}
			tag, err := readString(c)
			if err != nil {
				return err
			}
			es.Tag = tag
			if err := wire.FixedString(c, ")"); err != nil {
				return err
			}
		} else {
			c.Restore(mark)
		}
	}

	first := true
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b != ' ' {
			return nil
		}
		c.ReadByte()
		name, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: ESEARCH bad return atom")
		}
		wire.AsciiUpper(name)
		if first && string(name) == "UID" {
			es.UID = true
			first = false
			continue
		}
		first = false
		ret := ESearchReturn{Name: string(name)}
		switch ret.Name {
		case "MIN", "MAX", "COUNT", "MODSEQ":
			if err := wire.Space(c); err != nil {
				return err
			}
			if ret.Number, err = wire.Number(c); err != nil {
				return wire.Errorf("imapparser: ESEARCH %s bad number", ret.Name)
			}
		case "ALL":
			if err := wire.Space(c); err != nil {
				return err
			}
			set, err := readSeqSet(c)
			if err != nil || set.Dollar {
				return wire.Errorf("imapparser: ESEARCH ALL bad sequence-set")
			}
			ret.Sequences = set.Ranges
		default:
			if err := wire.Space(c); err != nil {
				return err
			}
			args, err := readAstring(c)
			if err != nil {
				return wire.Errorf("imapparser: ESEARCH %s bad value", ret.Name)
			}
			ret.Args = args
		}
		es.Returns = append(es.Returns, ret)
	}
}

// parseNamespaceResponse parses the RFC 2342 NAMESPACE response:
// three namespace fields, each NIL or a list of prefix/delimiter
// pairs.
func parseNamespaceResponse(c *wire.Cursor, pl *ResponsePayload) error {
	ns := &NamespaceResponse{}
	pl.Namespace = ns
	for i := 0; i < 3; i++ {
		if err := wire.Space(c); err != nil {
			return err
		}
		items, err := parseNamespaceItems(c)
		if err != nil {
			return err
		}
		switch i {
		case 0:
			ns.Personal = items
		case 1:
			ns.Other = items
		case 2:
			ns.Shared = items
		}
	}
	return nil
}

func parseNamespaceItems(c *wire.Cursor) ([]NamespaceItem, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '(' {
		if err := wire.FixedString(c, "NIL"); err != nil {
			return nil, wire.Errorf("imapparser: NAMESPACE expected NIL or list")
		}
		return nil, nil
	}
	c.ReadByte()
	var items []NamespaceItem
	for {
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ')' {
			c.ReadByte()
			if len(items) == 0 {
				return nil, wire.Errorf("imapparser: NAMESPACE empty list")
			}
			return items, nil
		}
		if err := wire.FixedString(c, "("); err != nil {
			return nil, err
		}
		var item NamespaceItem
		if item.Prefix, err = readString(c); err != nil {
			return nil, err
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		delim, ok, err := readNString(c)
		if err != nil {
			return nil, err
		}
		if ok {
			if len(delim) != 1 {
				return nil, wire.Errorf("imapparser: NAMESPACE delimiter must be a single character")
			}
			item.Delimiter = delim
		}
		// Namespace extensions are scanned past, not modeled.
		for {
			b, err := c.PeekByte()
			if err != nil {
				return nil, err
			}
			if b == ')' {
				c.ReadByte()
				break
			}
			c.ReadByte()
		}
		items = append(items, item)
	}
}

func parseQuotaResponse(c *wire.Cursor, pl *ResponsePayload) error {
	q := &QuotaResponse{}
	pl.Quota = q
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if q.Root, err = readAstring(c); err != nil {
		return wire.Errorf("imapparser: QUOTA bad root")
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return err
	}
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			c.ReadByte()
			return nil
		}
		if len(q.Resources) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		var res QuotaResource
		name, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: QUOTA bad resource name")
		}
		wire.AsciiUpper(name)
		res.Name = name
		if err := wire.Space(c); err != nil {
			return err
		}
		if res.Usage, err = wire.Number(c); err != nil {
			return wire.Errorf("imapparser: QUOTA bad resource usage")
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		if res.Limit, err = wire.Number(c); err != nil {
			return wire.Errorf("imapparser: QUOTA bad resource limit")
		}
		q.Resources = append(q.Resources, res)
	}
}

func parseQuotaRootResponse(c *wire.Cursor, pl *ResponsePayload) error {
	qr := &QuotaRootResponse{}
	pl.QuotaRoot = qr
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if qr.Mailbox, err = readMailbox(c); err != nil {
		return wire.Errorf("imapparser: QUOTAROOT bad mailbox")
	}
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b != ' ' {
			return nil
		}
		c.ReadByte()
		root, err := readAstring(c)
		if err != nil {
			return wire.Errorf("imapparser: QUOTAROOT bad root name")
		}
		qr.Roots = append(qr.Roots, root)
	}
}

func parseMetadataResponse(c *wire.Cursor, pl *ResponsePayload) error {
	md := &MetadataResponse{}
	pl.Metadata = md
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if md.Mailbox, err = readMailbox(c); err != nil {
		return wire.Errorf("imapparser: METADATA bad mailbox")
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	b, err := c.PeekByte()
	if err != nil {
		return err
	}
	if b == '(' {
		// Value form: (entry value ...)
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
			if len(md.Entries) > 0 {
				if err := wire.Space(c); err != nil {
					return err
				}
			}
			var e MetadataEntry
			if e.Name, err = readAstring(c); err != nil {
				return wire.Errorf("imapparser: METADATA bad entry name")
			}
			if err := wire.Space(c); err != nil {
				return err
			}
			if e.Value, _, err = readNString(c); err != nil {
				return wire.Errorf("imapparser: METADATA bad entry value")
			}
			md.Entries = append(md.Entries, e)
		}
	} else {
		// Unsolicited list form: entry names only.
		for {
			var e MetadataEntry
			if e.Name, err = readAstring(c); err != nil {
				return wire.Errorf("imapparser: METADATA bad entry name")
			}
			md.Entries = append(md.Entries, e)
			b, err := c.PeekByte()
			if err != nil {
				return err
			}
			if b != ' ' {
				break
			}
			c.ReadByte()
		}
	}
	if len(md.Entries) == 0 {
		return wire.Errorf("imapparser: METADATA empty entry list")
	}
	return nil
}

func parseVanishedResponse(c *wire.Cursor, pl *ResponsePayload) error {
	v := &VanishedResponse{}
	pl.Vanished = v
	if err := wire.Space(c); err != nil {
		return err
	}
	b, err := c.PeekByte()
	if err != nil {
		return err
	}
	if b == '(' {
		if err := wire.FixedString(c, "(EARLIER)"); err != nil {
			return wire.Errorf("imapparser: VANISHED bad modifier")
		}
		v.Earlier = true
		if err := wire.Space(c); err != nil {
			return err
		}
	}
	set, err := readSeqSet(c)
	if err != nil || set.Dollar {
		return wire.Errorf("imapparser: VANISHED bad uid-set")
	}
	v.UIDs = set.Ranges
	return nil
}
