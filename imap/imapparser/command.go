package imapparser

import (
	wire "spool.ink/imap/imapwire"
)

// commands maps a canonical command name to itself. Interning the
// name here keeps Command.Name comparable against constants without
// holding parser memory.
var commands = map[string]string{
	"CAPABILITY":   "CAPABILITY",
	"LOGOUT":       "LOGOUT",
	"NOOP":         "NOOP",
	"LOGIN":        "LOGIN",
	"AUTHENTICATE": "AUTHENTICATE",
	"STARTTLS":     "STARTTLS",
	"APPEND":       "APPEND",
	"CREATE":       "CREATE",
	"DELETE":       "DELETE",
	"ENABLE":       "ENABLE",
	"ID":           "ID",
	"IDLE":         "IDLE",
	"EXAMINE":      "EXAMINE",
	"LIST":         "LIST",
	"LSUB":         "LSUB",
	"NAMESPACE":    "NAMESPACE",
	"RENAME":       "RENAME",
	"SELECT":       "SELECT",
	"STATUS":       "STATUS",
	"SUBSCRIBE":    "SUBSCRIBE",
	"UNSUBSCRIBE":  "UNSUBSCRIBE",
	"CHECK":        "CHECK",
	"CLOSE":        "CLOSE",
	"UNSELECT":     "UNSELECT",
	"EXPUNGE":      "EXPUNGE",
	"COPY":         "COPY",
	"MOVE":         "MOVE",
	"FETCH":        "FETCH",
	"STORE":        "STORE",
	"SEARCH":       "SEARCH",
	"ESEARCH":      "ESEARCH",
	"UID":          "UID",
	"GETMETADATA":  "GETMETADATA",
	"SETMETADATA":  "SETMETADATA",
	"GETQUOTA":     "GETQUOTA",
	"GETQUOTAROOT": "GETQUOTAROOT",
	"SETQUOTA":     "SETQUOTA",
	"RESETKEY":     "RESETKEY",
	"GENURLAUTH":   "GENURLAUTH",
	"URLFETCH":     "URLFETCH",
}

// parseCommand parses one tagged command from c into cmd.
//
// The framing layer guarantees that every literal inside the
// visible prefix has fully arrived, so in-line literals never
// block. APPEND is the exception: parsing stops after the mailbox
// name and the session state machine streams the message payload.
func parseCommand(c *wire.Cursor, t *wire.Tracker, cmd *Command) error {
	tag, err := readTag(c)
	if err != nil {
		return err
	}
	cmd.Tag = tag

	if err := wire.Space(c); err != nil {
		return err
	}
	name, err := readAtom(c)
	if err != nil {
		return wire.Errorf("imapparser: no command name")
	}
	wire.AsciiUpper(name)
	cmd.Name = commands[string(name)]
	if cmd.Name == "" {
		return wire.Errorf("imapparser: unknown command: %q", name)
	}

	if cmd.Name == "UID" {
		cmd.UID = true
		if err := wire.Space(c); err != nil {
			return err
		}
		name, err = readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: no command name following UID prefix")
		}
		wire.AsciiUpper(name)
		cmd.Name = commands[string(name)]
		if cmd.Name == "" {
			return wire.Errorf("imapparser: unknown command: %q", name)
		}
		switch cmd.Name {
		case "COPY", "FETCH", "STORE", "SEARCH":
			// these commands support the UID prefix
		case "MOVE":
			// UID MOVE is part of RFC 6851
		case "EXPUNGE":
			// UID EXPUNGE is part of RFC 4315 UIDPLUS
		default:
			return wire.Errorf("imapparser: command %s does not support the UID prefix", cmd.Name)
		}
	}

	// Commands listed mostly in the order they appear in RFC 3501
	// section 6.
	switch cmd.Name {
	case "CAPABILITY", "NOOP", "LOGOUT", "STARTTLS", "CHECK", "CLOSE",
		"UNSELECT", "NAMESPACE", "IDLE":
		// no arguments

	case "LOGIN":
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Login.Username, err = readAstring(c); err != nil {
			if !wire.IsRecoverable(err) {
				return err
			}
			return wire.Errorf("imapparser: LOGIN missing username")
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Login.Password, err = readAstring(c); err != nil {
			if !wire.IsRecoverable(err) {
				return err
			}
			return wire.Errorf("imapparser: LOGIN missing password")
		}

	case "AUTHENTICATE":
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Auth.Mechanism, err = readAtom(c); err != nil {
			return wire.Errorf("imapparser: AUTHENTICATE missing mechanism")
		}
		wire.AsciiUpper(cmd.Auth.Mechanism)
		// RFC 4959 SASL-IR: optional initial response, base64 or "=".
		if b, err := c.PeekByte(); err != nil {
			return err
		} else if b == ' ' {
			c.ReadByte()
			ir, err := wire.TakeWhile1(c, wire.IsBase64Char, "base64")
			if err != nil {
				return wire.Errorf("imapparser: AUTHENTICATE bad initial response")
			}
			cmd.Auth.InitialResponse = copyBytes(ir)
		}

	case "ENABLE": // RFC 5161
		for {
			if err := wire.Space(c); err != nil {
				if wire.IsRecoverable(err) {
					break
				}
				return err
			}
			capability, err := readAtom(c)
			if err != nil {
				return wire.Errorf("imapparser: ENABLE bad capability name")
			}
			cmd.Params = append(cmd.Params, capability)
		}
		if len(cmd.Params) == 0 {
			return wire.Errorf("imapparser: ENABLE missing required argument")
		}

	case "ID": // RFC 2971
		if err := wire.Space(c); err != nil {
			return err
		}
		if err := parseIDParams(c, cmd); err != nil {
			return err
		}

	case "SELECT", "EXAMINE":
		if err := parseSelect(c, cmd); err != nil {
			return err
		}

	case "CREATE":
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Mailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: CREATE missing mailbox name")
		}
		if b, err := c.PeekByte(); err != nil {
			return err
		} else if b == ' ' {
			c.ReadByte()
			if err := parseCreateParams(c, cmd); err != nil {
				return err
			}
		}

	case "DELETE", "SUBSCRIBE", "UNSUBSCRIBE":
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Mailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: %s missing mailbox name", cmd.Name)
		}

	case "RENAME":
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Rename.OldMailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: RENAME missing existing mailbox name")
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Rename.NewMailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: RENAME missing new mailbox name")
		}

	case "LIST", "LSUB":
		if err := parseList(c, cmd); err != nil {
			return err
		}

	case "STATUS":
		if err := parseStatus(c, cmd); err != nil {
			return err
		}

	case "APPEND":
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Mailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: APPEND missing mailbox name")
		}
		// The message headers and payload are streamed by the
		// session state machine; do not consume further.
		return nil

	case "EXPUNGE":
		// EXPUNGE has no arguments
		// UID EXPUNGE takes a sequence set
		if cmd.UID {
			if err := wire.Space(c); err != nil {
				return err
			}
			if cmd.Sequences, err = readSeqSet(c); err != nil {
				return wire.Errorf("imapparser: UID EXPUNGE missing sequences")
			}
		}

	case "SEARCH", "ESEARCH":
		if err := parseSearch(c, t, cmd); err != nil {
			return err
		}

	case "FETCH":
		if err := parseFetch(c, t, cmd); err != nil {
			return err
		}

	case "STORE":
		if err := parseStore(c, cmd); err != nil {
			return err
		}

	case "COPY", "MOVE":
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Sequences, err = readSeqSet(c); err != nil {
			return wire.Errorf("imapparser: %s missing sequences", cmd.Name)
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Mailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: %s missing mailbox name", cmd.Name)
		}

	case "GETQUOTA", "GETQUOTAROOT", "SETQUOTA":
		if err := parseQuotaCommand(c, cmd); err != nil {
			return err
		}

	case "GETMETADATA", "SETMETADATA":
		if err := parseMetadataCommand(c, cmd); err != nil {
			return err
		}

	case "RESETKEY", "GENURLAUTH", "URLFETCH":
		if err := parseURLAuthCommand(c, t, cmd); err != nil {
			return err
		}

	default:
		return wire.Errorf("imapparser: unsupported command: %v", cmd.Name)
	}

	if err := wire.Newline(c); err != nil {
		if wire.IsRecoverable(err) {
			return wire.Errorf("imapparser: %s has trailing arguments", cmd.Name)
		}
		return err
	}
	return nil
}

// parseIDParams reads the RFC 2971 parameter list: NIL or a
// parenthesized list of field/value pairs where values may be NIL.
func parseIDParams(c *wire.Cursor, cmd *Command) error {
	b, err := c.PeekByte()
	if err != nil {
		return err
	}
	if b != '(' {
		if err := wire.FixedString(c, "NIL"); err != nil {
			return wire.Errorf("imapparser: ID missing parameter list")
		}
		return nil
	}
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
		if len(cmd.Params) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		v, ok, err := readNastring(c)
		if err != nil {
			return wire.Errorf("imapparser: ID bad parameter")
		}
		if !ok && len(cmd.Params)%2 == 0 {
			return wire.Errorf("imapparser: ID NIL field name")
		}
		if !ok {
			cmd.Params = append(cmd.Params, nil)
		} else {
			cmd.Params = append(cmd.Params, v)
		}
		if len(cmd.Params) > 60 {
			// RFC 2971 limits ID to 30 pairs.
			return wire.Errorf("imapparser: too many ID parameters")
		}
	}
	if len(cmd.Params)%2 == 1 {
		return wire.Errorf("imapparser: ID parameter is missing value")
	}
	return nil
}

func parseSelect(c *wire.Cursor, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if cmd.Mailbox, err = readMailbox(c); err != nil {
		return wire.Errorf("imapparser: %s missing mailbox name", cmd.Name)
	}
	b, err := c.PeekByte()
	if err != nil {
		return err
	}
	if b != ' ' {
		return nil
	}
	c.ReadByte()
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: %s bad parameter list", cmd.Name)
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
			return wire.Errorf("imapparser: %s missing parameter name", cmd.Name)
		}
		wire.AsciiUpper(name)
		switch string(name) {
		case "CONDSTORE":
			cmd.Condstore = true
		case "QRESYNC": // RFC 7162 Section 3.2.5.
			if err := parseQresync(c, cmd); err != nil {
				return err
			}
		default:
			return wire.Errorf("imapparser: %s invalid parameter: %s", cmd.Name, name)
		}
	}
}

func parseQresync(c *wire.Cursor, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: %s missing QRESYNC parameter list", cmd.Name)
	}
	v, err := wire.NonZeroNumber(c)
	if err != nil {
		return wire.Errorf("imapparser: %s QRESYNC UIDVALIDITY invalid", cmd.Name)
	}
	cmd.Qresync.UIDValidity = v
	if err := wire.Space(c); err != nil {
		return err
	}
	if cmd.Qresync.ModSeq, err = wire.Number(c); err != nil {
		return wire.Errorf("imapparser: %s missing QRESYNC MODSEQ", cmd.Name)
	}

	b, err := c.PeekByte()
	if err != nil {
		return err
	}
	if b == ')' {
		c.ReadByte()
		return nil // next two parameters are optional
	}
	if err := wire.Space(c); err != nil {
		return err
	}

	// known-uids
	uids, err := readSeqSet(c)
	if err != nil {
		return wire.Errorf("imapparser: %s bad QRESYNC known UIDs sequence", cmd.Name)
	}
	if uids.Dollar {
		return wire.Errorf("imapparser: %s bad QRESYNC known UIDs sequence, '$' is not allowed", cmd.Name)
	}
	cmd.Qresync.UIDs = uids.Ranges

	b, err = c.PeekByte()
	if err != nil {
		return err
	}
	if b == ')' {
		c.ReadByte()
		return nil // parameter is optional
	}
	if err := wire.Space(c); err != nil {
		return err
	}

	// seq-match-data
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: %s bad QRESYNC match list start", cmd.Name)
	}
	seqMatch, err := readSeqSet(c)
	if err != nil || seqMatch.Dollar {
		return wire.Errorf("imapparser: %s bad QRESYNC match list sequence", cmd.Name)
	}
	cmd.Qresync.KnownSeqNumMatch = seqMatch.Ranges
	if err := wire.Space(c); err != nil {
		return err
	}
	uidMatch, err := readSeqSet(c)
	if err != nil || uidMatch.Dollar {
		return wire.Errorf("imapparser: %s bad QRESYNC match list UIDs sequence", cmd.Name)
	}
	cmd.Qresync.KnownUIDMatch = uidMatch.Ranges
	if err := wire.FixedString(c, ")"); err != nil {
		return wire.Errorf("imapparser: %s missing QRESYNC match list end", cmd.Name)
	}
	if err := wire.FixedString(c, ")"); err != nil {
		return wire.Errorf("imapparser: %s missing QRESYNC parameter list end", cmd.Name)
	}
	return nil
}

// parseCreateParams reads RFC 4466 create-params. Only the RFC 6154
// USE attribute list is understood.
func parseCreateParams(c *wire.Cursor, cmd *Command) error {
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: CREATE bad parameter list")
	}
	name, err := readAtom(c)
	if err != nil {
		return wire.Errorf("imapparser: CREATE missing parameter name")
	}
	wire.AsciiUpper(name)
	if string(name) != "USE" {
		return wire.Errorf("imapparser: CREATE unknown parameter %q", name)
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	attrs, err := readFlagList(c)
	if err != nil {
		return wire.Errorf("imapparser: CREATE bad USE attribute list")
	}
	cmd.Create.SpecialUse = attrs
	if err := wire.FixedString(c, ")"); err != nil {
		return wire.Errorf("imapparser: CREATE missing parameter list end")
	}
	return nil
}

func parseList(c *wire.Cursor, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}

	if cmd.Name == "LIST" {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == '(' {
			// RFC 5258 list-select-opts
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
				if len(cmd.List.SelectOptions) > 0 {
					if err := wire.Space(c); err != nil {
						return err
					}
				}
				opt, err := listOption(c)
				if err != nil {
					return wire.Errorf("imapparser: LIST bad selection option")
				}
				switch opt {
				case "SUBSCRIBED", "REMOTE", "RECURSIVEMATCH", "SPECIAL-USE":
				default:
					return wire.Errorf("imapparser: LIST bad selection option %q", opt)
				}
				cmd.List.SelectOptions = append(cmd.List.SelectOptions, opt)
			}
			if err := wire.Space(c); err != nil {
				return err
			}
		}
	}

	ref, err := readAstring(c)
	if err != nil {
		return wire.Errorf("imapparser: %s missing reference name", cmd.Name)
	}
	cmd.List.ReferenceName = ref

	if err := wire.Space(c); err != nil {
		return err
	}
	b, err := c.PeekByte()
	if err != nil {
		return err
	}
	if cmd.Name == "LIST" && b == '(' {
		// RFC 5258 multiple mailbox patterns.
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
			if len(cmd.List.Patterns) > 0 {
				if err := wire.Space(c); err != nil {
					return err
				}
			}
			pat, err := readListMailbox(c)
			if err != nil {
				return wire.Errorf("imapparser: LIST bad mailbox pattern")
			}
			cmd.List.Patterns = append(cmd.List.Patterns, pat)
		}
		if len(cmd.List.Patterns) == 0 {
			return wire.Errorf("imapparser: LIST empty pattern list")
		}
	} else {
		pat, err := readListMailbox(c)
		if err != nil {
			return wire.Errorf("imapparser: %s missing mailbox glob", cmd.Name)
		}
		cmd.List.Patterns = [][]byte{pat}
	}

	if cmd.Name != "LIST" {
		return nil
	}
	b, err = c.PeekByte()
	if err != nil {
		return err
	}
	if b != ' ' {
		return nil
	}
	c.ReadByte()
	if err := wire.FixedString(c, "RETURN"); err != nil {
		return wire.Errorf("imapparser: LIST expecting CRLF or RETURN options")
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: LIST RETURN options missing left-paren")
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
		if len(cmd.List.ReturnOptions) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		opt, err := listOption(c)
		if err != nil {
			return wire.Errorf("imapparser: LIST RETURN invalid option")
		}
		switch opt {
		case "SUBSCRIBED", "CHILDREN", "SPECIAL-USE":
		default:
			return wire.Errorf("imapparser: LIST bad RETURN option %q", opt)
		}
		cmd.List.ReturnOptions = append(cmd.List.ReturnOptions, opt)
	}
}

// listOption reads one LIST option atom, uppercased.
// Hyphenated options such as SPECIAL-USE are atoms.
func listOption(c *wire.Cursor) (string, error) {
	v, err := readAtom(c)
	if err != nil {
		return "", err
	}
	wire.AsciiUpper(v)
	return string(v), nil
}

func parseStatus(c *wire.Cursor, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if cmd.Mailbox, err = readMailbox(c); err != nil {
		return wire.Errorf("imapparser: STATUS missing mailbox name")
	}
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: STATUS missing list start")
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
		if len(cmd.Status.Items) > 0 {
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
			return wire.Errorf("imapparser: STATUS unknown item: %s", name)
		}
		cmd.Status.Items = append(cmd.Status.Items, item)
	}
	if len(cmd.Status.Items) == 0 {
		return wire.Errorf("imapparser: STATUS empty item list")
	}
	return nil
}

var statusItems = map[string]StatusItem{
	"MESSAGES":      StatusMessages,
	"RECENT":        StatusRecent,
	"UIDNEXT":       StatusUIDNext,
	"UIDVALIDITY":   StatusUIDValidity,
	"UNSEEN":        StatusUnseen,
	"HIGHESTMODSEQ": StatusHighestModSeq,
}

func parseStore(c *wire.Cursor, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if cmd.Sequences, err = readSeqSet(c); err != nil {
		return wire.Errorf("imapparser: STORE missing sequences")
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
		name, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: STORE missing modifier name")
		}
		wire.AsciiUpper(name)
		if string(name) != "UNCHANGEDSINCE" {
			return wire.Errorf("imapparser: STORE unknown modifier: %s", name)
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		if cmd.Store.UnchangedSince, err = wire.Number(c); err != nil {
			return wire.Errorf("imapparser: STORE UNCHANGEDSINCE missing value")
		}
		if err := wire.FixedString(c, ")"); err != nil {
			return wire.Errorf("imapparser: STORE missing modifier list end")
		}
		if err := wire.Space(c); err != nil {
			return err
		}
	}

	item, err := readAtom(c)
	if err != nil {
		return wire.Errorf("imapparser: STORE missing data item name")
	}
	wire.AsciiUpper(item)
	name := string(item)
	switch {
	case name == "X-GM-LABELS", name == "+X-GM-LABELS", name == "-X-GM-LABELS":
		cmd.Store.GmailLabels = true
		switch name[0] {
		case '+':
			cmd.Store.Mode = StoreAdd
		case '-':
			cmd.Store.Mode = StoreRemove
		default:
			cmd.Store.Mode = StoreReplace
		}
	case name == "+FLAGS":
		cmd.Store.Mode = StoreAdd
	case name == "+FLAGS.SILENT":
		cmd.Store.Mode = StoreAdd
		cmd.Store.Silent = true
	case name == "-FLAGS":
		cmd.Store.Mode = StoreRemove
	case name == "-FLAGS.SILENT":
		cmd.Store.Mode = StoreRemove
		cmd.Store.Silent = true
	case name == "FLAGS":
		cmd.Store.Mode = StoreReplace
	case name == "FLAGS.SILENT":
		cmd.Store.Mode = StoreReplace
		cmd.Store.Silent = true
	default:
		return wire.Errorf("imapparser: STORE invalid name: %q", item)
	}

	if err := wire.Space(c); err != nil {
		return err
	}
	b, err = c.PeekByte()
	if err != nil {
		return err
	}
	if b == '(' {
		flags, err := readFlagList(c)
		if err != nil {
			return wire.Errorf("imapparser: STORE bad flag list")
		}
		cmd.Store.Flags = flags
	} else {
		// Flags may also appear bare, without parentheses.
		for {
			f, err := readFlag(c)
			if err != nil {
				return wire.Errorf("imapparser: STORE bad flag")
			}
			cmd.Store.Flags = append(cmd.Store.Flags, f)
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
	if len(cmd.Store.Flags) == 0 && cmd.Store.Mode != StoreReplace {
		return wire.Errorf("imapparser: STORE empty flag list")
	}
	return nil
}

func parseQuotaCommand(c *wire.Cursor, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}
	var err error
	if cmd.Name == "GETQUOTAROOT" {
		if cmd.Mailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: GETQUOTAROOT missing mailbox name")
		}
		return nil
	}
	if cmd.Quota.Root, err = readAstring(c); err != nil {
		return wire.Errorf("imapparser: %s missing quota root", cmd.Name)
	}
	if cmd.Name == "GETQUOTA" {
		return nil
	}
	// SETQUOTA root (resource limit ...)
	if err := wire.Space(c); err != nil {
		return err
	}
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: SETQUOTA missing resource list")
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
		if len(cmd.Quota.Resources) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		name, err := readAtom(c)
		if err != nil {
			return wire.Errorf("imapparser: SETQUOTA bad resource name")
		}
		wire.AsciiUpper(name)
		if err := wire.Space(c); err != nil {
			return err
		}
		limit, err := wire.Number(c)
		if err != nil {
			return wire.Errorf("imapparser: SETQUOTA bad resource limit")
		}
		cmd.Quota.Resources = append(cmd.Quota.Resources, QuotaResource{
			Name:  name,
			Limit: limit,
		})
	}
}

func parseMetadataCommand(c *wire.Cursor, cmd *Command) error {
	if err := wire.Space(c); err != nil {
		return err
	}

	if cmd.Name == "GETMETADATA" {
		// Options come before the mailbox: (MAXSIZE n DEPTH d).
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == '(' {
			c.ReadByte()
			first := true
			for {
				b, err := c.PeekByte()
				if err != nil {
					return err
				}
				if b == ')' {
					c.ReadByte()
					break
				}
				if !first {
					if err := wire.Space(c); err != nil {
						return err
					}
				}
				first = false
				name, err := readAtom(c)
				if err != nil {
					return wire.Errorf("imapparser: GETMETADATA bad option")
				}
				wire.AsciiUpper(name)
				switch string(name) {
				case "MAXSIZE":
					if err := wire.Space(c); err != nil {
						return err
					}
					if cmd.Metadata.MaxSize, err = wire.Number32(c); err != nil {
						return wire.Errorf("imapparser: GETMETADATA bad MAXSIZE")
					}
				case "DEPTH":
					if err := wire.Space(c); err != nil {
						return err
					}
					d, err := readAtom(c)
					if err != nil {
						return wire.Errorf("imapparser: GETMETADATA bad DEPTH")
					}
					switch string(d) {
					case "0", "1":
						cmd.Metadata.Depth = string(d)
					case "infinity", "INFINITY":
						cmd.Metadata.Depth = "infinity"
					default:
						return wire.Errorf("imapparser: GETMETADATA bad DEPTH %q", d)
					}
				default:
					return wire.Errorf("imapparser: GETMETADATA unknown option %q", name)
				}
			}
			if err := wire.Space(c); err != nil {
				return err
			}
		}
	}

	var err error
	if cmd.Mailbox, err = readMailbox(c); err != nil {
		return wire.Errorf("imapparser: %s missing mailbox name", cmd.Name)
	}
	if err := wire.Space(c); err != nil {
		return err
	}

	if cmd.Name == "GETMETADATA" {
		// One entry, or a parenthesized list of entries.
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
				if len(cmd.Metadata.Entries) > 0 {
					if err := wire.Space(c); err != nil {
						return err
					}
				}
				e, err := readAstring(c)
				if err != nil {
					return wire.Errorf("imapparser: GETMETADATA bad entry name")
				}
				cmd.Metadata.Entries = append(cmd.Metadata.Entries, e)
			}
		} else {
			e, err := readAstring(c)
			if err != nil {
				return wire.Errorf("imapparser: GETMETADATA missing entry name")
			}
			cmd.Metadata.Entries = append(cmd.Metadata.Entries, e)
		}
		if len(cmd.Metadata.Entries) == 0 {
			return wire.Errorf("imapparser: GETMETADATA empty entry list")
		}
		return nil
	}

	// SETMETADATA mailbox (entry value ...)
	if err := wire.FixedString(c, "("); err != nil {
		return wire.Errorf("imapparser: SETMETADATA missing entry list")
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
		if len(cmd.Metadata.Set) > 0 {
			if err := wire.Space(c); err != nil {
				return err
			}
		}
		name, err := readAstring(c)
		if err != nil {
			return wire.Errorf("imapparser: SETMETADATA bad entry name")
		}
		if err := wire.Space(c); err != nil {
			return err
		}
		value, _, err := readNString(c)
		if err != nil {
			return wire.Errorf("imapparser: SETMETADATA bad entry value")
		}
		cmd.Metadata.Set = append(cmd.Metadata.Set, MetadataEntry{
			Name:  name,
			Value: value,
		})
	}
	if len(cmd.Metadata.Set) == 0 {
		return wire.Errorf("imapparser: SETMETADATA empty entry list")
	}
	return nil
}

func parseURLAuthCommand(c *wire.Cursor, t *wire.Tracker, cmd *Command) error {
	switch cmd.Name {
	case "RESETKEY":
		// RESETKEY [mailbox [mech ...]]
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b != ' ' {
			return nil
		}
		c.ReadByte()
		if cmd.Mailbox, err = readMailbox(c); err != nil {
			return wire.Errorf("imapparser: RESETKEY bad mailbox name")
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
			mech, err := readAtom(c)
			if err != nil {
				return wire.Errorf("imapparser: RESETKEY bad mechanism")
			}
			wire.AsciiUpper(mech)
			cmd.URLAuth.Mechanisms = append(cmd.URLAuth.Mechanisms, string(mech))
		}

	case "GENURLAUTH":
		// GENURLAUTH 1*(SP url SP mechanism)
		for {
			b, err := c.PeekByte()
			if err != nil {
				return err
			}
			if b != ' ' {
				break
			}
			c.ReadByte()
			raw, err := readAstring(c)
			if err != nil {
				return wire.Errorf("imapparser: GENURLAUTH bad URL")
			}
			u, err := ParseIMAPURL(raw)
			if err != nil {
				return err
			}
			if err := wire.Space(c); err != nil {
				return err
			}
			mech, err := readAtom(c)
			if err != nil {
				return wire.Errorf("imapparser: GENURLAUTH bad mechanism")
			}
			wire.AsciiUpper(mech)
			cmd.URLAuth.URLs = append(cmd.URLAuth.URLs, u)
			cmd.URLAuth.Mechanisms = append(cmd.URLAuth.Mechanisms, string(mech))
		}
		if len(cmd.URLAuth.URLs) == 0 {
			return wire.Errorf("imapparser: GENURLAUTH missing URL")
		}

	case "URLFETCH":
		// URLFETCH 1*(SP url)
		for {
			b, err := c.PeekByte()
			if err != nil {
				return err
			}
			if b != ' ' {
				break
			}
			c.ReadByte()
			raw, err := readAstring(c)
			if err != nil {
				return wire.Errorf("imapparser: URLFETCH bad URL")
			}
			u, err := ParseIMAPURL(raw)
			if err != nil {
				return err
			}
			cmd.URLAuth.URLs = append(cmd.URLAuth.URLs, u)
		}
		if len(cmd.URLAuth.URLs) == 0 {
			return wire.Errorf("imapparser: URLFETCH missing URL")
		}
	}
	return nil
}
