package imapencode

import (
	"bytes"

	"spool.ink/imap/imapparser"
)

// CommandEncoder writes command stream parts to the wire.
type CommandEncoder struct {
	logging bool

	literalPlus  bool
	literalMinus bool
	binary       bool

	appendRedacted bool
}

// NewCommandEncoder returns an encoder. With loggingMode set, all
// user-sensitive payloads (passwords, authentication responses,
// mailbox names, internal dates, APPEND bodies, Gmail labels) are
// replaced by a placeholder and literal lengths recomputed, giving
// a byte-faithful redacted transcript for debug logs.
func NewCommandEncoder(loggingMode bool) *CommandEncoder {
	return &CommandEncoder{logging: loggingMode}
}

// SetCapabilities installs the negotiated capability set. With
// LITERAL+ the encoder emits {N+} literals, otherwise with LITERAL-
// {N-} literals; with neither it emits synchronizing literals.
func (e *CommandEncoder) SetCapabilities(caps []Capability) {
	e.literalPlus = false
	e.literalMinus = false
	e.binary = false
	for _, c := range caps {
		switch c {
		case CapLiteralPlus:
			e.literalPlus = true
		case CapLiteralMinus:
			e.literalMinus = true
		case CapBinary:
			e.binary = true
		}
	}
}

func (e *CommandEncoder) literalStyle() literalStyle {
	switch {
	case e.literalPlus:
		return literalPlus
	case e.literalMinus:
		return literalMinus
	}
	return literalSync
}

// writeString writes s in the shortest safe form. Sensitive values
// are replaced by the placeholder in logging mode.
func (e *CommandEncoder) writeString(out *bytes.Buffer, s []byte, sensitive bool) {
	if sensitive && e.logging {
		s = redactedPlaceholder
	}
	switch chooseForm(s) {
	case formAtom:
		out.Write(s)
	case formQuoted:
		writeQuoted(out, s)
	default:
		writeLiteralHeader(out, len(s), e.literalStyle(), false)
		out.Write(s)
	}
}

// writeSearchString writes a search-key string argument. The wire
// convention quotes these even when an atom would do.
func (e *CommandEncoder) writeSearchString(out *bytes.Buffer, s []byte, sensitive bool) {
	if sensitive && e.logging {
		s = redactedPlaceholder
	}
	if chooseForm(s) == formLiteral {
		writeLiteralHeader(out, len(s), e.literalStyle(), false)
		out.Write(s)
		return
	}
	writeQuoted(out, s)
}

func (e *CommandEncoder) writeMailbox(out *bytes.Buffer, m imapparser.MailboxName) {
	e.writeString(out, []byte(m), true)
}

// Encode writes one command stream part and reports the number of
// bytes written.
func (e *CommandEncoder) Encode(part *imapparser.CommandEvent, out *bytes.Buffer) int {
	start := out.Len()
	switch part.Kind {
	case imapparser.CommandEventTagged:
		e.encodeCommand(out, part.Command)
	case imapparser.CommandEventAppendBegin:
		e.encodeAppendBegin(out, part)
	case imapparser.CommandEventAppendBytes:
		if !e.appendRedacted {
			out.Write(part.Chunk)
		}
	case imapparser.CommandEventAppendEnd:
		e.appendRedacted = false
	case imapparser.CommandEventAppendFinish:
		out.WriteString("\r\n")
	case imapparser.CommandEventIdleDone:
		out.WriteString("DONE\r\n")
	case imapparser.CommandEventContinuation:
		if e.logging {
			out.Write(redactedPlaceholder)
		} else {
			out.Write(part.Chunk)
		}
		out.WriteString("\r\n")
	}
	return out.Len() - start
}

// encodeAppendBegin writes the per-message APPEND header. In
// logging mode the message payload is replaced by the placeholder
// here and the chunk events are suppressed.
func (e *CommandEncoder) encodeAppendBegin(out *bytes.Buffer, part *imapparser.CommandEvent) {
	out.WriteByte(' ')
	if len(part.Append.Flags) > 0 {
		writeFlags(out, part.Append.Flags)
		out.WriteByte(' ')
	}
	if len(part.Append.Date) > 0 {
		if e.logging {
			writeQuoted(out, redactedPlaceholder)
		} else {
			out.Write(part.Append.Date)
		}
		out.WriteByte(' ')
	}
	if len(part.Append.Catenate) > 0 {
		out.WriteString("CATENATE (")
		for i, cat := range part.Append.Catenate {
			if i > 0 {
				out.WriteByte(' ')
			}
			if cat.URL != nil {
				// URLs are conventionally quoted on the wire.
				out.WriteString("URL ")
				e.writeSearchString(out, []byte(cat.URL.String()), false)
				continue
			}
			out.WriteString("TEXT ")
			text := cat.Text
			if e.logging {
				text = redactedPlaceholder
			}
			writeLiteralHeader(out, len(text), e.literalStyle(), false)
			out.Write(text)
		}
		out.WriteByte(')')
		return
	}

	binary := part.Append.Binary && e.binary
	if e.logging {
		writeLiteralHeader(out, len(redactedPlaceholder), e.literalStyle(), binary)
		out.Write(redactedPlaceholder)
		e.appendRedacted = true
		return
	}
	writeLiteralHeader(out, int(part.Literal), e.literalStyle(), binary)
}

func (e *CommandEncoder) encodeCommand(out *bytes.Buffer, cmd *imapparser.Command) {
	out.Write(cmd.Tag)
	out.WriteByte(' ')
	if cmd.UID {
		out.WriteString("UID ")
	}
	out.WriteString(cmd.Name)

	switch cmd.Name {
	case "CAPABILITY", "NOOP", "LOGOUT", "STARTTLS", "CHECK", "CLOSE",
		"UNSELECT", "NAMESPACE", "IDLE":
		// no arguments

	case "LOGIN":
		out.WriteByte(' ')
		e.writeString(out, cmd.Login.Username, false)
		out.WriteByte(' ')
		e.writeString(out, cmd.Login.Password, true)

	case "AUTHENTICATE":
		out.WriteByte(' ')
		out.Write(cmd.Auth.Mechanism)
		if cmd.Auth.InitialResponse != nil {
			out.WriteByte(' ')
			if e.logging {
				out.Write(redactedPlaceholder)
			} else {
				out.Write(cmd.Auth.InitialResponse)
			}
		}

	case "ENABLE":
		for _, p := range cmd.Params {
			out.WriteByte(' ')
			out.Write(p)
		}

	case "ID":
		out.WriteByte(' ')
		if len(cmd.Params) == 0 {
			out.WriteString("NIL")
			break
		}
		out.WriteByte('(')
		for i, p := range cmd.Params {
			if i > 0 {
				out.WriteByte(' ')
			}
			if p == nil {
				out.WriteString("NIL")
			} else {
				e.writeString(out, p, false)
			}
		}
		out.WriteByte(')')

	case "SELECT", "EXAMINE":
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Mailbox)
		e.encodeSelectParams(out, cmd)

	case "CREATE":
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Mailbox)
		if len(cmd.Create.SpecialUse) > 0 {
			out.WriteString(" (USE ")
			writeFlags(out, cmd.Create.SpecialUse)
			out.WriteByte(')')
		}

	case "DELETE", "SUBSCRIBE", "UNSUBSCRIBE", "GETQUOTAROOT":
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Mailbox)

	case "RENAME":
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Rename.OldMailbox)
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Rename.NewMailbox)

	case "LIST", "LSUB":
		e.encodeList(out, cmd)

	case "STATUS":
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Mailbox)
		out.WriteString(" (")
		for i, item := range cmd.Status.Items {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(statusItemNames[item])
		}
		out.WriteByte(')')

	case "APPEND":
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Mailbox)
		// The message headers and payloads follow as separate
		// stream parts; no newline yet.
		return

	case "EXPUNGE":
		if cmd.UID {
			out.WriteByte(' ')
			writeSeqSet(out, cmd.Sequences)
		}

	case "SEARCH", "ESEARCH":
		e.encodeSearch(out, cmd)

	case "FETCH":
		e.encodeFetch(out, cmd)

	case "STORE":
		e.encodeStore(out, cmd)

	case "COPY", "MOVE":
		out.WriteByte(' ')
		writeSeqSet(out, cmd.Sequences)
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Mailbox)

	case "GETQUOTA":
		out.WriteByte(' ')
		e.writeString(out, cmd.Quota.Root, false)

	case "SETQUOTA":
		out.WriteByte(' ')
		e.writeString(out, cmd.Quota.Root, false)
		out.WriteString(" (")
		for i, r := range cmd.Quota.Resources {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.Write(r.Name)
			out.WriteByte(' ')
			writeNumber(out, r.Limit)
		}
		out.WriteByte(')')

	case "GETMETADATA":
		e.encodeGetMetadata(out, cmd)

	case "SETMETADATA":
		out.WriteByte(' ')
		e.writeMailbox(out, cmd.Mailbox)
		out.WriteString(" (")
		for i, entry := range cmd.Metadata.Set {
			if i > 0 {
				out.WriteByte(' ')
			}
			e.writeString(out, entry.Name, false)
			out.WriteByte(' ')
			if entry.Value == nil {
				out.WriteString("NIL")
			} else {
				// The value is an nstring: quoted or literal, never an atom.
				e.writeSearchString(out, entry.Value, false)
			}
		}
		out.WriteByte(')')

	case "RESETKEY":
		if cmd.Mailbox != nil {
			out.WriteByte(' ')
			e.writeMailbox(out, cmd.Mailbox)
			for _, m := range cmd.URLAuth.Mechanisms {
				out.WriteByte(' ')
				out.WriteString(m)
			}
		}

	case "GENURLAUTH":
		for i, u := range cmd.URLAuth.URLs {
			out.WriteByte(' ')
			e.writeString(out, []byte(u.String()), false)
			out.WriteByte(' ')
			out.WriteString(cmd.URLAuth.Mechanisms[i])
		}

	case "URLFETCH":
		for _, u := range cmd.URLAuth.URLs {
			out.WriteByte(' ')
			e.writeString(out, []byte(u.String()), false)
		}
	}

	out.WriteString("\r\n")
}

var statusItemNames = map[imapparser.StatusItem]string{
	imapparser.StatusMessages:      "MESSAGES",
	imapparser.StatusRecent:        "RECENT",
	imapparser.StatusUIDNext:       "UIDNEXT",
	imapparser.StatusUIDValidity:   "UIDVALIDITY",
	imapparser.StatusUnseen:        "UNSEEN",
	imapparser.StatusHighestModSeq: "HIGHESTMODSEQ",
}

func (e *CommandEncoder) encodeSelectParams(out *bytes.Buffer, cmd *imapparser.Command) {
	q := &cmd.Qresync
	hasQresync := q.UIDValidity != 0 || q.ModSeq != 0
	if !cmd.Condstore && !hasQresync {
		return
	}
	out.WriteString(" (")
	sep := false
	if cmd.Condstore {
		out.WriteString("CONDSTORE")
		sep = true
	}
	if hasQresync {
		if sep {
			out.WriteByte(' ')
		}
		out.WriteString("QRESYNC (")
		writeNumber(out, uint64(q.UIDValidity))
		out.WriteByte(' ')
		writeNumber(out, q.ModSeq)
		if len(q.UIDs) > 0 {
			out.WriteByte(' ')
			imapparser.FormatSeqs(out, q.UIDs)
			if len(q.KnownSeqNumMatch) > 0 {
				out.WriteString(" (")
				imapparser.FormatSeqs(out, q.KnownSeqNumMatch)
				out.WriteByte(' ')
				imapparser.FormatSeqs(out, q.KnownUIDMatch)
				out.WriteByte(')')
			}
		}
		out.WriteByte(')')
	}
	out.WriteByte(')')
}

func (e *CommandEncoder) encodeList(out *bytes.Buffer, cmd *imapparser.Command) {
	if len(cmd.List.SelectOptions) > 0 {
		out.WriteString(" (")
		for i, opt := range cmd.List.SelectOptions {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(opt)
		}
		out.WriteByte(')')
	}
	out.WriteByte(' ')
	e.writeString(out, cmd.List.ReferenceName, false)
	out.WriteByte(' ')
	if len(cmd.List.Patterns) == 1 {
		e.writeString(out, cmd.List.Patterns[0], false)
	} else {
		out.WriteByte('(')
		for i, pat := range cmd.List.Patterns {
			if i > 0 {
				out.WriteByte(' ')
			}
			e.writeString(out, pat, false)
		}
		out.WriteByte(')')
	}
	if len(cmd.List.ReturnOptions) > 0 {
		out.WriteString(" RETURN (")
		for i, opt := range cmd.List.ReturnOptions {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(opt)
		}
		out.WriteByte(')')
	}
}

func (e *CommandEncoder) encodeGetMetadata(out *bytes.Buffer, cmd *imapparser.Command) {
	out.WriteByte(' ')
	if cmd.Metadata.MaxSize != 0 || cmd.Metadata.Depth != "" {
		out.WriteByte('(')
		sep := false
		if cmd.Metadata.MaxSize != 0 {
			out.WriteString("MAXSIZE ")
			writeNumber(out, uint64(cmd.Metadata.MaxSize))
			sep = true
		}
		if cmd.Metadata.Depth != "" {
			if sep {
				out.WriteByte(' ')
			}
			out.WriteString("DEPTH ")
			out.WriteString(cmd.Metadata.Depth)
		}
		out.WriteString(") ")
	}
	e.writeMailbox(out, cmd.Mailbox)
	out.WriteByte(' ')
	if len(cmd.Metadata.Entries) == 1 {
		e.writeString(out, cmd.Metadata.Entries[0], false)
		return
	}
	out.WriteByte('(')
	for i, entry := range cmd.Metadata.Entries {
		if i > 0 {
			out.WriteByte(' ')
		}
		e.writeString(out, entry, false)
	}
	out.WriteByte(')')
}

func (e *CommandEncoder) encodeStore(out *bytes.Buffer, cmd *imapparser.Command) {
	out.WriteByte(' ')
	writeSeqSet(out, cmd.Sequences)
	out.WriteByte(' ')
	if cmd.Store.UnchangedSince != 0 {
		out.WriteString("(UNCHANGEDSINCE ")
		writeNumber(out, cmd.Store.UnchangedSince)
		out.WriteString(") ")
	}
	switch cmd.Store.Mode {
	case imapparser.StoreAdd:
		out.WriteByte('+')
	case imapparser.StoreRemove:
		out.WriteByte('-')
	}
	if cmd.Store.GmailLabels {
		out.WriteString("X-GM-LABELS")
	} else {
		out.WriteString("FLAGS")
		if cmd.Store.Silent {
			out.WriteString(".SILENT")
		}
	}
	out.WriteByte(' ')
	if cmd.Store.GmailLabels && e.logging {
		out.WriteByte('(')
		for i := range cmd.Store.Flags {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.Write(redactedPlaceholder)
		}
		out.WriteByte(')')
		return
	}
	writeFlags(out, cmd.Store.Flags)
}

func (e *CommandEncoder) encodeFetch(out *bytes.Buffer, cmd *imapparser.Command) {
	out.WriteByte(' ')
	writeSeqSet(out, cmd.Sequences)
	out.WriteByte(' ')
	items := cmd.FetchItems
	if len(items) == 1 {
		out.WriteString(items[0].String())
	} else {
		out.WriteByte('(')
		for i := range items {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(items[i].String())
		}
		out.WriteByte(')')
	}
	if cmd.ChangedSince != 0 || cmd.Vanished {
		out.WriteString(" (")
		if cmd.ChangedSince != 0 {
			out.WriteString("CHANGEDSINCE ")
			writeNumber(out, cmd.ChangedSince)
		}
		if cmd.Vanished {
			if cmd.ChangedSince != 0 {
				out.WriteByte(' ')
			}
			out.WriteString("VANISHED")
		}
		out.WriteByte(')')
	}
}

func (e *CommandEncoder) encodeSearch(out *bytes.Buffer, cmd *imapparser.Command) {
	if len(cmd.Search.Source) > 0 {
		out.WriteString(" IN ")
		e.encodeSearchSource(out, cmd.Search.Source)
	}
	// CHARSET is only emitted when the key graph actually contains
	// a string argument.
	if cmd.Search.Charset != "" && searchNeedsCharset(cmd.Search.Op) {
		out.WriteString(" CHARSET ")
		out.WriteString(cmd.Search.Charset)
	}
	if len(cmd.Search.Return) > 0 {
		out.WriteString(" RETURN (")
		for i, r := range cmd.Search.Return {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(r)
		}
		out.WriteByte(')')
	}
	if cmd.Search.Op != nil {
		out.WriteByte(' ')
		e.encodeSearchOp(out, cmd.Search.Op, true)
	}
}

func (e *CommandEncoder) encodeSearchSource(out *bytes.Buffer, srcs []imapparser.ESearchSource) {
	out.WriteByte('(')
	for i, src := range srcs {
		if i > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(src.Kind)
		if len(src.Mailboxes) == 1 {
			out.WriteByte(' ')
			e.writeMailbox(out, src.Mailboxes[0])
		} else if len(src.Mailboxes) > 1 {
			out.WriteString(" (")
			for j, m := range src.Mailboxes {
				if j > 0 {
					out.WriteByte(' ')
				}
				e.writeMailbox(out, m)
			}
			out.WriteByte(')')
		}
	}
	out.WriteByte(')')
}

// searchNeedsCharset reports whether the key graph carries a string
// argument that the charset would apply to.
func searchNeedsCharset(op *imapparser.SearchOp) bool {
	if op == nil {
		return false
	}
	switch op.Key {
	case "BCC", "BODY", "CC", "FROM", "HEADER", "SUBJECT", "TEXT", "TO",
		"KEYWORD", "UNKEYWORD", "X-GM-RAW", "X-GM-LABELS":
		return true
	}
	for i := range op.Children {
		if searchNeedsCharset(&op.Children[i]) {
			return true
		}
	}
	return false
}

// encodeSearchOp writes one search key. A top-level AND is written
// as space-separated keys; nested ANDs become parenthesized groups.
func (e *CommandEncoder) encodeSearchOp(out *bytes.Buffer, op *imapparser.SearchOp, top bool) {
	switch op.Key {
	case "AND":
		if !top {
			out.WriteByte('(')
		}
		for i := range op.Children {
			if i > 0 {
				out.WriteByte(' ')
			}
			e.encodeSearchOp(out, &op.Children[i], false)
		}
		if !top {
			out.WriteByte(')')
		}

	case "SEQSET":
		writeSeqSet(out, op.Sequences)

	case "NOT":
		out.WriteString("NOT ")
		e.encodeSearchOp(out, &op.Children[0], false)

	case "OR":
		out.WriteString("OR ")
		e.encodeSearchOp(out, &op.Children[0], false)
		out.WriteByte(' ')
		e.encodeSearchOp(out, &op.Children[1], false)

	case "BCC", "BODY", "CC", "FROM", "SUBJECT", "TEXT", "TO", "X-GM-RAW",
		"X-GM-LABELS":
		out.WriteString(string(op.Key))
		out.WriteByte(' ')
		e.writeSearchString(out, []byte(op.Value), op.Key == "X-GM-LABELS")

	case "KEYWORD", "UNKEYWORD":
		out.WriteString(string(op.Key))
		out.WriteByte(' ')
		out.WriteString(op.Value)

	case "HEADER":
		out.WriteString("HEADER ")
		name, value := splitHeaderValue(op.Value)
		e.writeSearchString(out, []byte(name), false)
		out.WriteByte(' ')
		e.writeSearchString(out, []byte(value), false)

	case "BEFORE", "ON", "SINCE", "SENTBEFORE", "SENTON", "SENTSINCE":
		out.WriteString(string(op.Key))
		out.WriteByte(' ')
		writeDate(out, op.Date)

	case "LARGER", "SMALLER", "MODSEQ", "X-GM-MSGID", "X-GM-THRID":
		out.WriteString(string(op.Key))
		out.WriteByte(' ')
		writeNumber(out, op.Num)

	case "UID":
		out.WriteString("UID ")
		writeSeqSet(out, op.Sequences)

	default:
		out.WriteString(string(op.Key))
	}
}

// splitHeaderValue splits the parser's "name: value" HEADER form.
func splitHeaderValue(v string) (name, value string) {
	for i := 0; i+1 < len(v); i++ {
		if v[i] == ':' && v[i+1] == ' ' {
			return v[:i], v[i+2:]
		}
	}
	return v, ""
}
