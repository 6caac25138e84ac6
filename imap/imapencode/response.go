package imapencode

import (
	"bytes"

	"spool.ink/imap/imapparser"
)

// ResponseEncoder writes response stream events to the wire.
// Server literals are always synchronizing form; the client does
// not acknowledge them.
type ResponseEncoder struct {
	fetchFirst bool
}

func NewResponseEncoder() *ResponseEncoder {
	return &ResponseEncoder{}
}

// Encode writes one response event and reports the number of bytes
// written.
func (e *ResponseEncoder) Encode(ev *imapparser.ResponseEvent, out *bytes.Buffer) int {
	start := out.Len()
	switch ev.Kind {
	case imapparser.ResponseEventGreeting:
		out.WriteString("* ")
		out.WriteString(string(ev.Greeting.Cond))
		out.WriteByte(' ')
		writeResponseText(out, ev.Greeting.Text)
		out.WriteString("\r\n")

	case imapparser.ResponseEventContinueReq:
		out.WriteByte('+')
		if len(ev.Continue.Text) > 0 {
			out.WriteByte(' ')
			out.Write(ev.Continue.Text)
		} else {
			out.WriteByte(' ')
		}
		out.WriteString("\r\n")

	case imapparser.ResponseEventTagged:
		out.Write(ev.Tagged.Tag)
		out.WriteByte(' ')
		out.WriteString(string(ev.Tagged.Cond))
		out.WriteByte(' ')
		writeResponseText(out, ev.Tagged.Text)
		out.WriteString("\r\n")

	case imapparser.ResponseEventFatal:
		out.WriteString("* BYE ")
		writeResponseText(out, *ev.Fatal)
		out.WriteString("\r\n")

	case imapparser.ResponseEventUntagged:
		e.encodeUntagged(out, ev.Untagged)

	case imapparser.ResponseEventFetch:
		e.encodeFetchEvent(out, ev.Fetch)
	}
	return out.Len() - start
}

func writeString(out *bytes.Buffer, s []byte) {
	switch chooseForm(s) {
	case formAtom:
		out.Write(s)
	case formQuoted:
		writeQuoted(out, s)
	default:
		writeLiteralHeader(out, len(s), literalSync, false)
		out.Write(s)
	}
}

func writeNString(out *bytes.Buffer, s []byte) {
	if s == nil {
		out.WriteString("NIL")
		return
	}
	if chooseForm(s) == formLiteral {
		writeLiteralHeader(out, len(s), literalSync, false)
		out.Write(s)
		return
	}
	writeQuoted(out, s)
}

func writeResponseText(out *bytes.Buffer, rt imapparser.ResponseText) {
	if rt.Code != nil {
		writeRespTextCode(out, rt.Code)
		if len(rt.Text) > 0 {
			out.WriteByte(' ')
		}
	}
	out.Write(rt.Text)
}

func writeRespTextCode(out *bytes.Buffer, code *imapparser.RespTextCode) {
	out.WriteByte('[')
	out.WriteString(code.Name)
	switch code.Name {
	case "CAPABILITY":
		for _, c := range code.Capabilities {
			out.WriteByte(' ')
			out.Write(c)
		}
	case "PERMANENTFLAGS":
		out.WriteByte(' ')
		writeFlags(out, code.Flags)
	case "BADCHARSET":
		if len(code.Charsets) > 0 {
			out.WriteString(" (")
			for i, cs := range code.Charsets {
				if i > 0 {
					out.WriteByte(' ')
				}
				writeString(out, cs)
			}
			out.WriteByte(')')
		}
	case "UIDNEXT", "UIDVALIDITY", "UNSEEN", "HIGHESTMODSEQ":
		out.WriteByte(' ')
		writeNumber(out, code.Number)
	case "MODIFIED":
		out.WriteByte(' ')
		imapparser.FormatSeqs(out, code.Sequences)
	case "APPENDUID":
		out.WriteByte(' ')
		writeNumber(out, uint64(code.AppendUID.UIDValidity))
		out.WriteByte(' ')
		imapparser.FormatSeqs(out, code.AppendUID.UIDs)
	case "COPYUID":
		out.WriteByte(' ')
		writeNumber(out, uint64(code.CopyUID.UIDValidity))
		out.WriteByte(' ')
		imapparser.FormatSeqs(out, code.CopyUID.Source)
		out.WriteByte(' ')
		imapparser.FormatSeqs(out, code.CopyUID.Dest)
	default:
		if len(code.Args) > 0 {
			out.WriteByte(' ')
			out.Write(code.Args)
		}
	}
	out.WriteByte(']')
}

func (e *ResponseEncoder) encodeUntagged(out *bytes.Buffer, pl *imapparser.ResponsePayload) {
	out.WriteString("* ")
	switch pl.Type {
	case imapparser.UntaggedCond:
		out.WriteString(string(pl.Cond))
		out.WriteByte(' ')
		writeResponseText(out, pl.Text)

	case imapparser.UntaggedCapability, imapparser.UntaggedEnabled:
		if pl.Type == imapparser.UntaggedCapability {
			out.WriteString("CAPABILITY")
		} else {
			out.WriteString("ENABLED")
		}
		for _, c := range pl.Capabilities {
			out.WriteByte(' ')
			out.Write(c)
		}

	case imapparser.UntaggedID:
		out.WriteString("ID ")
		if len(pl.ID) == 0 {
			out.WriteString("NIL")
		} else {
			out.WriteByte('(')
			for i, p := range pl.ID {
				if i > 0 {
					out.WriteByte(' ')
				}
				writeNString(out, p)
			}
			out.WriteByte(')')
		}

	case imapparser.UntaggedFlags:
		out.WriteString("FLAGS ")
		writeFlags(out, pl.Flags)

	case imapparser.UntaggedExists:
		writeNumber(out, uint64(pl.Number))
		out.WriteString(" EXISTS")
	case imapparser.UntaggedRecent:
		writeNumber(out, uint64(pl.Number))
		out.WriteString(" RECENT")
	case imapparser.UntaggedExpunge:
		writeNumber(out, uint64(pl.Number))
		out.WriteString(" EXPUNGE")

	case imapparser.UntaggedList, imapparser.UntaggedLsub:
		if pl.Type == imapparser.UntaggedList {
			out.WriteString("LIST ")
		} else {
			out.WriteString("LSUB ")
		}
		writeFlags(out, pl.List.Attributes)
		out.WriteByte(' ')
		if pl.List.Delimiter == nil {
			out.WriteString("NIL")
		} else {
			writeQuoted(out, pl.List.Delimiter)
		}
		out.WriteByte(' ')
		writeString(out, []byte(pl.List.Mailbox))

	case imapparser.UntaggedStatus:
		out.WriteString("STATUS ")
		writeString(out, []byte(pl.Status.Mailbox))
		out.WriteString(" (")
		for i, item := range pl.Status.Items {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(statusItemNames[item.Item])
			out.WriteByte(' ')
			writeNumber(out, item.Value)
		}
		out.WriteByte(')')

	case imapparser.UntaggedSearch:
		out.WriteString("SEARCH")
		for _, n := range pl.Search.Numbers {
			out.WriteByte(' ')
			writeNumber(out, uint64(n))
		}
		if pl.Search.ModSeq != 0 {
			out.WriteString(" (MODSEQ ")
			writeNumber(out, pl.Search.ModSeq)
			out.WriteByte(')')
		}

	case imapparser.UntaggedESearch:
		out.WriteString("ESEARCH")
		es := pl.ESearch
		if es.Tag != nil {
			out.WriteString(" (TAG ")
			writeQuoted(out, es.Tag)
			out.WriteByte(')')
		}
		if es.UID {
			out.WriteString(" UID")
		}
		for _, ret := range es.Returns {
			out.WriteByte(' ')
			out.WriteString(ret.Name)
			out.WriteByte(' ')
			switch ret.Name {
			case "ALL":
				imapparser.FormatSeqs(out, ret.Sequences)
			case "MIN", "MAX", "COUNT", "MODSEQ":
				writeNumber(out, ret.Number)
			default:
				out.Write(ret.Args)
			}
		}

	case imapparser.UntaggedNamespace:
		out.WriteString("NAMESPACE")
		for _, items := range [][]imapparser.NamespaceItem{
			pl.Namespace.Personal, pl.Namespace.Other, pl.Namespace.Shared,
		} {
			out.WriteByte(' ')
			writeNamespaceItems(out, items)
		}

	case imapparser.UntaggedQuota:
		out.WriteString("QUOTA ")
		writeString(out, pl.Quota.Root)
		out.WriteString(" (")
		for i, r := range pl.Quota.Resources {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.Write(r.Name)
			out.WriteByte(' ')
			writeNumber(out, r.Usage)
			out.WriteByte(' ')
			writeNumber(out, r.Limit)
		}
		out.WriteByte(')')

	case imapparser.UntaggedQuotaRoot:
		out.WriteString("QUOTAROOT ")
		writeString(out, []byte(pl.QuotaRoot.Mailbox))
		for _, r := range pl.QuotaRoot.Roots {
			out.WriteByte(' ')
			writeString(out, r)
		}

	case imapparser.UntaggedMetadata:
		out.WriteString("METADATA ")
		writeString(out, []byte(pl.Metadata.Mailbox))
		out.WriteString(" (")
		for i, entry := range pl.Metadata.Entries {
			if i > 0 {
				out.WriteByte(' ')
			}
			writeString(out, entry.Name)
			out.WriteByte(' ')
			writeNString(out, entry.Value)
		}
		out.WriteByte(')')

	case imapparser.UntaggedVanished:
		out.WriteString("VANISHED ")
		if pl.Vanished.Earlier {
			out.WriteString("(EARLIER) ")
		}
		imapparser.FormatSeqs(out, pl.Vanished.UIDs)
	}
	out.WriteString("\r\n")
}

func writeNamespaceItems(out *bytes.Buffer, items []imapparser.NamespaceItem) {
	if items == nil {
		out.WriteString("NIL")
		return
	}
	out.WriteByte('(')
	for _, item := range items {
		out.WriteByte('(')
		writeQuoted(out, item.Prefix)
		out.WriteByte(' ')
		if item.Delimiter == nil {
			out.WriteString("NIL")
		} else {
			writeQuoted(out, item.Delimiter)
		}
		out.WriteByte(')')
	}
	out.WriteByte(')')
}

func (e *ResponseEncoder) encodeFetchEvent(out *bytes.Buffer, ev *imapparser.FetchEvent) {
	switch ev.Kind {
	case imapparser.FetchStart:
		out.WriteString("* ")
		writeNumber(out, uint64(ev.SeqNum))
		out.WriteString(" FETCH (")
		e.fetchFirst = true

	case imapparser.FetchSimple:
		if !e.fetchFirst {
			out.WriteByte(' ')
		}
		e.fetchFirst = false
		writeFetchAttr(out, &ev.Attr)

	case imapparser.FetchStreamBegin:
		if !e.fetchFirst {
			out.WriteByte(' ')
		}
		e.fetchFirst = false
		item := ev.Stream
		out.WriteString(string(item.Type))
		switch item.Type {
		case imapparser.FetchBody, imapparser.FetchBinary:
			writeSection(out, &item.Section)
			if item.Partial.Start != 0 {
				out.WriteByte('<')
				writeNumber(out, uint64(item.Partial.Start))
				out.WriteByte('>')
			}
		}
		out.WriteByte(' ')
		writeLiteralHeader(out, int(ev.ByteCount), literalSync,
			item.Type == imapparser.FetchBinary)

	case imapparser.FetchStreamBytes:
		out.Write(ev.Chunk)

	case imapparser.FetchStreamEnd:
		// nothing on the wire; the literal is already delimited

	case imapparser.FetchFinish:
		out.WriteString(")\r\n")
	}
}

func writeSection(out *bytes.Buffer, sec *imapparser.FetchItemSection) {
	out.WriteByte('[')
	for i, p := range sec.Path {
		if i > 0 {
			out.WriteByte('.')
		}
		writeNumber(out, uint64(p))
	}
	if sec.Name != "" {
		if len(sec.Path) > 0 {
			out.WriteByte('.')
		}
		out.WriteString(sec.Name)
		if len(sec.Headers) > 0 {
			out.WriteString(" (")
			for i, h := range sec.Headers {
				if i > 0 {
					out.WriteByte(' ')
				}
				writeString(out, h)
			}
			out.WriteByte(')')
		}
	}
	out.WriteByte(']')
}

func writeFetchAttr(out *bytes.Buffer, attr *imapparser.FetchAttr) {
	switch attr.Type {
	case imapparser.FetchFlags:
		out.WriteString("FLAGS ")
		writeFlags(out, attr.Flags)
	case imapparser.FetchGmailLabels:
		out.WriteString("X-GM-LABELS ")
		writeFlags(out, attr.Flags)
	case imapparser.FetchUID:
		out.WriteString("UID ")
		writeNumber(out, uint64(attr.UID))
	case imapparser.FetchRFC822Size:
		out.WriteString("RFC822.SIZE ")
		writeNumber(out, uint64(attr.Size))
	case imapparser.FetchInternalDate:
		out.WriteString("INTERNALDATE ")
		writeDateTime(out, attr.Date)
	case imapparser.FetchModSeq:
		out.WriteString("MODSEQ (")
		writeNumber(out, attr.ModSeq)
		out.WriteByte(')')
	case imapparser.FetchEnvelope:
		out.WriteString("ENVELOPE ")
		writeEnvelope(out, attr.Envelope)
	case imapparser.FetchBodyStructure:
		out.WriteString("BODYSTRUCTURE ")
		writeBodyStructure(out, attr.BodyStructure)
	case imapparser.FetchGmailMsgID:
		out.WriteString("X-GM-MSGID ")
		writeNumber(out, attr.Number)
	case imapparser.FetchGmailThreadID:
		out.WriteString("X-GM-THRID ")
		writeNumber(out, attr.Number)
	case imapparser.FetchBinarySize:
		out.WriteString("BINARY.SIZE")
		if attr.Section != nil {
			writeSection(out, attr.Section)
		}
		out.WriteByte(' ')
		writeNumber(out, attr.Number)
	default:
		// A streamed attribute surfaced as NIL.
		out.WriteString(string(attr.Type))
		if attr.Section != nil {
			writeSection(out, attr.Section)
		}
		out.WriteString(" NIL")
	}
}

func writeEnvelope(out *bytes.Buffer, env *imapparser.Envelope) {
	out.WriteByte('(')
	writeNString(out, env.Date)
	out.WriteByte(' ')
	writeNString(out, env.Subject)
	for _, addrs := range [][]imapparser.Address{
		env.From, env.Sender, env.ReplyTo, env.To, env.CC, env.BCC,
	} {
		out.WriteByte(' ')
		writeAddressList(out, addrs)
	}
	out.WriteByte(' ')
	writeNString(out, env.InReplyTo)
	out.WriteByte(' ')
	writeNString(out, env.MessageID)
	out.WriteByte(')')
}

func writeAddressList(out *bytes.Buffer, addrs []imapparser.Address) {
	if addrs == nil {
		out.WriteString("NIL")
		return
	}
	out.WriteByte('(')
	for _, a := range addrs {
		out.WriteByte('(')
		writeNString(out, a.Name)
		out.WriteByte(' ')
		writeNString(out, a.ADL)
		out.WriteByte(' ')
		writeNString(out, a.Mailbox)
		out.WriteByte(' ')
		writeNString(out, a.Host)
		out.WriteByte(')')
	}
	out.WriteByte(')')
}

func writeBodyParams(out *bytes.Buffer, params [][]byte) {
	if params == nil {
		out.WriteString("NIL")
		return
	}
	out.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			out.WriteByte(' ')
		}
		writeNString(out, p)
	}
	out.WriteByte(')')
}

func writeDisposition(out *bytes.Buffer, d *imapparser.Disposition) {
	if d == nil {
		out.WriteString("NIL")
		return
	}
	out.WriteByte('(')
	writeNString(out, d.Name)
	out.WriteByte(' ')
	writeBodyParams(out, d.Params)
	out.WriteByte(')')
}

func writeLanguage(out *bytes.Buffer, langs [][]byte) {
	switch len(langs) {
	case 0:
		out.WriteString("NIL")
	case 1:
		writeNString(out, langs[0])
	default:
		out.WriteByte('(')
		for i, l := range langs {
			if i > 0 {
				out.WriteByte(' ')
			}
			writeNString(out, l)
		}
		out.WriteByte(')')
	}
}

// writeBodyStructure writes the media type, subtype and fields of a
// body part tree, with any extension data present in the value.
func writeBodyStructure(out *bytes.Buffer, bs *imapparser.BodyStructure) {
	out.WriteByte('(')
	switch {
	case bs.Multi != nil:
		mp := bs.Multi
		for _, part := range mp.Parts {
			writeBodyStructure(out, part)
		}
		out.WriteByte(' ')
		writeQuoted(out, []byte(mp.MediaSubtype))
		if mp.Ext != nil {
			out.WriteByte(' ')
			writeBodyParams(out, mp.Ext.Params)
			out.WriteByte(' ')
			writeDisposition(out, mp.Ext.Disposition)
			out.WriteByte(' ')
			writeLanguage(out, mp.Ext.Language)
			out.WriteByte(' ')
			writeNString(out, mp.Ext.Location)
		}

	case bs.Single != nil:
		sp := bs.Single
		writeQuoted(out, []byte(sp.MediaType))
		out.WriteByte(' ')
		writeQuoted(out, []byte(sp.MediaSubtype))
		out.WriteByte(' ')
		writeBodyParams(out, sp.Fields.Params)
		out.WriteByte(' ')
		writeNString(out, sp.Fields.ID)
		out.WriteByte(' ')
		writeNString(out, sp.Fields.Description)
		out.WriteByte(' ')
		writeQuoted(out, []byte(sp.Fields.Encoding))
		out.WriteByte(' ')
		writeNumber(out, uint64(sp.Fields.Octets))
		switch sp.Kind {
		case imapparser.PartKindMessage:
			out.WriteByte(' ')
			writeEnvelope(out, sp.Message.Envelope)
			out.WriteByte(' ')
			writeBodyStructure(out, sp.Message.Body)
			out.WriteByte(' ')
			writeNumber(out, uint64(sp.LineCount))
		case imapparser.PartKindText:
			out.WriteByte(' ')
			writeNumber(out, uint64(sp.LineCount))
		}
		if sp.Ext != nil {
			out.WriteByte(' ')
			writeNString(out, sp.Ext.MD5)
			out.WriteByte(' ')
			writeDisposition(out, sp.Ext.Disposition)
			out.WriteByte(' ')
			writeLanguage(out, sp.Ext.Language)
			out.WriteByte(' ')
			writeNString(out, sp.Ext.Location)
		}
	}
	out.WriteByte(')')
}
