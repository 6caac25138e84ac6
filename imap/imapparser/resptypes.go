package imapparser

import (
	"fmt"
	"time"
)

// Cond is a response condition.
type Cond string

const (
	CondOK      = Cond("OK")
	CondNo      = Cond("NO")
	CondBad     = Cond("BAD")
	CondPreAuth = Cond("PREAUTH")
	CondBye     = Cond("BYE")
)

// ResponseText is the text of a status response with its optional
// bracketed response code.
type ResponseText struct {
	Code *RespTextCode
	Text []byte
}

// RespTextCode is a "[...]" response code.
type RespTextCode struct {
	// Name is the code atom: ALERT, BADCHARSET, CAPABILITY, PARSE,
	// PERMANENTFLAGS, READ-ONLY, READ-WRITE, TRYCREATE, UIDNEXT,
	// UIDVALIDITY, UNSEEN, HIGHESTMODSEQ, NOMODSEQ, MODIFIED,
	// CLOSED, APPENDUID, COPYUID, and unknown atoms carried as-is.
	Name string

	Number       uint64     // UIDNEXT, UIDVALIDITY, UNSEEN, HIGHESTMODSEQ
	Flags        [][]byte   // PERMANENTFLAGS
	Capabilities [][]byte   // CAPABILITY
	Charsets     [][]byte   // BADCHARSET
	Sequences    []SeqRange // MODIFIED
	AppendUID    *AppendUID // APPENDUID
	CopyUID      *CopyUID   // COPYUID
	Args         []byte     // unknown codes: raw argument bytes
}

// AppendUID is the RFC 4315 APPENDUID code payload.
type AppendUID struct {
	UIDValidity uint32
	UIDs        []SeqRange
}

// CopyUID is the RFC 4315 COPYUID code payload.
type CopyUID struct {
	UIDValidity uint32
	Source      []SeqRange
	Dest        []SeqRange
}

// Greeting is the server's initial untagged OK, PREAUTH or BYE.
type Greeting struct {
	Cond Cond
	Text ResponseText
}

// TaggedResponse is a tagged status response.
type TaggedResponse struct {
	Tag  []byte
	Cond Cond // OK, NO or BAD
	Text ResponseText
}

// ContinueRequest is a "+ ..." line. Base64 marks a SASL challenge
// rather than human-readable text.
type ContinueRequest struct {
	Text   []byte
	Base64 bool
}

// UntaggedType enumerates the untagged response payloads.
type UntaggedType int

const (
	UntaggedUnknown UntaggedType = iota
	UntaggedCond                 // OK / NO / BAD / BYE with text
	UntaggedCapability
	UntaggedEnabled
	UntaggedID
	UntaggedFlags
	UntaggedExists
	UntaggedRecent
	UntaggedExpunge
	UntaggedList
	UntaggedLsub
	UntaggedStatus
	UntaggedSearch
	UntaggedESearch
	UntaggedNamespace
	UntaggedQuota
	UntaggedQuotaRoot
	UntaggedMetadata
	UntaggedVanished
)

func (t UntaggedType) String() string {
	switch t {
	case UntaggedCond:
		return "cond"
	case UntaggedCapability:
		return "CAPABILITY"
	case UntaggedEnabled:
		return "ENABLED"
	case UntaggedID:
		return "ID"
	case UntaggedFlags:
		return "FLAGS"
	case UntaggedExists:
		return "EXISTS"
	case UntaggedRecent:
		return "RECENT"
	case UntaggedExpunge:
		return "EXPUNGE"
	case UntaggedList:
		return "LIST"
	case UntaggedLsub:
		return "LSUB"
	case UntaggedStatus:
		return "STATUS"
	case UntaggedSearch:
		return "SEARCH"
	case UntaggedESearch:
		return "ESEARCH"
	case UntaggedNamespace:
		return "NAMESPACE"
	case UntaggedQuota:
		return "QUOTA"
	case UntaggedQuotaRoot:
		return "QUOTAROOT"
	case UntaggedMetadata:
		return "METADATA"
	case UntaggedVanished:
		return "VANISHED"
	}
	return fmt.Sprintf("UntaggedType(%d)", int(t))
}

// ResponsePayload is the payload of one untagged response.
// The Type selects which fields are meaningful.
type ResponsePayload struct {
	Type UntaggedType

	Cond Cond         // UntaggedCond
	Text ResponseText // UntaggedCond

	Capabilities [][]byte // UntaggedCapability, UntaggedEnabled
	ID           [][]byte // UntaggedID: alternating field, value; nil value for NIL
	Flags        [][]byte // UntaggedFlags
	Number       uint32   // UntaggedExists, UntaggedRecent, UntaggedExpunge

	List      ListItem           // UntaggedList, UntaggedLsub
	Status    StatusResponse     // UntaggedStatus
	Search    SearchResponse     // UntaggedSearch
	ESearch   *ESearchResponse   // UntaggedESearch
	Namespace *NamespaceResponse // UntaggedNamespace
	Quota     *QuotaResponse     // UntaggedQuota
	QuotaRoot *QuotaRootResponse // UntaggedQuotaRoot
	Metadata  *MetadataResponse  // UntaggedMetadata
	Vanished  *VanishedResponse  // UntaggedVanished
}

// ListItem is one LIST or LSUB line.
type ListItem struct {
	Attributes [][]byte
	Delimiter  []byte // nil encodes NIL
	Mailbox    MailboxName
}

type StatusResponse struct {
	Mailbox MailboxName
	Items   []StatusCount
}

type StatusCount struct {
	Item  StatusItem
	Value uint64
}

// SearchResponse is the RFC 3501 SEARCH response: a bare number
// list, with an optional CONDSTORE MODSEQ suffix.
type SearchResponse struct {
	Numbers []uint32
	ModSeq  uint64
}

// ESearchResponse is the RFC 4731 extended search response.
type ESearchResponse struct {
	Tag     []byte // correlator, nil when absent
	UID     bool
	Returns []ESearchReturn
}

type ESearchReturn struct {
	// Name is one of MIN, MAX, COUNT, MODSEQ (Number), ALL
	// (Sequences), or an extension atom carried with raw Args.
	Name      string
	Number    uint64
	Sequences []SeqRange
	Args      []byte
}

type NamespaceResponse struct {
	Personal []NamespaceItem
	Other    []NamespaceItem
	Shared   []NamespaceItem
}

type NamespaceItem struct {
	Prefix    []byte
	Delimiter []byte // nil encodes NIL
}

type QuotaResponse struct {
	Root      []byte
	Resources []QuotaResource
}

type QuotaRootResponse struct {
	Mailbox MailboxName
	Roots   [][]byte
}

type MetadataResponse struct {
	Mailbox MailboxName
	// Entries carries entry-value pairs for the value form, or
	// names only (nil Value) for the unsolicited list form.
	Entries []MetadataEntry
}

// VanishedResponse is the RFC 7162 VANISHED response.
type VanishedResponse struct {
	Earlier bool
	UIDs    []SeqRange
}

// Envelope is the parsed ENVELOPE structure.
type Envelope struct {
	Date      []byte // nstring, verbatim
	Subject   []byte
	From      []Address
	Sender    []Address
	ReplyTo   []Address
	To        []Address
	CC        []Address
	BCC       []Address
	InReplyTo []byte
	MessageID []byte
}

// Address is one IMAP envelope address quad.
type Address struct {
	Name    []byte
	ADL     []byte // at-domain-list (source route)
	Mailbox []byte
	Host    []byte
}

// BodyStructure is a parsed BODY or BODYSTRUCTURE tree. Exactly one
// of Single and Multi is set.
type BodyStructure struct {
	Single *SinglePartBody
	Multi  *MultiPartBody
}

// Part navigates a 1-indexed dot-separated part path.
// A nil return means the path does not address a part.
func (bs *BodyStructure) Part(path []uint16) *BodyStructure {
	cur := bs
	for _, n := range path {
		if cur == nil || n == 0 {
			return nil
		}
		switch {
		case cur.Multi != nil:
			if int(n) > len(cur.Multi.Parts) {
				return nil
			}
			cur = cur.Multi.Parts[n-1]
		case cur.Single != nil && cur.Single.Kind == PartKindMessage:
			if n != 1 || cur.Single.Message == nil {
				return nil
			}
			cur = cur.Single.Message.Body
		default:
			if n != 1 {
				return nil
			}
			// part 1 of a non-multipart message is the message itself
		}
	}
	return cur
}

type SinglePartKind int

const (
	PartKindBasic   SinglePartKind = iota // media-basic
	PartKindMessage                       // message/rfc822
	PartKindText                          // text/*
)

// SinglePartBody is a non-multipart body part. Fields is common to
// every kind; Message is set for PartKindMessage and LineCount for
// PartKindMessage and PartKindText.
type SinglePartBody struct {
	Kind SinglePartKind

	MediaType    string // lowercased
	MediaSubtype MediaSubtype

	Fields    BodyFields
	Message   *MessagePart // PartKindMessage
	LineCount uint32       // PartKindText, PartKindMessage

	Ext *SinglePartExt
}

// MessagePart is the envelope and nested body of a message/rfc822
// part.
type MessagePart struct {
	Envelope *Envelope
	Body     *BodyStructure
}

// MediaSubtype wraps a media subtype, lowercased on construction so
// equality is case-insensitive.
type MediaSubtype string

func MakeMediaSubtype(b []byte) MediaSubtype {
	return MediaSubtype(toLowerASCII(b))
}

// BodyFields is the body-fields production common to all single
// parts.
type BodyFields struct {
	// Params holds alternating attribute, value pairs.
	Params      [][]byte
	ID          []byte // nstring
	Description []byte // nstring
	Encoding    string // lowercased: 7bit, 8bit, binary, base64, quoted-printable, or other
	Octets      uint32
}

// SinglePartExt holds the optional body-ext-1part extension data.
type SinglePartExt struct {
	MD5         []byte // nstring
	Disposition *Disposition
	Language    [][]byte
	Location    []byte
}

// MultiPartBody is a multipart body with one or more child parts.
type MultiPartBody struct {
	Parts        []*BodyStructure
	MediaSubtype MediaSubtype
	Ext          *MultiPartExt
}

// MultiPartExt holds the optional body-ext-mpart extension data.
type MultiPartExt struct {
	Params      [][]byte
	Disposition *Disposition
	Language    [][]byte
	Location    []byte
}

type Disposition struct {
	Name   []byte
	Params [][]byte
}

// FetchAttr is one simple (non-streamed) message attribute inside a
// FETCH response.
type FetchAttr struct {
	Type FetchItemType

	Flags         [][]byte       // FLAGS, X-GM-LABELS
	UID           uint32         // UID
	Size          uint32         // RFC822.SIZE
	ModSeq        uint64         // MODSEQ
	Date          time.Time      // INTERNALDATE
	Envelope      *Envelope      // ENVELOPE
	BodyStructure *BodyStructure // BODY, BODYSTRUCTURE
	Number        uint64         // BINARY.SIZE, X-GM-MSGID, X-GM-THRID
	Section       *FetchItemSection
	Partial       uint32 // BINARY.SIZE section partial, unused
	NilValue      bool   // streamed attribute whose value was NIL
}

// FetchEventKind enumerates the sub-stream of one FETCH response.
type FetchEventKind int

const (
	FetchStart FetchEventKind = iota + 1
	FetchSimple
	FetchStreamBegin
	FetchStreamBytes
	FetchStreamEnd
	FetchFinish
)

func (k FetchEventKind) String() string {
	switch k {
	case FetchStart:
		return "start"
	case FetchSimple:
		return "simple-attribute"
	case FetchStreamBegin:
		return "streaming-begin"
	case FetchStreamBytes:
		return "streaming-bytes"
	case FetchStreamEnd:
		return "streaming-end"
	case FetchFinish:
		return "finish"
	}
	return fmt.Sprintf("FetchEventKind(%d)", int(k))
}

// FetchEvent is one frame of the FETCH sub-stream:
//
//	start attr* (stream-begin stream-bytes* stream-end)* finish
type FetchEvent struct {
	Kind FetchEventKind

	SeqNum uint32    // FetchStart
	Attr   FetchAttr // FetchSimple

	// Stream describes the attribute being streamed for
	// FetchStreamBegin: the item (BODY, BINARY, RFC822.TEXT, ...)
	// with its section, and the declared octet count.
	Stream    FetchItem // FetchStreamBegin
	ByteCount uint32    // FetchStreamBegin

	Chunk []byte // FetchStreamBytes
}

// ResponseEventKind enumerates ResponseOrContinuationRequest.
type ResponseEventKind int

const (
	ResponseEventGreeting ResponseEventKind = iota + 1
	ResponseEventContinueReq
	ResponseEventUntagged
	ResponseEventTagged
	ResponseEventFetch
	ResponseEventFatal
)

// ResponseEvent is one frame of the parsed response stream.
type ResponseEvent struct {
	Kind ResponseEventKind

	Greeting *Greeting
	Continue *ContinueRequest
	Untagged *ResponsePayload
	Tagged   *TaggedResponse
	Fetch    *FetchEvent
	Fatal    *ResponseText
}
