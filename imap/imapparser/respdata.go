package imapparser

import (
	wire "spool.ink/imap/imapwire"
)

// parseEnvelope parses the ENVELOPE structure:
//
//	envelope = "(" env-date SP env-subject SP env-from SP env-sender
//	           SP env-reply-to SP env-to SP env-cc SP env-bcc SP
//	           env-in-reply-to SP env-message-id ")"
func parseEnvelope(c *wire.Cursor) (*Envelope, error) {
	if err := wire.FixedString(c, "("); err != nil {
		return nil, err
	}
	env := &Envelope{}
	var err error
	if env.Date, _, err = readNString(c); err != nil {
		return nil, err
	}
	if err := wire.Space(c); err != nil {
		return nil, err
	}
	if env.Subject, _, err = readNString(c); err != nil {
		return nil, err
	}
	for _, dst := range []*[]Address{
		&env.From, &env.Sender, &env.ReplyTo, &env.To, &env.CC, &env.BCC,
	} {
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if *dst, err = parseAddressList(c); err != nil {
			return nil, err
		}
	}
	if err := wire.Space(c); err != nil {
		return nil, err
	}
	if env.InReplyTo, _, err = readNString(c); err != nil {
		return nil, err
	}
	if err := wire.Space(c); err != nil {
		return nil, err
	}
	if env.MessageID, _, err = readNString(c); err != nil {
		return nil, err
	}
	if err := wire.FixedString(c, ")"); err != nil {
		return nil, err
	}
	return env, nil
}

// parseAddressList parses "(" 1*address ")" / NIL.
func parseAddressList(c *wire.Cursor) ([]Address, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '(' {
		if err := wire.FixedString(c, "NIL"); err != nil {
			return nil, wire.Errorf("imapparser: expected address list or NIL")
		}
		return nil, nil
	}
	c.ReadByte()
	var addrs []Address
	for {
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ')' {
			c.ReadByte()
			return addrs, nil
		}
		if b == ' ' {
			// Some servers put spaces between addresses.
			c.ReadByte()
			continue
		}
		addr, err := parseAddress(c)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
}

// parseAddress parses one address quad:
//
//	address = "(" addr-name SP addr-adl SP addr-mailbox SP
//	          addr-host ")"
func parseAddress(c *wire.Cursor) (Address, error) {
	var a Address
	if err := wire.FixedString(c, "("); err != nil {
		return a, err
	}
	var err error
	if a.Name, _, err = readNString(c); err != nil {
		return a, err
	}
	if err := wire.Space(c); err != nil {
		return a, err
	}
	if a.ADL, _, err = readNString(c); err != nil {
		return a, err
	}
	if err := wire.Space(c); err != nil {
		return a, err
	}
	if a.Mailbox, _, err = readNString(c); err != nil {
		return a, err
	}
	if err := wire.Space(c); err != nil {
		return a, err
	}
	if a.Host, _, err = readNString(c); err != nil {
		return a, err
	}
	if err := wire.FixedString(c, ")"); err != nil {
		return a, err
	}
	return a, nil
}

// parseBodyStructure parses a BODY or BODYSTRUCTURE tree.
//
// The parser disambiguates single versus multipart by look-ahead on
// the first child: a multipart begins with "(" (another body), a
// single part with a media-type string.
func parseBodyStructure(c *wire.Cursor, t *wire.Tracker) (*BodyStructure, error) {
	return wire.Composite(c, t, func() (*BodyStructure, error) {
		if err := wire.FixedString(c, "("); err != nil {
			return nil, err
		}
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		var bs BodyStructure
		if b == '(' {
			if bs.Multi, err = parseMultiPart(c, t); err != nil {
				return nil, err
			}
		} else {
			if bs.Single, err = parseSinglePart(c, t); err != nil {
				return nil, err
			}
		}
		if err := wire.FixedString(c, ")"); err != nil {
			return nil, err
		}
		return &bs, nil
	})
}

// parseMultiPart parses the inside of a multipart body:
//
//	body-type-mpart = 1*body SP media-subtype
//	                  [SP body-ext-mpart]
func parseMultiPart(c *wire.Cursor, t *wire.Tracker) (*MultiPartBody, error) {
	mp := &MultiPartBody{}
	for {
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b != '(' {
			break
		}
		child, err := parseBodyStructure(c, t)
		if err != nil {
			return nil, err
		}
		mp.Parts = append(mp.Parts, child)
	}
	if len(mp.Parts) == 0 {
		return nil, wire.Errorf("imapparser: multipart with no parts")
	}
	if err := wire.Space(c); err != nil {
		return nil, err
	}
	sub, err := readString(c)
	if err != nil {
		return nil, err
	}
	mp.MediaSubtype = MakeMediaSubtype(sub)

	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != ' ' {
		return mp, nil
	}
	c.ReadByte()

	// body-ext-mpart = body-fld-param [SP body-fld-dsp
	//                  [SP body-fld-lang [SP body-fld-loc
	//                  *(SP body-extension)]]]
	ext := &MultiPartExt{}
	mp.Ext = ext
	if ext.Params, err = parseBodyParams(c); err != nil {
		return nil, err
	}
	if done, err := extDone(c); done || err != nil {
		return mp, err
	}
	if ext.Disposition, err = parseDisposition(c); err != nil {
		return nil, err
	}
	if done, err := extDone(c); done || err != nil {
		return mp, err
	}
	if ext.Language, err = parseLanguage(c); err != nil {
		return nil, err
	}
	if done, err := extDone(c); done || err != nil {
		return mp, err
	}
	if ext.Location, _, err = readNString(c); err != nil {
		return nil, err
	}
	return mp, skipBodyExtensions(c, t)
}

// parseSinglePart parses the inside of a non-multipart body:
//
//	body-type-1part = (body-type-basic / body-type-msg /
//	                  body-type-text) [SP body-ext-1part]
func parseSinglePart(c *wire.Cursor, t *wire.Tracker) (*SinglePartBody, error) {
	sp := &SinglePartBody{}
	mt, err := readString(c)
	if err != nil {
		return nil, err
	}
	sp.MediaType = string(toLowerASCII(mt))
	if err := wire.Space(c); err != nil {
		return nil, err
	}
	sub, err := readString(c)
	if err != nil {
		return nil, err
	}
	sp.MediaSubtype = MakeMediaSubtype(sub)
	if err := wire.Space(c); err != nil {
		return nil, err
	}
	if sp.Fields, err = parseBodyFields(c); err != nil {
		return nil, err
	}

	switch {
	case sp.MediaType == "message" && sp.MediaSubtype == "rfc822":
		sp.Kind = PartKindMessage
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		msg := &MessagePart{}
		if msg.Envelope, err = parseEnvelope(c); err != nil {
			return nil, err
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if msg.Body, err = parseBodyStructure(c, t); err != nil {
			return nil, err
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if sp.LineCount, err = wire.Number32(c); err != nil {
			return nil, err
		}
		sp.Message = msg
	case sp.MediaType == "text":
		sp.Kind = PartKindText
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		if sp.LineCount, err = wire.Number32(c); err != nil {
			return nil, err
		}
	default:
		sp.Kind = PartKindBasic
	}

	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != ' ' {
		return sp, nil
	}
	c.ReadByte()

	// body-ext-1part = body-fld-md5 [SP body-fld-dsp
	//                  [SP body-fld-lang [SP body-fld-loc
	//                  *(SP body-extension)]]]
	ext := &SinglePartExt{}
	sp.Ext = ext
	if ext.MD5, _, err = readNString(c); err != nil {
		return nil, err
	}
	if done, err := extDone(c); done || err != nil {
		return sp, err
	}
	if ext.Disposition, err = parseDisposition(c); err != nil {
		return nil, err
	}
	if done, err := extDone(c); done || err != nil {
		return sp, err
	}
	if ext.Language, err = parseLanguage(c); err != nil {
		return nil, err
	}
	if done, err := extDone(c); done || err != nil {
		return sp, err
	}
	if ext.Location, _, err = readNString(c); err != nil {
		return nil, err
	}
	return sp, skipBodyExtensions(c, t)
}

// extDone consumes the SP between extension fields, reporting true
// when the closing paren has been reached instead.
func extDone(c *wire.Cursor) (bool, error) {
	b, err := c.PeekByte()
	if err != nil {
		return false, err
	}
	if b == ')' {
		return true, nil
	}
	if b != ' ' {
		return false, wire.Errorf("imapparser: malformed body extension")
	}
	c.ReadByte()
	return false, nil
}

// parseBodyFields parses body-fields:
//
//	body-fields = body-fld-param SP body-fld-id SP body-fld-desc
//	              SP body-fld-enc SP body-fld-octets
func parseBodyFields(c *wire.Cursor) (BodyFields, error) {
	var f BodyFields
	var err error
	if f.Params, err = parseBodyParams(c); err != nil {
		return f, err
	}
	if err := wire.Space(c); err != nil {
		return f, err
	}
	if f.ID, _, err = readNString(c); err != nil {
		return f, err
	}
	if err := wire.Space(c); err != nil {
		return f, err
	}
	if f.Description, _, err = readNString(c); err != nil {
		return f, err
	}
	if err := wire.Space(c); err != nil {
		return f, err
	}
	enc, err := readString(c)
	if err != nil {
		return f, err
	}
	f.Encoding = string(toLowerASCII(enc))
	if err := wire.Space(c); err != nil {
		return f, err
	}
	if f.Octets, err = wire.Number32(c); err != nil {
		return f, err
	}
	return f, nil
}

// parseBodyParams parses body-fld-param:
//
//	body-fld-param = "(" string SP string *(SP string SP string) ")"
//	                 / nil
func parseBodyParams(c *wire.Cursor) ([][]byte, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '(' {
		if err := wire.FixedString(c, "NIL"); err != nil {
			return nil, wire.Errorf("imapparser: expected parameter list or NIL")
		}
		return nil, nil
	}
	c.ReadByte()
	var params [][]byte
	for {
		b, err := c.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ')' {
			c.ReadByte()
			return params, nil
		}
		if len(params) > 0 {
			if err := wire.Space(c); err != nil {
				return nil, err
			}
		}
		name, err := readString(c)
		if err != nil {
			return nil, err
		}
		if err := wire.Space(c); err != nil {
			return nil, err
		}
		value, err := readString(c)
		if err != nil {
			return nil, err
		}
		params = append(params, name, value)
	}
}

// parseDisposition parses body-fld-dsp:
//
//	body-fld-dsp = "(" string SP body-fld-param ")" / nil
func parseDisposition(c *wire.Cursor) (*Disposition, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '(' {
		if err := wire.FixedString(c, "NIL"); err != nil {
			return nil, wire.Errorf("imapparser: expected disposition or NIL")
		}
		return nil, nil
	}
	c.ReadByte()
	d := &Disposition{}
	if d.Name, err = readString(c); err != nil {
		return nil, err
	}
	if err := wire.Space(c); err != nil {
		return nil, err
	}
	if d.Params, err = parseBodyParams(c); err != nil {
		return nil, err
	}
	if err := wire.FixedString(c, ")"); err != nil {
		return nil, err
	}
	return d, nil
}

// parseLanguage parses body-fld-lang: nstring or a parenthesized
// list of strings.
func parseLanguage(c *wire.Cursor) ([][]byte, error) {
	b, err := c.PeekByte()
	if err != nil {
		return nil, err
	}
	if b == '(' {
		c.ReadByte()
		var langs [][]byte
		for {
			b, err := c.PeekByte()
			if err != nil {
				return nil, err
			}
			if b == ')' {
				c.ReadByte()
				return langs, nil
			}
			if len(langs) > 0 {
				if err := wire.Space(c); err != nil {
					return nil, err
				}
			}
			l, err := readString(c)
			if err != nil {
				return nil, err
			}
			langs = append(langs, l)
		}
	}
	l, ok, err := readNString(c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return [][]byte{l}, nil
}

// skipBodyExtensions scans past any trailing generic
// body-extension values:
//
//	body-extension = nstring / number /
//	                 "(" body-extension *(SP body-extension) ")"
func skipBodyExtensions(c *wire.Cursor, t *wire.Tracker) error {
	for {
		b, err := c.PeekByte()
		if err != nil {
			return err
		}
		if b == ')' {
			return nil
		}
		if b != ' ' {
			return wire.Errorf("imapparser: malformed body extension")
		}
		c.ReadByte()
		if err := skipBodyExtension(c, t); err != nil {
			return err
		}
	}
}

func skipBodyExtension(c *wire.Cursor, t *wire.Tracker) error {
	_, err := wire.Composite(c, t, func() (struct{}, error) {
		var zero struct{}
		b, err := c.PeekByte()
		if err != nil {
			return zero, err
		}
		switch {
		case b == '(':
			c.ReadByte()
			first := true
			for {
				b, err := c.PeekByte()
				if err != nil {
					return zero, err
				}
				if b == ')' {
					c.ReadByte()
					return zero, nil
				}
				if !first {
					if err := wire.Space(c); err != nil {
						return zero, err
					}
				}
				first = false
				if err := skipBodyExtension(c, t); err != nil {
					return zero, err
				}
			}
		case wire.IsDigit(b):
			_, err := wire.Number(c)
			return zero, err
		default:
			_, _, err := readNString(c)
			return zero, err
		}
	})
	return err
}
