package imapparser

import (
	"golang.org/x/text/encoding/ianaindex"
)

// validCharset reports whether name is a charset label this parser
// will accept in SEARCH CHARSET. UTF-8 and US-ASCII are mandatory;
// anything else must at least be a registered IANA label.
func validCharset(name string) bool {
	switch name {
	case "UTF-8", "US-ASCII":
		return true
	}
	enc, err := ianaindex.IANA.Encoding(name)
	return err == nil && enc != nil
}
