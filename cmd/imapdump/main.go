// Command imapdump decodes a raw IMAP session transcript and
// prints the parsed event stream.
//
// It feeds the bytes of one connection side through the streaming
// parsers exactly as a server or client would, so it doubles as a
// harness for reproducing framing and grammar issues from captured
// traffic. Events can optionally be recorded into a sqlite database
// for later querying.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"crawshaw.io/iox"
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"spool.ink/imap/imapparser"
)

type config struct {
	Side           string `yaml:"side"` // "client" (commands) or "server" (responses)
	BufferLimit    int    `yaml:"buffer_limit"`
	RecursionDepth int    `yaml:"recursion_depth"`
	DB             string `yaml:"db"`
}

func main() {
	log.SetFlags(0)

	flagConfig := flag.String("config", "", "YAML config file")
	flagSide := flag.String("side", "client", `which side of the connection the input bytes are: "client" or "server"`)
	flagDB := flag.String("db", "", "record events into this sqlite database")
	flag.Parse()

	conf := config{Side: *flagSide, DB: *flagDB}
	if *flagConfig != "" {
		data, err := os.ReadFile(*flagConfig)
		if err != nil {
			log.Fatalf("imapdump: %v", err)
		}
		if err := yaml.Unmarshal(data, &conf); err != nil {
			log.Fatalf("imapdump: %v", eris.Wrap(err, "parsing config"))
		}
	}

	in := io.Reader(os.Stdin)
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Fatalf("imapdump: %v", err)
		}
		defer f.Close()
		in = f
	}

	var rec *recorder
	if conf.DB != "" {
		var err error
		if rec, err = openRecorder(conf.DB); err != nil {
			log.Fatalf("imapdump: %v", err)
		}
		defer rec.Close()
	}

	var err error
	switch conf.Side {
	case "client":
		err = dumpCommands(in, conf, rec)
	case "server":
		err = dumpResponses(in, conf, rec)
	default:
		err = eris.Errorf("unknown side %q", conf.Side)
	}
	if err != nil {
		log.Fatalf("imapdump: %v", err)
	}
}

func dumpCommands(in io.Reader, conf config, rec *recorder) error {
	filer := iox.NewFiler(0)
	defer filer.Shutdown(context.Background())

	parser := imapparser.NewCommandParser(conf.BufferLimit)
	if conf.RecursionDepth > 0 {
		parser.SetRecursionLimit(conf.RecursionDepth)
	}
	parser.SetSpool(filer)
	dec := imapparser.NewCommandDecoder(parser)

	return pump(in, func() (bool, error) {
		part, err := dec.Frame()
		if err != nil {
			return false, eris.Wrap(err, "decoding command stream")
		}
		if part == nil {
			return false, nil
		}
		if part.SynchronizingLiteralCount > 0 {
			fmt.Printf("! emit %d continuation(s)\n", part.SynchronizingLiteralCount)
		}
		if part.Event != nil {
			emit(rec, part.Event.Kind.String(), describeCommand(part.Event))
		}
		return true, nil
	}, dec.Append)
}

func dumpResponses(in io.Reader, conf config, rec *recorder) error {
	parser := imapparser.NewResponseParser(conf.BufferLimit)
	if conf.RecursionDepth > 0 {
		parser.SetRecursionLimit(conf.RecursionDepth)
	}
	dec := imapparser.NewResponseDecoder(parser)

	return pump(in, func() (bool, error) {
		ev, err := dec.Frame()
		if err != nil {
			return false, eris.Wrap(err, "decoding response stream")
		}
		if ev == nil {
			return false, nil
		}
		emit(rec, kindName(ev), describeResponse(ev))
		return true, nil
	}, dec.Append)
}

// pump reads chunks from in, appends them to the decoder, and
// drains events until the decoder reports it needs more bytes.
func pump(in io.Reader, frame func() (bool, error), appendBytes func([]byte)) error {
	buf := make([]byte, 4096)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			appendBytes(buf[:n])
			for {
				got, err := frame()
				if err != nil {
					return err
				}
				if !got {
					break
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return eris.Wrap(readErr, "reading input")
		}
	}
}

func emit(rec *recorder, kind, detail string) {
	fmt.Printf("%s: %s\n", kind, detail)
	if rec != nil {
		if err := rec.record(kind, detail); err != nil {
			log.Printf("imapdump: recording event: %v", err)
		}
	}
}

func describeCommand(ev *imapparser.CommandEvent) string {
	switch ev.Kind {
	case imapparser.CommandEventTagged:
		return fmt.Sprintf("%s %s", ev.Command.Tag, ev.Command.Name)
	case imapparser.CommandEventAppendBegin:
		return fmt.Sprintf("{%d} flags=%q", ev.Literal, ev.Append.Flags)
	case imapparser.CommandEventAppendBytes:
		return fmt.Sprintf("%d bytes (final=%v)", len(ev.Chunk), ev.Final)
	case imapparser.CommandEventAppendEnd:
		if ev.Message != nil {
			return fmt.Sprintf("spooled %d bytes", ev.Message.Size())
		}
	case imapparser.CommandEventContinuation:
		return fmt.Sprintf("%d bytes", len(ev.Chunk))
	}
	return ""
}

func kindName(ev *imapparser.ResponseEvent) string {
	switch ev.Kind {
	case imapparser.ResponseEventGreeting:
		return "greeting"
	case imapparser.ResponseEventContinueReq:
		return "continuation-request"
	case imapparser.ResponseEventUntagged:
		return "untagged"
	case imapparser.ResponseEventTagged:
		return "tagged"
	case imapparser.ResponseEventFetch:
		return "fetch"
	case imapparser.ResponseEventFatal:
		return "fatal"
	}
	return "unknown"
}

func describeResponse(ev *imapparser.ResponseEvent) string {
	switch ev.Kind {
	case imapparser.ResponseEventGreeting:
		return string(ev.Greeting.Cond)
	case imapparser.ResponseEventContinueReq:
		return string(ev.Continue.Text)
	case imapparser.ResponseEventUntagged:
		return ev.Untagged.Type.String()
	case imapparser.ResponseEventTagged:
		return fmt.Sprintf("%s %s %s", ev.Tagged.Tag, ev.Tagged.Cond, ev.Tagged.Text.Text)
	case imapparser.ResponseEventFetch:
		f := ev.Fetch
		switch f.Kind {
		case imapparser.FetchStart:
			return fmt.Sprintf("start %d", f.SeqNum)
		case imapparser.FetchSimple:
			return string(f.Attr.Type)
		case imapparser.FetchStreamBegin:
			return fmt.Sprintf("stream %s {%d}", f.Stream.Type, f.ByteCount)
		case imapparser.FetchStreamBytes:
			return fmt.Sprintf("%d bytes", len(f.Chunk))
		}
		return f.Kind.String()
	case imapparser.ResponseEventFatal:
		return string(ev.Fatal.Text)
	}
	return ""
}

// recorder stores decoded events in a sqlite database.
type recorder struct {
	conn *sqlite.Conn
	n    int64
}

func openRecorder(path string) (*recorder, error) {
	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, eris.Wrap(err, "opening event db")
	}
	err = sqlitex.ExecScript(conn, `CREATE TABLE IF NOT EXISTS Events (
		EventID INTEGER PRIMARY KEY,
		Kind    TEXT NOT NULL,
		Detail  TEXT
	);`)
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "initializing event db")
	}
	return &recorder{conn: conn}, nil
}

func (r *recorder) record(kind, detail string) error {
	r.n++
	return sqlitex.Exec(r.conn,
		"INSERT INTO Events (EventID, Kind, Detail) VALUES (?, ?, ?);",
		nil, r.n, kind, detail)
}

func (r *recorder) Close() error {
	return r.conn.Close()
}
